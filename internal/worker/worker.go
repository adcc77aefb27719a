package worker

import (
	"context"
	"encoding/json"
	"log"

	"entry-service/internal/broker"
	"entry-service/internal/models"
	"entry-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// NotificationWorker consumes entry domain events and dispatches exhibitor
// notifications. Actual delivery (email) is a downstream collaborator; the
// worker resolves what to say and to whom.
type NotificationWorker struct {
	consumer *broker.Consumer
	logger   *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer) *NotificationWorker {
	return &NotificationWorker{
		consumer: consumer,
		logger:   util.GetLogger(),
	}
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	log.Println("Starting notification worker...")
	return w.consumer.StartConsuming(ctx, w.handleMessage)
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	log.Println("Stopping notification worker...")
	return w.consumer.Close()
}

func (w *NotificationWorker) handleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		w.logger.Error("Failed to unmarshal event", zap.Error(err))
		return err
	}

	switch baseEvent.EventType {
	case models.EventTypeEntryConfirmed:
		var event models.EntryConfirmedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return err
		}
		w.logger.Info("Dispatching entry confirmation notification",
			zap.String("entry_id", event.EntryID),
			zap.String("payment_ref", event.PaymentRef))
		util.NotificationsSentTotal.WithLabelValues("confirmation").Inc()

	case models.EventTypeEntryPaymentFailed:
		var event models.EntryPaymentFailedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return err
		}
		w.logger.Info("Dispatching payment failure notification",
			zap.String("entry_id", event.EntryID),
			zap.String("reason", event.Reason))
		util.NotificationsSentTotal.WithLabelValues("payment_failed").Inc()

	default:
		// EntrySubmitted and future event types need no notification
	}

	return nil
}
