package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"entry-service/internal/broker"
	"entry-service/internal/models"
	"entry-service/internal/store"
	"entry-service/internal/util"
	"entry-service/internal/webhook"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EntryStore is the entry-side contract the orchestrator needs
type EntryStore interface {
	GetEntryByID(ctx context.Context, id string) (*models.Entry, error)
	ConfirmEntry(ctx context.Context, id string) (bool, error)
}

// PaymentStore is the payment-side contract the orchestrator needs
type PaymentStore interface {
	GetPaymentByReference(ctx context.Context, paymentRef string) (*models.PaymentRecord, error)
	MarkPaymentSucceeded(ctx context.Context, paymentRef string) (bool, error)
	MarkPaymentFailed(ctx context.Context, paymentRef string) (bool, error)
}

// EventLedger is the durable record of processed webhook event ids
type EventLedger interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Deduper is a fast-path duplicate check ahead of the durable ledger.
// A Deduper failure must never fail the pipeline; the handlers are
// idempotent without it. Events are remembered only after successful
// processing so a failed delivery is still retried.
type Deduper interface {
	IsEventSeen(ctx context.Context, eventID string) (bool, error)
	RememberEvent(ctx context.Context, eventID string, ttl time.Duration) error
}

// ConfirmationService applies verified processor events to entries and
// payment records. Both updates are idempotent single-row transitions, so
// the service is safe under duplicate and concurrent delivery of the same
// event.
type ConfirmationService struct {
	entries  EntryStore
	payments PaymentStore
	ledger   EventLedger
	deduper  Deduper
	events   *broker.EventPublisher
	logger   *zap.Logger
	dedupTTL time.Duration
}

// NewConfirmationService creates a new confirmation orchestrator
func NewConfirmationService(
	entries EntryStore,
	payments PaymentStore,
	ledger EventLedger,
	deduper Deduper,
	events *broker.EventPublisher,
) *ConfirmationService {
	return &ConfirmationService{
		entries:  entries,
		payments: payments,
		ledger:   ledger,
		deduper:  deduper,
		events:   events,
		logger:   util.GetLogger(),
		dedupTTL: 24 * time.Hour,
	}
}

// HandlePaymentSucceeded confirms the correlated entry and marks the
// payment record succeeded. The two updates are independent: a missing
// entry does not block the payment-side update and vice versa. Missing
// correlation metadata is a no-op success so the processor stops
// redelivering legacy or malformed events.
func (cs *ConfirmationService) HandlePaymentSucceeded(ctx context.Context, event *webhook.VerifiedEvent) error {
	ctx, span := util.StartSpan(ctx, "ConfirmationService.HandlePaymentSucceeded")
	defer span.End()

	if dup, err := cs.alreadyProcessed(ctx, event.ID); err != nil {
		return err
	} else if dup {
		return nil
	}

	cs.logger.Info("Handling payment success",
		zap.String("event_id", event.ID),
		zap.String("payment_ref", event.PaymentRef))

	entryID := event.EntryID()
	if entryID == "" {
		// Legacy or degraded events can arrive without correlation
		// metadata; they must be a full no-op or the processor would
		// redeliver forever.
		cs.logger.Warn("Success event without entry correlation, ignoring",
			zap.String("event_id", event.ID))
		cs.markProcessed(ctx, event)
		return nil
	}

	entryErr := cs.confirmEntry(ctx, entryID, event)

	var paymentErr error
	if event.PaymentRef == "" {
		// An empty reference must never reach the store: payment
		// records are created before the processor assigns a
		// reference, so a blank predicate would match those rows.
		cs.logger.Warn("Success event without payment reference, skipping payment update",
			zap.String("event_id", event.ID))
	} else {
		applied, err := cs.payments.MarkPaymentSucceeded(ctx, event.PaymentRef)
		if err != nil {
			paymentErr = fmt.Errorf("failed to mark payment succeeded: %w", err)
		} else if applied {
			util.PaymentsSucceededTotal.Inc()
		}
	}

	if err := errors.Join(entryErr, paymentErr); err != nil {
		return err
	}

	cs.markProcessed(ctx, event)
	return nil
}

// confirmEntry transitions one entry to confirmed and publishes the
// downstream domain event when the transition was actually applied.
func (cs *ConfirmationService) confirmEntry(ctx context.Context, entryID string, event *webhook.VerifiedEvent) error {
	entry, err := cs.entries.GetEntryByID(ctx, entryID)
	if errors.Is(err, store.ErrNotFound) {
		cs.logger.Warn("Success event references unknown entry, skipping",
			zap.String("event_id", event.ID),
			zap.String("entry_id", entryID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load entry: %w", err)
	}

	applied, err := cs.entries.ConfirmEntry(ctx, entry.ID)
	if err != nil {
		return fmt.Errorf("failed to confirm entry: %w", err)
	}
	if !applied {
		cs.logger.Info("Entry already in a terminal state, confirmation is a no-op",
			zap.String("entry_id", entry.ID),
			zap.String("status", entry.Status))
		return nil
	}

	util.EntriesConfirmedTotal.Inc()
	cs.logger.Info("Entry confirmed",
		zap.String("entry_id", entry.ID),
		zap.String("payment_ref", event.PaymentRef))

	if cs.events != nil {
		confirmed := &models.EntryConfirmedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeEntryConfirmed,
				Timestamp: time.Now(),
			},
			EntryID:    entry.ID,
			PaymentRef: event.PaymentRef,
			Amount:     event.Amount,
		}
		if err := cs.events.PublishEntryConfirmed(ctx, confirmed); err != nil {
			cs.logger.Error("Failed to publish EntryConfirmed event", zap.Error(err))
		}
	}
	return nil
}

// HandlePaymentFailed marks the payment record failed. The entry is never
// touched on failure: it stays pending so the exhibitor can raise another
// charge attempt. A record already marked succeeded is left alone
// (succeeded always wins over a late failure for the same reference).
func (cs *ConfirmationService) HandlePaymentFailed(ctx context.Context, event *webhook.VerifiedEvent) error {
	ctx, span := util.StartSpan(ctx, "ConfirmationService.HandlePaymentFailed")
	defer span.End()

	if dup, err := cs.alreadyProcessed(ctx, event.ID); err != nil {
		return err
	} else if dup {
		return nil
	}

	cs.logger.Warn("Handling payment failure",
		zap.String("event_id", event.ID),
		zap.String("payment_ref", event.PaymentRef),
		zap.String("reason", event.Reason))

	if event.PaymentRef == "" {
		cs.logger.Warn("Failure event without payment reference, ignoring",
			zap.String("event_id", event.ID))
		cs.markProcessed(ctx, event)
		return nil
	}

	applied, err := cs.payments.MarkPaymentFailed(ctx, event.PaymentRef)
	if err != nil {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}

	if applied {
		util.PaymentsFailedTotal.Inc()
		cs.publishPaymentFailed(ctx, event)
	} else {
		cs.explainFailedNoop(ctx, event)
	}

	cs.markProcessed(ctx, event)
	return nil
}

// markProcessed records the event in the durable ledger and the cache.
// Neither write is allowed to fail the request: the transitions above are
// idempotent, so a redelivered event would no-op anyway.
func (cs *ConfirmationService) markProcessed(ctx context.Context, event *webhook.VerifiedEvent) {
	if err := cs.ledger.MarkEventProcessed(ctx, event.ID, event.Kind.String()); err != nil {
		cs.logger.Error("Failed to mark event processed", zap.Error(err))
	}
	if cs.deduper != nil {
		if err := cs.deduper.RememberEvent(ctx, event.ID, cs.dedupTTL); err != nil {
			cs.logger.Warn("Event dedup cache unavailable", zap.Error(err))
		}
	}
}

// explainFailedNoop logs why a failure event changed nothing: either the
// record is unknown or it already reached a terminal state.
func (cs *ConfirmationService) explainFailedNoop(ctx context.Context, event *webhook.VerifiedEvent) {
	payment, err := cs.payments.GetPaymentByReference(ctx, event.PaymentRef)
	if errors.Is(err, store.ErrNotFound) {
		cs.logger.Warn("Failure event references unknown payment record, skipping",
			zap.String("event_id", event.ID),
			zap.String("payment_ref", event.PaymentRef))
		return
	}
	if err != nil {
		cs.logger.Error("Failed to load payment record", zap.Error(err))
		return
	}
	if payment.Status == models.PaymentStatusSucceeded {
		cs.logger.Warn("Failure event for an already-succeeded payment, ignoring",
			zap.String("event_id", event.ID),
			zap.String("payment_ref", event.PaymentRef))
	}
}

func (cs *ConfirmationService) publishPaymentFailed(ctx context.Context, event *webhook.VerifiedEvent) {
	if cs.events == nil {
		return
	}
	failed := &models.EntryPaymentFailedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeEntryPaymentFailed,
			Timestamp: time.Now(),
		},
		EntryID:    event.EntryID(),
		PaymentRef: event.PaymentRef,
		Reason:     event.Reason,
	}
	if err := cs.events.PublishEntryPaymentFailed(ctx, failed); err != nil {
		cs.logger.Error("Failed to publish EntryPaymentFailed event", zap.Error(err))
	}
}

// alreadyProcessed consults the Redis fast path and then the durable
// ledger. Only a ledger failure propagates; the fast path degrades to
// processing the event anyway.
func (cs *ConfirmationService) alreadyProcessed(ctx context.Context, eventID string) (bool, error) {
	if cs.deduper != nil {
		seen, err := cs.deduper.IsEventSeen(ctx, eventID)
		if err != nil {
			cs.logger.Warn("Event dedup cache unavailable", zap.Error(err))
		} else if seen {
			cs.logger.Info("Duplicate event suppressed by cache", zap.String("event_id", eventID))
			return true, nil
		}
	}

	processed, err := cs.ledger.IsEventProcessed(ctx, eventID)
	if err != nil {
		return false, fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		cs.logger.Info("Event already processed", zap.String("event_id", eventID))
	}
	return processed, nil
}
