package broker

import (
	"context"
	"fmt"

	"entry-service/internal/models"
)

// EventPublisher handles publishing entry domain events, keyed by entry id
// so all events for one entry land on the same partition in order.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishEntrySubmitted publishes EntrySubmitted event
func (ep *EventPublisher) PublishEntrySubmitted(ctx context.Context, event *models.EntrySubmittedEvent) error {
	key := fmt.Sprintf("entry-%s", event.EntryID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishEntryConfirmed publishes EntryConfirmed event
func (ep *EventPublisher) PublishEntryConfirmed(ctx context.Context, event *models.EntryConfirmedEvent) error {
	key := fmt.Sprintf("entry-%s", event.EntryID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishEntryPaymentFailed publishes EntryPaymentFailed event
func (ep *EventPublisher) PublishEntryPaymentFailed(ctx context.Context, event *models.EntryPaymentFailedEvent) error {
	key := fmt.Sprintf("entry-%s", event.EntryID)
	return ep.producer.PublishEvent(ctx, key, event)
}
