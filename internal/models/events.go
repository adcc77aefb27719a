package models

import "time"

// Processor webhook event types
const (
	ProcessorEventPaymentSucceeded = "payment_succeeded"
	ProcessorEventPaymentFailed    = "payment_failed"
)

// Correlation metadata keys attached to charge requests and echoed back
// in webhook events
const (
	MetaEntryID         = "entry_id"
	MetaDogID           = "dog_id"
	MetaExhibitorID     = "exhibitor_id"
	MetaClassIDs        = "class_ids"
	MetaPaymentRecordID = "payment_record_id"
)

// ProcessorEvent is the wire shape of a processor webhook notification.
// It is untrusted until the signature over the raw body has been verified.
type ProcessorEvent struct {
	ID      string               `json:"id"`
	Type    string               `json:"type"`
	Created int64                `json:"created"`
	Data    ProcessorEventObject `json:"data"`
}

// ProcessorEventObject is the nested payload of a processor event
type ProcessorEventObject struct {
	PaymentRef    string            `json:"payment_reference"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Metadata      map[string]string `json:"metadata"`
}

// Domain event types published to the broker
const (
	EventTypeEntrySubmitted     = "ENTRY_SUBMITTED"
	EventTypeEntryConfirmed     = "ENTRY_CONFIRMED"
	EventTypeEntryPaymentFailed = "ENTRY_PAYMENT_FAILED"
)

// BaseEvent contains common fields for all domain events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// EntrySubmittedEvent published when an entry is created and a charge
// request has been raised
type EntrySubmittedEvent struct {
	BaseEvent
	EntryID     string `json:"entry_id"`
	ShowID      string `json:"show_id"`
	ExhibitorID string `json:"exhibitor_id"`
	FeePence    int64  `json:"fee_pence"`
}

// EntryConfirmedEvent published when payment succeeds and the entry is
// confirmed
type EntryConfirmedEvent struct {
	BaseEvent
	EntryID    string `json:"entry_id"`
	PaymentRef string `json:"payment_ref"`
	Amount     int64  `json:"amount"`
}

// EntryPaymentFailedEvent published when a charge attempt fails; the entry
// stays pending so the exhibitor can retry
type EntryPaymentFailedEvent struct {
	BaseEvent
	EntryID    string `json:"entry_id"`
	PaymentRef string `json:"payment_ref"`
	Reason     string `json:"reason"`
}
