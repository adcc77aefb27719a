package models

import (
	"time"

	"github.com/lib/pq"
)

// Dog represents a registered dog
type Dog struct {
	ID           string    `db:"id" json:"id"`
	ExhibitorID  string    `db:"exhibitor_id" json:"exhibitor_id"`
	RegisteredAs string    `db:"registered_as" json:"registered_as"`
	Breed        string    `db:"breed" json:"breed"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Exhibitor represents a person entering dogs into shows
type Exhibitor struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Entry represents a show entry for one dog
type Entry struct {
	ID          string         `db:"id" json:"id"`
	ShowID      string         `db:"show_id" json:"show_id"`
	DogID       string         `db:"dog_id" json:"dog_id"`
	ExhibitorID string         `db:"exhibitor_id" json:"exhibitor_id"`
	ClassIDs    pq.StringArray `db:"class_ids" json:"class_ids"`
	FeePence    int64          `db:"fee_pence" json:"fee_pence"`
	Status      string         `db:"status" json:"status"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// PaymentRecord represents one charge attempt against an entry
type PaymentRecord struct {
	ID         string    `db:"id" json:"id"`
	EntryID    string    `db:"entry_id" json:"entry_id"`
	PaymentRef string    `db:"payment_ref" json:"payment_ref,omitempty"`
	Amount     int64     `db:"amount" json:"amount"`
	Status     string    `db:"status" json:"status"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Entry statuses
const (
	EntryStatusPending   = "pending"
	EntryStatusConfirmed = "confirmed"
	EntryStatusCancelled = "cancelled"
)

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
)

// ProcessedEvent for webhook idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
