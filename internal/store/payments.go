package store

import (
	"context"
	"database/sql"

	"entry-service/internal/models"
)

// CreatePaymentRecord creates a new payment record for a charge attempt
func (s *Store) CreatePaymentRecord(ctx context.Context, payment *models.PaymentRecord) error {
	query := `
		INSERT INTO payment_records (id, entry_id, payment_ref, amount, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		payment.ID, payment.EntryID, payment.PaymentRef, payment.Amount, payment.Status,
	).Scan(&payment.CreatedAt, &payment.UpdatedAt)
}

// GetPaymentByReference retrieves a payment record by the processor's
// payment reference
func (s *Store) GetPaymentByReference(ctx context.Context, paymentRef string) (*models.PaymentRecord, error) {
	var payment models.PaymentRecord
	err := s.db.GetContext(ctx, &payment,
		"SELECT * FROM payment_records WHERE payment_ref = $1", paymentRef)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// SetPaymentRef attaches the processor-assigned reference to a record
// once the charge request has been created
func (s *Store) SetPaymentRef(ctx context.Context, paymentID, paymentRef string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE payment_records SET payment_ref = $1, updated_at = NOW() WHERE id = $2",
		paymentRef, paymentID)
	return err
}

// MarkPaymentSucceeded sets a payment record to succeeded by processor
// reference. Setting an already-succeeded record is a no-op in effect.
// Records awaiting a reference carry an empty payment_ref, so a blank
// reference must match nothing.
func (s *Store) MarkPaymentSucceeded(ctx context.Context, paymentRef string) (applied bool, err error) {
	if paymentRef == "" {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE payment_records SET status = $1, updated_at = NOW() WHERE payment_ref = $2 AND payment_ref <> '' AND status <> $1",
		models.PaymentStatusSucceeded, paymentRef)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// MarkPaymentFailed sets a payment record to failed by processor
// reference. A record already marked succeeded is left alone: succeeded
// always wins over a late failure event for the same reference.
func (s *Store) MarkPaymentFailed(ctx context.Context, paymentRef string) (applied bool, err error) {
	if paymentRef == "" {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE payment_records SET status = $1, updated_at = NOW() WHERE payment_ref = $2 AND payment_ref <> '' AND status = $3",
		models.PaymentStatusFailed, paymentRef, models.PaymentStatusPending)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// GetPaymentsByEntryID retrieves all charge attempts for an entry
func (s *Store) GetPaymentsByEntryID(ctx context.Context, entryID string) ([]models.PaymentRecord, error) {
	var payments []models.PaymentRecord
	err := s.db.SelectContext(ctx, &payments,
		"SELECT * FROM payment_records WHERE entry_id = $1 ORDER BY created_at DESC", entryID)
	return payments, err
}
