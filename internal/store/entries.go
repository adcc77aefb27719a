package store

import (
	"context"
	"database/sql"

	"entry-service/internal/models"
)

// CreateEntry creates a new show entry
func (s *Store) CreateEntry(ctx context.Context, entry *models.Entry) error {
	query := `
		INSERT INTO entries (id, show_id, dog_id, exhibitor_id, class_ids, fee_pence, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		entry.ID, entry.ShowID, entry.DogID, entry.ExhibitorID,
		entry.ClassIDs, entry.FeePence, entry.Status,
	).Scan(&entry.CreatedAt, &entry.UpdatedAt)
}

// GetEntryByID retrieves an entry by ID
func (s *Store) GetEntryByID(ctx context.Context, id string) (*models.Entry, error) {
	var entry models.Entry
	err := s.db.GetContext(ctx, &entry, "SELECT * FROM entries WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ConfirmEntry moves a pending entry to confirmed. The conditional write
// serializes concurrent confirmations at the row level: re-confirming an
// already-confirmed entry reports applied=false with no error, and a
// cancelled entry is never resurrected.
func (s *Store) ConfirmEntry(ctx context.Context, id string) (applied bool, err error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE entries SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		models.EntryStatusConfirmed, id, models.EntryStatusPending)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// CancelEntry moves a pending entry to cancelled
func (s *Store) CancelEntry(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE entries SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		models.EntryStatusCancelled, id, models.EntryStatusPending)
	return err
}

// GetEntriesByExhibitorID retrieves entries for an exhibitor
func (s *Store) GetEntriesByExhibitorID(ctx context.Context, exhibitorID string) ([]models.Entry, error) {
	var entries []models.Entry
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM entries WHERE exhibitor_id = $1 ORDER BY created_at DESC", exhibitorID)
	return entries, err
}
