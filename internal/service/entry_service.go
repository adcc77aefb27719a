package service

import (
	"context"
	"fmt"
	"time"

	"entry-service/internal/broker"
	"entry-service/internal/models"
	"entry-service/internal/store"
	"entry-service/internal/util"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// EntryService handles show-entry submission and lookup
type EntryService struct {
	store     *store.Store
	processor *ProcessorClient
	events    *broker.EventPublisher
	logger    *zap.Logger
}

// NewEntryService creates a new entry service
func NewEntryService(store *store.Store, processor *ProcessorClient, events *broker.EventPublisher) *EntryService {
	return &EntryService{
		store:     store,
		processor: processor,
		events:    events,
		logger:    util.GetLogger(),
	}
}

// SubmitEntryRequest represents a request to enter a dog into a show
type SubmitEntryRequest struct {
	ShowID      string   `json:"show_id" binding:"required"`
	DogID       string   `json:"dog_id" binding:"required"`
	ExhibitorID string   `json:"exhibitor_id" binding:"required"`
	ClassIDs    []string `json:"class_ids" binding:"required,min=1"`
	FeePence    int64    `json:"fee_pence" binding:"required,min=1"`
}

// SubmitEntryResponse represents the response after submitting an entry
type SubmitEntryResponse struct {
	EntryID    string `json:"entry_id"`
	PaymentRef string `json:"payment_ref"`
	Status     string `json:"status"`
}

// SubmitEntry creates a pending entry and raises a charge request with the
// processor. The entry stays pending until a payment_succeeded webhook
// event confirms it.
func (s *EntryService) SubmitEntry(ctx context.Context, req *SubmitEntryRequest) (*SubmitEntryResponse, error) {
	ctx, span := util.StartSpan(ctx, "EntryService.SubmitEntry")
	defer span.End()

	entry := &models.Entry{
		ID:          uuid.New().String(),
		ShowID:      req.ShowID,
		DogID:       req.DogID,
		ExhibitorID: req.ExhibitorID,
		ClassIDs:    pq.StringArray(req.ClassIDs),
		FeePence:    req.FeePence,
		Status:      models.EntryStatusPending,
	}

	if err := s.store.CreateEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to create entry: %w", err)
	}

	util.EntriesSubmittedTotal.Inc()
	s.logger.Info("Entry created", zap.String("entry_id", entry.ID))

	payment := &models.PaymentRecord{
		ID:      uuid.New().String(),
		EntryID: entry.ID,
		Amount:  req.FeePence,
		Status:  models.PaymentStatusPending,
	}
	if err := s.store.CreatePaymentRecord(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment record: %w", err)
	}

	handle, err := s.processor.CreateChargeRequest(ctx, req.FeePence, ChargeCorrelation{
		EntryID:         entry.ID,
		DogID:           req.DogID,
		ExhibitorID:     req.ExhibitorID,
		ClassIDs:        req.ClassIDs,
		PaymentRecordID: payment.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create charge request: %w", err)
	}

	if err := s.store.SetPaymentRef(ctx, payment.ID, handle.PaymentRef); err != nil {
		return nil, fmt.Errorf("failed to attach payment reference: %w", err)
	}

	if s.events != nil {
		submitted := &models.EntrySubmittedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeEntrySubmitted,
				Timestamp: time.Now(),
			},
			EntryID:     entry.ID,
			ShowID:      entry.ShowID,
			ExhibitorID: entry.ExhibitorID,
			FeePence:    entry.FeePence,
		}
		if err := s.events.PublishEntrySubmitted(ctx, submitted); err != nil {
			s.logger.Error("Failed to publish EntrySubmitted event", zap.Error(err))
		}
	}

	return &SubmitEntryResponse{
		EntryID:    entry.ID,
		PaymentRef: handle.PaymentRef,
		Status:     entry.Status,
	}, nil
}

// GetEntry retrieves an entry and its charge attempts
func (s *EntryService) GetEntry(ctx context.Context, entryID string) (*models.Entry, []models.PaymentRecord, error) {
	entry, err := s.store.GetEntryByID(ctx, entryID)
	if err != nil {
		return nil, nil, err
	}

	payments, err := s.store.GetPaymentsByEntryID(ctx, entryID)
	if err != nil {
		return nil, nil, err
	}

	return entry, payments, nil
}
