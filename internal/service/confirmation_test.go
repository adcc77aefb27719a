package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"entry-service/internal/models"
	"entry-service/internal/store"
	"entry-service/internal/webhook"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStores is an in-memory stand-in for the entry, payment, and ledger
// contracts. It mirrors the conditional-write semantics of the SQL store
// and is safe for concurrent use.
type fakeStores struct {
	mu        sync.Mutex
	entries   map[string]*models.Entry
	payments  map[string]*models.PaymentRecord
	processed map[string]bool

	entryErr   error
	paymentErr error

	confirmApplied int
}

func newFakeStores() *fakeStores {
	return &fakeStores{
		entries:   make(map[string]*models.Entry),
		payments:  make(map[string]*models.PaymentRecord),
		processed: make(map[string]bool),
	}
}

func (f *fakeStores) GetEntryByID(ctx context.Context, id string) (*models.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entryErr != nil {
		return nil, f.entryErr
	}
	entry, ok := f.entries[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *entry
	return &copied, nil
}

func (f *fakeStores) ConfirmEntry(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entryErr != nil {
		return false, f.entryErr
	}
	entry, ok := f.entries[id]
	if !ok || entry.Status != models.EntryStatusPending {
		return false, nil
	}
	entry.Status = models.EntryStatusConfirmed
	f.confirmApplied++
	return true, nil
}

func (f *fakeStores) GetPaymentByReference(ctx context.Context, ref string) (*models.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.paymentErr != nil {
		return nil, f.paymentErr
	}
	payment, ok := f.payments[ref]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *payment
	return &copied, nil
}

func (f *fakeStores) MarkPaymentSucceeded(ctx context.Context, ref string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.paymentErr != nil {
		return false, f.paymentErr
	}
	if ref == "" {
		return false, nil
	}
	payment, ok := f.payments[ref]
	if !ok || payment.Status == models.PaymentStatusSucceeded {
		return false, nil
	}
	payment.Status = models.PaymentStatusSucceeded
	return true, nil
}

func (f *fakeStores) MarkPaymentFailed(ctx context.Context, ref string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.paymentErr != nil {
		return false, f.paymentErr
	}
	if ref == "" {
		return false, nil
	}
	payment, ok := f.payments[ref]
	if !ok || payment.Status != models.PaymentStatusPending {
		return false, nil
	}
	payment.Status = models.PaymentStatusFailed
	return true, nil
}

func (f *fakeStores) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed[eventID], nil
}

func (f *fakeStores) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[eventID] = true
	return nil
}

func (f *fakeStores) entryStatus(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries[id].Status
}

func (f *fakeStores) paymentStatus(ref string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payments[ref].Status
}

func seedPendingEntry(f *fakeStores) (entryID, paymentRef string) {
	entryID = "entry-1"
	paymentRef = "pr_abc"
	f.entries[entryID] = &models.Entry{ID: entryID, Status: models.EntryStatusPending}
	f.payments[paymentRef] = &models.PaymentRecord{
		ID:         "pay-1",
		EntryID:    entryID,
		PaymentRef: paymentRef,
		Status:     models.PaymentStatusPending,
	}
	return entryID, paymentRef
}

func succeededEvent(id, entryID, paymentRef string) *webhook.VerifiedEvent {
	metadata := map[string]string{}
	if entryID != "" {
		metadata[models.MetaEntryID] = entryID
	}
	return &webhook.VerifiedEvent{
		ID:         id,
		Kind:       webhook.KindPaymentSucceeded,
		Created:    time.Now(),
		PaymentRef: paymentRef,
		Amount:     4500,
		Metadata:   metadata,
	}
}

func failedEvent(id, entryID, paymentRef string) *webhook.VerifiedEvent {
	ev := succeededEvent(id, entryID, paymentRef)
	ev.Kind = webhook.KindPaymentFailed
	ev.Reason = "card_declined"
	return ev
}

func newTestService(f *fakeStores) *ConfirmationService {
	return NewConfirmationService(f, f, f, nil, nil)
}

func TestHandlePaymentSucceededConfirmsEntry(t *testing.T) {
	f := newFakeStores()
	entryID, paymentRef := seedPendingEntry(f)
	cs := newTestService(f)

	err := cs.HandlePaymentSucceeded(context.Background(), succeededEvent("evt_1", entryID, paymentRef))
	require.NoError(t, err)

	assert.Equal(t, models.EntryStatusConfirmed, f.entryStatus(entryID))
	assert.Equal(t, models.PaymentStatusSucceeded, f.paymentStatus(paymentRef))
}

func TestHandlePaymentSucceededRedeliveryIsIdempotent(t *testing.T) {
	f := newFakeStores()
	entryID, paymentRef := seedPendingEntry(f)
	cs := newTestService(f)

	event := succeededEvent("evt_1", entryID, paymentRef)
	require.NoError(t, cs.HandlePaymentSucceeded(context.Background(), event))
	require.NoError(t, cs.HandlePaymentSucceeded(context.Background(), event))

	assert.Equal(t, models.EntryStatusConfirmed, f.entryStatus(entryID))
	assert.Equal(t, models.PaymentStatusSucceeded, f.paymentStatus(paymentRef))
	assert.Equal(t, 1, f.confirmApplied)
}

func TestHandlePaymentSucceededConcurrentDuplicates(t *testing.T) {
	f := newFakeStores()
	entryID, paymentRef := seedPendingEntry(f)
	cs := newTestService(f)

	const deliveries = 8
	var wg sync.WaitGroup
	errs := make([]error, deliveries)
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Deliveries can race past the ledger check before any of
			// them marks the event processed; the conditional entry
			// transition is what guards against double-apply.
			errs[i] = cs.HandlePaymentSucceeded(context.Background(),
				succeededEvent("evt_dup", entryID, paymentRef))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, models.EntryStatusConfirmed, f.entryStatus(entryID))
	assert.Equal(t, 1, f.confirmApplied, "exactly one logical confirmation")
}

func TestHandlePaymentSucceededMissingCorrelationIsFullNoop(t *testing.T) {
	f := newFakeStores()
	entryID, paymentRef := seedPendingEntry(f)
	cs := newTestService(f)

	err := cs.HandlePaymentSucceeded(context.Background(), succeededEvent("evt_1", "", paymentRef))
	require.NoError(t, err)

	// An event without correlation metadata mutates nothing
	assert.Equal(t, models.EntryStatusPending, f.entryStatus(entryID))
	assert.Equal(t, models.PaymentStatusPending, f.paymentStatus(paymentRef))
}

func TestHandlePaymentSucceededEmptyReferenceLeavesPaymentsAlone(t *testing.T) {
	f := newFakeStores()
	entryID, paymentRef := seedPendingEntry(f)
	// A record whose charge request never completed has no reference yet
	f.payments[""] = &models.PaymentRecord{
		ID:      "pay-orphan",
		EntryID: "entry-other",
		Status:  models.PaymentStatusPending,
	}
	cs := newTestService(f)

	err := cs.HandlePaymentSucceeded(context.Background(), succeededEvent("evt_1", entryID, ""))
	require.NoError(t, err)

	// The entry side still confirms, but no payment record is touched:
	// a blank reference must not match rows awaiting their reference
	assert.Equal(t, models.EntryStatusConfirmed, f.entryStatus(entryID))
	assert.Equal(t, models.PaymentStatusPending, f.paymentStatus(""))
	assert.Equal(t, models.PaymentStatusPending, f.paymentStatus(paymentRef))
}

func TestHandlePaymentFailedEmptyReferenceIsNoop(t *testing.T) {
	f := newFakeStores()
	entryID, paymentRef := seedPendingEntry(f)
	f.payments[""] = &models.PaymentRecord{
		ID:      "pay-orphan",
		EntryID: "entry-other",
		Status:  models.PaymentStatusPending,
	}
	cs := newTestService(f)

	err := cs.HandlePaymentFailed(context.Background(), failedEvent("evt_1", entryID, ""))
	require.NoError(t, err)

	assert.Equal(t, models.EntryStatusPending, f.entryStatus(entryID))
	assert.Equal(t, models.PaymentStatusPending, f.paymentStatus(""))
	assert.Equal(t, models.PaymentStatusPending, f.paymentStatus(paymentRef))
}

func TestHandlePaymentSucceededUnknownEntry(t *testing.T) {
	f := newFakeStores()
	cs := newTestService(f)

	err := cs.HandlePaymentSucceeded(context.Background(),
		succeededEvent("evt_1", "entry-missing", "pr_missing"))
	require.NoError(t, err)

	assert.Empty(t, f.entries)
	assert.Empty(t, f.payments)
}

func TestHandlePaymentSucceededNeverRegressesConfirmed(t *testing.T) {
	f := newFakeStores()
	entryID, paymentRef := seedPendingEntry(f)
	f.entries[entryID].Status = models.EntryStatusConfirmed
	cs := newTestService(f)

	err := cs.HandlePaymentSucceeded(context.Background(), succeededEvent("evt_1", entryID, paymentRef))
	require.NoError(t, err)

	assert.Equal(t, models.EntryStatusConfirmed, f.entryStatus(entryID))
	assert.Equal(t, 0, f.confirmApplied)
}

func TestHandlePaymentSucceededSkipsCancelledEntry(t *testing.T) {
	f := newFakeStores()
	entryID, paymentRef := seedPendingEntry(f)
	f.entries[entryID].Status = models.EntryStatusCancelled
	cs := newTestService(f)

	err := cs.HandlePaymentSucceeded(context.Background(), succeededEvent("evt_1", entryID, paymentRef))
	require.NoError(t, err)

	assert.Equal(t, models.EntryStatusCancelled, f.entryStatus(entryID))
}

func TestHandlePaymentSucceededStoreErrorPropagates(t *testing.T) {
	f := newFakeStores()
	entryID, paymentRef := seedPendingEntry(f)
	f.entryErr = errors.New("connection reset")
	cs := newTestService(f)

	event := succeededEvent("evt_1", entryID, paymentRef)
	err := cs.HandlePaymentSucceeded(context.Background(), event)
	require.Error(t, err)

	// Event must not be marked processed so redelivery retries it
	f.mu.Lock()
	processed := f.processed[event.ID]
	f.mu.Unlock()
	assert.False(t, processed)
}

func TestHandlePaymentSucceededEntryErrorDoesNotBlockPayment(t *testing.T) {
	f := newFakeStores()
	entryID, paymentRef := seedPendingEntry(f)
	f.entryErr = errors.New("connection reset")
	cs := newTestService(f)

	err := cs.HandlePaymentSucceeded(context.Background(), succeededEvent("evt_1", entryID, paymentRef))
	require.Error(t, err)

	assert.Equal(t, models.PaymentStatusSucceeded, f.paymentStatus(paymentRef))
}

func TestHandlePaymentFailedLeavesEntryPending(t *testing.T) {
	f := newFakeStores()
	entryID, paymentRef := seedPendingEntry(f)
	cs := newTestService(f)

	err := cs.HandlePaymentFailed(context.Background(), failedEvent("evt_1", entryID, paymentRef))
	require.NoError(t, err)

	assert.Equal(t, models.EntryStatusPending, f.entryStatus(entryID))
	assert.Equal(t, models.PaymentStatusFailed, f.paymentStatus(paymentRef))
}

func TestHandlePaymentFailedAfterSucceededIsIgnored(t *testing.T) {
	f := newFakeStores()
	entryID, paymentRef := seedPendingEntry(f)
	cs := newTestService(f)

	require.NoError(t, cs.HandlePaymentSucceeded(context.Background(),
		succeededEvent("evt_1", entryID, paymentRef)))
	require.NoError(t, cs.HandlePaymentFailed(context.Background(),
		failedEvent("evt_2", entryID, paymentRef)))

	// Succeeded always wins over a late failure for the same reference
	assert.Equal(t, models.PaymentStatusSucceeded, f.paymentStatus(paymentRef))
	assert.Equal(t, models.EntryStatusConfirmed, f.entryStatus(entryID))
}

func TestHandlePaymentFailedUnknownReference(t *testing.T) {
	f := newFakeStores()
	cs := newTestService(f)

	err := cs.HandlePaymentFailed(context.Background(), failedEvent("evt_1", "", "pr_missing"))
	assert.NoError(t, err)
}

func TestHandlePaymentFailedStoreErrorPropagates(t *testing.T) {
	f := newFakeStores()
	entryID, paymentRef := seedPendingEntry(f)
	f.paymentErr = errors.New("connection reset")
	cs := newTestService(f)

	err := cs.HandlePaymentFailed(context.Background(), failedEvent("evt_1", entryID, paymentRef))
	assert.Error(t, err)
}
