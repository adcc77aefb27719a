package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"entry-service/internal/models"
	"entry-service/internal/util"

	"go.uber.org/zap"
)

// ChargeCorrelation is the metadata bundle attached to every charge
// request. The processor echoes it back verbatim in webhook events; losing
// it breaks confirmation entirely, so it is a hard precondition here.
type ChargeCorrelation struct {
	EntryID         string
	DogID           string
	ExhibitorID     string
	ClassIDs        []string
	PaymentRecordID string
}

// ChargeHandle identifies a created charge request at the processor
type ChargeHandle struct {
	PaymentRef string `json:"payment_reference"`
	Status     string `json:"status"`
}

// ProcessorClient talks to the payment processor's payment-intent API. It
// is constructed explicitly with its credential and base URL; there is no
// process-wide lazily initialized client.
type ProcessorClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	logger     *zap.Logger
}

// NewProcessorClient creates a processor client. baseURL is overridable
// for tests against httptest servers.
func NewProcessorClient(httpClient *http.Client, apiKey, baseURL string) *ProcessorClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &ProcessorClient{
		httpClient: httpClient,
		apiKey:     apiKey,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		logger:     util.GetLogger(),
	}
}

type chargeRequestBody struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}

// CreateChargeRequest raises an out-of-band charge with the processor.
// amountMinorUnits is denominated in pence; it must be positive. The
// returned handle carries the processor payment reference used to join
// webhook events back to the local payment record.
func (pc *ProcessorClient) CreateChargeRequest(ctx context.Context, amountMinorUnits int64, correlation ChargeCorrelation) (*ChargeHandle, error) {
	ctx, span := util.StartSpan(ctx, "ProcessorClient.CreateChargeRequest")
	defer span.End()

	if amountMinorUnits <= 0 {
		return nil, fmt.Errorf("charge amount must be positive, got %d", amountMinorUnits)
	}
	if correlation.EntryID == "" || correlation.PaymentRecordID == "" {
		return nil, fmt.Errorf("charge correlation is incomplete")
	}

	body := chargeRequestBody{
		Amount:   amountMinorUnits,
		Currency: "gbp",
		Metadata: map[string]string{
			models.MetaEntryID:         correlation.EntryID,
			models.MetaDogID:           correlation.DogID,
			models.MetaExhibitorID:     correlation.ExhibitorID,
			models.MetaClassIDs:        strings.Join(correlation.ClassIDs, ","),
			models.MetaPaymentRecordID: correlation.PaymentRecordID,
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal charge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		pc.baseURL+"/v1/payment_intents", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build charge request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+pc.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := pc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("charge request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("processor rejected charge request: status=%d body=%s",
			resp.StatusCode, snippet)
	}

	var handle ChargeHandle
	if err := json.NewDecoder(resp.Body).Decode(&handle); err != nil {
		return nil, fmt.Errorf("failed to decode charge response: %w", err)
	}
	if handle.PaymentRef == "" {
		return nil, fmt.Errorf("processor response missing payment reference")
	}

	pc.logger.Info("Charge request created",
		zap.String("entry_id", correlation.EntryID),
		zap.String("payment_ref", handle.PaymentRef),
		zap.Int64("amount", amountMinorUnits))

	return &ChargeHandle{PaymentRef: handle.PaymentRef, Status: handle.Status}, nil
}
