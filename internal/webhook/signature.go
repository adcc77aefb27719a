package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"entry-service/internal/models"
)

// ErrInvalidSignature is returned for every verification failure: missing
// header, signature mismatch, or stale timestamp. Callers get no more detail
// than this so the endpoint cannot be used as a signature oracle.
var ErrInvalidSignature = errors.New("webhook: invalid signature")

// SignatureHeader is the HTTP header carrying the processor's signature
const SignatureHeader = "Processor-Signature"

// DefaultTolerance is the maximum accepted age of an event timestamp
const DefaultTolerance = 5 * time.Minute

// VerifiedEvent is a processor event whose signature has been checked
// against the raw request body.
type VerifiedEvent struct {
	ID         string
	Kind       EventKind
	Created    time.Time
	PaymentRef string
	Amount     int64
	Reason     string
	Metadata   map[string]string
}

// EntryID returns the correlation id round-tripped through charge metadata,
// or empty when the event carries none.
func (e *VerifiedEvent) EntryID() string {
	return e.Metadata[models.MetaEntryID]
}

// Verifier authenticates inbound processor events against the shared
// webhook secret. Verify is pure: verification failures are reported only
// through the returned error, and the caller decides what to log.
type Verifier struct {
	secret    string
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier creates a verifier with the given shared secret. A
// non-positive tolerance falls back to DefaultTolerance.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{
		secret:    secret,
		tolerance: tolerance,
		now:       time.Now,
	}
}

// Verify authenticates rawBody against sigHeader and returns the parsed
// event. rawBody must be the exact bytes received from the processor;
// re-serializing a parsed payload breaks the signature.
func (v *Verifier) Verify(rawBody []byte, sigHeader string) (*VerifiedEvent, error) {
	ts, claimed, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return nil, ErrInvalidSignature
	}

	expected := computeSignature(v.secret, ts, rawBody)
	if !hmac.Equal([]byte(expected), []byte(claimed)) {
		return nil, ErrInvalidSignature
	}

	eventTime := time.Unix(ts, 0)
	age := v.now().Sub(eventTime)
	if age > v.tolerance || age < -v.tolerance {
		return nil, ErrInvalidSignature
	}

	var raw models.ProcessorEvent
	if err := json.Unmarshal(rawBody, &raw); err != nil {
		return nil, fmt.Errorf("webhook: malformed event payload: %w", err)
	}

	return &VerifiedEvent{
		ID:         raw.ID,
		Kind:       ParseEventKind(raw.Type),
		Created:    time.Unix(raw.Created, 0),
		PaymentRef: raw.Data.PaymentRef,
		Amount:     raw.Data.Amount,
		Reason:     raw.Data.FailureReason,
		Metadata:   raw.Data.Metadata,
	}, nil
}

// parseSignatureHeader extracts the timestamp and v1 signature from a
// header of the form "t=<unix>,v1=<hex>".
func parseSignatureHeader(header string) (int64, string, error) {
	if header == "" {
		return 0, "", errors.New("empty header")
	}

	var ts int64
	var sig string
	for _, part := range strings.Split(header, ",") {
		key, val, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return 0, "", fmt.Errorf("bad timestamp: %w", err)
			}
			ts = parsed
		case "v1":
			sig = val
		}
	}

	if ts == 0 || sig == "" {
		return 0, "", errors.New("missing timestamp or signature")
	}
	return ts, sig, nil
}

// computeSignature returns the hex HMAC-SHA256 of "<ts>.<body>"
func computeSignature(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignPayload produces a signature header valid for the given body and
// timestamp. Used by the processor simulator and by tests.
func SignPayload(secret string, ts time.Time, body []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), computeSignature(secret, ts.Unix(), body))
}
