package billing

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/ManuelReschke/AssetVault/app/models"
)

var (
	// ErrUnavailable wraps lock and persistence failures. The delivery must be
	// retried by the gateway.
	ErrUnavailable = errors.New("billing: dependency unavailable")
	// ErrIntegrity marks payments whose invoice, order or account chain is broken.
	ErrIntegrity = errors.New("billing: data integrity violation")
	// ErrPlanNotFound is returned by OpenPurchase for unknown or inactive plans.
	ErrPlanNotFound = errors.New("billing: plan not found")
	// ErrAccountInactive is returned by OpenPurchase for missing or disabled accounts.
	ErrAccountInactive = errors.New("billing: account missing or disabled")
)

// Outcome describes what Reconcile did with an event.
type Outcome string

const (
	OutcomeIgnored     Outcome = "ignored"
	OutcomeFetchFailed Outcome = "fetch_failed"
	OutcomeUnmatched   Outcome = "unmatched"
	OutcomeNoChange    Outcome = "no_change"
	OutcomeStale       Outcome = "stale"
	OutcomeApplied     Outcome = "applied"
	OutcomeIntegrity   Outcome = "integrity_violation"
)

// Ack is returned for every event. Acknowledged=false means the caller should
// answer with a non-2xx status so the gateway redelivers.
type Ack struct {
	Acknowledged bool    `json:"acknowledged"`
	Processed    bool    `json:"processed"`
	Outcome      Outcome `json:"outcome"`
	PaymentID    string  `json:"payment_id,omitempty"`
	Status       string  `json:"status,omitempty"`
}

// RawEvent is an inbound webhook delivery as received over HTTP.
type RawEvent struct {
	Body    []byte
	Query   map[string]string
	Headers map[string]string
}

// Header returns a header value, ignoring case.
func (e RawEvent) Header(name string) string {
	for k, v := range e.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider          string
	ProviderEventID   string
	Topic             string
	ProviderPaymentID string
	PayloadJSON       string
	Query             string
	SignatureValid    bool
}

// PurchaseInput opens a checkout for a plan.
type PurchaseInput struct {
	AccountID         uint   `validate:"required"`
	PlanSlug          string `validate:"required,max=64"`
	Method            string `validate:"required,oneof=card pix"`
	ProviderPaymentID string `validate:"omitempty,max=64"`
}

// Purchase is the set of pending records written by OpenPurchase.
type Purchase struct {
	Order        *models.Order
	Subscription *models.Subscription
	Invoice      *models.Invoice
	Payment      *models.Payment
}

// flexID decodes identifiers the gateway sends either as JSON numbers or strings.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

func (f flexID) String() string { return string(f) }
