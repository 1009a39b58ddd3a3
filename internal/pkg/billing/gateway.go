package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ManuelReschke/AssetVault/internal/pkg/env"
)

const defaultMercadoPagoAPIBaseURL = "https://api.mercadopago.com"

// ErrPaymentNotFound is returned when the gateway has no payment with the id.
var ErrPaymentNotFound = errors.New("billing: gateway payment not found")

// PaymentGateway fetches the authoritative state of a payment.
type PaymentGateway interface {
	GetPayment(ctx context.Context, paymentID string) (*GatewayPayment, error)
}

// GatewayPayment is the subset of the Mercado Pago payment resource the
// reconciler reads.
type GatewayPayment struct {
	ID                flexID  `json:"id"`
	Status            string  `json:"status"`
	StatusDetail      string  `json:"status_detail"`
	ExternalReference string  `json:"external_reference"`
	TransactionAmount float64 `json:"transaction_amount"`
	PaymentMethodID   string  `json:"payment_method_id"`
	PaymentTypeID     string  `json:"payment_type_id"`
	Payer             struct {
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"payer"`
	PointOfInteraction struct {
		TransactionData struct {
			TicketURL string `json:"ticket_url"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`

	Raw []byte `json:"-"`
}

// AmountCents converts the decimal transaction amount to cents.
func (p *GatewayPayment) AmountCents() int64 {
	return int64(math.Round(p.TransactionAmount * 100))
}

// GatewayError is a non-2xx response from the gateway.
type GatewayError struct {
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("mercadopago request failed: status=%d body=%s", e.StatusCode, e.Body)
}

// IsRetryable reports whether a failed fetch is worth another attempt.
// Transport errors, timeouts, 429 and 5xx are; other 4xx and not-found are not.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, ErrPaymentNotFound) || errors.Is(err, context.Canceled) {
		return false
	}
	var gerr *GatewayError
	if errors.As(err, &gerr) {
		return gerr.StatusCode == http.StatusTooManyRequests || gerr.StatusCode >= 500
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF)
}

type MercadoPagoClient struct {
	AccessToken string
	APIBaseURL  string

	HTTPClient *http.Client
}

func NewMercadoPagoClientFromEnv() *MercadoPagoClient {
	return &MercadoPagoClient{
		AccessToken: strings.TrimSpace(env.GetEnv("MP_ACCESS_TOKEN", "")),
		APIBaseURL:  strings.TrimSpace(env.GetEnv("MP_API_BASE_URL", defaultMercadoPagoAPIBaseURL)),
		HTTPClient: &http.Client{
			Timeout: env.GetDuration("MP_HTTP_TIMEOUT", 5*time.Second),
		},
	}
}

// GetPayment calls GET /v1/payments/{id}.
func (c *MercadoPagoClient) GetPayment(ctx context.Context, paymentID string) (*GatewayPayment, error) {
	if strings.TrimSpace(c.AccessToken) == "" {
		return nil, errors.New("MP_ACCESS_TOKEN is not configured")
	}
	id := cleanID(paymentID)
	if id == "" {
		return nil, fmt.Errorf("invalid payment id %q", paymentID)
	}

	baseURL := strings.TrimRight(c.APIBaseURL, "/")
	u, err := url.Parse(baseURL + "/v1/payments/" + url.PathEscape(id))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, id)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
	}

	var out GatewayPayment
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	if out.ID.String() == "" {
		out.ID = flexID(id)
	}
	out.Raw = body
	return &out, nil
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
