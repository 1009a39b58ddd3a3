package billing

import "context"

// Confirmation is the payload for an approved payment email.
type Confirmation struct {
	To          string
	Name        string
	OrderID     string
	AmountCents int64
	Description string
	ReceiptURL  string
}

// Rejection is the payload for a rejected payment email.
type Rejection struct {
	To              string
	Name            string
	OrderID         string
	AmountCents     int64
	Description     string
	RejectionReason string
	StatusDetail    string
}

// Notifier delivers customer-facing payment emails. Failures are returned to
// the outbox for retry and never affect payment state.
type Notifier interface {
	SendPaymentConfirmation(ctx context.Context, c Confirmation) error
	SendPaymentRejection(ctx context.Context, r Rejection) error
}
