package models

import "time"

const (
	PaymentStatusPending   = "pending"
	PaymentStatusApproved  = "approved"
	PaymentStatusRejected  = "rejected"
	PaymentStatusInProcess = "in_process"
	PaymentStatusCancelled = "cancelled"
)

// Payment is a single gateway attempt against an invoice. ProviderPaymentID is
// the reconciliation idempotency key and stays NULL until the gateway assigns one.
type Payment struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	InvoiceID         uint      `gorm:"not null;index" json:"invoice_id"`
	Status            string    `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	StatusDetail      string    `gorm:"type:varchar(100);default:''" json:"status_detail"`
	AmountCents       int64     `gorm:"not null" json:"amount_cents"`
	Method            string    `gorm:"type:varchar(16);not null;default:''" json:"method"`
	ProviderPaymentID *string   `gorm:"type:varchar(64);uniqueIndex;default:null" json:"provider_payment_id,omitempty"`
	ProviderRaw       string    `gorm:"type:longtext" json:"-"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PaymentTransition records each status a payment has entered. The unique
// (provider_payment_id, to_status) index is what makes a transition apply once.
type PaymentTransition struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	ProviderPaymentID string    `gorm:"type:varchar(64);not null;index:ux_payment_transitions_target,unique,priority:1" json:"provider_payment_id"`
	FromStatus        string    `gorm:"type:varchar(20);not null" json:"from_status"`
	ToStatus          string    `gorm:"type:varchar(20);not null;index:ux_payment_transitions_target,unique,priority:2" json:"to_status"`
	StatusDetail      string    `gorm:"type:varchar(100);default:''" json:"status_detail"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
}
