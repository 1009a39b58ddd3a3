package models

import "time"

const (
	NotificationKindConfirmation = "confirmation"
	NotificationKindRejection    = "rejection"
)

const (
	NotificationStatusPending = "pending"
	NotificationStatusSending = "sending"
	NotificationStatusSent    = "sent"
	NotificationStatusFailed  = "failed"
)

// PaymentNotification is the durable send-once record for customer emails about
// a payment. It is written in the same transaction as the status change and
// dispatched after commit.
type PaymentNotification struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	ProviderPaymentID string     `gorm:"type:varchar(64);not null;index:ux_payment_notifications_kind,unique,priority:1" json:"provider_payment_id"`
	Kind              string     `gorm:"type:varchar(20);not null;index:ux_payment_notifications_kind,unique,priority:2" json:"kind"`
	Status            string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Recipient         string     `gorm:"type:varchar(200);not null" json:"recipient"`
	RecipientName     string     `gorm:"type:varchar(150);default:''" json:"recipient_name"`
	OrderReference    string     `gorm:"type:varchar(64);not null" json:"order_reference"`
	AmountCents       int64      `gorm:"not null" json:"amount_cents"`
	Description       string     `gorm:"type:varchar(255);default:''" json:"description"`
	ReceiptURL        string     `gorm:"type:varchar(500);default:''" json:"receipt_url"`
	RejectionReason   string     `gorm:"type:varchar(255);default:''" json:"rejection_reason"`
	StatusDetail      string     `gorm:"type:varchar(100);default:''" json:"status_detail"`
	Attempts          int        `gorm:"not null;default:0" json:"attempts"`
	LastError         string     `gorm:"type:text" json:"last_error"`
	ClaimedAt         *time.Time `gorm:"type:timestamp;default:null" json:"claimed_at,omitempty"`
	SentAt            *time.Time `gorm:"type:timestamp;default:null" json:"sent_at,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
