package models

import "time"

const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusFailed    = "failed"
	OrderStatusCancelled = "cancelled"
)

const (
	InvoiceStatusOpen = "open"
	InvoiceStatusPaid = "paid"
	InvoiceStatusVoid = "void"
)

// Order is created at checkout and only ever moves forward out of pending.
// Reference is sent to the gateway as external_reference.
type Order struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Reference        string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"reference"`
	AccountID        uint      `gorm:"not null;index" json:"account_id"`
	SubscriptionID   *uint     `gorm:"index;default:null" json:"subscription_id,omitempty"`
	Status           string    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	TotalAmountCents int64     `gorm:"not null" json:"total_amount_cents"`
	Description      string    `gorm:"type:varchar(255);default:''" json:"description"`
	Provider         string    `gorm:"type:varchar(20);not null;default:'mercadopago'" json:"provider"`
	ProviderOrderID  string    `gorm:"type:varchar(191);default:''" json:"provider_order_id"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Invoice belongs to exactly one order.
type Invoice struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	OrderID           uint      `gorm:"not null;uniqueIndex" json:"order_id"`
	Status            string    `gorm:"type:varchar(20);not null;default:'open'" json:"status"`
	ProviderInvoiceID string    `gorm:"type:varchar(191);default:''" json:"provider_invoice_id"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
