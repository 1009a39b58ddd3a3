package models

import "time"

const (
	SubscriptionStatusTrialing  = "trialing"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusPastDue   = "past_due"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusExpired   = "expired"
)

const (
	PaymentMethodCard = "card"
	PaymentMethodPix  = "pix"
)

const ProviderMercadoPago = "mercadopago"

// Subscription is a plan grant for an account. Rows are never deleted; a new
// grant supersedes older ones, so an account accumulates history.
type Subscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	AccountID              uint       `gorm:"not null;index:idx_subscriptions_account_status,priority:1" json:"account_id"`
	PlanID                 uint       `gorm:"not null;index" json:"plan_id"`
	Plan                   *Plan      `gorm:"foreignKey:PlanID" json:"plan,omitempty"`
	Status                 string     `gorm:"type:varchar(20);not null;default:'trialing';index:idx_subscriptions_account_status,priority:2" json:"status"`
	CurrentPeriodStart     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time `gorm:"type:timestamp;default:null;index" json:"current_period_end,omitempty"`
	PaymentMethod          string     `gorm:"type:varchar(16);not null;default:''" json:"payment_method"`
	Provider               string     `gorm:"type:varchar(20);not null;default:'mercadopago'" json:"provider"`
	ProviderSubscriptionID string     `gorm:"type:varchar(191);default:''" json:"provider_subscription_id"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsGranting reports whether the subscription is an active grant at now.
func (s *Subscription) IsGranting(now time.Time) bool {
	if s == nil || s.CurrentPeriodEnd == nil {
		return false
	}
	switch s.Status {
	case SubscriptionStatusActive, SubscriptionStatusTrialing:
		return s.CurrentPeriodEnd.After(now)
	default:
		return false
	}
}
