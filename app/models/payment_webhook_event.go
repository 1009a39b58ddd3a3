package models

import "time"

// PaymentWebhookEvent keeps every gateway delivery for auditing. Redeliveries of
// the same payload collapse onto the same row.
type PaymentWebhookEvent struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	Provider          string     `gorm:"type:varchar(20);not null;index:ux_payment_webhook_events_provider_event,unique,priority:1" json:"provider"`
	ProviderEventID   string     `gorm:"type:varchar(191);not null;default:'';index:ux_payment_webhook_events_provider_event,unique,priority:2" json:"provider_event_id"`
	Topic             string     `gorm:"type:varchar(100);not null;default:'';index" json:"topic"`
	ProviderPaymentID string     `gorm:"type:varchar(64);default:'';index" json:"provider_payment_id"`
	PayloadJSON       string     `gorm:"type:longtext;not null" json:"payload_json"`
	Query             string     `gorm:"type:text" json:"query"`
	SignatureValid    bool       `gorm:"default:false" json:"signature_valid"`
	Deliveries        int        `gorm:"not null;default:1" json:"deliveries"`
	ProcessedAt       *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError   string     `gorm:"type:text" json:"processing_error"`
	CreatedAt         time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
