package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	BillingPeriodMonthly = "monthly"
	BillingPeriodYearly  = "yearly"
)

// Plan is a catalog entry. A nil cap means unlimited.
type Plan struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	Slug               string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"slug" validate:"required,max=64"`
	Name               string    `gorm:"type:varchar(120);not null;default:''" json:"name" validate:"max=120"`
	BillingPeriod      string    `gorm:"type:varchar(16);not null" json:"billing_period" validate:"oneof=monthly yearly"`
	PriceCents         int64     `gorm:"not null" json:"price_cents" validate:"gte=0"`
	DailyDownloadCap   *int      `gorm:"default:null" json:"daily_download_cap" validate:"omitempty,gt=0"`
	MonthlyDownloadCap *int      `gorm:"default:null" json:"monthly_download_cap" validate:"omitempty,gt=0"`
	Active             bool      `gorm:"not null;index" json:"active"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Plan) Validate() error {
	return validator.New().Struct(p)
}

// PeriodEnd returns the end of a billing period that starts at start.
func (p *Plan) PeriodEnd(start time.Time) time.Time {
	if p.BillingPeriod == BillingPeriodYearly {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}
