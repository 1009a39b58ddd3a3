package models

import "time"

// Product is a downloadable design asset.
type Product struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Slug          string    `gorm:"type:varchar(120);uniqueIndex;not null" json:"slug"`
	Title         string    `gorm:"type:varchar(200);not null;default:''" json:"title"`
	AssetType     string    `gorm:"type:varchar(32);not null;default:''" json:"asset_type"`
	IsPublic      bool      `gorm:"not null;index" json:"is_public"`
	ObjectKey     string    `gorm:"type:varchar(500);not null;default:''" json:"-"`
	FileName      string    `gorm:"type:varchar(255);not null;default:''" json:"file_name"`
	DownloadCount int64     `gorm:"not null;default:0" json:"download_count"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// ProductEntitlement grants an account access to a non-public product.
// A nil ExpiresAt never expires.
type ProductEntitlement struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	AccountID uint       `gorm:"not null;index:ux_product_entitlements_account_product,unique,priority:1" json:"account_id"`
	ProductID uint       `gorm:"not null;index:ux_product_entitlements_account_product,unique,priority:2" json:"product_id"`
	ExpiresAt *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// IsValid reports whether the entitlement still applies at now.
func (e *ProductEntitlement) IsValid(now time.Time) bool {
	return e != nil && (e.ExpiresAt == nil || e.ExpiresAt.After(now))
}
