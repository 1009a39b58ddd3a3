package models

import "time"

// DownloadLedgerEntry is one consumed download. Rows are append-only; the
// daily and monthly counters are always derived from CreatedAt.
type DownloadLedgerEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	AccountID uint      `gorm:"not null;index:idx_download_ledger_account_created,priority:1;index:idx_download_ledger_account_product,priority:1" json:"account_id"`
	ProductID uint      `gorm:"not null;index:idx_download_ledger_account_product,priority:2" json:"product_id"`
	AssetType string    `gorm:"type:varchar(32);not null;default:''" json:"asset_type"`
	IPAddress string    `gorm:"type:varchar(45);default:''" json:"-"`
	UserAgent string    `gorm:"type:varchar(255);default:''" json:"-"`
	CreatedAt time.Time `gorm:"not null;index:idx_download_ledger_account_created,priority:2" json:"created_at"`
}
