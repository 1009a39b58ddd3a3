package entitlements

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/AssetVault/app/models"
	"github.com/ManuelReschke/AssetVault/app/repository"
)

// Repository provides the reads and the locked ledger scope used by the service.
type Repository interface {
	FindActiveSubscription(ctx context.Context, accountID uint, now time.Time) (*models.Subscription, error)
	GetProduct(ctx context.Context, productID uint) (*models.Product, error)
	FindProductEntitlement(ctx context.Context, accountID, productID uint) (*models.ProductEntitlement, error)
	// Ledger returns an unlocked view for read-only counters.
	Ledger(ctx context.Context) Ledger
	// WithAccountLock runs fn in one transaction holding a row lock on the account.
	WithAccountLock(ctx context.Context, accountID uint, fn func(Ledger) error) error
}

// Ledger reads and appends download ledger rows.
type Ledger interface {
	HasDownloaded(accountID, productID uint) (bool, error)
	Count(accountID uint, w window) (int64, error)
	Append(entry *models.DownloadLedgerEntry) error
}

type gormRepository struct {
	db       *gorm.DB
	products repository.ProductRepository
}

// NewRepository creates an entitlements repository backed by GORM. Product
// and entitlement reads go through the catalog's product repository.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db, products: repository.NewProductRepository(db)}
}

func (r *gormRepository) FindActiveSubscription(ctx context.Context, accountID uint, now time.Time) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Preload("Plan").
		Where("account_id = ? AND status IN ? AND current_period_end > ?",
			accountID,
			[]string{models.SubscriptionStatusActive, models.SubscriptionStatusTrialing},
			now.UTC()).
		Order("current_period_start DESC").
		Order("id DESC").
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) GetProduct(ctx context.Context, productID uint) (*models.Product, error) {
	return r.products.GetByID(ctx, productID)
}

func (r *gormRepository) FindProductEntitlement(ctx context.Context, accountID, productID uint) (*models.ProductEntitlement, error) {
	return r.products.GetEntitlement(ctx, accountID, productID)
}

func (r *gormRepository) Ledger(ctx context.Context) Ledger {
	return &gormLedger{db: r.db.WithContext(ctx)}
}

func (r *gormRepository) WithAccountLock(ctx context.Context, accountID uint, fn func(Ledger) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account models.Account
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			First(&account, accountID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return err
		}
		return fn(&gormLedger{db: tx})
	})
}

type gormLedger struct {
	db *gorm.DB
}

func (l *gormLedger) HasDownloaded(accountID, productID uint) (bool, error) {
	var n int64
	err := l.db.Model(&models.DownloadLedgerEntry{}).
		Where("account_id = ? AND product_id = ?", accountID, productID).
		Limit(1).
		Count(&n).Error
	return n > 0, err
}

func (l *gormLedger) Count(accountID uint, w window) (int64, error) {
	var n int64
	err := l.db.Model(&models.DownloadLedgerEntry{}).
		Where("account_id = ? AND created_at >= ? AND created_at < ?", accountID, w.Start, w.End).
		Count(&n).Error
	return n, err
}

func (l *gormLedger) Append(entry *models.DownloadLedgerEntry) error {
	return l.db.Create(entry).Error
}
