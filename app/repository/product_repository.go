package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/AssetVault/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type productRepository struct {
	db *gorm.DB
}

// NewProductRepository creates a new product repository instance
func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *productRepository) GetByID(ctx context.Context, id uint) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) GetBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) GetEntitlement(ctx context.Context, accountID, productID uint) (*models.ProductEntitlement, error) {
	var e models.ProductEntitlement
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND product_id = ?", accountID, productID).
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GrantEntitlement gives an account access to a private product. Granting
// again replaces the expiry.
func (r *productRepository) GrantEntitlement(ctx context.Context, accountID, productID uint, expiresAt *time.Time) error {
	row := &models.ProductEntitlement{AccountID: accountID, ProductID: productID, ExpiresAt: expiresAt}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "account_id"}, {Name: "product_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"expires_at"}),
	}).Create(row).Error
}
