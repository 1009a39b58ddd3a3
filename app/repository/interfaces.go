package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/AssetVault/app/models"
	"gorm.io/gorm"
)

// AccountRepository defines the interface for account-related database operations
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByAPIKeyHash(ctx context.Context, hash string) (*models.Account, error)
	TouchAPIKey(ctx context.Context, id uint, at time.Time) error
	Update(ctx context.Context, account *models.Account) error
}

// PlanRepository defines the interface for the plan catalog
type PlanRepository interface {
	Create(ctx context.Context, plan *models.Plan) error
	GetBySlug(ctx context.Context, slug string) (*models.Plan, error)
	SetActive(ctx context.Context, id uint, active bool) error
	ListActive(ctx context.Context) ([]models.Plan, error)
}

// ProductRepository defines the interface for product-related database operations
type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	GetByID(ctx context.Context, id uint) (*models.Product, error)
	GetBySlug(ctx context.Context, slug string) (*models.Product, error)
	GetEntitlement(ctx context.Context, accountID, productID uint) (*models.ProductEntitlement, error)
	GrantEntitlement(ctx context.Context, accountID, productID uint, expiresAt *time.Time) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	Account AccountRepository
	Plan    PlanRepository
	Product ProductRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Account: NewAccountRepository(db),
		Plan:    NewPlanRepository(db),
		Product: NewProductRepository(db),
	}
}
