package repository

import (
	"context"
	"strings"

	"github.com/ManuelReschke/AssetVault/app/models"
	"gorm.io/gorm"
)

type planRepository struct {
	db *gorm.DB
}

// NewPlanRepository creates a new plan repository instance
func NewPlanRepository(db *gorm.DB) PlanRepository {
	return &planRepository{db: db}
}

func (r *planRepository) Create(ctx context.Context, plan *models.Plan) error {
	if err := plan.Validate(); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(plan).Error
}

func (r *planRepository) GetBySlug(ctx context.Context, slug string) (*models.Plan, error) {
	var plan models.Plan
	err := r.db.WithContext(ctx).Where("slug = ?", strings.TrimSpace(slug)).First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

// SetActive lists or retires a plan. Retired plans stay attached to existing
// subscriptions but can no longer be bought.
func (r *planRepository) SetActive(ctx context.Context, id uint, active bool) error {
	return r.db.WithContext(ctx).Model(&models.Plan{}).Where("id = ?", id).Update("active", active).Error
}

// ListActive returns the purchasable catalog ordered by price.
func (r *planRepository) ListActive(ctx context.Context) ([]models.Plan, error) {
	var plans []models.Plan
	err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("price_cents ASC, id ASC").
		Find(&plans).Error
	return plans, err
}
