// Package catalog holds the operator-side writes behind cmd/catalog: accounts
// and their API keys, plans, products and private product grants.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/AssetVault/app/models"
	"github.com/ManuelReschke/AssetVault/app/repository"
)

var (
	// ErrExists is returned when a slug or email is already taken.
	ErrExists = errors.New("catalog: already exists")
	// ErrNotFound is returned when a referenced account, plan or product is missing.
	ErrNotFound = errors.New("catalog: not found")
)

// Service writes catalog records through the shared repositories.
type Service struct {
	accounts repository.AccountRepository
	plans    repository.PlanRepository
	products repository.ProductRepository
}

// NewService creates a catalog service.
func NewService(repos *repository.Repositories) *Service {
	return &Service{accounts: repos.Account, plans: repos.Plan, products: repos.Product}
}

// AddAccount creates an active account and returns its raw API key. The key
// is shown once; only its digest is stored.
func (s *Service) AddAccount(ctx context.Context, name, email string) (*models.Account, string, error) {
	account := &models.Account{
		Name:   strings.TrimSpace(name),
		Email:  strings.ToLower(strings.TrimSpace(email)),
		Status: models.AccountStatusActive,
	}
	if err := account.Validate(); err != nil {
		return nil, "", err
	}
	if _, err := s.accounts.GetByEmail(ctx, account.Email); err == nil {
		return nil, "", fmt.Errorf("%w: account %s", ErrExists, account.Email)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", err
	}

	raw, err := account.IssueAPIKey()
	if err != nil {
		return nil, "", err
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, "", err
	}
	log.Infof("[Catalog] Created account %d (%s)", account.ID, account.Email)
	return account, raw, nil
}

// RotateAPIKey replaces the account's API key and returns the new raw value.
func (s *Service) RotateAPIKey(ctx context.Context, email string) (string, error) {
	account, err := s.account(ctx, email)
	if err != nil {
		return "", err
	}
	raw, err := account.IssueAPIKey()
	if err != nil {
		return "", err
	}
	if err := s.accounts.Update(ctx, account); err != nil {
		return "", err
	}
	log.Infof("[Catalog] Rotated API key of account %d", account.ID)
	return raw, nil
}

// RevokeAPIKey disables API access without touching the account's history.
func (s *Service) RevokeAPIKey(ctx context.Context, email string) error {
	account, err := s.account(ctx, email)
	if err != nil {
		return err
	}
	account.RevokeAPIKey()
	if err := s.accounts.Update(ctx, account); err != nil {
		return err
	}
	log.Infof("[Catalog] Revoked API key of account %d", account.ID)
	return nil
}

// AddPlan stores a new plan. Plans are created purchasable.
func (s *Service) AddPlan(ctx context.Context, plan *models.Plan) error {
	plan.Slug = strings.TrimSpace(plan.Slug)
	if _, err := s.plans.GetBySlug(ctx, plan.Slug); err == nil {
		return fmt.Errorf("%w: plan %s", ErrExists, plan.Slug)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	plan.Active = true
	return s.plans.Create(ctx, plan)
}

// RetirePlan stops new purchases of a plan. Running subscriptions keep it.
func (s *Service) RetirePlan(ctx context.Context, slug string) error {
	plan, err := s.plans.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: plan %s", ErrNotFound, slug)
		}
		return err
	}
	if err := s.plans.SetActive(ctx, plan.ID, false); err != nil {
		return err
	}
	log.Infof("[Catalog] Retired plan %s", plan.Slug)
	return nil
}

// AddProduct stores a new product.
func (s *Service) AddProduct(ctx context.Context, product *models.Product) error {
	product.Slug = strings.TrimSpace(product.Slug)
	if product.Slug == "" {
		return errors.New("catalog: product slug is required")
	}
	if _, err := s.products.GetBySlug(ctx, product.Slug); err == nil {
		return fmt.Errorf("%w: product %s", ErrExists, product.Slug)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.products.Create(ctx, product)
}

// GrantProduct gives an account access to a private product until expiresAt.
// A nil expiresAt never expires. Granting again replaces the expiry.
func (s *Service) GrantProduct(ctx context.Context, email, productSlug string, expiresAt *time.Time) error {
	account, err := s.account(ctx, email)
	if err != nil {
		return err
	}
	product, err := s.products.GetBySlug(ctx, strings.TrimSpace(productSlug))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: product %s", ErrNotFound, productSlug)
		}
		return err
	}
	if product.IsPublic {
		log.Warnf("[Catalog] Product %s is public, the grant only matters if it is made private", product.Slug)
	}
	if expiresAt != nil {
		utc := expiresAt.UTC()
		expiresAt = &utc
	}
	return s.products.GrantEntitlement(ctx, account.ID, product.ID, expiresAt)
}

func (s *Service) account(ctx context.Context, email string) (*models.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: account %s", ErrNotFound, email)
		}
		return nil, err
	}
	return account, nil
}
