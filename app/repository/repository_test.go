package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/AssetVault/app/models"
	"github.com/ManuelReschke/AssetVault/internal/pkg/database/dbtest"
)

func TestAccountRepositoryAPIKeyLookup(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewAccountRepository(db)
	ctx := context.Background()

	account := &models.Account{Name: "Joana Silva", Email: "joana@example.com", Status: models.AccountStatusActive}
	raw, err := account.IssueAPIKey()
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, account))

	found, err := repo.GetByAPIKeyHash(ctx, models.HashAPIKey(raw))
	require.NoError(t, err)
	assert.Equal(t, account.ID, found.ID)

	_, err = repo.GetByAPIKeyHash(ctx, "")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	used := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.TouchAPIKey(ctx, account.ID, used))
	reloaded, err := repo.GetByEmail(ctx, account.Email)
	require.NoError(t, err)
	require.NotNil(t, reloaded.APIKeyLastUsedAt)
	assert.True(t, reloaded.APIKeyLastUsedAt.Equal(used))

	reloaded.RevokeAPIKey()
	require.NoError(t, repo.Update(ctx, reloaded))
	_, err = repo.GetByAPIKeyHash(ctx, models.HashAPIKey(raw))
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestPlanRepositoryListActive(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewPlanRepository(db)
	ctx := context.Background()

	daily := 5
	require.NoError(t, repo.Create(ctx, &models.Plan{Slug: "pro-yearly", BillingPeriod: models.BillingPeriodYearly, PriceCents: 29900, DailyDownloadCap: &daily, Active: true}))
	require.NoError(t, repo.Create(ctx, &models.Plan{Slug: "pro-monthly", BillingPeriod: models.BillingPeriodMonthly, PriceCents: 2990, DailyDownloadCap: &daily, Active: true}))
	require.NoError(t, repo.Create(ctx, &models.Plan{Slug: "legacy", BillingPeriod: models.BillingPeriodMonthly, PriceCents: 990, Active: false}))
	basic := &models.Plan{Slug: "basic", BillingPeriod: models.BillingPeriodMonthly, PriceCents: 490, Active: true}
	require.NoError(t, repo.Create(ctx, basic))
	require.NoError(t, repo.SetActive(ctx, basic.ID, false))

	legacy, err := repo.GetBySlug(ctx, "legacy")
	require.NoError(t, err)
	assert.False(t, legacy.Active)

	plans, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "pro-monthly", plans[0].Slug)
	assert.Equal(t, "pro-yearly", plans[1].Slug)

	err = repo.Create(ctx, &models.Plan{Slug: "broken", BillingPeriod: "weekly"})
	assert.Error(t, err)
}

func TestProductRepositoryGrantEntitlementReplacesExpiry(t *testing.T) {
	db := dbtest.Open(t)
	products := NewProductRepository(db)
	accounts := NewAccountRepository(db)
	ctx := context.Background()

	account := &models.Account{Name: "Joana Silva", Email: "joana@example.com"}
	require.NoError(t, accounts.Create(ctx, account))
	product := &models.Product{Slug: "mockup-caneca", Title: "Mockup Caneca", AssetType: "psd", IsPublic: false}
	require.NoError(t, products.Create(ctx, product))

	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, products.GrantEntitlement(ctx, account.ID, product.ID, &first))
	require.NoError(t, products.GrantEntitlement(ctx, account.ID, product.ID, nil))

	var rows []models.ProductEntitlement
	require.NoError(t, db.Where("account_id = ?", account.ID).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].ExpiresAt)

	found, err := products.GetBySlug(ctx, "mockup-caneca")
	require.NoError(t, err)
	assert.Equal(t, product.ID, found.ID)
}

func TestProductRepositoryCreateKeepsPrivateFlag(t *testing.T) {
	db := dbtest.Open(t)
	products := NewProductRepository(db)
	ctx := context.Background()

	private := &models.Product{Slug: "fonte-exclusiva", Title: "Fonte Exclusiva", AssetType: "otf", IsPublic: false}
	public := &models.Product{Slug: "icones-gratis", Title: "Ícones", AssetType: "svg", IsPublic: true}
	require.NoError(t, products.Create(ctx, private))
	require.NoError(t, products.Create(ctx, public))

	stored, err := products.GetByID(ctx, private.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsPublic)

	stored, err = products.GetBySlug(ctx, "icones-gratis")
	require.NoError(t, err)
	assert.True(t, stored.IsPublic)

	_, err = products.GetEntitlement(ctx, 1, private.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
