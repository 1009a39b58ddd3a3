package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/AssetVault/app/models"
	"github.com/ManuelReschke/AssetVault/app/repository"
	"github.com/ManuelReschke/AssetVault/internal/pkg/database/dbtest"
	"github.com/ManuelReschke/AssetVault/internal/pkg/entitlements"
)

func TestAccountKeysLifecycle(t *testing.T) {
	db := dbtest.Open(t)
	repos := repository.NewRepositories(db)
	svc := NewService(repos)
	ctx := context.Background()

	account, raw, err := svc.AddAccount(ctx, "Joana Silva", " Joana@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "joana@example.com", account.Email)

	found, err := repos.Account.GetByAPIKeyHash(ctx, models.HashAPIKey(raw))
	require.NoError(t, err)
	assert.Equal(t, account.ID, found.ID)

	_, _, err = svc.AddAccount(ctx, "Joana Again", "joana@example.com")
	assert.ErrorIs(t, err, ErrExists)

	rotated, err := svc.RotateAPIKey(ctx, "joana@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, raw, rotated)
	_, err = repos.Account.GetByAPIKeyHash(ctx, models.HashAPIKey(raw))
	assert.Error(t, err)

	require.NoError(t, svc.RevokeAPIKey(ctx, "joana@example.com"))
	_, err = repos.Account.GetByAPIKeyHash(ctx, models.HashAPIKey(rotated))
	assert.Error(t, err)

	assert.ErrorIs(t, svc.RevokeAPIKey(ctx, "nobody@example.com"), ErrNotFound)
}

func TestRetiredPlanIsNotListed(t *testing.T) {
	db := dbtest.Open(t)
	repos := repository.NewRepositories(db)
	svc := NewService(repos)
	ctx := context.Background()

	monthly := 150
	require.NoError(t, svc.AddPlan(ctx, &models.Plan{Slug: "pro-monthly", Name: "Pro", BillingPeriod: models.BillingPeriodMonthly, PriceCents: 2990, MonthlyDownloadCap: &monthly}))
	require.NoError(t, svc.AddPlan(ctx, &models.Plan{Slug: "basic", Name: "Basic", BillingPeriod: models.BillingPeriodMonthly, PriceCents: 990}))
	assert.ErrorIs(t, svc.AddPlan(ctx, &models.Plan{Slug: "basic", BillingPeriod: models.BillingPeriodMonthly}), ErrExists)

	require.NoError(t, svc.RetirePlan(ctx, "basic"))
	plans, err := repos.Plan.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "pro-monthly", plans[0].Slug)

	retired, err := repos.Plan.GetBySlug(ctx, "basic")
	require.NoError(t, err)
	assert.False(t, retired.Active)

	assert.ErrorIs(t, svc.RetirePlan(ctx, "missing"), ErrNotFound)
}

func TestGrantProductUnlocksPrivateDownload(t *testing.T) {
	db := dbtest.Open(t)
	repos := repository.NewRepositories(db)
	svc := NewService(repos)
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	account, _, err := svc.AddAccount(ctx, "Joana Silva", "joana@example.com")
	require.NoError(t, err)
	require.NoError(t, svc.AddPlan(ctx, &models.Plan{Slug: "pro-monthly", BillingPeriod: models.BillingPeriodMonthly, PriceCents: 2990}))
	plan, err := repos.Plan.GetBySlug(ctx, "pro-monthly")
	require.NoError(t, err)

	start, end := now.AddDate(0, 0, -1), now.AddDate(0, 1, 0)
	require.NoError(t, db.Create(&models.Subscription{
		AccountID:          account.ID,
		PlanID:             plan.ID,
		Status:             models.SubscriptionStatusActive,
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
		Provider:           models.ProviderMercadoPago,
	}).Error)

	product := &models.Product{Slug: "mockup-caneca", Title: "Mockup Caneca", AssetType: "psd", ObjectKey: "mockups/caneca.zip", IsPublic: false}
	require.NoError(t, svc.AddProduct(ctx, product))
	assert.ErrorIs(t, svc.AddProduct(ctx, &models.Product{Slug: "mockup-caneca"}), ErrExists)

	grants := entitlements.NewServiceFromDB(db, entitlements.WithClock(func() time.Time { return now }), entitlements.WithLocation(time.UTC))
	req := entitlements.Request{AccountID: account.ID, ProductID: product.ID}

	decision, err := grants.CheckAndGrant(ctx, req)
	require.NoError(t, err)
	assert.False(t, decision.Granted)
	assert.Equal(t, entitlements.ReasonNoAccess, decision.Reason)

	expired := now.Add(-time.Hour)
	require.NoError(t, svc.GrantProduct(ctx, "joana@example.com", "mockup-caneca", &expired))
	decision, err = grants.CheckAndGrant(ctx, req)
	require.NoError(t, err)
	assert.False(t, decision.Granted)

	require.NoError(t, svc.GrantProduct(ctx, "joana@example.com", "mockup-caneca", nil))
	decision, err = grants.CheckAndGrant(ctx, req)
	require.NoError(t, err)
	assert.True(t, decision.Granted)

	assert.ErrorIs(t, svc.GrantProduct(ctx, "joana@example.com", "missing", nil), ErrNotFound)
}
