package entitlements

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/AssetVault/app/models"
	"github.com/ManuelReschke/AssetVault/internal/pkg/database/dbtest"
)

// fixedNow is mid-month, mid-day so neither window boundary is close.
var fixedNow = time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)

type fixture struct {
	t       *testing.T
	db      *gorm.DB
	svc     *Service
	account *models.Account
	plan    *models.Plan
	now     time.Time
}

func intPtr(v int) *int { return &v }

func newFixture(t *testing.T, dailyCap, monthlyCap *int) *fixture {
	t.Helper()
	db := dbtest.Open(t)

	account := &models.Account{Name: "Carla", Email: fmt.Sprintf("carla-%d@example.com", time.Now().UnixNano()), Status: models.AccountStatusActive}
	require.NoError(t, db.Create(account).Error)

	plan := &models.Plan{
		Slug:               "pro-monthly",
		BillingPeriod:      models.BillingPeriodMonthly,
		PriceCents:         2990,
		DailyDownloadCap:   dailyCap,
		MonthlyDownloadCap: monthlyCap,
		Active:             true,
	}
	require.NoError(t, db.Create(plan).Error)

	f := &fixture{t: t, db: db, account: account, plan: plan, now: fixedNow}
	f.svc = NewServiceFromDB(db, WithClock(func() time.Time { return f.now }), WithLocation(time.UTC))
	return f
}

func (f *fixture) subscribe(status string, end time.Time) *models.Subscription {
	f.t.Helper()
	start := end.AddDate(0, -1, 0)
	sub := &models.Subscription{
		AccountID:          f.account.ID,
		PlanID:             f.plan.ID,
		Status:             status,
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
		PaymentMethod:      models.PaymentMethodCard,
		Provider:           models.ProviderMercadoPago,
	}
	require.NoError(f.t, f.db.Create(sub).Error)
	return sub
}

func (f *fixture) activeSubscription() *models.Subscription {
	return f.subscribe(models.SubscriptionStatusActive, f.now.AddDate(0, 0, 20))
}

func (f *fixture) product(public bool) *models.Product {
	f.t.Helper()
	var n int64
	f.db.Model(&models.Product{}).Count(&n)
	p := &models.Product{
		Slug:      fmt.Sprintf("asset-%d", n+1),
		Title:     fmt.Sprintf("Asset %d", n+1),
		AssetType: "psd",
		IsPublic:  public,
		ObjectKey: fmt.Sprintf("assets/%d.zip", n+1),
		FileName:  fmt.Sprintf("asset-%d.zip", n+1),
	}
	require.NoError(f.t, f.db.Create(p).Error)
	return p
}

func (f *fixture) ledger(productID uint, at time.Time) {
	f.t.Helper()
	require.NoError(f.t, f.db.Create(&models.DownloadLedgerEntry{
		AccountID: f.account.ID,
		ProductID: productID,
		AssetType: "psd",
		CreatedAt: at.UTC(),
	}).Error)
}

func (f *fixture) ledgerCount() int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.db.Model(&models.DownloadLedgerEntry{}).Where("account_id = ?", f.account.ID).Count(&n).Error)
	return n
}

func (f *fixture) request(productID uint) Request {
	return Request{AccountID: f.account.ID, ProductID: productID, IPAddress: "203.0.113.7", UserAgent: "test"}
}
