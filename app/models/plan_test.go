package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func intPtr(v int) *int { return &v }

func TestPlanValidate(t *testing.T) {
	p := &Plan{Slug: "pro-monthly", BillingPeriod: BillingPeriodMonthly, PriceCents: 2990, DailyDownloadCap: intPtr(5), MonthlyDownloadCap: intPtr(150)}
	assert.NoError(t, p.Validate())

	unlimited := &Plan{Slug: "max-yearly", BillingPeriod: BillingPeriodYearly, PriceCents: 29900}
	assert.NoError(t, unlimited.Validate())

	zeroCap := &Plan{Slug: "broken", BillingPeriod: BillingPeriodMonthly, DailyDownloadCap: intPtr(0)}
	assert.Error(t, zeroCap.Validate())

	badPeriod := &Plan{Slug: "weekly", BillingPeriod: "weekly"}
	assert.Error(t, badPeriod.Validate())
}

func TestPlanPeriodEnd(t *testing.T) {
	start := time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC)

	monthly := &Plan{BillingPeriod: BillingPeriodMonthly}
	assert.Equal(t, start.AddDate(0, 1, 0), monthly.PeriodEnd(start))

	yearly := &Plan{BillingPeriod: BillingPeriodYearly}
	assert.Equal(t, time.Date(2027, 1, 31, 10, 0, 0, 0, time.UTC), yearly.PeriodEnd(start))
}

func TestSubscriptionIsGranting(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		status string
		end    *time.Time
		want   bool
	}{
		{SubscriptionStatusActive, &future, true},
		{SubscriptionStatusTrialing, &future, true},
		{SubscriptionStatusActive, &past, false},
		{SubscriptionStatusActive, &now, false},
		{SubscriptionStatusPastDue, &future, false},
		{SubscriptionStatusCancelled, &future, false},
		{SubscriptionStatusActive, nil, false},
	}
	for _, tt := range tests {
		s := &Subscription{Status: tt.status, CurrentPeriodEnd: tt.end}
		assert.Equal(t, tt.want, s.IsGranting(now), "status=%s", tt.status)
	}
}
