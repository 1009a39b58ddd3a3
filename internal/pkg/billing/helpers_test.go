package billing

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/AssetVault/app/models"
	"github.com/ManuelReschke/AssetVault/internal/pkg/database/dbtest"
)

var fixedNow = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type fakeGateway struct {
	mu       sync.Mutex
	payments map[string]*GatewayPayment
	errs     []error
	calls    int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{payments: map[string]*GatewayPayment{}}
}

func (g *fakeGateway) set(id, status, detail string) *GatewayPayment {
	g.mu.Lock()
	defer g.mu.Unlock()
	p := &GatewayPayment{ID: flexID(id), Status: status, StatusDetail: detail, TransactionAmount: 29.90, PaymentTypeID: "credit_card"}
	p.Raw = []byte(fmt.Sprintf(`{"id":%s,"status":%q}`, id, status))
	g.payments[id] = p
	return p
}

// failNext makes the next calls fail with errs, in order.
func (g *fakeGateway) failNext(errs ...error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs = append(g.errs, errs...)
}

func (g *fakeGateway) GetPayment(_ context.Context, id string) (*GatewayPayment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		return nil, err
	}
	p, ok := g.payments[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPaymentNotFound, id)
	}
	cp := *p
	return &cp, nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type recordingEnqueuer struct {
	mu  sync.Mutex
	ids []uint
}

func (r *recordingEnqueuer) Enqueue(id uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
}

func (r *recordingEnqueuer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

type billingFixture struct {
	t       *testing.T
	db      *gorm.DB
	gateway *fakeGateway
	outbox  *recordingEnqueuer
	svc     *Service
	account *models.Account
	plan    *models.Plan
}

func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()
	db := dbtest.Open(t)

	account := &models.Account{Name: "Joana Silva", Email: "joana@example.com", Status: models.AccountStatusActive}
	require.NoError(t, db.Create(account).Error)
	daily, monthly := 5, 150
	plan := &models.Plan{
		Slug:               "pro-monthly",
		Name:               "Plano Pro Mensal",
		BillingPeriod:      models.BillingPeriodMonthly,
		PriceCents:         2990,
		DailyDownloadCap:   &daily,
		MonthlyDownloadCap: &monthly,
		Active:             true,
	}
	require.NoError(t, db.Create(plan).Error)

	f := &billingFixture{t: t, db: db, gateway: newFakeGateway(), outbox: &recordingEnqueuer{}, account: account, plan: plan}
	f.svc = NewServiceFromDB(db,
		WithGateway(f.gateway),
		WithOutbox(f.outbox),
		WithClock(func() time.Time { return fixedNow }),
		WithFetchRetry(3, time.Millisecond),
	)
	return f
}

func (f *billingFixture) purchase(providerPaymentID string) *Purchase {
	f.t.Helper()
	p, err := f.svc.OpenPurchase(context.Background(), PurchaseInput{
		AccountID:         f.account.ID,
		PlanSlug:          f.plan.Slug,
		Method:            models.PaymentMethodCard,
		ProviderPaymentID: providerPaymentID,
	})
	require.NoError(f.t, err)
	return p
}

func paymentEvent(id string) RawEvent {
	return RawEvent{Body: []byte(fmt.Sprintf(`{"action":"payment.updated","type":"payment","data":{"id":"%s"}}`, id))}
}

// reload zeroes dst before reading row id into it. GORM adds a non-zero
// primary key already on dst to the WHERE clause.
func (f *billingFixture) reload(dst interface{}, id uint) {
	f.t.Helper()
	v := reflect.ValueOf(dst).Elem()
	v.Set(reflect.Zero(v.Type()))
	require.NoError(f.t, f.db.First(dst, id).Error)
}

func (f *billingFixture) count(model interface{}) int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.db.Model(model).Count(&n).Error)
	return n
}
