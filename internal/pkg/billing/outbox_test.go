package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/AssetVault/app/models"
)

type fakeNotifier struct {
	mu            sync.Mutex
	confirmations []Confirmation
	rejections    []Rejection
	err           error
	sent          chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: make(chan struct{}, 16)}
}

func (n *fakeNotifier) SendPaymentConfirmation(_ context.Context, c Confirmation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.confirmations = append(n.confirmations, c)
	n.sent <- struct{}{}
	return nil
}

func (n *fakeNotifier) SendPaymentRejection(_ context.Context, r Rejection) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.rejections = append(n.rejections, r)
	n.sent <- struct{}{}
	return nil
}

func (f *billingFixture) notification(kind string) *models.PaymentNotification {
	f.t.Helper()
	n := &models.PaymentNotification{
		ProviderPaymentID: "9001",
		Kind:              kind,
		Status:            models.NotificationStatusPending,
		Recipient:         "joana@example.com",
		RecipientName:     "Joana Silva",
		OrderReference:    "ord-9001",
		AmountCents:       2990,
		Description:       "Plano Pro Mensal",
		RejectionReason:   "O cartão possui saldo insuficiente.",
		StatusDetail:      "cc_rejected_insufficient_amount",
	}
	require.NoError(f.t, f.db.Create(n).Error)
	return n
}

func TestOutboxDispatchSendsOnce(t *testing.T) {
	f := newBillingFixture(t)
	notifier := newFakeNotifier()
	outbox := NewOutbox(NewRepository(f.db), notifier, WithOutboxClock(func() time.Time { return fixedNow }))
	n := f.notification(models.NotificationKindConfirmation)

	require.NoError(t, outbox.Dispatch(context.Background(), n.ID))
	assert.ErrorIs(t, outbox.Dispatch(context.Background(), n.ID), ErrNotClaimed)

	require.Len(t, notifier.confirmations, 1)
	c := notifier.confirmations[0]
	assert.Equal(t, "joana@example.com", c.To)
	assert.Equal(t, "Joana Silva", c.Name)
	assert.Equal(t, "ord-9001", c.OrderID)
	assert.Equal(t, int64(2990), c.AmountCents)

	var stored models.PaymentNotification
	f.reload(&stored, n.ID)
	assert.Equal(t, models.NotificationStatusSent, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.NotNil(t, stored.SentAt)
}

func TestOutboxDispatchRejection(t *testing.T) {
	f := newBillingFixture(t)
	notifier := newFakeNotifier()
	outbox := NewOutbox(NewRepository(f.db), notifier)
	n := f.notification(models.NotificationKindRejection)

	require.NoError(t, outbox.Dispatch(context.Background(), n.ID))
	require.Len(t, notifier.rejections, 1)
	assert.Equal(t, "O cartão possui saldo insuficiente.", notifier.rejections[0].RejectionReason)
	assert.Equal(t, "cc_rejected_insufficient_amount", notifier.rejections[0].StatusDetail)
}

func TestOutboxFailureIsRetriedThenGivenUp(t *testing.T) {
	f := newBillingFixture(t)
	notifier := newFakeNotifier()
	notifier.err = errors.New("smtp: connection refused")
	outbox := NewOutbox(NewRepository(f.db), notifier, WithOutboxMaxAttempts(2))
	n := f.notification(models.NotificationKindConfirmation)

	require.Error(t, outbox.Dispatch(context.Background(), n.ID))
	var stored models.PaymentNotification
	f.reload(&stored, n.ID)
	assert.Equal(t, models.NotificationStatusPending, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.Contains(t, stored.LastError, "connection refused")

	require.Error(t, outbox.Dispatch(context.Background(), n.ID))
	f.reload(&stored, n.ID)
	assert.Equal(t, models.NotificationStatusFailed, stored.Status)
	assert.Equal(t, 2, stored.Attempts)

	assert.ErrorIs(t, outbox.Dispatch(context.Background(), n.ID), ErrNotClaimed)
}

func TestOutboxDispatchPendingRecoversStaleClaims(t *testing.T) {
	f := newBillingFixture(t)
	notifier := newFakeNotifier()
	outbox := NewOutbox(NewRepository(f.db), notifier, WithOutboxClock(func() time.Time { return fixedNow }))

	pending := f.notification(models.NotificationKindConfirmation)

	staleClaim := fixedNow.Add(-time.Hour)
	stale := &models.PaymentNotification{ProviderPaymentID: "9002", Kind: models.NotificationKindConfirmation, Status: models.NotificationStatusSending,
		Recipient: "a@example.com", OrderReference: "ord-9002", AmountCents: 100, Attempts: 1, ClaimedAt: &staleClaim}
	freshClaim := fixedNow.Add(-time.Second)
	inFlight := &models.PaymentNotification{ProviderPaymentID: "9003", Kind: models.NotificationKindConfirmation, Status: models.NotificationStatusSending,
		Recipient: "b@example.com", OrderReference: "ord-9003", AmountCents: 100, Attempts: 1, ClaimedAt: &freshClaim}
	require.NoError(t, f.db.Create(stale).Error)
	require.NoError(t, f.db.Create(inFlight).Error)

	sent, err := outbox.DispatchPending(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	var got models.PaymentNotification
	f.reload(&got, pending.ID)
	assert.Equal(t, models.NotificationStatusSent, got.Status)
	f.reload(&got, stale.ID)
	assert.Equal(t, models.NotificationStatusSent, got.Status)
	assert.Equal(t, 2, got.Attempts)
	f.reload(&got, inFlight.ID)
	assert.Equal(t, models.NotificationStatusSending, got.Status)
}

func TestOutboxWorkersDeliverReconciledPayment(t *testing.T) {
	f := newBillingFixture(t)
	notifier := newFakeNotifier()
	outbox := NewOutbox(NewRepository(f.db), notifier, WithOutboxWorkers(1))
	outbox.Start()
	defer outbox.Stop()

	svc := NewServiceFromDB(f.db, WithGateway(f.gateway), WithOutbox(outbox), WithClock(func() time.Time { return fixedNow }))
	p := f.purchase("9100")
	f.gateway.set("9100", "approved", "accredited")

	ack, err := svc.Reconcile(context.Background(), paymentEvent("9100"))
	require.NoError(t, err)
	require.Equal(t, OutcomeApplied, ack.Outcome)

	select {
	case <-notifier.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("confirmation was not delivered")
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	require.Len(t, notifier.confirmations, 1)
	assert.Equal(t, p.Order.Reference, notifier.confirmations[0].OrderID)
	assert.Equal(t, "Plano Pro Mensal", notifier.confirmations[0].Description)
}
