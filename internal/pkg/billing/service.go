package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ManuelReschke/AssetVault/app/models"
	"github.com/ManuelReschke/AssetVault/internal/pkg/keylock"
)

const (
	DefaultFetchAttempts = 3
	DefaultFetchBackoff  = 300 * time.Millisecond
	DefaultFetchTimeout  = 2 * time.Second
	// DefaultLockWait bounds how long a delivery queues behind another one
	// for the same payment before it is handed back for redelivery.
	DefaultLockWait = 2 * time.Second
)

// Enqueuer receives notification ids after the transaction that created them
// has committed.
type Enqueuer interface {
	Enqueue(id uint)
}

// Service reconciles gateway payment events into local billing state.
type Service struct {
	repo     Repository
	gateway  PaymentGateway
	locks    keylock.Locker
	outbox   Enqueuer
	validate *validator.Validate
	nowFn    func() time.Time

	fetchAttempts int
	fetchBackoff  time.Duration
	fetchTimeout  time.Duration
	lockTTL       time.Duration
	lockWait      time.Duration
}

// Option configures a Service.
type Option func(*Service)

func WithGateway(g PaymentGateway) Option {
	return func(s *Service) { s.gateway = g }
}

func WithLocker(l keylock.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locks = l
		}
	}
}

func WithOutbox(e Enqueuer) Option {
	return func(s *Service) { s.outbox = e }
}

// WithLockWait bounds the wait for the per-payment lock.
func WithLockWait(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lockWait = d
		}
	}
}

func WithClock(nowFn func() time.Time) Option {
	return func(s *Service) { s.nowFn = nowFn }
}

// WithFetchRetry sets the attempt count and linear backoff step for gateway fetches.
func WithFetchRetry(attempts int, backoff time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.fetchAttempts = attempts
		}
		if backoff >= 0 {
			s.fetchBackoff = backoff
		}
	}
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:          repo,
		locks:         keylock.NewMemoryManager(),
		validate:      validator.New(),
		nowFn:         time.Now,
		fetchAttempts: DefaultFetchAttempts,
		fetchBackoff:  DefaultFetchBackoff,
		fetchTimeout:  DefaultFetchTimeout,
		lockTTL:       keylock.DefaultTTL,
		lockWait:      DefaultLockWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, opts ...Option) *Service {
	return NewService(NewRepository(db), opts...)
}

// Reconcile applies one webhook delivery. Events without a payment id, unknown
// payments and gateway outages are acknowledged without processing. Only lock
// and database failures return Acknowledged=false.
func (s *Service) Reconcile(ctx context.Context, ev RawEvent) (Ack, error) {
	ref := ExtractPaymentRef(ev)
	if ref.Source == IDSourceAbsent {
		log.Debugf("[Billing] Ignoring webhook topic=%q without payment id", ref.Topic)
		return Ack{Acknowledged: true, Outcome: OutcomeIgnored}, nil
	}
	ack := Ack{Acknowledged: true, PaymentID: ref.PaymentID}

	lockCtx, cancelLock := context.WithTimeout(ctx, s.lockWait)
	unlock, err := s.locks.Lock(lockCtx, "payment:"+ref.PaymentID, s.lockTTL)
	cancelLock()
	if err != nil {
		return Ack{PaymentID: ref.PaymentID}, fmt.Errorf("%w: payment lock: %v", ErrUnavailable, err)
	}
	defer unlock()

	gp, err := s.fetchWithRetry(ctx, ref.PaymentID)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			log.Warnf("[Billing] Payment %s unknown to gateway, dropping event", ref.PaymentID)
			ack.Outcome = OutcomeIgnored
			return ack, nil
		}
		log.Errorf("[Billing] Fetching payment %s failed, acknowledging without processing: %v", ref.PaymentID, err)
		ack.Outcome = OutcomeFetchFailed
		return ack, nil
	}

	target, ok := MapGatewayStatus(gp.Status)
	if !ok {
		log.Infof("[Billing] Payment %s has unhandled gateway status %q", ref.PaymentID, gp.Status)
		ack.Outcome = OutcomeIgnored
		return ack, nil
	}
	ack.Status = target

	var created []uint
	err = s.repo.InTx(ctx, func(tx Tx) error {
		created = created[:0]
		outcome, ids, err := s.apply(tx, ref.PaymentID, target, gp)
		ack.Outcome = outcome
		created = append(created, ids...)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrIntegrity) {
			log.Errorf("[Billing] Payment %s: %v", ref.PaymentID, err)
			return Ack{Acknowledged: true, Outcome: OutcomeIntegrity, PaymentID: ref.PaymentID, Status: target}, err
		}
		log.Errorf("[Billing] Applying payment %s -> %s failed: %v", ref.PaymentID, target, err)
		return Ack{PaymentID: ref.PaymentID, Status: target}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	ack.Processed = ack.Outcome == OutcomeApplied
	if s.outbox != nil {
		for _, id := range created {
			s.outbox.Enqueue(id)
		}
	}
	return ack, nil
}

// apply runs inside the reconciliation transaction and returns the ids of
// notifications it created.
func (s *Service) apply(tx Tx, paymentID, target string, gp *GatewayPayment) (Outcome, []uint, error) {
	payment, err := tx.LockPaymentByProviderID(paymentID)
	if errors.Is(err, gorm.ErrRecordNotFound) && gp.ExternalReference != "" {
		payment, err = tx.LockPaymentByOrderReference(gp.ExternalReference)
		if err == nil {
			if err := tx.AssignProviderPaymentID(payment, paymentID); err != nil {
				return "", nil, err
			}
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warnf("[Billing] No local payment for gateway payment %s (reference %q)", paymentID, gp.ExternalReference)
		return OutcomeUnmatched, nil, nil
	}
	if err != nil {
		return "", nil, err
	}

	from := payment.Status
	if from == target {
		return OutcomeNoChange, nil, nil
	}
	if !CanTransition(from, target) {
		log.Infof("[Billing] Ignoring stale transition %s -> %s for payment %s", from, target, paymentID)
		return OutcomeStale, nil, nil
	}

	inserted, err := tx.RecordTransition(&models.PaymentTransition{
		ProviderPaymentID: paymentID,
		FromStatus:        from,
		ToStatus:          target,
		StatusDetail:      truncate(gp.StatusDetail, 100),
	})
	if err != nil {
		return "", nil, fmt.Errorf("record transition: %w", err)
	}
	if !inserted {
		return OutcomeNoChange, nil, nil
	}

	chain, err := tx.LoadChain(payment)
	if err != nil {
		return "", nil, err
	}
	if err := tx.SavePaymentStatus(payment, target, gp.StatusDetail, gp.AmountCents(), paymentMethod(gp), string(gp.Raw)); err != nil {
		return "", nil, fmt.Errorf("save payment: %w", err)
	}

	var notifications []*models.PaymentNotification
	switch target {
	case models.PaymentStatusApproved:
		if err := s.approve(tx, chain); err != nil {
			return "", nil, err
		}
		notifications = append(notifications, &models.PaymentNotification{
			ProviderPaymentID: paymentID,
			Kind:              models.NotificationKindConfirmation,
			ReceiptURL:        gp.PointOfInteraction.TransactionData.TicketURL,
		})
	case models.PaymentStatusRejected:
		if err := s.closeOrder(tx, chain, models.OrderStatusFailed); err != nil {
			return "", nil, err
		}
		notifications = append(notifications, &models.PaymentNotification{
			ProviderPaymentID: paymentID,
			Kind:              models.NotificationKindRejection,
			RejectionReason:   RejectionReason(gp.StatusDetail),
			StatusDetail:      truncate(gp.StatusDetail, 100),
		})
	case models.PaymentStatusCancelled:
		if err := s.closeOrder(tx, chain, models.OrderStatusCancelled); err != nil {
			return "", nil, err
		}
	}

	var ids []uint
	for _, n := range notifications {
		n.Status = models.NotificationStatusPending
		n.Recipient = chain.Account.Email
		n.RecipientName = chain.Account.Name
		n.OrderReference = chain.Order.Reference
		n.AmountCents = firstPositive(gp.AmountCents(), payment.AmountCents, chain.Order.TotalAmountCents)
		n.Description = chain.Order.Description
		ok, err := tx.CreateNotificationIfNotExists(n)
		if err != nil {
			return "", nil, fmt.Errorf("create %s notification: %w", n.Kind, err)
		}
		if ok {
			ids = append(ids, n.ID)
		}
	}

	log.Infof("[Billing] Payment %s %s -> %s (order %s)", paymentID, from, target, chain.Order.Reference)
	return OutcomeApplied, ids, nil
}

func (s *Service) approve(tx Tx, c *Chain) error {
	if err := tx.SetInvoiceStatus(c.Invoice.ID, models.InvoiceStatusPaid); err != nil {
		return fmt.Errorf("invoice: %w", err)
	}
	if _, err := tx.AdvanceOrder(c.Order.ID, models.OrderStatusPaid); err != nil {
		return fmt.Errorf("order: %w", err)
	}
	if c.Subscription == nil {
		return nil
	}
	start := s.nowFn().UTC()
	end := c.Subscription.Plan.PeriodEnd(start)
	activated, err := tx.ActivateSubscription(c.Subscription, start, end)
	if err != nil {
		return fmt.Errorf("subscription: %w", err)
	}
	if !activated {
		// The payment stays approved; a superseded checkout is settled by support.
		log.Warnf("[Billing] Subscription %d of account %d is %s, approval of order %s does not reactivate it",
			c.Subscription.ID, c.Account.ID, c.Subscription.Status, c.Order.Reference)
		return nil
	}
	superseded, err := tx.SupersedeSubscriptions(c.Account.ID, c.Subscription.ID)
	if err != nil {
		return fmt.Errorf("supersede subscriptions: %w", err)
	}
	if superseded > 0 {
		log.Infof("[Billing] Superseded %d older subscriptions of account %d", superseded, c.Account.ID)
	}
	return nil
}

func (s *Service) closeOrder(tx Tx, c *Chain, orderStatus string) error {
	if err := tx.SetInvoiceStatus(c.Invoice.ID, models.InvoiceStatusVoid); err != nil {
		return fmt.Errorf("invoice: %w", err)
	}
	if _, err := tx.AdvanceOrder(c.Order.ID, orderStatus); err != nil {
		return fmt.Errorf("order: %w", err)
	}
	if c.Subscription != nil {
		if err := tx.CancelPendingSubscription(c.Subscription.ID); err != nil {
			return fmt.Errorf("subscription: %w", err)
		}
	}
	return nil
}

// fetchWithRetry makes up to fetchAttempts calls with linear backoff. Each call
// gets its own deadline.
func (s *Service) fetchWithRetry(ctx context.Context, paymentID string) (*GatewayPayment, error) {
	if s.gateway == nil {
		return nil, errors.New("no payment gateway configured")
	}
	var lastErr error
	for attempt := 1; attempt <= s.fetchAttempts; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
		gp, err := s.gateway.GetPayment(callCtx, paymentID)
		cancel()
		if err == nil {
			return gp, nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == s.fetchAttempts {
			break
		}
		log.Warnf("[Billing] Fetch payment %s attempt %d/%d failed: %v", paymentID, attempt, s.fetchAttempts, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * s.fetchBackoff):
		}
	}
	return nil, lastErr
}

// OpenPurchase writes the pending order, subscription, invoice and payment for
// a checkout in one transaction. The subscription grants nothing until its
// payment is approved.
func (s *Service) OpenPurchase(ctx context.Context, in PurchaseInput) (*Purchase, error) {
	in.PlanSlug = strings.TrimSpace(in.PlanSlug)
	in.Method = strings.ToLower(strings.TrimSpace(in.Method))
	in.ProviderPaymentID = strings.TrimSpace(in.ProviderPaymentID)
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	plan, err := s.repo.FindActivePlan(ctx, in.PlanSlug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("%w: load plan: %v", ErrUnavailable, err)
	}
	account, err := s.repo.FindAccount(ctx, in.AccountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountInactive
		}
		return nil, fmt.Errorf("%w: load account: %v", ErrUnavailable, err)
	}
	if !account.IsActive() {
		return nil, ErrAccountInactive
	}

	description := plan.Name
	if description == "" {
		description = plan.Slug
	}
	p := &Purchase{
		Subscription: &models.Subscription{
			AccountID:     account.ID,
			PlanID:        plan.ID,
			Status:        models.SubscriptionStatusTrialing,
			PaymentMethod: in.Method,
			Provider:      models.ProviderMercadoPago,
		},
		Order: &models.Order{
			Reference:        uuid.NewString(),
			AccountID:        account.ID,
			Status:           models.OrderStatusPending,
			TotalAmountCents: plan.PriceCents,
			Description:      description,
			Provider:         models.ProviderMercadoPago,
		},
		Invoice: &models.Invoice{Status: models.InvoiceStatusOpen},
		Payment: &models.Payment{
			Status:      models.PaymentStatusPending,
			AmountCents: plan.PriceCents,
			Method:      in.Method,
		},
	}
	if in.ProviderPaymentID != "" {
		id := in.ProviderPaymentID
		p.Payment.ProviderPaymentID = &id
	}
	if err := s.repo.CreatePurchase(ctx, p); err != nil {
		return nil, fmt.Errorf("%w: create purchase: %v", ErrUnavailable, err)
	}
	log.Infof("[Billing] Opened order %s for account %d plan %s", p.Order.Reference, account.ID, plan.Slug)
	return p, nil
}

// ExpireLapsedSubscriptions marks active or trialing subscriptions whose period
// has ended as expired.
func (s *Service) ExpireLapsedSubscriptions(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpireLapsedSubscriptions(ctx, s.nowFn())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Infof("[Billing] Expired %d subscriptions", n)
	}
	return n, nil
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.PaymentWebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON + "?" + in.Query))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.PaymentWebhookEvent{
		Provider:          provider,
		ProviderEventID:   truncate(eventID, 191),
		Topic:             truncate(strings.TrimSpace(in.Topic), 100),
		ProviderPaymentID: truncate(strings.TrimSpace(in.ProviderPaymentID), 64),
		PayloadJSON:       in.PayloadJSON,
		Query:             in.Query,
		SignatureValid:    in.SignatureValid,
		Deliveries:        1,
	}
	return s.repo.CreateWebhookEventIfNotExists(ctx, event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(ctx, webhookEventID, errMsg)
}

func paymentMethod(gp *GatewayPayment) string {
	switch {
	case gp.PaymentMethodID == "pix" || gp.PaymentTypeID == "bank_transfer":
		return models.PaymentMethodPix
	case gp.PaymentTypeID == "credit_card" || gp.PaymentTypeID == "debit_card":
		return models.PaymentMethodCard
	default:
		return ""
	}
}

func firstPositive(values ...int64) int64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
