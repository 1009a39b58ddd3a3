package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/AssetVault/app/models"
)

const (
	DefaultOutboxWorkers     = 2
	DefaultOutboxMaxAttempts = 5
	DefaultOutboxStaleAfter  = 5 * time.Minute
	DefaultOutboxSendTimeout = 10 * time.Second
)

// Outbox delivers PaymentNotification rows. Reconcile hands it ids after
// commit; DispatchPending picks up anything left behind by a restart or a
// full queue.
type Outbox struct {
	repo        Repository
	notifier    Notifier
	workers     int
	maxAttempts int
	staleAfter  time.Duration
	sendTimeout time.Duration
	nowFn       func() time.Time

	jobs    chan uint
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// OutboxOption configures an Outbox.
type OutboxOption func(*Outbox)

func WithOutboxWorkers(n int) OutboxOption {
	return func(o *Outbox) {
		if n > 0 {
			o.workers = n
		}
	}
}

func WithOutboxMaxAttempts(n int) OutboxOption {
	return func(o *Outbox) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

func WithOutboxClock(nowFn func() time.Time) OutboxOption {
	return func(o *Outbox) { o.nowFn = nowFn }
}

// NewOutbox creates an outbox. It does not deliver anything until Start.
func NewOutbox(repo Repository, notifier Notifier, opts ...OutboxOption) *Outbox {
	o := &Outbox{
		repo:        repo,
		notifier:    notifier,
		workers:     DefaultOutboxWorkers,
		maxAttempts: DefaultOutboxMaxAttempts,
		staleAfter:  DefaultOutboxStaleAfter,
		sendTimeout: DefaultOutboxSendTimeout,
		nowFn:       time.Now,
		jobs:        make(chan uint, 256),
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start launches the worker pool.
func (o *Outbox) Start() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return
	}
	o.stopCh = make(chan struct{})
	o.running = true
	log.Infof("[Outbox] Starting %d workers", o.workers)

	for i := 0; i < o.workers; i++ {
		o.wg.Add(1)
		go o.worker(i)
	}
}

// Stop waits for in-flight sends to finish.
func (o *Outbox) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.running {
		return
	}
	log.Info("[Outbox] Stopping workers...")
	close(o.stopCh)
	o.running = false
	o.wg.Wait()
	log.Info("[Outbox] All workers stopped")
}

// Enqueue schedules a notification without blocking. When the queue is full
// the row stays pending for the sweeper.
func (o *Outbox) Enqueue(id uint) {
	select {
	case o.jobs <- id:
	default:
		log.Warnf("[Outbox] Queue full, notification %d left for sweeper", id)
	}
}

func (o *Outbox) worker(n int) {
	defer o.wg.Done()
	for {
		select {
		case <-o.stopCh:
			log.Debugf("[Outbox] Worker %d stopping", n)
			return
		case id := <-o.jobs:
			if err := o.Dispatch(context.Background(), id); err != nil {
				log.Errorf("[Outbox] Notification %d: %v", id, err)
			}
		}
	}
}

// DispatchPending sends up to limit pending or stale notifications and returns
// how many were delivered.
func (o *Outbox) DispatchPending(ctx context.Context, limit int) (int, error) {
	staleBefore := o.nowFn().Add(-o.staleAfter)
	rows, err := o.repo.ListDispatchableNotifications(ctx, staleBefore, o.maxAttempts, limit)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, n := range rows {
		if err := o.Dispatch(ctx, n.ID); err != nil {
			log.Warnf("[Outbox] Notification %d: %v", n.ID, err)
			continue
		}
		sent++
	}
	return sent, nil
}

// ErrNotClaimed is returned when another sender owns the notification or it
// was already delivered.
var ErrNotClaimed = errors.New("billing: notification not claimable")

// Dispatch claims one notification, sends it and records the result.
func (o *Outbox) Dispatch(ctx context.Context, id uint) error {
	now := o.nowFn()
	claimed, err := o.repo.ClaimNotification(ctx, id, now, now.Add(-o.staleAfter))
	if err != nil {
		return fmt.Errorf("claim: %w", err)
	}
	if !claimed {
		return ErrNotClaimed
	}

	n, err := o.repo.GetNotification(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotClaimed
		}
		return fmt.Errorf("load: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, o.sendTimeout)
	sendErr := o.send(sendCtx, n)
	cancel()

	if sendErr != nil {
		final := n.Attempts >= o.maxAttempts
		if err := o.repo.MarkNotificationFailed(ctx, id, sendErr.Error(), final); err != nil {
			log.Errorf("[Outbox] Failed to record send error for %d: %v", id, err)
		}
		if final {
			log.Errorf("[Outbox] Giving up on %s notification for payment %s after %d attempts: %v",
				n.Kind, n.ProviderPaymentID, n.Attempts, sendErr)
		}
		return sendErr
	}

	if err := o.repo.MarkNotificationSent(ctx, id, o.nowFn()); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	log.Infof("[Outbox] Sent %s notification for payment %s to %s", n.Kind, n.ProviderPaymentID, n.Recipient)
	return nil
}

func (o *Outbox) send(ctx context.Context, n *models.PaymentNotification) error {
	if o.notifier == nil {
		return errors.New("no notifier configured")
	}
	switch n.Kind {
	case models.NotificationKindConfirmation:
		return o.notifier.SendPaymentConfirmation(ctx, Confirmation{
			To:          n.Recipient,
			Name:        n.RecipientName,
			OrderID:     n.OrderReference,
			AmountCents: n.AmountCents,
			Description: n.Description,
			ReceiptURL:  n.ReceiptURL,
		})
	case models.NotificationKindRejection:
		return o.notifier.SendPaymentRejection(ctx, Rejection{
			To:              n.Recipient,
			Name:            n.RecipientName,
			OrderID:         n.OrderReference,
			AmountCents:     n.AmountCents,
			Description:     n.Description,
			RejectionReason: n.RejectionReason,
			StatusDetail:    n.StatusDetail,
		})
	default:
		return fmt.Errorf("unknown notification kind %q", n.Kind)
	}
}
