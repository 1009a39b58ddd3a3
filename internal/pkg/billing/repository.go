package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/AssetVault/app/models"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	// InTx runs fn in a single transaction.
	InTx(ctx context.Context, fn func(Tx) error) error

	FindActivePlan(ctx context.Context, slug string) (*models.Plan, error)
	FindAccount(ctx context.Context, id uint) (*models.Account, error)
	CreatePurchase(ctx context.Context, p *Purchase) error
	ExpireLapsedSubscriptions(ctx context.Context, now time.Time) (int64, error)

	CreateWebhookEventIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error

	ListDispatchableNotifications(ctx context.Context, staleBefore time.Time, maxAttempts, limit int) ([]models.PaymentNotification, error)
	ClaimNotification(ctx context.Context, id uint, now, staleBefore time.Time) (bool, error)
	GetNotification(ctx context.Context, id uint) (*models.PaymentNotification, error)
	MarkNotificationSent(ctx context.Context, id uint, now time.Time) error
	MarkNotificationFailed(ctx context.Context, id uint, lastError string, final bool) error
}

// Tx is the transactional scope of one reconciliation.
type Tx interface {
	LockPaymentByProviderID(providerPaymentID string) (*models.Payment, error)
	// LockPaymentByOrderReference finds the newest payment of the order that has
	// no gateway id yet.
	LockPaymentByOrderReference(reference string) (*models.Payment, error)
	AssignProviderPaymentID(p *models.Payment, providerPaymentID string) error
	LoadChain(p *models.Payment) (*Chain, error)

	RecordTransition(t *models.PaymentTransition) (bool, error)
	SavePaymentStatus(p *models.Payment, status, statusDetail string, amountCents int64, method, raw string) error
	SetInvoiceStatus(invoiceID uint, to string) error
	AdvanceOrder(orderID uint, to string) (bool, error)
	// ActivateSubscription starts the period of a still-trialing checkout
	// subscription. It reports false when the subscription was already
	// cancelled, expired or activated.
	ActivateSubscription(sub *models.Subscription, start, end time.Time) (bool, error)
	SupersedeSubscriptions(accountID, keepID uint) (int64, error)
	CancelPendingSubscription(subscriptionID uint) error
	CreateNotificationIfNotExists(n *models.PaymentNotification) (bool, error)
}

// Chain is everything a payment status change touches.
type Chain struct {
	Invoice      *models.Invoice
	Order        *models.Order
	Subscription *models.Subscription
	Account      *models.Account
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) InTx(ctx context.Context, fn func(Tx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTx{db: tx})
	})
}

func (r *gormRepository) FindActivePlan(ctx context.Context, slug string) (*models.Plan, error) {
	var p models.Plan
	err := r.db.WithContext(ctx).Where("slug = ? AND active = ?", slug, true).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) FindAccount(ctx context.Context, id uint) (*models.Account, error) {
	var a models.Account
	if err := r.db.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *gormRepository) CreatePurchase(ctx context.Context, p *Purchase) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p.Subscription).Error; err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}
		p.Order.SubscriptionID = &p.Subscription.ID
		if err := tx.Create(p.Order).Error; err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		p.Invoice.OrderID = p.Order.ID
		if err := tx.Create(p.Invoice).Error; err != nil {
			return fmt.Errorf("create invoice: %w", err)
		}
		p.Payment.InvoiceID = p.Invoice.ID
		if err := tx.Create(p.Payment).Error; err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		return nil
	})
}

func (r *gormRepository) ExpireLapsedSubscriptions(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Subscription{}).
		Where("status IN ? AND current_period_end IS NOT NULL AND current_period_end <= ?",
			[]string{models.SubscriptionStatusActive, models.SubscriptionStatusTrialing}, now.UTC()).
		Update("status", models.SubscriptionStatusExpired)
	return res.RowsAffected, res.Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	db := r.db.WithContext(ctx)
	tx := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	if !created {
		if err := db.Model(&models.PaymentWebhookEvent{}).
			Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
			UpdateColumn("deliveries", gorm.Expr("deliveries + 1")).Error; err != nil {
			return false, nil, err
		}
	}

	var stored models.PaymentWebhookEvent
	if err := db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.WithContext(ctx).Model(&models.PaymentWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) ListDispatchableNotifications(ctx context.Context, staleBefore time.Time, maxAttempts, limit int) ([]models.PaymentNotification, error) {
	var out []models.PaymentNotification
	err := r.db.WithContext(ctx).
		Where("attempts < ?", maxAttempts).
		Where("status = ? OR (status = ? AND claimed_at < ?)",
			models.NotificationStatusPending, models.NotificationStatusSending, staleBefore.UTC()).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ClaimNotification moves a notification to sending. Only one caller can win
// the conditional update; a sending row older than staleBefore is claimable
// again because its sender died.
func (r *gormRepository) ClaimNotification(ctx context.Context, id uint, now, staleBefore time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.PaymentNotification{}).
		Where("id = ?", id).
		Where("status = ? OR (status = ? AND claimed_at < ?)",
			models.NotificationStatusPending, models.NotificationStatusSending, staleBefore.UTC()).
		Updates(map[string]interface{}{
			"status":     models.NotificationStatusSending,
			"claimed_at": now.UTC(),
			"attempts":   gorm.Expr("attempts + 1"),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *gormRepository) GetNotification(ctx context.Context, id uint) (*models.PaymentNotification, error) {
	var n models.PaymentNotification
	if err := r.db.WithContext(ctx).First(&n, id).Error; err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *gormRepository) MarkNotificationSent(ctx context.Context, id uint, now time.Time) error {
	t := now.UTC()
	return r.db.WithContext(ctx).Model(&models.PaymentNotification{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     models.NotificationStatusSent,
			"sent_at":    &t,
			"last_error": "",
		}).Error
}

func (r *gormRepository) MarkNotificationFailed(ctx context.Context, id uint, lastError string, final bool) error {
	status := models.NotificationStatusPending
	if final {
		status = models.NotificationStatusFailed
	}
	return r.db.WithContext(ctx).Model(&models.PaymentNotification{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"last_error": truncate(lastError, 2000),
		}).Error
}

type gormTx struct {
	db *gorm.DB
}

func (t *gormTx) LockPaymentByProviderID(providerPaymentID string) (*models.Payment, error) {
	var p models.Payment
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("provider_payment_id = ?", providerPaymentID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *gormTx) LockPaymentByOrderReference(reference string) (*models.Payment, error) {
	var p models.Payment
	err := t.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Joins("JOIN invoices ON invoices.id = payments.invoice_id").
		Joins("JOIN orders ON orders.id = invoices.order_id").
		Where("orders.reference = ? AND payments.provider_payment_id IS NULL", reference).
		Order("payments.id DESC").
		Take(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *gormTx) AssignProviderPaymentID(p *models.Payment, providerPaymentID string) error {
	res := t.db.Model(&models.Payment{}).
		Where("id = ? AND provider_payment_id IS NULL", p.ID).
		Update("provider_payment_id", providerPaymentID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("payment %d already has a gateway id", p.ID)
	}
	p.ProviderPaymentID = &providerPaymentID
	return nil
}

func (t *gormTx) LoadChain(p *models.Payment) (*Chain, error) {
	var c Chain
	var invoice models.Invoice
	if err := t.db.First(&invoice, p.InvoiceID).Error; err != nil {
		return nil, integrityOr(err, "invoice %d of payment %d", p.InvoiceID, p.ID)
	}
	c.Invoice = &invoice

	var order models.Order
	if err := t.db.First(&order, invoice.OrderID).Error; err != nil {
		return nil, integrityOr(err, "order %d of invoice %d", invoice.OrderID, invoice.ID)
	}
	c.Order = &order

	var account models.Account
	if err := t.db.First(&account, order.AccountID).Error; err != nil {
		return nil, integrityOr(err, "account %d of order %s", order.AccountID, order.Reference)
	}
	c.Account = &account

	if order.SubscriptionID != nil {
		var sub models.Subscription
		if err := t.db.Preload("Plan").First(&sub, *order.SubscriptionID).Error; err != nil {
			return nil, integrityOr(err, "subscription %d of order %s", *order.SubscriptionID, order.Reference)
		}
		if sub.Plan == nil {
			return nil, fmt.Errorf("%w: subscription %d references missing plan %d", ErrIntegrity, sub.ID, sub.PlanID)
		}
		c.Subscription = &sub
	}
	return &c, nil
}

func integrityOr(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: missing %s", ErrIntegrity, fmt.Sprintf(format, args...))
	}
	return err
}

func (t *gormTx) RecordTransition(tr *models.PaymentTransition) (bool, error) {
	res := t.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider_payment_id"},
			{Name: "to_status"},
		},
		DoNothing: true,
	}).Create(tr)
	return res.RowsAffected > 0, res.Error
}

func (t *gormTx) SavePaymentStatus(p *models.Payment, status, statusDetail string, amountCents int64, method, raw string) error {
	updates := map[string]interface{}{
		"status":        status,
		"status_detail": truncate(statusDetail, 100),
		"provider_raw":  raw,
	}
	if amountCents > 0 {
		updates["amount_cents"] = amountCents
	}
	if method != "" {
		updates["method"] = method
	}
	if err := t.db.Model(&models.Payment{}).Where("id = ?", p.ID).Updates(updates).Error; err != nil {
		return err
	}
	p.Status = status
	p.StatusDetail = statusDetail
	return nil
}

func (t *gormTx) SetInvoiceStatus(invoiceID uint, to string) error {
	return t.db.Model(&models.Invoice{}).
		Where("id = ? AND status = ?", invoiceID, models.InvoiceStatusOpen).
		Update("status", to).Error
}

// AdvanceOrder only moves orders out of pending.
func (t *gormTx) AdvanceOrder(orderID uint, to string) (bool, error) {
	res := t.db.Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, models.OrderStatusPending).
		Update("status", to)
	return res.RowsAffected == 1, res.Error
}

func (t *gormTx) ActivateSubscription(sub *models.Subscription, start, end time.Time) (bool, error) {
	s, e := start.UTC(), end.UTC()
	res := t.db.Model(&models.Subscription{}).
		Where("id = ? AND status = ?", sub.ID, models.SubscriptionStatusTrialing).
		Updates(map[string]interface{}{
			"status":               models.SubscriptionStatusActive,
			"current_period_start": &s,
			"current_period_end":   &e,
		})
	if res.Error != nil || res.RowsAffected == 0 {
		return false, res.Error
	}
	sub.Status = models.SubscriptionStatusActive
	sub.CurrentPeriodStart = &s
	sub.CurrentPeriodEnd = &e
	return true, nil
}

func (t *gormTx) SupersedeSubscriptions(accountID, keepID uint) (int64, error) {
	res := t.db.Model(&models.Subscription{}).
		Where("account_id = ? AND id <> ? AND status IN ?", accountID, keepID,
			[]string{models.SubscriptionStatusActive, models.SubscriptionStatusTrialing}).
		Update("status", models.SubscriptionStatusCancelled)
	return res.RowsAffected, res.Error
}

func (t *gormTx) CancelPendingSubscription(subscriptionID uint) error {
	return t.db.Model(&models.Subscription{}).
		Where("id = ? AND status = ?", subscriptionID, models.SubscriptionStatusTrialing).
		Update("status", models.SubscriptionStatusCancelled).Error
}

func (t *gormTx) CreateNotificationIfNotExists(n *models.PaymentNotification) (bool, error) {
	res := t.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider_payment_id"},
			{Name: "kind"},
		},
		DoNothing: true,
	}).Create(n)
	return res.RowsAffected > 0, res.Error
}
