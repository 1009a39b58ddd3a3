package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AssetVault/app/models"
	"github.com/ManuelReschke/AssetVault/app/repository"
	"github.com/ManuelReschke/AssetVault/internal/pkg/billing"
	"github.com/ManuelReschke/AssetVault/internal/pkg/env"
	"github.com/ManuelReschke/AssetVault/internal/pkg/usercontext"
)

const (
	// webhookTimeout covers the payment lock wait plus every gateway fetch attempt.
	webhookTimeout = 10 * time.Second
	auditTimeout   = 2 * time.Second
)

// WebhookConfig controls Mercado Pago signature checks.
type WebhookConfig struct {
	Secret string
	Verify bool
}

// LoadWebhookConfig reads MP_WEBHOOK_SECRET and MP_WEBHOOK_VERIFY.
func LoadWebhookConfig() WebhookConfig {
	return WebhookConfig{
		Secret: env.GetEnv("MP_WEBHOOK_SECRET", ""),
		Verify: env.GetBool("MP_WEBHOOK_VERIFY", true),
	}
}

// BillingController exposes checkout, the plan catalog and the payment webhook.
type BillingController struct {
	svc     *billing.Service
	plans   repository.PlanRepository
	webhook WebhookConfig
}

func NewBillingController(svc *billing.Service, plans repository.PlanRepository, webhook WebhookConfig) *BillingController {
	return &BillingController{svc: svc, plans: plans, webhook: webhook}
}

// HandleListPlans returns the active plan catalog.
func (bc *BillingController) HandleListPlans(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()

	plans, err := bc.plans.ListActive(ctx)
	if err != nil {
		log.Errorf("[Billing] Listing plans failed: %v", err)
		return jsonError(c, fiber.StatusServiceUnavailable, "service_unavailable", "Failed to load plans")
	}
	return c.JSON(fiber.Map{"plans": plans})
}

type checkoutRequest struct {
	PlanSlug          string `json:"plan_slug"`
	Method            string `json:"method"`
	ProviderPaymentID string `json:"provider_payment_id"`
}

// HandleCheckout opens the pending purchase records. The returned reference
// is passed to the gateway as external_reference.
func (bc *BillingController) HandleCheckout(c *fiber.Ctx) error {
	accountID := usercontext.GetAccountID(c)
	if accountID == 0 {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}
	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	purchase, err := bc.svc.OpenPurchase(ctx, billing.PurchaseInput{
		AccountID:         accountID,
		PlanSlug:          strings.TrimSpace(req.PlanSlug),
		Method:            strings.ToLower(strings.TrimSpace(req.Method)),
		ProviderPaymentID: strings.TrimSpace(req.ProviderPaymentID),
	})
	if err != nil {
		var validationErrs validator.ValidationErrors
		switch {
		case errors.Is(err, billing.ErrPlanNotFound):
			return jsonError(c, fiber.StatusNotFound, "not_found", "Plan not found")
		case errors.Is(err, billing.ErrAccountInactive):
			return jsonError(c, fiber.StatusForbidden, "forbidden", "Account inactive")
		case errors.As(err, &validationErrs):
			return jsonError(c, fiber.StatusBadRequest, "bad_request", "plan_slug and method (card or pix) are required")
		default:
			log.Errorf("[Billing] Checkout for account %d failed: %v", accountID, err)
			return jsonError(c, fiber.StatusServiceUnavailable, "service_unavailable", "Checkout unavailable")
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"order_reference": purchase.Order.Reference,
		"order_id":        purchase.Order.ID,
		"amount_cents":    purchase.Order.TotalAmountCents,
		"status":          purchase.Payment.Status,
	})
}

// HandleMercadoPagoWebhook records a delivery and reconciles the payment it
// points to. Redeliveries of the same event are reconciled again; the
// reconciler is idempotent.
func (bc *BillingController) HandleMercadoPagoWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	query := c.Queries()
	ev := billing.RawEvent{Body: rawBody, Query: query, Headers: requestHeaders(c)}
	ref := billing.ExtractPaymentRef(ev)

	ctx, cancel := context.WithTimeout(c.UserContext(), webhookTimeout)
	defer cancel()

	signatureValid := bc.signatureValid(c, ref)
	created, stored, err := bc.svc.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:          models.ProviderMercadoPago,
		ProviderEventID:   notificationID(rawBody, query),
		Topic:             ref.Topic,
		ProviderPaymentID: ref.PaymentID,
		PayloadJSON:       string(rawBody),
		Query:             encodeQuery(query),
		SignatureValid:    signatureValid,
	})
	if err != nil {
		log.Errorf("[Billing] Persisting webhook failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		log.Debugf("[Billing] Duplicate webhook delivery event=%d", stored.ID)
	}
	if bc.webhook.Verify && !signatureValid {
		bc.markProcessed(stored.ID, errors.New("invalid webhook signature"))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	ack, err := bc.svc.Reconcile(ctx, ev)
	bc.markProcessed(stored.ID, err)
	if !ack.Acknowledged {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reconcile_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"ok":        true,
		"duplicate": !created,
		"processed": ack.Processed,
		"outcome":   ack.Outcome,
	})
}

// markProcessed updates the audit row on its own deadline, since the request
// context may already be spent by Reconcile.
func (bc *BillingController) markProcessed(eventID uint, processingErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()
	if err := bc.svc.MarkWebhookProcessed(ctx, eventID, processingErr); err != nil {
		log.Warnf("[Billing] Marking webhook event %d processed failed: %v", eventID, err)
	}
}

// signatureValid checks x-signature against the data id the gateway signed,
// which is the query data.id when present.
func (bc *BillingController) signatureValid(c *fiber.Ctx, ref billing.EventRef) bool {
	dataID := c.Query("data.id")
	if dataID == "" {
		dataID = ref.PaymentID
	}
	return billing.VerifyMercadoPagoSignature(c.Get("X-Signature"), c.Get("X-Request-Id"), dataID, bc.webhook.Secret)
}

// notificationID returns the gateway's notification id when the body has one.
func notificationID(body []byte, query map[string]string) string {
	var envelope struct {
		ID json.RawMessage `json:"id"`
	}
	if len(body) > 0 && json.Unmarshal(body, &envelope) == nil && len(envelope.ID) > 0 {
		id := strings.Trim(string(envelope.ID), `"`)
		if id != "" && id != "null" {
			return id
		}
	}
	return strings.TrimSpace(query["id"])
}

func encodeQuery(query map[string]string) string {
	values := url.Values{}
	for k, v := range query {
		values.Set(k, v)
	}
	return values.Encode()
}
