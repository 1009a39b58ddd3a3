package controllers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/AssetVault/app/models"
	"github.com/ManuelReschke/AssetVault/app/repository"
	"github.com/ManuelReschke/AssetVault/internal/pkg/billing"
	"github.com/ManuelReschke/AssetVault/internal/pkg/database/dbtest"
	"github.com/ManuelReschke/AssetVault/internal/pkg/delivery"
	"github.com/ManuelReschke/AssetVault/internal/pkg/entitlements"
	"github.com/ManuelReschke/AssetVault/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/AssetVault/internal/pkg/middleware"
)

const testWebhookSecret = "whsec_test"

// gatewayStub serves GET /v1/payments/{id} from an in-memory map.
type gatewayStub struct {
	mu       sync.Mutex
	payments map[string]map[string]any
}

func (g *gatewayStub) set(id string, payment map[string]any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	payment["id"] = id
	g.payments[id] = payment
}

func (g *gatewayStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := strings.TrimPrefix(r.URL.Path, "/v1/payments/")
	payment, ok := g.payments[id]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payment)
}

type testEnv struct {
	t       *testing.T
	app     *fiber.App
	db      *gorm.DB
	gateway *gatewayStub
	account *models.Account
	apiKey  string
	plan    *models.Plan
	billing *BillingController
}

func newTestEnv(t *testing.T, dailyCap int) *testEnv {
	t.Helper()
	db := dbtest.Open(t)
	repos := repository.NewRepositories(db)
	ctx := context.Background()

	gw := &gatewayStub{payments: map[string]map[string]any{}}
	server := httptest.NewServer(gw)
	t.Cleanup(server.Close)

	monthly := 150
	plan := &models.Plan{Slug: "pro-monthly", Name: "Plano Pro Mensal", BillingPeriod: models.BillingPeriodMonthly, PriceCents: 2990, DailyDownloadCap: &dailyCap, MonthlyDownloadCap: &monthly, Active: true}
	require.NoError(t, repos.Plan.Create(ctx, plan))

	account := &models.Account{Name: "Joana Silva", Email: "joana@example.com", Status: models.AccountStatusActive}
	raw, err := account.IssueAPIKey()
	require.NoError(t, err)
	require.NoError(t, repos.Account.Create(ctx, account))

	grants := entitlements.NewServiceFromDB(db)
	payments := billing.NewServiceFromDB(db,
		billing.WithGateway(&billing.MercadoPagoClient{AccessToken: "TEST-token", APIBaseURL: server.URL, HTTPClient: server.Client()}),
		billing.WithFetchRetry(1, time.Millisecond),
	)

	downloads := NewDownloadController(grants, delivery.NewStaticSigner("https://cdn.example.com/files"), counter.New(nil, db, ""))
	billingCtl := NewBillingController(payments, repos.Plan, WebhookConfig{Secret: testWebhookSecret, Verify: true})

	app := fiber.New()
	v1 := app.Group("/api/v1")
	v1.Get("/plans", billingCtl.HandleListPlans)
	v1.Post("/webhooks/mercadopago", billingCtl.HandleMercadoPagoWebhook)
	auth := v1.Group("", middleware.APIKeyAuthMiddleware(repos.Account))
	auth.Post("/checkout", billingCtl.HandleCheckout)
	auth.Post("/downloads/:productId", downloads.HandleDownload)
	auth.Get("/usage", downloads.HandleUsage)

	return &testEnv{t: t, app: app, db: db, gateway: gw, account: account, apiKey: raw, plan: plan, billing: billingCtl}
}

func (e *testEnv) activeSubscription() {
	e.t.Helper()
	start := time.Now().UTC().Add(-time.Hour)
	end := start.AddDate(0, 1, 0)
	require.NoError(e.t, e.db.Create(&models.Subscription{
		AccountID:          e.account.ID,
		PlanID:             e.plan.ID,
		Status:             models.SubscriptionStatusActive,
		CurrentPeriodStart: &start,
		CurrentPeriodEnd:   &end,
	}).Error)
}

func (e *testEnv) product(slug string) *models.Product {
	e.t.Helper()
	p := &models.Product{Slug: slug, Title: slug, AssetType: "psd", IsPublic: true, ObjectKey: "assets/" + slug + ".zip"}
	require.NoError(e.t, e.db.Create(p).Error)
	return p
}

func (e *testEnv) do(method, path, body string, authed bool, headers map[string]string) (*http.Response, map[string]any) {
	e.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("X-API-Key", e.apiKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(e.t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	data, err := io.ReadAll(resp.Body)
	require.NoError(e.t, err)
	if len(data) > 0 {
		require.NoError(e.t, json.Unmarshal(data, &out), string(data))
	}
	return resp, out
}

func (e *testEnv) download(productID uint) (*http.Response, map[string]any) {
	return e.do("POST", fmt.Sprintf("/api/v1/downloads/%d", productID), "", true, nil)
}

// signatureHeaders signs a notification the way the gateway does.
func signatureHeaders(dataID, requestID string) map[string]string {
	ts := "1767225600"
	manifest := fmt.Sprintf("request-id:%s;ts:%s;", requestID, ts)
	if dataID != "" {
		manifest = fmt.Sprintf("id:%s;", strings.ToLower(dataID)) + manifest
	}
	mac := hmac.New(sha256.New, []byte(testWebhookSecret))
	mac.Write([]byte(manifest))
	return map[string]string{
		"X-Signature":  fmt.Sprintf("ts=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil))),
		"X-Request-Id": requestID,
	}
}

// signedWebhook builds a payment notification with a valid x-signature.
func signedWebhook(paymentID, requestID string) (path, body string, headers map[string]string) {
	path = "/api/v1/webhooks/mercadopago?type=payment&data.id=" + paymentID
	body = fmt.Sprintf(`{"id":"evt-%s","type":"payment","action":"payment.updated","data":{"id":"%s"}}`, requestID, paymentID)
	return path, body, signatureHeaders(paymentID, requestID)
}
