package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AssetVault/internal/pkg/delivery"
	"github.com/ManuelReschke/AssetVault/internal/pkg/entitlements"
	"github.com/ManuelReschke/AssetVault/internal/pkg/usercontext"
)

const downloadRequestTimeout = 3 * time.Second

// DownloadCounter records product popularity. Failures never affect a grant.
type DownloadCounter interface {
	AddProductDownload(ctx context.Context, productID uint) error
}

// DownloadController serves entitlement-checked downloads and usage counters.
type DownloadController struct {
	grants  *entitlements.Service
	signer  delivery.Signer
	counter DownloadCounter
}

func NewDownloadController(grants *entitlements.Service, signer delivery.Signer, counter DownloadCounter) *DownloadController {
	return &DownloadController{grants: grants, signer: signer, counter: counter}
}

// HandleDownload consumes a download unit for a product and returns a signed link.
func (dc *DownloadController) HandleDownload(c *fiber.Ctx) error {
	accountID := usercontext.GetAccountID(c)
	if accountID == 0 {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}
	productID, ok := parseUintParam(c, "productId")
	if !ok {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid product id")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), downloadRequestTimeout)
	defer cancel()

	decision, err := dc.grants.CheckAndGrant(ctx, entitlements.Request{
		AccountID: accountID,
		ProductID: productID,
		IPAddress: GetClientIP(c),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	})
	if err != nil {
		switch {
		case errors.Is(err, entitlements.ErrProductNotFound):
			return jsonError(c, fiber.StatusNotFound, "not_found", entitlements.ReasonProductNotFound)
		case errors.Is(err, entitlements.ErrIntegrity):
			log.Errorf("[Download] account=%d product=%d: %v", accountID, productID, err)
			return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", entitlements.ReasonUnavailable)
		default:
			log.Warnf("[Download] account=%d product=%d: %v", accountID, productID, err)
			return jsonError(c, fiber.StatusServiceUnavailable, "service_unavailable", entitlements.ReasonUnavailable)
		}
	}
	if !decision.Granted {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":             "forbidden",
			"message":           decision.Reason,
			"remaining_daily":   decision.RemainingDaily,
			"remaining_monthly": decision.RemainingMonthly,
		})
	}

	// The unit is already consumed here; a retry is a free repeat download.
	link, err := dc.signer.SignDownload(ctx, decision.Product)
	if err != nil {
		log.Errorf("[Download] Signing product %d failed: %v", productID, err)
		return jsonError(c, fiber.StatusServiceUnavailable, "service_unavailable", "Download link unavailable, please retry")
	}

	if dc.counter != nil && !decision.RepeatDownload {
		if err := dc.counter.AddProductDownload(ctx, productID); err != nil {
			log.Warnf("[Download] Counter for product %d not updated: %v", productID, err)
		}
	}

	return c.JSON(fiber.Map{
		"downloadUrl":       link.URL,
		"fileName":          link.FileName,
		"expires_at":        formatTime(link.ExpiresAt),
		"repeat_download":   decision.RepeatDownload,
		"remaining_daily":   decision.RemainingDaily,
		"remaining_monthly": decision.RemainingMonthly,
	})
}

// HandleUsage reports the caller's counters without consuming anything.
func (dc *DownloadController) HandleUsage(c *fiber.Ctx) error {
	accountID := usercontext.GetAccountID(c)
	if accountID == 0 {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), downloadRequestTimeout)
	defer cancel()

	usage, err := dc.grants.Usage(ctx, accountID)
	if err != nil {
		log.Warnf("[Download] Usage for account %d failed: %v", accountID, err)
		return jsonError(c, fiber.StatusServiceUnavailable, "service_unavailable", entitlements.ReasonUnavailable)
	}
	return c.JSON(usage)
}

func formatTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
