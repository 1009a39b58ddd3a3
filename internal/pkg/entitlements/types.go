package entitlements

import (
	"errors"
	"time"

	"github.com/ManuelReschke/AssetVault/app/models"
)

// Denial reasons surfaced to clients verbatim.
const (
	ReasonNoSubscription  = "no active subscription"
	ReasonNoAccess        = "no access to product"
	ReasonLimitReached    = "daily or monthly limit reached"
	ReasonProductNotFound = "product not found"
	ReasonUnavailable     = "entitlement check unavailable"
)

var (
	// ErrProductNotFound is returned when the requested product does not exist.
	ErrProductNotFound = errors.New("entitlements: product not found")
	// ErrAccountNotFound is returned when the account row to lock does not exist.
	ErrAccountNotFound = errors.New("entitlements: account not found")
	// ErrUnavailable wraps persistence and lock failures. It is never turned
	// into a grant.
	ErrUnavailable = errors.New("entitlements: dependency unavailable")
	// ErrIntegrity marks records that reference missing data, such as a
	// subscription whose plan row is gone.
	ErrIntegrity = errors.New("entitlements: data integrity violation")
)

// Request identifies one download attempt.
type Request struct {
	AccountID uint
	ProductID uint
	IPAddress string
	UserAgent string
}

// Decision is the outcome of CheckAndGrant. Remaining counters are nil when the
// plan has no cap for that window.
type Decision struct {
	Granted          bool                 `json:"granted"`
	Reason           string               `json:"reason,omitempty"`
	RepeatDownload   bool                 `json:"repeat_download"`
	RemainingDaily   *int                 `json:"remaining_daily"`
	RemainingMonthly *int                 `json:"remaining_monthly"`
	Product          *models.Product      `json:"-"`
	Subscription     *models.Subscription `json:"-"`
}

// Usage is a read-only snapshot of an account's counters.
type Usage struct {
	Active           bool      `json:"active"`
	PlanSlug         string    `json:"plan_slug,omitempty"`
	PeriodEnd        time.Time `json:"period_end,omitempty"`
	DailyUsed        int64     `json:"daily_used"`
	MonthlyUsed      int64     `json:"monthly_used"`
	RemainingDaily   *int      `json:"remaining_daily"`
	RemainingMonthly *int      `json:"remaining_monthly"`
	DailyResetAt     time.Time `json:"daily_reset_at"`
	MonthlyResetAt   time.Time `json:"monthly_reset_at"`
}
