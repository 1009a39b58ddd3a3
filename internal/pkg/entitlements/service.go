// Package entitlements decides whether an account may download a product and
// records the grant in the download ledger.
package entitlements

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/AssetVault/app/models"
	"github.com/ManuelReschke/AssetVault/internal/pkg/keylock"
)

// Service admits downloads against the account's plan caps.
type Service struct {
	repo         Repository
	locks        keylock.Locker
	nowFn        func() time.Time
	loc          *time.Location
	lockTTL      time.Duration
	repeatIsFree bool
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(nowFn func() time.Time) Option {
	return func(s *Service) { s.nowFn = nowFn }
}

// WithLocation sets the calendar used for the daily and monthly windows.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithLocker sets the per-account lock backend.
func WithLocker(l keylock.Locker) Option {
	return func(s *Service) {
		if l != nil {
			s.locks = l
		}
	}
}

// WithRepeatDownloads toggles the "downloaded once, always available" rule.
func WithRepeatDownloads(free bool) Option {
	return func(s *Service) { s.repeatIsFree = free }
}

// NewService creates an entitlements service from an injected repository.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		locks:        keylock.NewMemoryManager(),
		nowFn:        time.Now,
		loc:          time.Local,
		lockTTL:      keylock.DefaultTTL,
		repeatIsFree: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB creates an entitlements service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, opts ...Option) *Service {
	return NewService(NewRepository(db), opts...)
}

// CheckAndGrant decides whether req may proceed and, for a first download of
// the product, appends one ledger row. Policy denials come back as a Decision
// with a nil error; a non-nil error always comes with Granted=false.
func (s *Service) CheckAndGrant(ctx context.Context, req Request) (Decision, error) {
	if req.AccountID == 0 || req.ProductID == 0 {
		return Decision{Reason: ReasonNoAccess}, errors.New("account_id and product_id are required")
	}
	now := s.nowFn()

	sub, decision, err := s.resolveSubscription(ctx, req.AccountID, now)
	if sub == nil {
		return decision, err
	}
	product, decision, err := s.resolveProduct(ctx, req.AccountID, req.ProductID, now)
	if product == nil {
		return decision, err
	}

	plan := sub.Plan
	day := dayWindow(now, s.loc)
	month := monthWindow(now, s.loc)
	out := Decision{Product: product, Subscription: sub}

	// Repeat downloads are judged against the ledger as it was when the request
	// arrived. Two concurrent first downloads of the same product therefore
	// both compete for a counter slot below.
	if s.repeatIsFree {
		seen, err := s.repo.Ledger(ctx).HasDownloaded(req.AccountID, req.ProductID)
		if err != nil {
			return Decision{Reason: ReasonUnavailable}, fmt.Errorf("%w: repeat download lookup: %v", ErrUnavailable, err)
		}
		if seen {
			return s.repeatDecision(ctx, out, req.AccountID, day, month)
		}
	}

	unlock, err := s.locks.Lock(ctx, fmt.Sprintf("download:account:%d", req.AccountID), s.lockTTL)
	if err != nil {
		return Decision{Reason: ReasonUnavailable}, fmt.Errorf("%w: account lock: %v", ErrUnavailable, err)
	}
	defer unlock()

	err = s.repo.WithAccountLock(ctx, req.AccountID, func(l Ledger) error {
		dailyCount, err := l.Count(req.AccountID, day)
		if err != nil {
			return err
		}
		monthlyCount, err := l.Count(req.AccountID, month)
		if err != nil {
			return err
		}

		if !withinCap(plan.DailyDownloadCap, dailyCount) || !withinCap(plan.MonthlyDownloadCap, monthlyCount) {
			out.Reason = ReasonLimitReached
			out.RemainingDaily = remaining(plan.DailyDownloadCap, dailyCount)
			out.RemainingMonthly = remaining(plan.MonthlyDownloadCap, monthlyCount)
			return nil
		}

		entry := &models.DownloadLedgerEntry{
			AccountID: req.AccountID,
			ProductID: req.ProductID,
			AssetType: truncate(product.AssetType, maxAssetTypeLen),
			IPAddress: truncate(req.IPAddress, maxIPAddressLen),
			UserAgent: truncate(req.UserAgent, maxUserAgentLen),
			CreatedAt: now.UTC(),
		}
		if err := l.Append(entry); err != nil {
			return fmt.Errorf("append ledger entry: %w", err)
		}
		out.Granted = true
		out.RemainingDaily = remaining(plan.DailyDownloadCap, dailyCount+1)
		out.RemainingMonthly = remaining(plan.MonthlyDownloadCap, monthlyCount+1)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Decision{Reason: ReasonUnavailable}, fmt.Errorf("%w: %w", ErrIntegrity, err)
		}
		log.Errorf("[Entitlements] Grant for account %d product %d failed: %v", req.AccountID, req.ProductID, err)
		return Decision{Reason: ReasonUnavailable}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if !out.Granted {
		log.Infof("[Entitlements] Limit reached account=%d product=%d", req.AccountID, req.ProductID)
	}
	return out, nil
}

// repeatDecision grants a product the account already downloaded. Nothing is
// written and no counter slot is consumed.
func (s *Service) repeatDecision(ctx context.Context, out Decision, accountID uint, day, month window) (Decision, error) {
	l := s.repo.Ledger(ctx)
	dailyCount, err := l.Count(accountID, day)
	if err != nil {
		return Decision{Reason: ReasonUnavailable}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	monthlyCount, err := l.Count(accountID, month)
	if err != nil {
		return Decision{Reason: ReasonUnavailable}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	plan := out.Subscription.Plan
	out.Granted = true
	out.RepeatDownload = true
	out.RemainingDaily = remaining(plan.DailyDownloadCap, dailyCount)
	out.RemainingMonthly = remaining(plan.MonthlyDownloadCap, monthlyCount)
	log.Debugf("[Entitlements] Repeat download account=%d product=%d", accountID, out.Product.ID)
	return out, nil
}

// Usage reports current counters without consuming anything.
func (s *Service) Usage(ctx context.Context, accountID uint) (Usage, error) {
	now := s.nowFn()
	day := dayWindow(now, s.loc)
	month := monthWindow(now, s.loc)
	u := Usage{DailyResetAt: day.End, MonthlyResetAt: month.End}

	sub, _, err := s.resolveSubscription(ctx, accountID, now)
	if sub == nil {
		return u, err
	}

	l := s.repo.Ledger(ctx)
	if u.DailyUsed, err = l.Count(accountID, day); err != nil {
		return u, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if u.MonthlyUsed, err = l.Count(accountID, month); err != nil {
		return u, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	u.Active = true
	u.PlanSlug = sub.Plan.Slug
	u.PeriodEnd = *sub.CurrentPeriodEnd
	u.RemainingDaily = remaining(sub.Plan.DailyDownloadCap, u.DailyUsed)
	u.RemainingMonthly = remaining(sub.Plan.MonthlyDownloadCap, u.MonthlyUsed)
	return u, nil
}

// resolveSubscription returns the active grant, or a nil subscription with the
// denial to return. A missing subscription is a denial, not an error.
func (s *Service) resolveSubscription(ctx context.Context, accountID uint, now time.Time) (*models.Subscription, Decision, error) {
	sub, err := s.repo.FindActiveSubscription(ctx, accountID, now)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Decision{Reason: ReasonNoSubscription}, nil
		}
		return nil, Decision{Reason: ReasonUnavailable}, fmt.Errorf("%w: resolve subscription: %v", ErrUnavailable, err)
	}
	if sub.Plan == nil {
		return nil, Decision{Reason: ReasonUnavailable}, fmt.Errorf("%w: subscription %d references missing plan %d", ErrIntegrity, sub.ID, sub.PlanID)
	}
	return sub, Decision{}, nil
}

func (s *Service) resolveProduct(ctx context.Context, accountID, productID uint, now time.Time) (*models.Product, Decision, error) {
	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Decision{Reason: ReasonProductNotFound}, ErrProductNotFound
		}
		return nil, Decision{Reason: ReasonUnavailable}, fmt.Errorf("%w: resolve product: %v", ErrUnavailable, err)
	}
	if product.IsPublic {
		return product, Decision{}, nil
	}

	grant, err := s.repo.FindProductEntitlement(ctx, accountID, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, Decision{Reason: ReasonNoAccess}, nil
		}
		return nil, Decision{Reason: ReasonUnavailable}, fmt.Errorf("%w: resolve product entitlement: %v", ErrUnavailable, err)
	}
	if !grant.IsValid(now) {
		return nil, Decision{Reason: ReasonNoAccess}, nil
	}
	return product, Decision{}, nil
}

// Column widths of the download ledger.
const (
	maxAssetTypeLen = 32
	maxIPAddressLen = 45
	maxUserAgentLen = 255
)

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
