package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/facebookgo/clock"

	"github.com/fyrsmithlabs/folio/internal/apperr"
)

// Record is the locally stored subscription of a user, synced from billing
// webhooks.
type Record struct {
	UserID            string
	CustomerID        string
	SubscriptionID    string
	PriceID           string
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Repository reads subscription records.
// SubscriptionByUser returns an error matching apperr.ErrNotFound when the
// user has none.
type Repository interface {
	SubscriptionByUser(ctx context.Context, userID string) (*Record, error)
}

// Prices maps billing price ids to tiers.
type Prices struct {
	ProMonthly     string
	ProPlusMonthly string
}

// TierFor maps a price id to its tier.
func (p Prices) TierFor(priceID string) (Tier, error) {
	switch {
	case priceID == "":
		return "", errors.New("empty price id")
	case priceID == p.ProMonthly:
		return Pro, nil
	case priceID == p.ProPlusMonthly:
		return ProPlus, nil
	default:
		return "", fmt.Errorf("invalid subscription: unknown price %q", priceID)
	}
}

// Resolver computes tiers from stored subscriptions.
type Resolver struct {
	repo   Repository
	prices Prices
	clock  clock.Clock
}

// NewResolver creates a Resolver. A nil clk uses the wall clock.
func NewResolver(repo Repository, prices Prices, clk clock.Clock) *Resolver {
	if clk == nil {
		clk = clock.New()
	}
	return &Resolver{repo: repo, prices: prices, clock: clk}
}

// Resolve returns the tier of userID. A missing subscription or one whose
// period has ended is free. A stored price that maps to no tier is an error.
func (r *Resolver) Resolve(ctx context.Context, userID string) (Tier, error) {
	rec, err := r.repo.SubscriptionByUser(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return Free, nil
	}
	if err != nil {
		return "", apperr.Upstream("subscription.resolve", err)
	}
	if rec.CurrentPeriodEnd.Before(r.clock.Now()) {
		return Free, nil
	}
	tier, err := r.prices.TierFor(rec.PriceID)
	if err != nil {
		return "", apperr.Upstream("subscription.resolve", err)
	}
	return tier, nil
}

type tierCtxKey struct{}

// WithTier stores the request's resolved tier in ctx.
func WithTier(ctx context.Context, t Tier) context.Context {
	return context.WithValue(ctx, tierCtxKey{}, t)
}

// TierFromContext returns the tier stored by WithTier, or Free if none was
// stored.
func TierFromContext(ctx context.Context) Tier {
	if t, ok := ctx.Value(tierCtxKey{}).(Tier); ok {
		return t
	}
	return Free
}
