// Package billing keeps local subscription records in sync with the payment
// provider and opens checkout and portal sessions for users.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/folio/internal/apperr"
	"github.com/fyrsmithlabs/folio/internal/events"
	"github.com/fyrsmithlabs/folio/internal/logging"
	"github.com/fyrsmithlabs/folio/internal/metrics"
	"github.com/fyrsmithlabs/folio/internal/subscription"
)

const instrumentationName = "github.com/fyrsmithlabs/folio/internal/billing"

// SubjectSubscriptionChanged is published when a user's subscription row changes.
const SubjectSubscriptionChanged = "subscription.changed"

// ErrSignature is returned for webhook payloads that fail verification.
var ErrSignature = errors.New("billing: invalid webhook signature")

// Webhook event types handled by HandleWebhook.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// Subscription is the provider's view of a subscription.
type Subscription struct {
	ID                string
	CustomerID        string
	UserID            string // from metadata.userId
	Status            string
	PriceID           string
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
}

// Active reports whether the subscription grants its tier.
func (s *Subscription) Active() bool {
	return s.Status == string(stripe.SubscriptionStatusActive) ||
		s.Status == string(stripe.SubscriptionStatusTrialing)
}

// CheckoutParams describes a checkout session to open.
type CheckoutParams struct {
	UserID     string
	Email      string
	CustomerID string // empty for first-time buyers
	PriceID    string
	SuccessURL string
	CancelURL  string
	TermsURL   string
}

// Provider is the payment provider API used by Service.
type Provider interface {
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	PlanName(ctx context.Context, priceID string) (string, error)
}

// Store persists customers and subscriptions.
type Store interface {
	subscription.Repository
	UpsertSubscription(ctx context.Context, rec subscription.Record) error
	DeleteSubscriptionByCustomer(ctx context.Context, customerID string) (int64, error)
	SetCustomer(ctx context.Context, userID, customerID string) error
	CustomerByUser(ctx context.Context, userID string) (string, error)
}

// Publisher publishes domain events.
type Publisher interface {
	Publish(ctx context.Context, subject string, v any) error
}

// ChangeEvent is the payload of SubjectSubscriptionChanged.
type ChangeEvent struct {
	UserID  string    `json:"userId"`
	PriceID string    `json:"priceId,omitempty"`
	Active  bool      `json:"active"`
	At      time.Time `json:"at"`
}

// Overview is what the billing page shows.
type Overview struct {
	Tier              subscription.Tier `json:"tier"`
	Plan              string            `json:"plan"`
	PriceID           string            `json:"priceId,omitempty"`
	CurrentPeriodEnd  *time.Time        `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd bool              `json:"cancelAtPeriodEnd"`
	CanManage         bool              `json:"canManage"`
}

// Config holds the Service settings.
type Config struct {
	WebhookSecret string
	Prices        subscription.Prices
	// BaseURL is the public web app URL redirects return to.
	BaseURL string
}

// Service handles billing webhooks and sessions.
type Service struct {
	cfg       Config
	provider  Provider
	store     Store
	resolver  *subscription.Resolver
	publisher Publisher
	clock     clock.Clock
	logger    *logging.Logger
	metrics   *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the event publisher.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock sets the clock.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service.
func NewService(cfg Config, provider Provider, store Store, opts ...Option) *Service {
	s := &Service{
		cfg:      cfg,
		provider: provider,
		store:    store,
		clock:    clock.New(),
		logger:   logging.NewNop(),
		metrics:  metrics.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.resolver = subscription.NewResolver(store, cfg.Prices, s.clock)
	return s
}

// HandleWebhook verifies and applies one provider event. Unknown event
// types are acknowledged without effect. A returned error other than
// ErrSignature means the provider should redeliver.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	tracer := otel.Tracer(instrumentationName)
	ctx, span := tracer.Start(ctx, "billing.HandleWebhook")
	defer span.End()

	ev, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		s.metrics.WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		s.logger.Warn(ctx, "invalid webhook signature", zap.Error(err))
		span.SetStatus(codes.Error, "invalid signature")
		return fmt.Errorf("%w: %v", ErrSignature, err)
	}

	typ := string(ev.Type)
	span.SetAttributes(attribute.String("billing.event_type", typ), attribute.String("billing.event_id", ev.ID))

	switch typ {
	case EventCheckoutCompleted:
		err = s.checkoutCompleted(ctx, ev.Data.Raw)
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		err = s.subscriptionChanged(ctx, ev.Data.Raw)
	case EventSubscriptionDeleted:
		err = s.subscriptionDeleted(ctx, ev.Data.Raw)
	default:
		s.metrics.WebhookEventsTotal.WithLabelValues(typ, "ignored").Inc()
		s.logger.Info(ctx, "unsupported webhook event type", zap.String("type", typ))
		return nil
	}

	s.metrics.WebhookEventsTotal.WithLabelValues(typ, metrics.Outcome(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error(ctx, "webhook event failed", zap.String("type", typ), zap.String("event_id", ev.ID), zap.Error(err))
		return err
	}
	s.logger.Info(ctx, "webhook event applied", zap.String("type", typ), zap.String("event_id", ev.ID))
	return nil
}

func (s *Service) checkoutCompleted(ctx context.Context, raw json.RawMessage) error {
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(raw, &cs); err != nil {
		return fmt.Errorf("decode checkout session: %w", err)
	}
	userID := cs.Metadata["userId"]
	if userID == "" {
		return errors.New("checkout session has no userId metadata")
	}
	if cs.Customer == nil || cs.Customer.ID == "" {
		return errors.New("checkout session has no customer")
	}
	if err := s.store.SetCustomer(ctx, userID, cs.Customer.ID); err != nil {
		return apperr.Upstream("billing.checkout_completed", err)
	}
	return nil
}

func (s *Service) subscriptionChanged(ctx context.Context, raw json.RawMessage) error {
	var ref stripe.Subscription
	if err := json.Unmarshal(raw, &ref); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}

	// The event body may be stale; the provider's current state wins.
	sub, err := s.provider.GetSubscription(ctx, ref.ID)
	if err != nil {
		return apperr.Upstream("billing.get_subscription", err)
	}

	if !sub.Active() {
		if _, err := s.store.DeleteSubscriptionByCustomer(ctx, sub.CustomerID); err != nil {
			return apperr.Upstream("billing.subscription_changed", err)
		}
		s.publish(ctx, ChangeEvent{UserID: sub.UserID, Active: false})
		return nil
	}

	if sub.UserID == "" {
		return fmt.Errorf("subscription %s has no userId metadata", sub.ID)
	}
	rec := subscription.Record{
		UserID:            sub.UserID,
		CustomerID:        sub.CustomerID,
		SubscriptionID:    sub.ID,
		PriceID:           sub.PriceID,
		CurrentPeriodEnd:  sub.CurrentPeriodEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if err := s.store.UpsertSubscription(ctx, rec); err != nil {
		return apperr.Upstream("billing.subscription_changed", err)
	}
	s.publish(ctx, ChangeEvent{UserID: sub.UserID, PriceID: sub.PriceID, Active: true})
	return nil
}

func (s *Service) subscriptionDeleted(ctx context.Context, raw json.RawMessage) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}
	if sub.Customer == nil || sub.Customer.ID == "" {
		return errors.New("subscription has no customer")
	}
	n, err := s.store.DeleteSubscriptionByCustomer(ctx, sub.Customer.ID)
	if err != nil {
		return apperr.Upstream("billing.subscription_deleted", err)
	}
	if n == 0 {
		s.logger.Info(ctx, "no subscription stored for customer", zap.String("customer_id", sub.Customer.ID))
		return nil
	}
	s.publish(ctx, ChangeEvent{UserID: sub.Metadata["userId"], Active: false})
	return nil
}

func (s *Service) publish(ctx context.Context, ev ChangeEvent) {
	if s.publisher == nil || ev.UserID == "" {
		return
	}
	ev.At = s.clock.Now().UTC()
	if err := s.publisher.Publish(ctx, events.UserSubject(ev.UserID, SubjectSubscriptionChanged), ev); err != nil {
		s.logger.Warn(ctx, "publish subscription event failed", zap.Error(err))
	}
}

// Checkout opens a subscription checkout session and returns its URL.
func (s *Service) Checkout(ctx context.Context, userID, email, priceID string) (string, error) {
	if userID == "" {
		return "", apperr.Unauthorized("billing.checkout")
	}
	if _, err := s.cfg.Prices.TierFor(priceID); err != nil {
		return "", apperr.Validation("billing.checkout", apperr.Issue{Field: "priceId", Message: "unknown price"})
	}

	customerID, err := s.store.CustomerByUser(ctx, userID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return "", apperr.Upstream("billing.checkout", err)
	}

	url, err := s.provider.CreateCheckoutSession(ctx, CheckoutParams{
		UserID:     userID,
		Email:      email,
		CustomerID: customerID,
		PriceID:    priceID,
		SuccessURL: s.cfg.BaseURL + "/billing/success",
		CancelURL:  s.cfg.BaseURL + "/billing",
		TermsURL:   s.cfg.BaseURL + "/tos",
	})
	if err != nil {
		return "", apperr.Upstream("billing.checkout", err)
	}
	if url == "" {
		return "", apperr.Upstream("billing.checkout", errors.New("checkout session has no url"))
	}
	return url, nil
}

// Portal opens a billing management session and returns its URL.
func (s *Service) Portal(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", apperr.Unauthorized("billing.portal")
	}
	customerID, err := s.store.CustomerByUser(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return "", err
	}
	if err != nil {
		return "", apperr.Upstream("billing.portal", err)
	}
	url, err := s.provider.CreatePortalSession(ctx, customerID, s.cfg.BaseURL+"/billing")
	if err != nil {
		return "", apperr.Upstream("billing.portal", err)
	}
	return url, nil
}

// Overview reports the caller's plan.
func (s *Service) Overview(ctx context.Context, userID string) (*Overview, error) {
	if userID == "" {
		return nil, apperr.Unauthorized("billing.overview")
	}
	tier, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	ov := &Overview{Tier: tier, Plan: "Free"}

	rec, err := s.store.SubscriptionByUser(ctx, userID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return ov, nil
	case err != nil:
		return nil, apperr.Upstream("billing.overview", err)
	}

	ov.PriceID = rec.PriceID
	ov.CancelAtPeriodEnd = rec.CancelAtPeriodEnd
	ov.CanManage = true
	end := rec.CurrentPeriodEnd
	ov.CurrentPeriodEnd = &end

	name, err := s.provider.PlanName(ctx, rec.PriceID)
	if err != nil || name == "" {
		s.logger.Warn(ctx, "plan name lookup failed", zap.String("price_id", rec.PriceID), zap.Error(err))
		name = string(tier)
	}
	ov.Plan = name
	return ov, nil
}
