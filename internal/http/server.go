// Package http provides the folio HTTP API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gocloud.dev/blob"

	"github.com/fyrsmithlabs/folio/internal/apperr"
	"github.com/fyrsmithlabs/folio/internal/auth"
	"github.com/fyrsmithlabs/folio/internal/billing"
	"github.com/fyrsmithlabs/folio/internal/generate"
	"github.com/fyrsmithlabs/folio/internal/logging"
	"github.com/fyrsmithlabs/folio/internal/resume"
	"github.com/fyrsmithlabs/folio/internal/subscription"
)

// MaxWebhookBody caps billing webhook payloads.
const MaxWebhookBody = 1 << 20

// ResumeService persists resumes.
type ResumeService interface {
	Save(ctx context.Context, userID string, tier subscription.Tier, snap resume.Snapshot) (*resume.Record, error)
	Get(ctx context.Context, userID, id string) (*resume.Record, error)
	List(ctx context.Context, userID string, limit, offset int) (*resume.ListResult, error)
	Delete(ctx context.Context, userID, id string) error
}

// BillingService handles billing.
type BillingService interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	Checkout(ctx context.Context, userID, email, priceID string) (string, error)
	Portal(ctx context.Context, userID string) (string, error)
	Overview(ctx context.Context, userID string) (*billing.Overview, error)
}

// Generator drafts resume content.
type Generator interface {
	GenerateSummary(ctx context.Context, tier subscription.Tier, in generate.SummaryInput) (string, error)
	GenerateWorkExperience(ctx context.Context, tier subscription.Tier, description string) (resume.WorkExperience, error)
}

// TierResolver computes a user's subscription tier.
type TierResolver interface {
	Resolve(ctx context.Context, userID string) (subscription.Tier, error)
}

// EventSource streams a user's domain events.
type EventSource interface {
	SubscribeUser(userID string, ch chan *nats.Msg) (*nats.Subscription, error)
	EventName(subject string) string
}

// PhotoSource reads stored photos.
type PhotoSource interface {
	Reader(ctx context.Context, key string) (*blob.Reader, error)
}

// Deps are the services behind the API. Generator, Events and Photos are
// optional; their routes answer 503 when unset.
type Deps struct {
	Resumes   ResumeService
	Billing   BillingService
	Generator Generator
	Tiers     TierResolver
	Verifier  *auth.Verifier
	Events    EventSource
	Photos    PhotoSource
	// Ready reports dependency health for /health.
	Ready func(ctx context.Context) error
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// WebhookRate and WebhookBurst limit webhook calls per client IP.
	WebhookRate  float64
	WebhookBurst int
	// Heartbeat is the event stream keep-alive interval.
	Heartbeat time.Duration
}

// Server provides HTTP endpoints for folio.
type Server struct {
	echo     *echo.Echo
	deps     Deps
	logger   *logging.Logger
	config   *Config
	limiters *ipLimiters
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *logging.Logger, cfg *Config) (*Server, error) {
	if deps.Resumes == nil || deps.Billing == nil || deps.Tiers == nil {
		return nil, errors.New("resume, billing and tier services are required")
	}
	if deps.Verifier == nil {
		return nil, errors.New("token verifier is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8080}
	}
	if cfg.WebhookRate <= 0 {
		cfg.WebhookRate = 1
	}
	if cfg.WebhookBurst <= 0 {
		cfg.WebhookBurst = 10
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		deps:     deps,
		logger:   logger,
		config:   cfg,
		limiters: newIPLimiters(cfg.WebhookRate, cfg.WebhookBurst),
	}
	e.HTTPErrorHandler = s.handleError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/blobs/*", s.handlePhoto)
	s.echo.POST("/webhooks/stripe", s.handleStripeWebhook, s.rateLimit())

	v1 := s.echo.Group("/api/v1", auth.Middleware(s.deps.Verifier), s.tierMiddleware())
	v1.GET("/resumes", s.handleListResumes)
	v1.GET("/resumes/:id", s.handleGetResume)
	v1.PUT("/resumes", s.handleSaveResume, middleware.BodyLimit("8M"))
	v1.DELETE("/resumes/:id", s.handleDeleteResume)

	v1.POST("/ai/summary", s.handleGenerateSummary)
	v1.POST("/ai/work-experience", s.handleGenerateWorkExperience)

	v1.GET("/billing", s.handleBillingOverview)
	v1.POST("/billing/checkout", s.handleCheckout)
	v1.POST("/billing/portal", s.handlePortal)

	v1.GET("/events", s.handleEvents)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}

// ErrorBody is the error response envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Issues  []apperr.Issue `json:"issues,omitempty"`
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var (
		status int
		body   ErrorBody
		he     *echo.HTTPError
	)
	switch {
	case errors.As(err, &he):
		status = he.Code
		body.Error = ErrorDetail{Kind: kindForStatus(status), Message: fmt.Sprint(he.Message)}
	default:
		status = apperr.HTTPStatus(err)
		body.Error = ErrorDetail{
			Kind:    apperr.KindName(err),
			Message: apperr.PublicMessage(err),
			Issues:  apperr.IssuesOf(err),
		}
	}

	ctx := c.Request().Context()
	if status >= http.StatusInternalServerError {
		s.logger.Error(ctx, "request failed", zap.Int("status", status), zap.Error(err))
	} else {
		s.logger.Debug(ctx, "request rejected", zap.Int("status", status), zap.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		s.logger.Warn(ctx, "writing error response failed", zap.Error(err))
	}
}

func kindForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable:
		return "unavailable"
	}
	if status < http.StatusInternalServerError {
		return "bad_request"
	}
	return "internal"
}
