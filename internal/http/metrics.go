package http

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/folio/internal/logging"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/folio/internal/http"

// HTTPMetrics holds all HTTP-related metrics.
type HTTPMetrics struct {
	meter          metric.Meter
	logger         *logging.Logger
	requestsTotal  metric.Int64Counter
	requestDur     metric.Float64Histogram
	responseSize   metric.Int64Histogram
	activeRequests metric.Int64UpDownCounter
}

// NewHTTPMetrics creates HTTPMetrics on the global meter provider.
func NewHTTPMetrics(logger *logging.Logger) *HTTPMetrics {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &HTTPMetrics{
		meter:  otel.Meter(httpInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *HTTPMetrics) init() {
	ctx := context.Background()
	var err error

	m.requestsTotal, err = m.meter.Int64Counter(
		"folio.http.requests_total",
		metric.WithDescription("Total HTTP requests labeled by method, route and status code."),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn(ctx, "failed to create requests counter", zap.Error(err))
	}

	m.requestDur, err = m.meter.Float64Histogram(
		"folio.http.request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds, labeled by method, route and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		m.logger.Warn(ctx, "failed to create duration histogram", zap.Error(err))
	}

	m.responseSize, err = m.meter.Int64Histogram(
		"folio.http.response_size_bytes",
		metric.WithDescription("HTTP response body size in bytes."),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(100, 500, 1000, 5000, 10000, 50000, 100000, 500000),
	)
	if err != nil {
		m.logger.Warn(ctx, "failed to create response size histogram", zap.Error(err))
	}

	m.activeRequests, err = m.meter.Int64UpDownCounter(
		"folio.http.active_requests",
		metric.WithDescription("Number of currently active HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn(ctx, "failed to create active requests gauge", zap.Error(err))
	}
}

// MetricsMiddleware returns an Echo middleware that records HTTP metrics.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := req.Context()

			if m.activeRequests != nil {
				m.activeRequests.Add(ctx, 1)
			}

			err := next(c)
			if err != nil {
				// Render now so the recorded status is the one sent.
				c.Error(err)
			}

			attrs := metric.WithAttributes(
				attribute.String("method", req.Method),
				attribute.String("endpoint", normalizePath(c.Path())),
				attribute.Int("status", c.Response().Status),
			)
			if m.requestsTotal != nil {
				m.requestsTotal.Add(ctx, 1, attrs)
			}
			if m.requestDur != nil {
				m.requestDur.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			if m.responseSize != nil {
				m.responseSize.Record(ctx, c.Response().Size, attrs)
			}
			if m.activeRequests != nil {
				m.activeRequests.Add(ctx, -1)
			}
			return nil
		}
	}
}

// normalizePath returns the matched route template, such as
// /api/v1/resumes/:id, so resume ids never become label values.
func normalizePath(path string) string {
	if path == "" {
		return "unmatched"
	}
	return path
}
