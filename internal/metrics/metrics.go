// Package metrics holds the Prometheus collectors for folio's domain
// operations. HTTP request metrics are recorded through OpenTelemetry in
// internal/http.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for folio.
type Metrics struct {
	ResumeSavesTotal   *prometheus.CounterVec
	ResumeDeletesTotal prometheus.Counter
	QuotaDenialsTotal  *prometheus.CounterVec
	PhotoBytesTotal    prometheus.Counter

	WebhookEventsTotal *prometheus.CounterVec

	AIRequestsTotal  *prometheus.CounterVec
	AIRequestSeconds *prometheus.HistogramVec

	AutosaveTotal *prometheus.CounterVec
}

// New returns the process-wide metrics, registering them on first use.
//
// Metrics:
//   - folio_resume_saves_total{op} - saves by "create" or "update"
//   - folio_resume_deletes_total - resumes deleted
//   - folio_quota_denials_total{reason} - tier denials ("resume_count", "customization", "ai_tools")
//   - folio_photo_upload_bytes_total - bytes uploaded to photo storage
//   - folio_webhook_events_total{type,outcome} - billing webhook deliveries
//   - folio_ai_requests_total{kind,outcome} - AI generation calls
//   - folio_ai_request_duration_seconds{kind} - AI generation latency
//   - folio_autosave_total{outcome} - reconciler persist attempts
func New() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			ResumeSavesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "folio_resume_saves_total",
					Help: "Total number of resume saves",
				},
				[]string{"op"},
			),
			ResumeDeletesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "folio_resume_deletes_total",
				Help: "Total number of resumes deleted",
			}),
			QuotaDenialsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "folio_quota_denials_total",
					Help: "Total number of requests denied by subscription tier",
				},
				[]string{"reason"},
			),
			PhotoBytesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "folio_photo_upload_bytes_total",
				Help: "Total bytes uploaded to photo storage",
			}),
			WebhookEventsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "folio_webhook_events_total",
					Help: "Total number of billing webhook events received",
				},
				[]string{"type", "outcome"},
			),
			AIRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "folio_ai_requests_total",
					Help: "Total number of AI generation requests",
				},
				[]string{"kind", "outcome"},
			),
			AIRequestSeconds: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "folio_ai_request_duration_seconds",
					Help:    "Duration of AI generation requests in seconds",
					Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
				},
				[]string{"kind"},
			),
			AutosaveTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "folio_autosave_total",
					Help: "Total number of autosave persist attempts",
				},
				[]string{"outcome"},
			),
		}
	})
	return globalMetrics
}

// Outcome returns "ok" or "error" for a label value.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
