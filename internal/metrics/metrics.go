package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for subscription attempts.
const (
	OutcomeCreated       = "created"
	OutcomeInvalidName   = "invalid_name"
	OutcomeDuplicate     = "duplicate"
	OutcomeDatabaseError = "database_error"
)

// Metrics holds all Prometheus metrics for the application. Each instance
// owns its registry.
type Metrics struct {
	registry *prometheus.Registry

	SubscriptionAttempts *prometheus.CounterVec
	ConfirmationEmails   *prometheus.CounterVec
	StoreLatency         *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SubscriptionAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsletter_subscription_attempts_total",
			Help: "Subscription attempts by outcome",
		}, []string{"outcome"}),
		ConfirmationEmails: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "newsletter_confirmation_emails_total",
			Help: "Confirmation emails by result",
		}, []string{"result"}),
		StoreLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "newsletter_store_operation_duration_seconds",
			Help:    "Latency of subscriber store operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncSubscriptionAttempt(outcome string) {
	m.SubscriptionAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncConfirmationEmail(success bool) {
	result := "sent"
	if !success {
		result = "failed"
	}
	m.ConfirmationEmails.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveStoreOperation(operation string, started time.Time) {
	m.StoreLatency.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// Handler serves this instance's registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
