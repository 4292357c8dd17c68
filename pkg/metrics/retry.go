package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RetryMetrics records outcomes of renewal payment retries.
type RetryMetrics struct {
	attempts        *prometheus.CounterVec
	scheduled       prometheus.Counter
	cancelled       *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
}

// NewRetryMetrics registers the retry metrics on the provided registerer.
func NewRetryMetrics(reg prometheus.Registerer) *RetryMetrics {
	if reg == nil {
		return &RetryMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "retry_attempts_total",
		Help: "Renewal payment retry attempts by outcome.",
	}, []string{"outcome"})
	scheduled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "retry_scheduled_total",
		Help: "Renewal payment retries scheduled.",
	})
	cancelled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "retry_cancelled_total",
		Help: "Renewal payment retries cancelled by reason.",
	}, []string{"reason"})
	gatewayDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "retry_gateway_duration_seconds",
		Help:    "Duration of gateway charge calls during retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"gateway"})
	reg.MustRegister(attempts, scheduled, cancelled, gatewayDuration)
	return &RetryMetrics{
		attempts:        attempts,
		scheduled:       scheduled,
		cancelled:       cancelled,
		gatewayDuration: gatewayDuration,
	}
}

// IncAttempt increments the attempt counter for the given outcome.
func (r *RetryMetrics) IncAttempt(outcome string) {
	if r == nil || r.attempts == nil {
		return
	}
	r.attempts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncScheduled increments the scheduled counter.
func (r *RetryMetrics) IncScheduled() {
	if r == nil || r.scheduled == nil {
		return
	}
	r.scheduled.Inc()
}

// IncCancelled increments the cancelled counter for the given reason.
func (r *RetryMetrics) IncCancelled(reason string) {
	if r == nil || r.cancelled == nil {
		return
	}
	r.cancelled.WithLabelValues(normalizeLabel(reason)).Inc()
}

// ObserveGatewayDuration records the duration of a gateway charge call.
func (r *RetryMetrics) ObserveGatewayDuration(gateway string, duration time.Duration) {
	if r == nil || r.gatewayDuration == nil {
		return
	}
	r.gatewayDuration.WithLabelValues(normalizeLabel(gateway)).Observe(duration.Seconds())
}
