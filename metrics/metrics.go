// Package metrics provides Prometheus metrics for the function endpoints.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors. A disabled instance is a no-op.
type Metrics struct {
	enabled bool

	// Google token metrics
	tokenExchangesTotal   *prometheus.CounterVec
	tokenExchangeDuration prometheus.Histogram

	// Cache metrics
	cacheHitsTotal *prometheus.CounterVec
	cacheMissTotal *prometheus.CounterVec

	// Domain metrics
	integrityVerdictsTotal *prometheus.CounterVec
	pushDeliveriesTotal    *prometheus.CounterVec
	adminActionsTotal      *prometheus.CounterVec

	// Authentication metrics
	authFailuresTotal *prometheus.CounterVec
}

// New creates metrics registered with the default Prometheus registry.
// If enabled is false, returns a no-op Metrics instance.
func New(enabled bool) *Metrics {
	if !enabled {
		return &Metrics{}
	}
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics registered with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{enabled: true}

	m.tokenExchangesTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "milow_token_exchanges_total",
		Help: "Total Google access token exchanges",
	}, []string{"result"})

	m.tokenExchangeDuration = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "milow_token_exchange_duration_seconds",
		Help:    "Token exchange duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	m.cacheHitsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "milow_cache_hits_total",
		Help: "Total cache hits",
	}, []string{"cache_type"})

	m.cacheMissTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "milow_cache_misses_total",
		Help: "Total cache misses",
	}, []string{"cache_type"})

	m.integrityVerdictsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "milow_integrity_verdicts_total",
		Help: "Total integrity verdicts by outcome",
	}, []string{"valid"})

	m.pushDeliveriesTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "milow_push_deliveries_total",
		Help: "Total push notification deliveries",
	}, []string{"result"})

	m.adminActionsTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "milow_admin_actions_total",
		Help: "Total user administration actions",
	}, []string{"action", "result"})

	m.authFailuresTotal = f.NewCounterVec(prometheus.CounterOpts{
		Name: "milow_auth_failures_total",
		Help: "Total authentication failures",
	}, []string{"reason"})

	return m
}

// Enabled reports whether collectors are registered.
func (m *Metrics) Enabled() bool { return m != nil && m.enabled }

// RecordTokenExchange records a token exchange result.
func (m *Metrics) RecordTokenExchange(result string, durationSeconds float64) {
	if !m.Enabled() {
		return
	}
	m.tokenExchangesTotal.WithLabelValues(result).Inc()
	m.tokenExchangeDuration.Observe(durationSeconds)
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit(cacheType string) {
	if !m.Enabled() {
		return
	}
	m.cacheHitsTotal.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss(cacheType string) {
	if !m.Enabled() {
		return
	}
	m.cacheMissTotal.WithLabelValues(cacheType).Inc()
}

// RecordIntegrityVerdict records the outcome of a verdict validation.
func (m *Metrics) RecordIntegrityVerdict(valid bool) {
	if !m.Enabled() {
		return
	}
	label := "false"
	if valid {
		label = "true"
	}
	m.integrityVerdictsTotal.WithLabelValues(label).Inc()
}

// RecordPushDelivery records a single push delivery.
func (m *Metrics) RecordPushDelivery(ok bool) {
	if !m.Enabled() {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.pushDeliveriesTotal.WithLabelValues(result).Inc()
}

// RecordAdminAction records an invite, delete or reset.
func (m *Metrics) RecordAdminAction(action, result string) {
	if !m.Enabled() {
		return
	}
	m.adminActionsTotal.WithLabelValues(action, result).Inc()
}

// RecordAuthFailure records a failed authentication.
func (m *Metrics) RecordAuthFailure(reason string) {
	if !m.Enabled() {
		return
	}
	m.authFailuresTotal.WithLabelValues(reason).Inc()
}
