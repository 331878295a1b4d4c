package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsDisabled(t *testing.T) {
	m := New(false)
	if m == nil {
		t.Fatal("metrics should not be nil (noop)")
	}
	if m.Enabled() {
		t.Error("disabled metrics should report Enabled() == false")
	}

	// These should not panic even though they're noop
	m.RecordTokenExchange("success", 0.1)
	m.RecordCacheHit("google_token")
	m.RecordCacheMiss("google_token")
	m.RecordIntegrityVerdict(true)
	m.RecordPushDelivery(false)
	m.RecordAdminAction("invite", "success")
	m.RecordAuthFailure("missing_token")

	var nilMetrics *Metrics
	nilMetrics.RecordAuthFailure("nil")
}

func TestRecordTokenExchange(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.RecordTokenExchange("success", 0.01)
	m.RecordTokenExchange("success", 0.02)
	m.RecordTokenExchange("failure", 0.5)

	if got := testutil.ToFloat64(m.tokenExchangesTotal.WithLabelValues("success")); got != 2 {
		t.Errorf("success exchanges = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.tokenExchangesTotal.WithLabelValues("failure")); got != 1 {
		t.Errorf("failure exchanges = %v, want 1", got)
	}
}

func TestRecordCache(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.RecordCacheHit("google_token")
	m.RecordCacheHit("google_token")
	m.RecordCacheMiss("google_token")

	if got := testutil.ToFloat64(m.cacheHitsTotal.WithLabelValues("google_token")); got != 2 {
		t.Errorf("hits = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.cacheMissTotal.WithLabelValues("google_token")); got != 1 {
		t.Errorf("misses = %v, want 1", got)
	}
}

func TestRecordDomainOutcomes(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.RecordIntegrityVerdict(true)
	m.RecordIntegrityVerdict(false)
	m.RecordIntegrityVerdict(false)
	m.RecordPushDelivery(true)
	m.RecordAdminAction("delete", "forbidden")
	m.RecordAuthFailure("invalid_token")

	if got := testutil.ToFloat64(m.integrityVerdictsTotal.WithLabelValues("false")); got != 2 {
		t.Errorf("invalid verdicts = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.pushDeliveriesTotal.WithLabelValues("success")); got != 1 {
		t.Errorf("push successes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.adminActionsTotal.WithLabelValues("delete", "forbidden")); got != 1 {
		t.Errorf("admin actions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.authFailuresTotal.WithLabelValues("invalid_token")); got != 1 {
		t.Errorf("auth failures = %v, want 1", got)
	}
}

func TestNewWithRegistry_Isolated(t *testing.T) {
	// Two registries must not collide on collector names.
	NewWithRegistry(prometheus.NewRegistry())
	NewWithRegistry(prometheus.NewRegistry())
}
