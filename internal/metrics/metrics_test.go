package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ferrodb/shardgate/internal/config"
	"github.com/ferrodb/shardgate/internal/topology"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()

	registry := prometheus.NewRegistry()
	collector, err := New(&config.MetricsConfig{Namespace: "shardgate"}, registry)
	if err != nil {
		t.Fatalf("failed to create collector: %v", err)
	}
	return collector, registry
}

func TestCollectorCounters(t *testing.T) {
	collector, _ := newTestCollector(t)

	collector.RecordBan("failed_health_check", 0)
	collector.RecordBan("failed_health_check", 0)
	collector.RecordUnban("ban_time_exceeded")
	collector.SetBannedEndpoints(0, 2)

	if got := testutil.ToFloat64(collector.bansTotal.WithLabelValues("failed_health_check", "0")); got != 2 {
		t.Errorf("expected 2 bans recorded, got %v", got)
	}
	if got := testutil.ToFloat64(collector.unbansTotal.WithLabelValues("ban_time_exceeded")); got != 1 {
		t.Errorf("expected 1 unban recorded, got %v", got)
	}
	if got := testutil.ToFloat64(collector.bannedGauge.WithLabelValues("0")); got != 2 {
		t.Errorf("expected banned gauge 2, got %v", got)
	}
}

func TestObserveBanError(t *testing.T) {
	collector, _ := newTestCollector(t)

	endpoint := &topology.Endpoint{Host: "db-0-r1", Port: 5432, Shard: 0, Role: topology.RoleReplica}
	collector.ObserveBanError(endpoint)
	collector.ObserveBanError(endpoint)

	if got := testutil.ToFloat64(collector.endpointErrors.WithLabelValues("db-0-r1:5432")); got != 2 {
		t.Errorf("expected 2 endpoint errors, got %v", got)
	}
}

func TestDuplicateRegistrationFails(t *testing.T) {
	registry := prometheus.NewRegistry()
	if _, err := New(nil, registry); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if _, err := New(nil, registry); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}
