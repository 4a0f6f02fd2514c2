// Package metrics exposes shardgate's Prometheus collectors.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ferrodb/shardgate/internal/config"
	"github.com/ferrodb/shardgate/internal/topology"
)

// Collector holds the Prometheus metrics of a shardgate node. It satisfies
// ban.StatsSink so the registry can report ban-caused errors.
type Collector struct {
	bansTotal      *prometheus.CounterVec
	unbansTotal    *prometheus.CounterVec
	bannedGauge    *prometheus.GaugeVec
	endpointErrors *prometheus.CounterVec
}

// New creates the collector set and registers it with the given registerer.
func New(cfg *config.MetricsConfig, registerer prometheus.Registerer) (*Collector, error) {
	namespace := "shardgate"
	if cfg != nil && cfg.Namespace != "" {
		namespace = cfg.Namespace
	}

	c := &Collector{
		bansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bans_total",
				Help:      "Total number of endpoint bans, by reason and shard",
			},
			[]string{"reason", "shard"},
		),
		unbansTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unbans_total",
				Help:      "Total number of endpoint unbans, by verdict",
			},
			[]string{"verdict"},
		),
		bannedGauge: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "banned_endpoints",
				Help:      "Number of currently banned endpoints, by shard",
			},
			[]string{"shard"},
		),
		endpointErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "endpoint_errors_total",
				Help:      "Total number of ban-caused errors, by endpoint",
			},
			[]string{"endpoint"},
		),
	}

	for _, collector := range []prometheus.Collector{
		c.bansTotal, c.unbansTotal, c.bannedGauge, c.endpointErrors,
	} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveBanError implements ban.StatsSink.
func (c *Collector) ObserveBanError(endpoint *topology.Endpoint) {
	c.endpointErrors.WithLabelValues(endpoint.Addr()).Inc()
}

// RecordBan counts one ban.
func (c *Collector) RecordBan(reason string, shard int) {
	c.bansTotal.WithLabelValues(reason, strconv.Itoa(shard)).Inc()
}

// RecordUnban counts one unban with the verdict that caused it.
func (c *Collector) RecordUnban(verdict string) {
	c.unbansTotal.WithLabelValues(verdict).Inc()
}

// SetBannedEndpoints updates the banned endpoint gauge for a shard.
func (c *Collector) SetBannedEndpoints(shard, count int) {
	c.bannedGauge.WithLabelValues(strconv.Itoa(shard)).Set(float64(count))
}
