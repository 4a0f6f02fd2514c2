// Package pool selects which backend endpoint serves a transaction,
// honoring the ban registry and the failover policy.
package pool

import (
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ferrodb/shardgate/internal/ban"
	"github.com/ferrodb/shardgate/internal/topology"
)

// ErrNoReplicaAvailable is returned when every replica of a shard is banned
// and failover to the primary is disallowed.
var ErrNoReplicaAvailable = errors.New("no replica available")

// Checkout hands out endpoints for read traffic using round-robin selection
// over each shard's unbanned replicas.
type Checkout struct {
	topo     *topology.Topology
	registry *ban.Registry
	sink     ban.StatsSink
	logger   *zap.Logger

	// counters holds one round-robin cursor per shard.
	counters []atomic.Uint64
}

// NewCheckout creates checkout logic over a topology and its ban registry.
func NewCheckout(topo *topology.Topology, registry *ban.Registry, sink ban.StatsSink, logger *zap.Logger) *Checkout {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checkout{
		topo:     topo,
		registry: registry,
		sink:     sink,
		logger:   logger,
		counters: make([]atomic.Uint64, topo.Shards()),
	}
}

// Replica selects an unbanned replica of the shard. When every replica is
// banned it returns the primary if failover is enabled, otherwise
// ErrNoReplicaAvailable.
func (c *Checkout) Replica(shard int) (*topology.Endpoint, error) {
	if shard < 0 || shard >= c.topo.Shards() {
		return nil, fmt.Errorf("shard %d out of range (%d shards)", shard, c.topo.Shards())
	}

	replicas := c.topo.Replicas(shard)
	if len(replicas) > 0 {
		counter := c.counters[shard].Add(1)
		for i := 0; i < len(replicas); i++ {
			candidate := replicas[(int(counter-1)+i)%len(replicas)]
			if !c.registry.IsBanned(candidate) {
				return candidate, nil
			}
		}
	}

	if c.registry.FailoverEnabled() {
		c.logger.Debug("no replica available, failing over to primary",
			zap.Int("shard", shard))
		return c.topo.Primary(shard), nil
	}
	return nil, fmt.Errorf("shard %d: %w", shard, ErrNoReplicaAvailable)
}

// Primary returns the shard's primary for write traffic.
func (c *Checkout) Primary(shard int) (*topology.Endpoint, error) {
	if shard < 0 || shard >= c.topo.Shards() {
		return nil, fmt.Errorf("shard %d out of range (%d shards)", shard, c.topo.Shards())
	}
	return c.topo.Primary(shard), nil
}

// ReportFailure bans an endpoint after a transaction-level failure observed
// by the protocol layer.
func (c *Checkout) ReportFailure(endpoint *topology.Endpoint, reason ban.BanReason) {
	c.registry.Ban(endpoint, reason, c.sink)
}
