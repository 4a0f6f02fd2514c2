// Package ban tracks backend endpoints that failed and must temporarily be
// kept out of traffic selection, and decides when they may return.
package ban

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ferrodb/shardgate/internal/topology"
)

// StatsSink receives ban-caused error notifications. Satisfied by the
// metrics collector set.
type StatsSink interface {
	// ObserveBanError records that an endpoint accrued an error serious
	// enough to ban it.
	ObserveBanError(endpoint *topology.Endpoint)
}

// entry is one row of the ban table.
type entry struct {
	endpoint *topology.Endpoint
	reason   BanReason
	bannedAt time.Time
}

// Ban is the reported form of a ban table entry.
type Ban struct {
	Endpoint *topology.Endpoint
	Reason   BanReason
	BannedAt time.Time
}

// Registry is the shard-partitioned ban table plus the recovery policy.
// One registry is shared by all collaborators of a pool; every method is
// safe for concurrent use. State is volatile, a restart clears all bans.
type Registry struct {
	mu sync.RWMutex

	// table has exactly one map per shard. Presence of a key means
	// "currently banned."
	table []map[topology.EndpointKey]entry

	failoverEnabled bool
	banTime         int64

	logger *zap.Logger

	// now is overridable for expiry tests.
	now func() time.Time
}

// New creates a registry sized to the topology's shard count.
//
// failoverEnabled controls whether read traffic may fall back to the primary
// when no replica is available; banTime is the duration in seconds of every
// non-admin ban.
func New(shards int, failoverEnabled bool, banTime int64, logger *zap.Logger) (*Registry, error) {
	if shards <= 0 {
		return nil, fmt.Errorf("ban table must cover at least one shard, got %d", shards)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	table := make([]map[topology.EndpointKey]entry, shards)
	for i := range table {
		table[i] = make(map[topology.EndpointKey]entry)
	}

	return &Registry{
		table:           table,
		failoverEnabled: failoverEnabled,
		banTime:         banTime,
		logger:          logger,
		now:             time.Now,
	}, nil
}

// FailoverEnabled reports whether replica-to-primary failover is allowed.
func (r *Registry) FailoverEnabled() bool {
	return r.failoverEnabled
}

// BanTime returns the duration in seconds of a non-admin ban.
func (r *Registry) BanTime() int64 {
	return r.banTime
}

// Ban excludes an endpoint from traffic selection. It no longer will be
// handed out for new transactions; transactions already running against it
// finish or error out on their own.
//
// A primary is never banned: the call is a silent no-op. Banning an already
// banned endpoint overwrites reason and timestamp.
func (r *Registry) Ban(endpoint *topology.Endpoint, reason BanReason, sink StatsSink) {
	// Failure-class reasons count against the endpoint's error counter,
	// used by external diagnostics to decide if the shard is down.
	if reason.incrementsErrorCount() {
		endpoint.IncrementErrorCount()
	}

	// Primary can never be banned
	if endpoint.Role == topology.RolePrimary {
		return
	}

	now := r.now().UTC()
	r.logger.Error("banning endpoint",
		zap.String("endpoint", endpoint.Addr()),
		zap.Int("shard", endpoint.Shard),
		zap.String("reason", reason.String()))

	r.mu.Lock()
	defer r.mu.Unlock()

	// The sink is notified before the record becomes visible to readers.
	if sink != nil {
		sink.ObserveBanError(endpoint)
	}

	r.table[endpoint.Shard][endpoint.Key()] = entry{
		endpoint: endpoint,
		reason:   reason,
		bannedAt: now,
	}
}

// Unban clears the endpoint to receive traffic again. Takes effect
// immediately for all new transactions. No-op if the endpoint is not banned.
func (r *Registry) Unban(endpoint *topology.Endpoint) {
	r.logger.Warn("unbanning endpoint",
		zap.String("endpoint", endpoint.Addr()),
		zap.Int("shard", endpoint.Shard))

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.table[endpoint.Shard], endpoint.Key())
}

// IsBanned reports whether the endpoint is currently banned.
func (r *Registry) IsBanned(endpoint *topology.Endpoint) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, banned := r.table[endpoint.Shard][endpoint.Key()]
	return banned
}

// Bans returns a snapshot of every ban across all shards. No ordering
// guarantee. Reporting only.
func (r *Registry) Bans() []Ban {
	var bans []Ban

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, shard := range r.table {
		for _, e := range shard {
			bans = append(bans, Ban{Endpoint: e.endpoint, Reason: e.reason, BannedAt: e.bannedAt})
		}
	}
	return bans
}

// UnbanAllReplicas clears every ban in the endpoint's shard. Used when all
// replicas of a shard are banned and traffic may not fall back to the
// primary: serving all of them again beats serving nothing.
func (r *Registry) UnbanAllReplicas(endpoint *topology.Endpoint) {
	r.logger.Warn("unbanning all replicas", zap.Int("shard", endpoint.Shard))

	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.table[endpoint.Shard])
}

// ShouldUnban decides whether a banned endpoint may return to service and
// returns the reason why, or (0, false) to keep it banned.
//
// Verdicts:
//   - UnbanPrimaryBanned: a primary should never be banned; unban immediately.
//   - UnbanAllReplicasBanned: failover to primary is disallowed and every
//     replica of the shard is banned.
//   - UnbanNotBanned: the endpoint has no ban record (a concurrent unban won).
//   - UnbanBanTimeExceeded: the ban outlived its duration.
//
// The all-replicas check and the expiry check each take the lock separately,
// so the verdict can be stale by the time the caller acts. That is accepted:
// critical sections stay short and the corrective actions (Unban,
// UnbanAllReplicas) are idempotent, so acting on a since-changed state is
// harmless.
func (r *Registry) ShouldUnban(topo topology.View, endpoint *topology.Endpoint) (UnbanReason, bool) {
	// A banned primary is a should-never-happen state.
	if endpoint.Role == topology.RolePrimary {
		return UnbanPrimaryBanned, true
	}

	// With failover enabled the primary keeps serving reads, so replicas may
	// stay banned. Without it a shard must never be stranded with zero
	// usable replicas.
	if !r.failoverEnabled {
		replicasAvailable := topo.ReplicaCount(endpoint.Shard)

		r.mu.RLock()
		allReplicasBanned := len(r.table[endpoint.Shard]) == replicasAvailable
		r.mu.RUnlock()

		if allReplicasBanned {
			return UnbanAllReplicasBanned, true
		}
	}

	r.mu.RLock()
	e, banned := r.table[endpoint.Shard][endpoint.Key()]
	r.mu.RUnlock()

	if !banned {
		return UnbanNotBanned, true
	}

	threshold := r.banTime
	if e.reason.IsAdmin() {
		threshold = e.reason.AdminDuration()
	}

	elapsed := r.now().UTC().Unix() - e.bannedAt.Unix()
	if elapsed > threshold {
		return UnbanBanTimeExceeded, true
	}
	return 0, false
}
