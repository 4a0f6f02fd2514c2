// Package topology models the sharded backend layout: which endpoints make
// up each shard and which role they serve.
package topology

import (
	"fmt"
	"sync/atomic"
)

// Role identifies the function of an endpoint within its shard.
type Role int

const (
	// RolePrimary - the single writable endpoint of a shard
	RolePrimary Role = iota
	// RoleReplica - a read-only endpoint of a shard
	RoleReplica
)

// String returns the string representation of the role.
func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleReplica:
		return "replica"
	default:
		return "unknown"
	}
}

// ParseRole converts a role name from configuration to a Role.
func ParseRole(name string) (Role, error) {
	switch name {
	case "primary":
		return RolePrimary, nil
	case "replica":
		return RoleReplica, nil
	default:
		return 0, fmt.Errorf("unknown role %q", name)
	}
}

// EndpointKey is the comparable identity of an endpoint, used as a map key.
type EndpointKey struct {
	Host  string
	Port  int
	Shard int
	Role  Role
}

// Endpoint represents a single backend server instance. The error counter is
// owned by the endpoint and incremented by collaborators as failures are
// observed against it.
type Endpoint struct {
	Host  string
	Port  int
	Shard int
	Role  Role

	errorCount atomic.Int64
}

// Key returns the comparable identity of the endpoint.
func (e *Endpoint) Key() EndpointKey {
	return EndpointKey{Host: e.Host, Port: e.Port, Shard: e.Shard, Role: e.Role}
}

// Addr returns the host:port form of the endpoint.
func (e *Endpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// IncrementErrorCount records one more failure observed against this
// endpoint. Increment-only.
func (e *Endpoint) IncrementErrorCount() {
	e.errorCount.Add(1)
}

// ErrorCount returns the number of failures observed against this endpoint.
func (e *Endpoint) ErrorCount() int64 {
	return e.errorCount.Load()
}

// Topology is the immutable per-shard endpoint layout. Each shard has exactly
// one primary and zero or more replicas.
type Topology struct {
	shards [][]*Endpoint
}

// View is the read-only slice of the topology the ban decision logic needs:
// counting configured replicas per shard.
type View interface {
	ReplicaCount(shard int) int
}

// New builds a topology from per-shard endpoint lists and validates it:
// every endpoint's shard index must match its slot, and every shard must
// have exactly one primary.
func New(shards [][]*Endpoint) (*Topology, error) {
	if len(shards) == 0 {
		return nil, fmt.Errorf("topology must have at least one shard")
	}

	for i, endpoints := range shards {
		primaries := 0
		for _, endpoint := range endpoints {
			if endpoint.Shard != i {
				return nil, fmt.Errorf("endpoint %s declares shard %d but is listed under shard %d",
					endpoint.Addr(), endpoint.Shard, i)
			}
			if endpoint.Role == RolePrimary {
				primaries++
			}
		}
		if primaries != 1 {
			return nil, fmt.Errorf("shard %d must have exactly one primary, got %d", i, primaries)
		}
	}

	return &Topology{shards: shards}, nil
}

// Shards returns the number of shards in the topology.
func (t *Topology) Shards() int {
	return len(t.shards)
}

// Endpoints returns the configured endpoints of a shard.
func (t *Topology) Endpoints(shard int) []*Endpoint {
	return t.shards[shard]
}

// Replicas returns the replica endpoints of a shard.
func (t *Topology) Replicas(shard int) []*Endpoint {
	var replicas []*Endpoint
	for _, endpoint := range t.shards[shard] {
		if endpoint.Role == RoleReplica {
			replicas = append(replicas, endpoint)
		}
	}
	return replicas
}

// ReplicaCount returns the number of replica endpoints configured for a shard.
func (t *Topology) ReplicaCount(shard int) int {
	count := 0
	for _, endpoint := range t.shards[shard] {
		if endpoint.Role == RoleReplica {
			count++
		}
	}
	return count
}

// Primary returns the primary endpoint of a shard.
func (t *Topology) Primary(shard int) *Endpoint {
	for _, endpoint := range t.shards[shard] {
		if endpoint.Role == RolePrimary {
			return endpoint
		}
	}
	return nil
}

// Lookup finds the configured endpoint matching host and port within a
// shard. Returns nil if no such endpoint exists.
func (t *Topology) Lookup(shard int, host string, port int) *Endpoint {
	if shard < 0 || shard >= len(t.shards) {
		return nil
	}
	for _, endpoint := range t.shards[shard] {
		if endpoint.Host == host && endpoint.Port == port {
			return endpoint
		}
	}
	return nil
}
