package pool

import (
	"errors"
	"testing"

	"github.com/ferrodb/shardgate/internal/ban"
	"github.com/ferrodb/shardgate/internal/topology"
)

func buildFixture(t *testing.T, failover bool) (*topology.Topology, *ban.Registry, *Checkout) {
	t.Helper()

	shards := [][]*topology.Endpoint{
		{
			{Host: "db-0", Port: 5432, Shard: 0, Role: topology.RolePrimary},
			{Host: "db-0-r1", Port: 5432, Shard: 0, Role: topology.RoleReplica},
			{Host: "db-0-r2", Port: 5432, Shard: 0, Role: topology.RoleReplica},
		},
	}
	topo, err := topology.New(shards)
	if err != nil {
		t.Fatalf("failed to build topology: %v", err)
	}

	registry, err := ban.New(topo.Shards(), failover, 60, nil)
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}

	return topo, registry, NewCheckout(topo, registry, nil, nil)
}

func TestReplicaRoundRobin(t *testing.T) {
	topo, _, checkout := buildFixture(t, false)
	replicas := topo.Replicas(0)

	seen := map[string]int{}
	for i := 0; i < 10; i++ {
		endpoint, err := checkout.Replica(0)
		if err != nil {
			t.Fatalf("Replica() returned error: %v", err)
		}
		if endpoint.Role != topology.RoleReplica {
			t.Fatalf("expected a replica, got %s", endpoint.Role)
		}
		seen[endpoint.Addr()]++
	}

	for _, replica := range replicas {
		if seen[replica.Addr()] != 5 {
			t.Errorf("expected even rotation, got %v", seen)
			break
		}
	}
}

func TestReplicaSkipsBanned(t *testing.T) {
	topo, registry, checkout := buildFixture(t, false)
	banned := topo.Replicas(0)[0]
	registry.Ban(banned, ban.FailedHealthCheck(), nil)

	for i := 0; i < 6; i++ {
		endpoint, err := checkout.Replica(0)
		if err != nil {
			t.Fatalf("Replica() returned error: %v", err)
		}
		if endpoint == banned {
			t.Fatalf("checkout returned banned replica %s", banned.Addr())
		}
	}
}

func TestReplicaFailoverToPrimary(t *testing.T) {
	topo, registry, checkout := buildFixture(t, true)
	for _, replica := range topo.Replicas(0) {
		registry.Ban(replica, ban.FailedCheckout(), nil)
	}

	endpoint, err := checkout.Replica(0)
	if err != nil {
		t.Fatalf("Replica() returned error: %v", err)
	}
	if endpoint.Role != topology.RolePrimary {
		t.Errorf("expected failover to primary, got %s", endpoint.Addr())
	}
}

func TestReplicaNoFailoverErrors(t *testing.T) {
	topo, registry, checkout := buildFixture(t, false)
	for _, replica := range topo.Replicas(0) {
		registry.Ban(replica, ban.FailedCheckout(), nil)
	}

	_, err := checkout.Replica(0)
	if !errors.Is(err, ErrNoReplicaAvailable) {
		t.Errorf("expected ErrNoReplicaAvailable, got %v", err)
	}
}

func TestReplicaShardOutOfRange(t *testing.T) {
	_, _, checkout := buildFixture(t, false)
	if _, err := checkout.Replica(7); err == nil {
		t.Error("expected error for out-of-range shard")
	}
	if _, err := checkout.Replica(-1); err == nil {
		t.Error("expected error for negative shard")
	}
}

func TestReportFailureBans(t *testing.T) {
	topo, registry, checkout := buildFixture(t, false)
	replica := topo.Replicas(0)[0]

	checkout.ReportFailure(replica, ban.MessageReceiveFailed())
	if !registry.IsBanned(replica) {
		t.Error("expected reported endpoint to be banned")
	}
	if replica.ErrorCount() != 1 {
		t.Errorf("expected error count 1, got %d", replica.ErrorCount())
	}
}
