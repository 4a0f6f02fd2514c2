package topology

import (
	"fmt"

	"github.com/ferrodb/shardgate/internal/config"
)

// FromConfig builds a validated topology from the configured shard layout.
func FromConfig(shards []config.ShardConfig) (*Topology, error) {
	layout := make([][]*Endpoint, len(shards))
	for i, shard := range shards {
		endpoints := make([]*Endpoint, 0, len(shard.Endpoints))
		for _, ec := range shard.Endpoints {
			role, err := ParseRole(ec.Role)
			if err != nil {
				return nil, fmt.Errorf("shard %d endpoint %s: %w", i, ec.Host, err)
			}
			endpoints = append(endpoints, &Endpoint{
				Host:  ec.Host,
				Port:  ec.Port,
				Shard: i,
				Role:  role,
			})
		}
		layout[i] = endpoints
	}
	return New(layout)
}
