// Package health runs the failure-detection and recovery loops around the
// ban registry: an active checker that probes backends and bans them on
// failure, and a maintainer that periodically decides which bans to lift.
package health

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	// postgres driver for the "postgres" probe mode
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/ferrodb/shardgate/internal/ban"
	"github.com/ferrodb/shardgate/internal/config"
	"github.com/ferrodb/shardgate/internal/topology"
)

// Recorder receives ban/unban observations for metrics. Satisfied by
// metrics.Collector.
type Recorder interface {
	RecordBan(reason string, shard int)
	RecordUnban(verdict string)
	SetBannedEndpoints(shard, count int)
}

// Checker actively probes every configured endpoint and bans endpoints that
// fail. Recovery is never decided here; it flows through the Maintainer.
type Checker struct {
	cfg      *config.HealthCheckConfig
	topo     *topology.Topology
	registry *ban.Registry
	sink     ban.StatsSink
	recorder Recorder
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewChecker creates an active health checker.
func NewChecker(cfg *config.HealthCheckConfig, topo *topology.Topology, registry *ban.Registry,
	sink ban.StatsSink, recorder Recorder, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		cfg:      cfg,
		topo:     topo,
		registry: registry,
		sink:     sink,
		recorder: recorder,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start launches one probe loop per configured endpoint.
func (c *Checker) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("health checker is already running")
	}
	if !c.cfg.Enabled {
		c.logger.Info("active health checking is disabled")
		return nil
	}

	c.running = true
	c.stopCh = make(chan struct{})

	for shard := 0; shard < c.topo.Shards(); shard++ {
		for _, endpoint := range c.topo.Endpoints(shard) {
			c.wg.Add(1)
			go c.probeLoop(endpoint)
		}
	}

	c.logger.Info("health checker started",
		zap.String("mode", c.cfg.Mode),
		zap.Duration("interval", c.cfg.Interval))
	return nil
}

// Stop terminates all probe loops and waits for them to exit.
func (c *Checker) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopCh)
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Info("health checker stopped")
}

// probeLoop probes a single endpoint on the configured interval.
func (c *Checker) probeLoop(endpoint *topology.Endpoint) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.checkEndpoint(endpoint)
		}
	}
}

// checkEndpoint performs one probe and bans the endpoint on failure.
func (c *Checker) checkEndpoint(endpoint *topology.Endpoint) {
	err := c.probe(endpoint)
	if err == nil {
		return
	}

	c.logger.Warn("health check failed",
		zap.String("endpoint", endpoint.Addr()),
		zap.Int("shard", endpoint.Shard),
		zap.Error(err))

	reason := ban.FailedHealthCheck()
	c.registry.Ban(endpoint, reason, c.sink)
	if c.recorder != nil && endpoint.Role != topology.RolePrimary {
		c.recorder.RecordBan(reason.String(), endpoint.Shard)
	}
}

// probe runs a single health probe against the endpoint.
func (c *Checker) probe(endpoint *topology.Endpoint) error {
	switch c.cfg.Mode {
	case "postgres":
		return c.probePostgres(endpoint)
	default:
		return c.probeTCP(endpoint)
	}
}

// probeTCP dials the endpoint.
func (c *Checker) probeTCP(endpoint *topology.Endpoint) error {
	conn, err := net.DialTimeout("tcp", endpoint.Addr(), c.cfg.Timeout)
	if err != nil {
		return fmt.Errorf("tcp probe failed: %w", err)
	}
	return conn.Close()
}

// probePostgres opens a connection to the endpoint and pings it.
func (c *Checker) probePostgres(endpoint *topology.Endpoint) error {
	dsn := expandDSN(c.cfg.DSNTemplate, endpoint)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("postgres probe failed to open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres probe failed to ping: %w", err)
	}
	return nil
}

// expandDSN substitutes the {host} and {port} tokens of the configured DSN
// template with the endpoint's address.
func expandDSN(template string, endpoint *topology.Endpoint) string {
	dsn := strings.ReplaceAll(template, "{host}", endpoint.Host)
	return strings.ReplaceAll(dsn, "{port}", strconv.Itoa(endpoint.Port))
}
