package health

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ferrodb/shardgate/internal/ban"
	"github.com/ferrodb/shardgate/internal/topology"
)

// Maintainer is the recovery scheduler: it periodically asks the registry
// whether each banned endpoint should be unbanned and acts on the verdict.
//
// Verdicts are advisory; the registry can change between decision and action.
// That is fine because Unban and UnbanAllReplicas are idempotent.
type Maintainer struct {
	interval time.Duration
	topo     *topology.Topology
	registry *ban.Registry
	recorder Recorder
	logger   *zap.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewMaintainer creates a recovery scheduler over a registry.
func NewMaintainer(interval time.Duration, topo *topology.Topology, registry *ban.Registry,
	recorder Recorder, logger *zap.Logger) *Maintainer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Maintainer{
		interval: interval,
		topo:     topo,
		registry: registry,
		recorder: recorder,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start launches the maintenance loop.
func (m *Maintainer) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("maintainer is already running")
	}
	m.running = true
	m.stopCh = make(chan struct{})

	m.wg.Add(1)
	go m.loop()

	m.logger.Info("ban maintainer started", zap.Duration("interval", m.interval))
	return nil
}

// Stop terminates the maintenance loop and waits for it to exit.
func (m *Maintainer) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("ban maintainer stopped")
}

func (m *Maintainer) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.runOnce()
		}
	}
}

// runOnce evaluates every current ban and lifts the ones whose verdict says
// so, then refreshes the banned-endpoint gauges.
func (m *Maintainer) runOnce() {
	for _, b := range m.registry.Bans() {
		verdict, ok := m.registry.ShouldUnban(m.topo, b.Endpoint)
		if !ok {
			continue
		}

		m.logger.Info("lifting ban",
			zap.String("endpoint", b.Endpoint.Addr()),
			zap.Int("shard", b.Endpoint.Shard),
			zap.String("verdict", verdict.String()))

		switch verdict {
		case ban.UnbanAllReplicasBanned:
			m.registry.UnbanAllReplicas(b.Endpoint)
		default:
			m.registry.Unban(b.Endpoint)
		}

		if m.recorder != nil {
			m.recorder.RecordUnban(verdict.String())
		}
	}

	if m.recorder != nil {
		counts := make([]int, m.topo.Shards())
		for _, b := range m.registry.Bans() {
			counts[b.Endpoint.Shard]++
		}
		for shard, count := range counts {
			m.recorder.SetBannedEndpoints(shard, count)
		}
	}
}
