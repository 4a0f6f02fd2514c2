package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ferrodb/shardgate/internal/admin"
	"github.com/ferrodb/shardgate/internal/ban"
	"github.com/ferrodb/shardgate/internal/config"
	etcdsource "github.com/ferrodb/shardgate/internal/config/source/etcd"
	"github.com/ferrodb/shardgate/internal/health"
	"github.com/ferrodb/shardgate/internal/metrics"
	"github.com/ferrodb/shardgate/internal/topology"
	"github.com/ferrodb/shardgate/pkg/log"
)

var (
	configFile = flag.String("config", "config.yaml", "Configuration file path")
	version    = flag.Bool("version", false, "Show version information")
)

const (
	// Version information
	Version = "v0.3.0"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("shardgate %s\n", Version)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// When configuration lives in etcd, the file only bootstraps the
	// connection; the authoritative config comes from the cluster.
	var source *etcdsource.Source
	if cfg.ConfigSource.Driver == "etcd" {
		source, err = etcdsource.New(&cfg.ConfigSource.Etcd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create etcd config source: %v\n", err)
			os.Exit(1)
		}
		defer source.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		data, err := source.Get(ctx)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to fetch configuration from etcd: %v\n", err)
			os.Exit(1)
		}
		if cfg, err = config.Parse(data); err != nil {
			fmt.Fprintf(os.Stderr, "invalid configuration in etcd: %v\n", err)
			os.Exit(1)
		}
	}

	logger, err := log.New(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Build the shard topology; the ban table is sized to it.
	topo, err := topology.FromConfig(cfg.Shards)
	if err != nil {
		logger.Fatal("invalid topology", zap.Error(err))
	}

	registry, err := ban.New(topo.Shards(), cfg.Pool.FailoverToPrimary, cfg.Pool.BanTimeSeconds,
		logger.Named("ban"))
	if err != nil {
		logger.Fatal("failed to create ban registry", zap.Error(err))
	}

	var (
		sink         ban.StatsSink
		recorder     health.Recorder
		promRegistry *prometheus.Registry
	)
	if cfg.Metrics.Enabled {
		promRegistry = prometheus.NewRegistry()
		collector, err := metrics.New(&cfg.Metrics, promRegistry)
		if err != nil {
			logger.Fatal("failed to register metrics", zap.Error(err))
		}
		sink = collector
		recorder = collector
	}

	checker := health.NewChecker(&cfg.HealthCheck, topo, registry, sink, recorder,
		logger.Named("health"))
	if err := checker.Start(); err != nil {
		logger.Fatal("failed to start health checker", zap.Error(err))
	}
	defer checker.Stop()

	maintainer := health.NewMaintainer(cfg.Maintenance.Interval, topo, registry, recorder,
		logger.Named("maintenance"))
	if err := maintainer.Start(); err != nil {
		logger.Fatal("failed to start ban maintainer", zap.Error(err))
	}
	defer maintainer.Stop()

	var gatherer prometheus.Gatherer
	if promRegistry != nil {
		gatherer = promRegistry
	}
	server := admin.NewServer(&cfg.Admin, topo, registry, sink, recorder, gatherer,
		logger.Named("admin"))

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("admin server failed", zap.Error(err))
		}
	}()

	// Watch for configuration updates. Topology and policy are fixed for the
	// lifetime of the process; a change is surfaced for the operator to
	// restart into.
	if source != nil {
		watchCtx, cancelWatch := context.WithCancel(context.Background())
		defer cancelWatch()

		updates, err := source.Watch(watchCtx)
		if err != nil {
			logger.Fatal("failed to watch configuration", zap.Error(err))
		}
		go func() {
			// The watch replays the current configuration first.
			first := true
			for data := range updates {
				if first {
					first = false
					continue
				}
				if _, err := config.Parse(data); err != nil {
					logger.Error("rejected configuration update", zap.Error(err))
					continue
				}
				logger.Warn("configuration changed in etcd, restart to apply")
			}
		}()
	}

	logger.Info("shardgate node started",
		zap.Int("shards", topo.Shards()),
		zap.Bool("failover_to_primary", cfg.Pool.FailoverToPrimary),
		zap.Int64("ban_time_seconds", cfg.Pool.BanTimeSeconds))

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("admin server forced to shut down", zap.Error(err))
	}
}
