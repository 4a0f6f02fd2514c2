// Package admin exposes the node's observability and operator surface:
// ban listing, admin bans/unbans, metrics and liveness.
package admin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ferrodb/shardgate/internal/ban"
	"github.com/ferrodb/shardgate/internal/config"
	"github.com/ferrodb/shardgate/internal/health"
	"github.com/ferrodb/shardgate/internal/topology"
)

// Server is the admin HTTP server.
type Server struct {
	cfg      *config.AdminConfig
	topo     *topology.Topology
	registry *ban.Registry
	sink     ban.StatsSink
	recorder health.Recorder
	logger   *zap.Logger

	engine *gin.Engine
	server *http.Server
}

// NewServer creates the admin server and registers its routes.
func NewServer(cfg *config.AdminConfig, topo *topology.Topology, registry *ban.Registry,
	sink ban.StatsSink, recorder health.Recorder, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		cfg:      cfg,
		topo:     topo,
		registry: registry,
		sink:     sink,
		recorder: recorder,
		logger:   logger,
		engine:   engine,
	}

	engine.GET("/healthz", s.handleHealthz)
	if gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := engine.Group("/v1")
	v1.GET("/bans", s.handleListBans)

	mutating := v1.Group("")
	if cfg.JWTSecret != "" {
		mutating.Use(jwtAuth(cfg.JWTSecret, logger))
	}
	mutating.POST("/bans", s.handleAdminBan)
	mutating.DELETE("/bans", s.handleAdminUnban)

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the underlying HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start runs the admin server until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("admin server listening", zap.String("address", s.cfg.Address))
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the admin server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
