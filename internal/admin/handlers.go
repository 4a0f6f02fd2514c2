package admin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ferrodb/shardgate/internal/ban"
	"github.com/ferrodb/shardgate/internal/topology"
)

// banEntry is the wire form of one ban table entry.
type banEntry struct {
	Host     string    `json:"host"`
	Port     int       `json:"port"`
	Shard    int       `json:"shard"`
	Role     string    `json:"role"`
	Reason   string    `json:"reason"`
	BannedAt time.Time `json:"banned_at"`
	Errors   int64     `json:"error_count"`
}

// banRequest is the body of admin ban/unban requests.
type banRequest struct {
	Host            string `json:"host" binding:"required"`
	Port            int    `json:"port" binding:"required"`
	Shard           int    `json:"shard"`
	DurationSeconds int64  `json:"duration_seconds"`
}

// handleListBans handles GET /v1/bans.
func (s *Server) handleListBans(c *gin.Context) {
	bans := s.registry.Bans()

	entries := make([]banEntry, 0, len(bans))
	for _, b := range bans {
		entries = append(entries, banEntry{
			Host:     b.Endpoint.Host,
			Port:     b.Endpoint.Port,
			Shard:    b.Endpoint.Shard,
			Role:     b.Endpoint.Role.String(),
			Reason:   b.Reason.String(),
			BannedAt: b.BannedAt,
			Errors:   b.Endpoint.ErrorCount(),
		})
	}

	c.JSON(http.StatusOK, gin.H{"bans": entries})
}

// handleAdminBan handles POST /v1/bans: an operator-initiated ban with an
// explicit expiry.
func (s *Server) handleAdminBan(c *gin.Context) {
	req, endpoint, ok := s.resolveEndpoint(c)
	if !ok {
		return
	}
	if req.DurationSeconds <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "duration_seconds must be positive",
		})
		return
	}
	if endpoint.Role == topology.RolePrimary {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "primary_not_bannable",
			"message": "a primary endpoint cannot be banned",
		})
		return
	}

	reason := ban.AdminBan(req.DurationSeconds)
	s.registry.Ban(endpoint, reason, s.sink)
	if s.recorder != nil {
		s.recorder.RecordBan(reason.String(), endpoint.Shard)
	}

	s.logger.Info("admin ban applied",
		zap.String("endpoint", endpoint.Addr()),
		zap.Int64("duration_seconds", req.DurationSeconds))
	c.JSON(http.StatusCreated, gin.H{"message": "endpoint banned"})
}

// handleAdminUnban handles DELETE /v1/bans.
func (s *Server) handleAdminUnban(c *gin.Context) {
	_, endpoint, ok := s.resolveEndpoint(c)
	if !ok {
		return
	}

	s.registry.Unban(endpoint)
	s.logger.Info("admin unban applied", zap.String("endpoint", endpoint.Addr()))
	c.JSON(http.StatusOK, gin.H{"message": "endpoint unbanned"})
}

// resolveEndpoint parses the request body and finds the configured endpoint
// it names. Writes the error response itself on failure.
func (s *Server) resolveEndpoint(c *gin.Context) (*banRequest, *topology.Endpoint, bool) {
	var req banRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return nil, nil, false
	}

	endpoint := s.topo.Lookup(req.Shard, req.Host, req.Port)
	if endpoint == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "unknown_endpoint",
			"message": "no such endpoint in the configured topology",
		})
		return nil, nil, false
	}
	return &req, endpoint, true
}
