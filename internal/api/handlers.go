package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"binance-ats/internal/cache"

	"github.com/gin-gonic/gin"
)

const (
	defaultPlanLimit = 50
	maxPlanLimit     = 500
)

// handleHealth returns 503 when the store is unreachable.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.deps.Store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "unhealthy",
			"error":    err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": "healthy",
		"uptime_s": int(time.Since(s.startedAt).Seconds()),
	})
}

// handleStatus reports loop state, switches, breaker, cache and the last pass.
func (s *Server) handleStatus(c *gin.Context) {
	ctx := c.Request.Context()
	status := gin.H{
		"state":      s.deps.Scanner.State(),
		"switches":   s.deps.Switches(),
		"ws_clients": s.hub.GetClientCount(),
	}

	if s.deps.Breaker != nil {
		status["breaker"] = s.deps.Breaker()
	}
	if s.deps.Cache != nil {
		if st, ok := cache.StatsOf(s.deps.Cache); ok {
			status["cache"] = st
		}
	}
	if s.deps.Budget != nil {
		if remaining, err := s.deps.Budget.Remaining(ctx, time.Now()); err != nil {
			s.logger.Warn("failed to read hourly budget", "error", err)
		} else {
			status["hourly_budget_remaining"] = remaining
		}
	}

	if last := s.deps.Scanner.LastResult(); last != nil {
		status["last_scan"] = gin.H{
			"scan_id":     last.ScanID,
			"finished_at": last.EndTime,
			"duration_ms": last.Duration.Milliseconds(),
			"scanned":     last.Scanned,
			"candidates":  len(last.Candidates),
			"plans":       len(last.Plans),
			"errors":      last.ErrorCount,
		}
	}
	if err := s.deps.Scanner.LastError(); err != nil {
		status["last_error"] = err.Error()
	}

	successResponse(c, status)
}

func (s *Server) handleLastScan(c *gin.Context) {
	last := s.deps.Scanner.LastResult()
	if last == nil {
		errorResponse(c, http.StatusNotFound, "no scan has completed yet")
		return
	}
	successResponse(c, last)
}

// handlePlans lists recorded plans, newest first. ?limit= caps the count.
func (s *Server) handlePlans(c *gin.Context) {
	limit := defaultPlanLimit
	if l := c.Query("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			errorResponse(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxPlanLimit)
	}

	plans, err := s.deps.Store.RecentPlans(c.Request.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list plans", "error", err)
		errorResponse(c, http.StatusInternalServerError, "failed to list plans")
		return
	}
	successResponse(c, plans)
}

// handleOverlay returns the current heat entries above the configured floor.
func (s *Server) handleOverlay(c *gin.Context) {
	if s.deps.Overlay == nil {
		errorResponse(c, http.StatusNotFound, "overlay disabled")
		return
	}

	limit := s.overlay.Limit
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	entries, err := s.deps.Overlay.Entries(c.Request.Context(), limit, s.overlay.MinHeat)
	if err != nil {
		s.logger.Error("failed to read overlay", "error", err)
		errorResponse(c, http.StatusInternalServerError, "failed to read overlay")
		return
	}
	successResponse(c, entries)
}
