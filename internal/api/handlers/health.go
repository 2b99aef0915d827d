package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/dfs-sim/showdown/internal/session"
	"github.com/stitts-dev/dfs-sim/showdown/internal/store"
)

// pinger is implemented by stores with a remote backend.
type pinger interface {
	Ping(ctx context.Context) error
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Timestamp time.Time         `json:"timestamp"`
	Sessions  int               `json:"sessions"`
	Checks    map[string]string `json:"checks"`
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	sessions *session.Manager
	store    store.LineupStore
	logger   *logrus.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(sessions *session.Manager, lineups store.LineupStore, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{
		sessions: sessions,
		store:    lineups,
		logger:   logger,
	}
}

// GetHealth returns the basic health status. A failing redis store degrades
// the service since saves fall back to memory.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	response := HealthStatus{
		Status:    "ok",
		Service:   "showdown-optimizer",
		Timestamp: time.Now(),
		Sessions:  h.sessions.Len(),
		Checks:    make(map[string]string),
	}

	switch {
	case h.store == nil:
		response.Checks["lineup_store"] = "not_configured"
	default:
		response.Checks["lineup_store"] = h.store.Name()
		if p, ok := h.store.(pinger); ok {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				response.Status = "degraded"
				response.Checks[h.store.Name()] = "failed: " + err.Error()
			} else {
				response.Checks[h.store.Name()] = "ok"
			}
		}
	}

	statusCode := http.StatusOK
	if response.Status == "degraded" {
		statusCode = http.StatusPartialContent
	}
	c.JSON(statusCode, response)
}
