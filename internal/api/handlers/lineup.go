package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/dfs-sim/showdown/internal/optimizer"
	"github.com/stitts-dev/dfs-sim/showdown/internal/session"
	"github.com/stitts-dev/dfs-sim/showdown/internal/store"
	"github.com/stitts-dev/dfs-sim/showdown/internal/strategy"
	"github.com/stitts-dev/dfs-sim/showdown/pkg/utils"
)

const storeTimeout = 5 * time.Second

// LineupHandler handles lineup generation
type LineupHandler struct {
	sessions *session.Manager
	registry *strategy.Registry
	store    store.LineupStore
	timeout  time.Duration
	logger   *logrus.Logger
}

// NewLineupHandler creates a new lineup handler. timeout is the default
// generation deadline.
func NewLineupHandler(sessions *session.Manager, registry *strategy.Registry, lineups store.LineupStore, timeout time.Duration, logger *logrus.Logger) *LineupHandler {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &LineupHandler{
		sessions: sessions,
		registry: registry,
		store:    lineups,
		timeout:  timeout,
		logger:   logger,
	}
}

// GenerateRequest asks a session for a batch of lineups.
type GenerateRequest struct {
	SessionID        string                      `json:"session_id" binding:"required"`
	Count            int                         `json:"count"`
	Strategy         string                      `json:"strategy"`
	CustomConfig     *strategy.CustomConfig      `json:"custom_config"`
	SaveToLineups    bool                        `json:"save_to_lineups"`
	ExposureSettings []optimizer.ExposureSetting `json:"exposure_settings"`
	Contest          *optimizer.Contest          `json:"contest"`
	TimeoutMs        int                         `json:"timeout_ms" binding:"min=0"`
	Seed             *uint64                     `json:"seed"`
}

type GenerateResponse struct {
	SessionID       string                 `json:"session_id"`
	GenerationID    string                 `json:"generation_id"`
	Strategy        string                 `json:"strategy"`
	Lineups         []optimizer.LineupView `json:"lineups"`
	Summary         optimizer.Summary      `json:"summary"`
	Recommendations []string               `json:"recommendations"`
	Saved           bool                   `json:"saved_to_lineups"`
}

// GenerateHybrid handles POST /lineups/generate-hybrid
func (h *LineupHandler) GenerateHybrid(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "Invalid request format", err.Error())
		return
	}
	s, err := h.sessions.Get(req.SessionID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	timeout := h.timeout
	if req.TimeoutMs > 0 {
		timeout = time.Duration(req.TimeoutMs) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	gen, err := s.Generate(ctx, session.GenerateParams{
		Count:    req.Count,
		Strategy: req.Strategy,
		Custom:   req.CustomConfig,
		Exposure: req.ExposureSettings,
		Contest:  req.Contest,
		Seed:     req.Seed,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	views := s.Pool().Views(gen.Lineups)
	resp := GenerateResponse{
		SessionID:       s.ID,
		GenerationID:    gen.ID,
		Strategy:        gen.Strategy.Name,
		Lineups:         views,
		Summary:         gen.Summary,
		Recommendations: h.registry.Advise(gen.Strategy.Name, gen.Contest, s.ActiveBounds(), &gen.Summary),
	}
	if resp.Recommendations == nil {
		resp.Recommendations = []string{}
	}

	if req.SaveToLineups && h.store != nil {
		saveCtx, cancelSave := context.WithTimeout(context.Background(), storeTimeout)
		defer cancelSave()
		if err := h.store.Save(saveCtx, views); err != nil {
			h.logger.WithError(err).WithFields(logrus.Fields{
				"session_id":    s.ID,
				"generation_id": gen.ID,
				"store":         h.store.Name(),
			}).Warn("Failed to save lineups")
		} else {
			resp.Saved = true
		}
	}

	utils.SendSuccessWithMeta(c, resp, &utils.Meta{
		Total:      len(views),
		DurationMs: gen.Summary.DurationMs,
	})
}
