package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/dfs-sim/showdown/internal/optimizer"
	"github.com/stitts-dev/dfs-sim/showdown/internal/session"
	"github.com/stitts-dev/dfs-sim/showdown/internal/strategy"
	"github.com/stitts-dev/dfs-sim/showdown/pkg/utils"
)

// OptimizerHandler handles session and strategy endpoints
type OptimizerHandler struct {
	sessions *session.Manager
	registry *strategy.Registry
	logger   *logrus.Logger
}

// NewOptimizerHandler creates a new optimizer handler
func NewOptimizerHandler(sessions *session.Manager, registry *strategy.Registry, logger *logrus.Logger) *OptimizerHandler {
	return &OptimizerHandler{
		sessions: sessions,
		registry: registry,
		logger:   logger,
	}
}

// InitializeRequest opens a session on a player pool.
type InitializeRequest struct {
	Players          []optimizer.Player          `json:"players" binding:"required"`
	Stacks           []optimizer.Stack           `json:"stacks"`
	ExposureSettings []optimizer.ExposureSetting `json:"exposure_settings"`
	Contest          *optimizer.Contest          `json:"contest"`
}

type InitializeResponse struct {
	SessionID           string       `json:"session_id"`
	RecommendedStrategy string       `json:"recommended_strategy"`
	Session             session.Info `json:"session"`
}

var defaultContest = optimizer.Contest{Type: optimizer.ContestGPP, FieldSize: 1000}

// Initialize handles POST /optimizer/initialize
func (h *OptimizerHandler) Initialize(c *gin.Context) {
	var req InitializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "Invalid request format", err.Error())
		return
	}
	contest := defaultContest
	if req.Contest != nil {
		contest = *req.Contest
	}

	s, err := h.sessions.Init(session.InitRequest{
		Players:  req.Players,
		Stacks:   req.Stacks,
		Exposure: req.ExposureSettings,
		Contest:  contest,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	utils.SendSuccess(c, InitializeResponse{
		SessionID:           s.ID,
		RecommendedStrategy: h.registry.Recommend(contest, s.ActiveBounds()),
		Session:             s.Info(),
	})
}

type StrategiesResponse struct {
	Strategies  []strategy.Info           `json:"strategies"`
	Stats       map[string]strategy.Usage `json:"stats"`
	Formulas    []string                  `json:"formulas"`
	Recommended string                    `json:"recommended,omitempty"`
}

// GetStrategies handles GET /optimizer/strategies
func (h *OptimizerHandler) GetStrategies(c *gin.Context) {
	resp := StrategiesResponse{
		Strategies: h.registry.List(),
		Stats:      h.registry.Stats(),
		Formulas:   optimizer.FormulaNames(),
	}
	if id := c.Query("session_id"); id != "" {
		s, err := h.sessions.Get(id)
		if err != nil {
			respondError(c, h.logger, err)
			return
		}
		resp.Recommended = h.registry.Recommend(s.Contest(), s.ActiveBounds())
	}
	utils.SendSuccess(c, resp)
}

// GetSession handles GET /optimizer/sessions/:session_id
func (h *OptimizerHandler) GetSession(c *gin.Context) {
	s, err := h.sessions.Get(c.Param("session_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	utils.SendSuccess(c, s.Info())
}

// CloseSession handles DELETE /optimizer/sessions/:session_id
func (h *OptimizerHandler) CloseSession(c *gin.Context) {
	id := c.Param("session_id")
	if err := h.sessions.Close(id); err != nil {
		respondError(c, h.logger, err)
		return
	}
	utils.SendSuccess(c, gin.H{"session_id": id, "closed": true})
}

type FormulaRequest struct {
	Formula string `json:"formula" binding:"required"`
}

// SetFormula handles PUT /optimizer/sessions/:session_id/formula
func (h *OptimizerHandler) SetFormula(c *gin.Context) {
	var req FormulaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "Invalid request format", err.Error())
		return
	}
	s, err := h.sessions.Get(c.Param("session_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if err := s.SetFormula(req.Formula); err != nil {
		respondError(c, h.logger, err)
		return
	}
	utils.SendSuccess(c, s.Info())
}
