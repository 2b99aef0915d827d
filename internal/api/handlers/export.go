package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/dfs-sim/showdown/internal/export"
	"github.com/stitts-dev/dfs-sim/showdown/internal/optimizer"
	"github.com/stitts-dev/dfs-sim/showdown/internal/session"
	"github.com/stitts-dev/dfs-sim/showdown/internal/store"
	"github.com/stitts-dev/dfs-sim/showdown/pkg/utils"
)

// ExportHandler handles lineup export
type ExportHandler struct {
	sessions *session.Manager
	store    store.LineupStore
	exporter *export.Exporter
	logger   *logrus.Logger
}

// NewExportHandler creates a new export handler
func NewExportHandler(sessions *session.Manager, lineups store.LineupStore, exporter *export.Exporter, logger *logrus.Logger) *ExportHandler {
	return &ExportHandler{
		sessions: sessions,
		store:    lineups,
		exporter: exporter,
		logger:   logger,
	}
}

// ExportRequest names the lineups to export. Lineups are looked up in the
// session first, then in the lineup store.
type ExportRequest struct {
	Format    string   `json:"format" binding:"required"`
	LineupIDs []string `json:"lineup_ids" binding:"required,min=1"`
	SessionID string   `json:"session_id"`
}

// GetFormats handles GET /lineups/export/formats
func (h *ExportHandler) GetFormats(c *gin.Context) {
	utils.SendSuccess(c, export.Formats())
}

// ExportLineups handles POST /lineups/export
func (h *ExportHandler) ExportLineups(c *gin.Context) {
	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendValidationError(c, "Invalid request format", err.Error())
		return
	}

	views, missing, err := h.collect(c, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if len(missing) > 0 {
		utils.SendError(c, http.StatusNotFound, utils.NewAppError(
			utils.ErrCodeNotFound,
			fmt.Sprintf("%d lineups not found", len(missing)),
			strings.Join(missing, ","),
		))
		return
	}

	res, err := h.exporter.Export(req.Format, views)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"format":  req.Format,
		"lineups": len(views),
		"bytes":   len(res.Data),
	}).Info("Exported lineups")

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", res.FileName))
	c.Data(http.StatusOK, res.ContentType, res.Data)
}

func (h *ExportHandler) collect(c *gin.Context, req ExportRequest) ([]optimizer.LineupView, []string, error) {
	byID := make(map[string]optimizer.LineupView, len(req.LineupIDs))
	missing := req.LineupIDs

	if req.SessionID != "" {
		s, err := h.sessions.Get(req.SessionID)
		if err != nil {
			return nil, nil, err
		}
		var found []optimizer.ScoredLineup
		found, missing = s.Lineups(req.LineupIDs)
		for _, v := range s.Pool().Views(found) {
			byID[v.ID] = v
		}
	}

	if len(missing) > 0 && h.store != nil {
		stored, err := h.store.Get(c.Request.Context(), missing)
		if err != nil {
			return nil, nil, fmt.Errorf("load lineups from %s store: %w", h.store.Name(), err)
		}
		for _, v := range stored {
			byID[v.ID] = v
		}
	}

	views := make([]optimizer.LineupView, 0, len(req.LineupIDs))
	var notFound []string
	for _, id := range req.LineupIDs {
		if v, ok := byID[id]; ok {
			views = append(views, v)
		} else {
			notFound = append(notFound, id)
		}
	}
	return views, notFound, nil
}
