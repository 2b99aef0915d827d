package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/dfs-sim/showdown/internal/optimizer"
	"github.com/stitts-dev/dfs-sim/showdown/internal/session"
	"github.com/stitts-dev/dfs-sim/showdown/pkg/utils"
)

// respondError maps domain errors onto the response envelope.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	status, appErr := classify(err)
	entry := logger.WithFields(logrus.Fields{
		"http_method": c.Request.Method,
		"http_path":   c.FullPath(),
		"error_code":  appErr.Code,
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.WithField("correlation_id", appErr.Details).Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}
	utils.SendError(c, status, appErr)
}

func classify(err error) (int, *utils.AppError) {
	entity := optimizer.ErrorEntity(err)
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrSessionClosed):
		return http.StatusNotFound, utils.NewAppError(utils.ErrCodeNotFound, err.Error())
	case errors.Is(err, session.ErrSessionBusy):
		return http.StatusConflict, utils.NewAppError(utils.ErrCodeConflict, err.Error())
	case errors.Is(err, optimizer.ErrUnknownStrategy):
		return http.StatusBadRequest, utils.NewAppError(utils.ErrCodeUnknownStrategy, err.Error())
	case errors.Is(err, optimizer.ErrInvalidInput):
		return http.StatusBadRequest, withEntity(utils.ErrCodeValidation, err, entity)
	case errors.Is(err, optimizer.ErrInfeasible):
		return http.StatusUnprocessableEntity, withEntity(utils.ErrCodeInfeasible, err, entity)
	case errors.Is(err, optimizer.ErrExposureInfeasible):
		return http.StatusUnprocessableEntity, withEntity(utils.ErrCodeExposureInfeasible, err, entity)
	case errors.Is(err, optimizer.ErrCancelled):
		return http.StatusRequestTimeout, utils.NewAppError(utils.ErrCodeTimeout, err.Error())
	}

	id := optimizer.CorrelationID(err)
	if id == "" {
		id = optimizer.CorrelationID(optimizer.NewInternalError(err))
	}
	return http.StatusInternalServerError, utils.NewAppError(utils.ErrCodeInternal, "internal error", id)
}

func withEntity(code string, err error, entity string) *utils.AppError {
	if entity == "" {
		return utils.NewAppError(code, err.Error())
	}
	return utils.NewAppError(code, err.Error(), entity)
}
