package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestSendSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	SendSuccessWithMeta(c, gin.H{"session_id": "abc"}, &Meta{Total: 3})

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.Equal(t, 3, resp.Meta.Total)
	assert.Equal(t, "abc", resp.Data.(map[string]interface{})["session_id"])
}

func TestSendErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name   string
		send   func(c *gin.Context)
		status int
		code   string
	}{
		{"validation", func(c *gin.Context) { SendValidationError(c, "bad body", "count must be positive") }, http.StatusBadRequest, ErrCodeValidation},
		{"not found", func(c *gin.Context) { SendNotFound(c, "session not found") }, http.StatusNotFound, ErrCodeNotFound},
		{"conflict", func(c *gin.Context) { SendConflict(c, "busy") }, http.StatusConflict, ErrCodeConflict},
		{"rate limited", func(c *gin.Context) { SendTooManyRequests(c, "slow down") }, http.StatusTooManyRequests, ErrCodeRateLimited},
		{"internal", func(c *gin.Context) { SendInternalError(c, "boom") }, http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			tt.send(c)

			assert.Equal(t, tt.status, rec.Code)
			resp := decode(t, rec)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestNewAppError(t *testing.T) {
	err := NewAppError(ErrCodeInfeasible, "no feasible lineup", "min salary 51000", "cap 50000")
	assert.Equal(t, "min salary 51000; cap 50000", err.Details)
	assert.Equal(t, "INFEASIBLE: no feasible lineup (min salary 51000; cap 50000)", err.Error())
	assert.Equal(t, "NOT_FOUND: gone", NewAppError(ErrCodeNotFound, "gone").Error())
}
