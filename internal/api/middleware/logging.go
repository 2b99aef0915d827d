package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/dfs-sim/showdown/pkg/metrics"
)

// RequestLogger logs every request with logrus and records it in metrics.
// Server errors log at error level, client errors at warn.
func RequestLogger(logger *logrus.Logger, m *metrics.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		took := time.Since(start)
		status := c.Writer.Status()
		route := c.FullPath()
		m.HTTPRequest(route, c.Request.Method, status, took)

		entry := logger.WithFields(logrus.Fields{
			"http_method":     c.Request.Method,
			"http_path":       c.Request.URL.Path,
			"http_route":      route,
			"http_status":     status,
			"http_user_agent": c.Request.UserAgent(),
			"latency_ms":      took.Milliseconds(),
			"client_ip":       c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}
		switch {
		case status >= 500:
			entry.Error("HTTP request")
		case status >= 400:
			entry.Warn("HTTP request")
		default:
			entry.Info("HTTP request")
		}
	}
}
