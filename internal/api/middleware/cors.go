package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// OriginAllowed reports whether origin is listed. "*" allows every origin.
func OriginAllowed(origins []string) func(origin string) bool {
	return func(origin string) bool {
		for _, o := range origins {
			o = strings.TrimSpace(o)
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}

// CORS answers preflight requests and echoes allowed origins.
func CORS(origins []string) gin.HandlerFunc {
	allowed := OriginAllowed(origins)
	return func(c *gin.Context) {
		if origin := c.Request.Header.Get("Origin"); origin != "" && allowed(origin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
			c.Writer.Header().Set("Vary", "Origin")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
