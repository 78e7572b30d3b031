package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/circlechat/internal/metrics"
)

// RequestLogger logs one line per request and records its latency.
// Headers are never logged.
func RequestLogger(log *slog.Logger, m *metrics.Metrics) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "http")

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		m.ObserveHTTP(c.Request.Method, route, status, elapsed)

		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		}
		log.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency", elapsed,
			"remote", c.ClientIP(),
		)
	}
}
