package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/toolsentry/toolsentry/internal/metrics"
)

const requestIDHeader = "X-Request-ID"

// loggerContextKey is the gin context key an enriched per-request logger is
// stored under.
const loggerContextKey = "toolsentry.logger"

// requestIDMiddleware extracts or generates a request ID, enriches the
// base logger with it, and echoes it back on the response.
func requestIDMiddleware(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Header(requestIDHeader, id)
		c.Set(loggerContextKey, base.With("request_id", id))
		c.Next()
	}
}

// loggerFromContext returns the enriched per-request logger, falling back
// to slog.Default if requestIDMiddleware was not run.
func loggerFromContext(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(loggerContextKey); ok {
		if logger, ok := v.(*slog.Logger); ok {
			return logger
		}
	}
	return slog.Default()
}

// metricsMiddleware records per-endpoint request counts and latency.
func metricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		status := "ok"
		if c.Writer.Status() >= 400 {
			status = "error"
		}
		m.RequestsTotal.WithLabelValues(endpoint, status).Inc()
		m.RequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}
