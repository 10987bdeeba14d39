package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"filevault-backend/internal/shared/telemetry"
)

// JobKey is the context key handlers set when a request concerns one job.
const JobKey = "job"

// Logging emits a structured log per request, except for paths in skipPaths.
func Logging(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if _, ok := skip[c.Request.URL.Path]; ok {
			return
		}

		fields := map[string]any{
			"request_id":  RequestIDFromContext(c),
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"route":       c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000.0,
			"client_ip":   c.ClientIP(),
		}
		if job := c.GetString(JobKey); job != "" {
			fields[JobKey] = job
		}
		telemetry.Info("request.complete", fields)
	}
}
