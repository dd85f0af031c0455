package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ppiankov/claimdesk/internal/http/response"
	"github.com/ppiankov/claimdesk/internal/logging"
	"github.com/ppiankov/claimdesk/internal/worker"
)

// RateLimit rejects clients that exceed the limiter's per-address budget.
func RateLimit(l *worker.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.AllowKey(c.ClientIP()) {
			response.RespondMessage(c, http.StatusTooManyRequests, response.CodeRateLimited, "Too many requests. Please slow down.")
			return
		}
		c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger(log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		kv := []interface{}{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client", c.ClientIP(),
		}
		if id := c.Param("id"); id != "" {
			kv = append(kv, "session", id)
		}
		switch status := c.Writer.Status(); {
		case status >= 500:
			log.Error("request failed", kv...)
		case status >= 400:
			log.Warn("request rejected", kv...)
		default:
			log.Debug("request", kv...)
		}
	}
}
