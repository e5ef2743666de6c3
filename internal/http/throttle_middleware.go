package http

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"projectflow/internal/service"
)

// ThrottleMiddleware corta con 429 antes del handler cuando la IP agota su cuota.
// Si el store falla, deja pasar el request.
func ThrottleMiddleware(logger *zap.Logger, throttle service.Throttle, message string) gin.HandlerFunc {
	rejected := &service.Error{Code: service.CodeRateLimited, Message: message}
	if message == "" {
		rejected = service.ErrRateLimited
	}
	return func(c *gin.Context) {
		decision, err := throttle.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.Warn("throttle unavailable, allowing request", zap.Error(err), zap.String("path", c.FullPath()))
			c.Next()
			return
		}

		reset := ceilSeconds(decision.ResetIn)
		h := c.Writer.Header()
		h.Set("RateLimit-Limit", strconv.Itoa(decision.Limit))
		h.Set("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		h.Set("RateLimit-Reset", strconv.FormatInt(reset, 10))
		if !decision.Allowed {
			h.Set("Retry-After", strconv.FormatInt(reset, 10))
			respondError(c, logger, rejected)
			return
		}
		c.Next()
	}
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}
