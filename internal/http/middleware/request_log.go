package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/casestudy-backend/internal/platform/ctxutil"
	"github.com/yungbote/casestudy-backend/internal/platform/logger"
)

// RequestLogger writes one line per request once the handler chain finishes. Handler errors
// attached with c.Error (masked 5xx causes) are logged here rather than returned to the client.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := routeLabel(c)
		status := c.Writer.Status()
		kv := append([]interface{}{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"bytes", c.Writer.Size(),
			"duration_ms", time.Since(start).Milliseconds(),
		}, ctxutil.LogFields(c.Request.Context())...)
		if route == unmatchedRoute {
			kv = append(kv, "path", c.Request.URL.Path)
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			kv = append(kv, "error", errs.Last().Err)
		}

		switch {
		case status >= 500:
			log.Error("request failed", kv...)
		case status >= 400:
			log.Warn("request rejected", kv...)
		case quietRoutes[route]:
			log.Debug("request", kv...)
		default:
			log.Info("request", kv...)
		}
	}
}
