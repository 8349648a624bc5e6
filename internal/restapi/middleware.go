package restapi

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"
const contextKeyRequestID = "request_id"

// requestID returns the id middleware stamped on c, or "" if the
// logging middleware hasn't run (tests calling a handler directly).
func requestID(c *gin.Context) string {
	if v, ok := c.Get(contextKeyRequestID); ok {
		return v.(string)
	}
	return ""
}

// requestLogger stamps a request id and logs one line per completed
// request, level keyed to the response status.
func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(contextKeyRequestID, id)
		c.Header(requestIDHeader, id)

		c.Next()

		status := c.Writer.Status()
		args := []any{
			"request_id", id,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case status >= 500:
			log.Error("request completed", args...)
		case status >= 400:
			log.Warn("request completed", args...)
		default:
			log.Info("request completed", args...)
		}
	}
}

// recovery converts a panic in a handler into a 500 APIError instead of
// crashing the process.
func recovery(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic recovered",
					"request_id", requestID(c),
					"path", c.Request.URL.Path,
					"error", r,
					"stack", string(debug.Stack()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, errInternal)
			}
		}()
		c.Next()
	}
}

// limitBodySize caps request bodies.
func limitBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
