package restapi

import (
	"log/slog"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

// RouterConfig controls the gin engine NewRouter builds.
type RouterConfig struct {
	Debug       bool
	MaxBodySize int64
}

// DefaultRouterConfig returns the stock router settings.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{MaxBodySize: 10 << 20}
}

// NewRouter builds a *gin.Engine exposing every Control API operation
// under /v1, behind a recovery/logging/body-size/gzip middleware
// chain.
func NewRouter(h *Handlers, cfg RouterConfig, log *slog.Logger) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(recovery(log))
	r.Use(requestLogger(log))
	if cfg.MaxBodySize > 0 {
		r.Use(limitBodySize(cfg.MaxBodySize))
	}
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "healthy"})
	})

	v1 := r.Group("/v1")
	{
		v1.POST("/specs", h.HandleCompile)
		v1.GET("/specs/:graph_id/render", h.HandleRenderGraph)

		v1.POST("/runs", h.HandleStart)
		v1.POST("/runs/:id/resume", h.HandleResume)
		v1.POST("/runs/:id/cancel", h.HandleCancel)
		v1.GET("/runs/:id/events", h.HandleEvents)
		v1.POST("/runs/:id/snapshot", h.HandleSnapshot)
		v1.GET("/runs/:id/snapshots", h.HandleListSnapshots)
		v1.POST("/runs/:id/replay", h.HandleReplay)

		v1.GET("/dlq", h.HandleDLQList)
		v1.POST("/dlq/:event_id/requeue", h.HandleDLQRequeue)
		v1.DELETE("/dlq/:event_id", h.HandleDLQPurge)
	}

	return r
}
