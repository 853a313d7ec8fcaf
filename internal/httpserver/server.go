package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/palamut62/ai-gant-news/internal/events"
	"github.com/palamut62/ai-gant-news/internal/handlers"
	"github.com/palamut62/ai-gant-news/internal/metrics"
	"github.com/palamut62/ai-gant-news/internal/notify"
	"github.com/palamut62/ai-gant-news/internal/ports"
)

// Pinger reports whether the storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps lists what the router serves.
type Deps struct {
	Runner     handlers.Runner
	Reader     ports.TimelineReader
	Store      Pinger
	Bridge     *notify.Bridge
	Bus        *events.Bus
	Metrics    *metrics.Recorder
	CronSecret string
}

// NewRouter wires public endpoints and the timeline APIs.
// Public: /health, /ready, /metrics
// Timeline: /api/update-ai, /api/cron, /api/developments, /api/logs, /api/last-update
func NewRouter(deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	// Liveness: confirms the process is running.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: confirms the DB dependency is reachable.
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := deps.Store.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	handlers.RegisterIngestRoutes(r, deps.Runner, deps.CronSecret)
	handlers.RegisterTimelineRoutes(r, deps.Reader, deps.Bus)
	handlers.RegisterFeedRoutes(r, deps.Bridge, deps.Bus)

	return r
}
