package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/palamut62/ai-gant-news/internal/events"
	"github.com/palamut62/ai-gant-news/internal/notify"
)

// RegisterFeedRoutes registers the audit log endpoints.
//
// GET /api/logs?limit=N   most recent audit entries, newest first
// GET /api/logs/stream    server-sent events:
//   - "snapshot" once, with the most recent entries
//   - "log" for every new audit entry of the trailing window
//   - "refresh" after a run stored developments
//   - "detail" when a viewer asked for one development
//
// The stream subscriber is keyed by ?subscriber=ID; reconnecting with the same ID replaces the
// previous stream.
func RegisterFeedRoutes(r gin.IRoutes, bridge *notify.Bridge, bus *events.Bus) {
	r.GET("/api/logs", func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > maxListLimit {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
				return
			}
			limit = n
		}

		entries, err := bridge.Recent(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db query failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"logs": entries})
	})

	r.GET("/api/logs/stream", func(c *gin.Context) {
		ctx := c.Request.Context()

		sub, err := bridge.Subscribe(ctx, c.Query("subscriber"))
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, notify.ErrClosed) {
				status = http.StatusServiceUnavailable
			}
			c.JSON(status, gin.H{"error": "feed unavailable"})
			return
		}
		defer sub.Close()

		signals, cancel := bus.Subscribe(events.TopicDataChanged, events.TopicDetailRequested)
		defer cancel()

		recent, err := bridge.Recent(ctx, 0)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db query failed"})
			return
		}

		c.Header("Cache-Control", "no-cache")
		c.Header("X-Accel-Buffering", "no")
		c.SSEvent("snapshot", recent)
		c.Writer.Flush()

		c.Stream(func(io.Writer) bool {
			select {
			case entry, ok := <-sub.C:
				if !ok {
					return false
				}
				c.SSEvent("log", entry)
				return true
			case msg, ok := <-signals:
				if !ok {
					return false
				}
				switch m := msg.(type) {
				case events.DataChanged:
					c.SSEvent("refresh", m)
				case events.DetailRequested:
					c.SSEvent("detail", m)
				}
				return true
			case <-ctx.Done():
				return false
			}
		})
	})
}
