package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/palamut62/ai-gant-news/internal/events"
	"github.com/palamut62/ai-gant-news/internal/infrastructure/storage"
	"github.com/palamut62/ai-gant-news/internal/ports"
)

const maxListLimit = 500

// RegisterTimelineRoutes registers the read side of the timeline.
//
// GET  /api/developments?limit=N   newest event first; no limit returns everything
// GET  /api/developments/:id
// POST /api/developments/:id/detail asks open viewers to show one development
// GET  /api/last-update            latest batch summary, 404 before the first successful run
func RegisterTimelineRoutes(r gin.IRoutes, reader ports.TimelineReader, bus *events.Bus) {
	r.GET("/api/developments", func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > maxListLimit {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
				return
			}
			limit = n
		}

		records, err := reader.ListDevelopments(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db query failed"})
			return
		}
		total, err := reader.CountDevelopments(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db query failed"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"developments": records, "total": total})
	})

	r.GET("/api/developments/:id", func(c *gin.Context) {
		id, ok := developmentID(c)
		if !ok {
			return
		}
		rec, err := reader.GetDevelopment(c.Request.Context(), id)
		if err != nil {
			notFoundOr500(c, err)
			return
		}
		c.JSON(http.StatusOK, rec)
	})

	r.POST("/api/developments/:id/detail", func(c *gin.Context) {
		id, ok := developmentID(c)
		if !ok {
			return
		}
		if _, err := reader.GetDevelopment(c.Request.Context(), id); err != nil {
			notFoundOr500(c, err)
			return
		}
		delivered := bus.Publish(events.DetailRequested{DevelopmentID: id})
		c.JSON(http.StatusAccepted, gin.H{"development_id": id, "delivered": delivered})
	})

	r.GET("/api/last-update", func(c *gin.Context) {
		summary, err := reader.LatestBatchSummary(c.Request.Context())
		if err != nil {
			notFoundOr500(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"last_update":   summary.CreatedAt,
			"success_count": summary.SuccessCount,
		})
	})
}

func developmentID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return 0, false
	}
	return id, true
}

func notFoundOr500(c *gin.Context, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "db query failed"})
}
