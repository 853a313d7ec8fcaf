package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/palamut62/ai-gant-news/internal/domain"
)

// CronSecretHeader carries the shared secret of the scheduled trigger.
const CronSecretHeader = "x-cron-secret"

// Runner executes one ingestion run.
type Runner interface {
	Run(ctx context.Context) (domain.RunReport, error)
}

// RegisterIngestRoutes registers the trigger endpoints.
//
// GET /api/update-ai
// - Runs the pipeline synchronously and returns its report
// - 500 with {error, details} when the generator broke the reply contract
//
// GET /api/cron
// - Requires x-cron-secret matching the configured secret; an empty secret rejects every call
// - Wraps the report as {success, message, updateResult}
func RegisterIngestRoutes(r gin.IRoutes, runner Runner, cronSecret string) {
	r.GET("/api/update-ai", func(c *gin.Context) {
		report, err := runner.Run(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "update failed",
				"details": err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, report)
	})

	r.GET("/api/cron", func(c *gin.Context) {
		if !validSecret(c.GetHeader(CronSecretHeader), cronSecret) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		report, err := runner.Run(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "cron job failed",
				"details": err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"message":      "cron job completed",
			"updateResult": report,
		})
	})
}

func validSecret(got, want string) bool {
	if want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
