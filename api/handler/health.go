package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/listcrawl/jobs"
	"github.com/use-agent/listcrawl/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// sessions may be nil when no browser engine is configured. Status
// degrades when every browser session slot is in use.
func Health(engines []string, sessions func() models.SessionStats, store *jobs.Store, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		var stats models.SessionStats
		if sessions != nil {
			stats = sessions()
		}

		status := "healthy"
		if stats.MaxSessions > 0 && stats.OpenSessions >= stats.MaxSessions {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:       status,
			Uptime:       time.Since(startTime).Round(time.Second).String(),
			Engines:      engines,
			SessionStats: stats,
			Jobs:         store.Stats(),
			Version:      Version,
		})
	}
}
