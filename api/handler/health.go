package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/livebox/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Status is "awaiting_login" while an interactive surface waits on the user.
func Health(svc Service, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		pending := svc.InteractivePending()

		status := "healthy"
		if pending {
			status = "awaiting_login"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:             status,
			Uptime:             time.Since(startTime).Round(time.Second).String(),
			InteractivePending: pending,
			PendingSurfaces:    svc.PendingSurfaces(),
			Version:            Version,
		})
	}
}
