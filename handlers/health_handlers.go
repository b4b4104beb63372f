// api/handlers/health_handlers.go
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is the liveness check a dependency exposes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck reports liveness plus the state of the event store
// connection. The cache is deliberately not part of health: the service
// keeps answering, degraded, without it.
func HealthCheck(eventStore Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		overall := "ok"
		eventStoreStatus := "ok"
		if err := eventStore.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			overall = "unhealthy"
			eventStoreStatus = "unavailable"
		}

		c.JSON(status, gin.H{
			"status":      overall,
			"event_store": eventStoreStatus,
		})
	}
}
