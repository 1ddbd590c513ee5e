package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/judgmentops/queue-be/internal/health"
)

// Liveness handles GET /health
// Reports process liveness and database connectivity
func (h *JobHandler) Liveness(c *gin.Context) {
	if err := h.dbClient.Ping(c.Request.Context()); err != nil {
		h.logger.Error("Database ping failed", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "unreachable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"database": "ok",
	})
}

// QueueHealth handles GET /health/queue
// Computes a fresh queue health snapshot and returns it. The HTTP status
// is 503 only when the overall status is critical, so dashboards can still
// read degraded snapshots as a success response.
func (h *JobHandler) QueueHealth(c *gin.Context) {
	snapshot := h.health.Snapshot(c.Request.Context())

	code := http.StatusOK
	if snapshot.OverallStatus == health.StatusCritical {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, snapshot)
}
