package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/judgmentops/queue-be/internal/api/dto"
)

// RunReaper handles POST /api/v1/admin/reaper/run
// Performs a manual stuck-job sweep with an operator-chosen timeout. The
// sweep runs in-process against the database, so it works even when the
// worker service hosting the scheduled sweeps is down.
func (h *JobHandler) RunReaper(c *gin.Context) {
	var req dto.ManualResetRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid request body",
			})
			return
		}
	}

	if req.TimeoutMinutes < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "timeout_minutes must not be negative",
		})
		return
	}

	timeout := h.config.Reaper.ManualResetTimeout
	if req.TimeoutMinutes > 0 {
		timeout = time.Duration(req.TimeoutMinutes) * time.Minute
	}

	// Guard against an operator reclaiming jobs that are merely slow.
	if timeout < h.config.Reaper.MinResetTimeout {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "timeout_minutes is below the minimum reset timeout",
		})
		return
	}

	result := h.sweeper.RunManual(timeout)
	if result.Skipped {
		c.JSON(http.StatusConflict, gin.H{
			"error": "A sweep is already in progress",
		})
		return
	}

	h.logger.Info("Manual sweep finished",
		slog.Int64("jobs_reset", result.JobsReset),
		slog.Duration("timeout", timeout),
	)

	c.JSON(http.StatusOK, dto.ManualResetResponse{
		Skipped:        false,
		JobsReset:      result.JobsReset,
		TimeoutMinutes: int(timeout / time.Minute),
	})
}
