package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// StartScheduler starts the sweep scheduler
func (h *Handlers) StartScheduler(c *gin.Context) {
	if err := h.scheduler.Start(); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "scheduler_error",
			Message: "Failed to start scheduler",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Scheduler started successfully",
		"status":  "running",
	})
}

// StopScheduler stops the sweep scheduler
func (h *Handlers) StopScheduler(c *gin.Context) {
	if err := h.scheduler.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "scheduler_error",
			Message: "Failed to stop scheduler",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Scheduler stopped successfully",
		"status":  "stopped",
	})
}

// RunOnce runs a sweep immediately. The sweep never fails; its outcome is
// reported in the body. A sweep stopped half way leaves notified threads
// marked, so it outlives the request.
func (h *Handlers) RunOnce(c *gin.Context) {
	result := h.scheduler.RunOnce(context.WithoutCancel(c.Request.Context()))

	message := "Sweep completed successfully"
	if result.Error != "" {
		message = "Sweep ended early"
	}

	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"result":  result,
	})
}

// GetSchedulerStatus returns the current scheduler status
func (h *Handlers) GetSchedulerStatus(c *gin.Context) {
	status := "stopped"
	if h.scheduler.IsRunning() {
		status = "running"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   status,
		"next_run": h.scheduler.GetNextRun(),
		"last_run": h.scheduler.GetLastRun(),
	})
}
