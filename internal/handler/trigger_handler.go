package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"label-notifier-go/internal/scheduler"
)

// GetTriggers returns all stored triggers
func (h *Handlers) GetTriggers(c *gin.Context) {
	triggers, err := h.scheduler.Triggers()
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch triggers",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	responses := make([]TriggerResponse, 0, len(triggers))
	for _, trigger := range triggers {
		responses = append(responses, TriggerResponse{
			ID:        trigger.ID,
			Schedule:  trigger.Schedule,
			CreatedAt: trigger.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, responses)
}

// CreateTrigger adds a cron trigger for the sweep
func (h *Handlers) CreateTrigger(c *gin.Context) {
	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	trigger, err := h.scheduler.AddTrigger(req.Schedule)
	if err != nil {
		if errors.Is(err, scheduler.ErrInvalidSchedule) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "validation_error",
				Message: err.Error(),
				Code:    http.StatusBadRequest,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to create trigger",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusCreated, TriggerResponse{
		ID:        trigger.ID,
		Schedule:  trigger.Schedule,
		CreatedAt: trigger.CreatedAt,
	})
}
