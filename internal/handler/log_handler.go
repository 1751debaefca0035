package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"label-notifier-go/internal/model"
	"label-notifier-go/internal/repository"
)

// GetSweeps returns sweep runs with pagination
func (h *Handlers) GetSweeps(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}

	offset := (page - 1) * limit

	runs, total, err := h.store.ListSweepRuns(offset, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch sweep runs",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	responses := make([]SweepRunResponse, 0, len(runs))
	for _, run := range runs {
		responses = append(responses, toSweepRunResponse(run))
	}

	c.JSON(http.StatusOK, gin.H{
		"sweeps": responses,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetSweep returns one sweep run with its notification attempts
func (h *Handlers) GetSweep(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid sweep ID",
			Code:    http.StatusBadRequest,
		})
		return
	}

	run, err := h.store.GetSweepRun(uint(id))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error:   "not_found",
				Message: "Sweep not found",
				Code:    http.StatusNotFound,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch sweep",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	response := toSweepRunResponse(*run)
	for _, entry := range run.Notifications {
		response.Notifications = append(response.Notifications, NotificationLogResponse{
			ID:          entry.ID,
			ThreadID:    entry.ThreadID,
			Subject:     entry.Subject,
			Destination: entry.Destination,
			Status:      entry.Status,
			ErrorMsg:    entry.ErrorMsg,
			CreatedAt:   entry.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, response)
}

func toSweepRunResponse(run model.SweepRun) SweepRunResponse {
	return SweepRunResponse{
		ID:            run.ID,
		RunID:         run.RunID,
		Marker:        run.Marker,
		Status:        run.Status,
		ThreadCount:   run.ThreadCount,
		NotifiedCount: run.NotifiedCount,
		UnmarkedCount: run.UnmarkedCount,
		ErrorMsg:      run.ErrorMsg,
		StartedAt:     run.StartedAt,
		FinishedAt:    run.FinishedAt,
	}
}
