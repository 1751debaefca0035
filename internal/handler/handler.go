package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"label-notifier-go/internal/model"
	"label-notifier-go/internal/scheduler"
	"label-notifier-go/internal/sweep"
)

const (
	menuTitle          = "Gmail Email Alerts"
	stopAlertsTitle    = "Success"
	stopAlertsMessage  = "You will not be getting email alerts anymore."
	authorizeTimeout   = 30 * time.Second
	statusAuthorized   = "authorized"
	statusUnauthorized = "unauthorized"
)

// AuditStore is the read side of the sweep audit trail
type AuditStore interface {
	Ping() error
	ListSweepRuns(offset, limit int) ([]model.SweepRun, int64, error)
	GetSweepRun(id uint) (*model.SweepRun, error)
}

// Verifier checks that a mail component can reach the account
type Verifier interface {
	Verify(ctx context.Context) error
}

// LastRunner reports the most recent sweep
type LastRunner interface {
	LastRun() (sweep.Result, bool)
}

// Handlers contains all HTTP handlers
type Handlers struct {
	store     AuditStore
	scheduler *scheduler.Scheduler
	sweeper   LastRunner
	verifiers map[string]Verifier
}

// NewHandlers creates new HTTP handlers. verifiers are checked, by name, on authorize.
func NewHandlers(store AuditStore, scheduler *scheduler.Scheduler, sweeper LastRunner, verifiers map[string]Verifier) *Handlers {
	return &Handlers{
		store:     store,
		scheduler: scheduler,
		sweeper:   sweeper,
		verifiers: verifiers,
	}
}

// SetupRoutes sets up all HTTP routes. apiMiddleware guards the /api/v1 group.
func (h *Handlers) SetupRoutes(router *gin.Engine, apiMiddleware ...gin.HandlerFunc) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1", apiMiddleware...)
	{
		api.GET("/menu", h.GetMenu)
		api.POST("/authorize", h.Authorize)
		api.POST("/alerts/stop", h.StopAlerts)

		api.GET("/triggers", h.GetTriggers)
		api.POST("/triggers", h.CreateTrigger)

		api.POST("/sweep/run-once", h.RunOnce)

		api.POST("/scheduler/start", h.StartScheduler)
		api.POST("/scheduler/stop", h.StopScheduler)
		api.GET("/scheduler/status", h.GetSchedulerStatus)

		api.GET("/sweeps", h.GetSweeps)
		api.GET("/sweeps/:id", h.GetSweep)
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "ok",
		Scheduler: "stopped",
		Metrics:   make(map[string]string),
	}

	if err := h.store.Ping(); err != nil {
		response.Status = "error"
		response.Database = "error"
		logrus.Errorf("Database health check failed: %v", err)
	}

	if h.scheduler.IsRunning() {
		response.Scheduler = "running"
		response.Metrics["next_run"] = h.scheduler.GetNextRun().Format(time.RFC3339)
		response.Metrics["last_run"] = h.scheduler.GetLastRun().Format(time.RFC3339)
	}

	if last, ok := h.sweeper.LastRun(); ok {
		response.Metrics["last_sweep"] = last.FinishedAt.Format(time.RFC3339)
		response.Metrics["last_sweep_status"] = "success"
		if last.Error != "" {
			response.Metrics["last_sweep_status"] = "failure"
		}
	}

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

// GetMenu returns the owner actions
func (h *Handlers) GetMenu(c *gin.Context) {
	c.JSON(http.StatusOK, MenuResponse{
		Title: menuTitle,
		Entries: []MenuEntry{
			{Name: "Authorize", Method: http.MethodPost, Path: "/api/v1/authorize"},
			{Name: "Stop alerts", Method: http.MethodPost, Path: "/api/v1/alerts/stop"},
		},
	})
}

// Authorize checks every configured credential against the mail account
func (h *Handlers) Authorize(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), authorizeTimeout)
	defer cancel()

	names := make([]string, 0, len(h.verifiers))
	for name := range h.verifiers {
		names = append(names, name)
	}
	sort.Strings(names)

	response := AuthorizeResponse{
		Status: statusAuthorized,
		Checks: make(map[string]string, len(names)),
	}
	for _, name := range names {
		if err := h.verifiers[name].Verify(ctx); err != nil {
			logrus.Warnf("Authorization check %s failed: %v", name, err)
			response.Status = statusUnauthorized
			response.Checks[name] = err.Error()
			continue
		}
		response.Checks[name] = "ok"
	}

	if response.Status != statusAuthorized {
		c.JSON(http.StatusUnauthorized, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

// StopAlerts removes every trigger so no further sweeps run
func (h *Handlers) StopAlerts(c *gin.Context) {
	if _, err := h.scheduler.StopAlerts(); err != nil {
		logrus.Errorf("Failed to stop alerts: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to remove triggers",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, DialogResponse{
		Title:   stopAlertsTitle,
		Message: stopAlertsMessage,
	})
}
