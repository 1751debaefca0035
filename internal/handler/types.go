package handler

import "time"

// MenuEntry is one action offered to the account owner
type MenuEntry struct {
	Name   string `json:"name"`
	Method string `json:"method"`
	Path   string `json:"path"`
}

// MenuResponse lists the owner actions
type MenuResponse struct {
	Title   string      `json:"title"`
	Entries []MenuEntry `json:"entries"`
}

// DialogResponse is a titled confirmation shown to the owner
type DialogResponse struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// AuthorizeResponse reports the credential check of each mail component
type AuthorizeResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// TriggerRequest represents the request structure for creating a trigger
type TriggerRequest struct {
	Schedule string `json:"schedule" binding:"required"`
}

// TriggerResponse represents the response structure for triggers
type TriggerResponse struct {
	ID        uint      `json:"id"`
	Schedule  string    `json:"schedule"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationLogResponse represents one notification attempt of a sweep
type NotificationLogResponse struct {
	ID          uint      `json:"id"`
	ThreadID    string    `json:"thread_id"`
	Subject     string    `json:"subject"`
	Destination string    `json:"destination"`
	Status      string    `json:"status"`
	ErrorMsg    string    `json:"error_msg"`
	CreatedAt   time.Time `json:"created_at"`
}

// SweepRunResponse represents the response structure for sweep runs
type SweepRunResponse struct {
	ID            uint                      `json:"id"`
	RunID         string                    `json:"run_id"`
	Marker        string                    `json:"marker"`
	Status        string                    `json:"status"`
	ThreadCount   int                       `json:"thread_count"`
	NotifiedCount int                       `json:"notified_count"`
	UnmarkedCount int                       `json:"unmarked_count"`
	ErrorMsg      string                    `json:"error_msg"`
	StartedAt     time.Time                 `json:"started_at"`
	FinishedAt    *time.Time                `json:"finished_at"`
	Notifications []NotificationLogResponse `json:"notifications,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Scheduler string            `json:"scheduler"`
	Metrics   map[string]string `json:"metrics,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
