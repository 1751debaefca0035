package model

import (
	"time"
)

// Sweep run statuses
const (
	SweepStatusRunning = "running"
	SweepStatusSuccess = "success"
	SweepStatusFailure = "failure"
)

// SweepRun records one pass over the marked threads
type SweepRun struct {
	ID            uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	RunID         string     `json:"run_id" gorm:"type:varchar(36);not null;uniqueIndex"`
	Marker        string     `json:"marker" gorm:"type:varchar(255);not null;index"`
	Status        string     `json:"status" gorm:"type:varchar(50);not null"`
	ThreadCount   int        `json:"thread_count"`
	NotifiedCount int        `json:"notified_count"`
	UnmarkedCount int        `json:"unmarked_count"`
	ErrorMsg      string     `json:"error_msg" gorm:"type:text"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at"`

	Notifications []NotificationLog `json:"notifications,omitempty" gorm:"foreignKey:SweepRunID"`
}

// TableName specifies the table name for SweepRun
func (SweepRun) TableName() string {
	return "sweep_runs"
}
