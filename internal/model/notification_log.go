package model

import (
	"time"
)

// Notification log statuses
const (
	NotificationStatusSent    = "sent"
	NotificationStatusFailure = "failure"
)

// NotificationLog represents one attempt to notify about a marked thread
type NotificationLog struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	SweepRunID  uint      `json:"sweep_run_id" gorm:"index;not null"`
	ThreadID    string    `json:"thread_id" gorm:"type:varchar(255);not null;index"`
	Subject     string    `json:"subject" gorm:"type:text"`
	Destination string    `json:"destination" gorm:"type:varchar(255)"`
	Status      string    `json:"status" gorm:"type:varchar(50);not null"` // sent, failure
	ErrorMsg    string    `json:"error_msg" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for NotificationLog
func (NotificationLog) TableName() string {
	return "notification_logs"
}
