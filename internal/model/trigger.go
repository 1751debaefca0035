package model

import (
	"time"

	"gorm.io/gorm"
)

// Trigger is a persisted cron schedule that invokes the sweep
type Trigger struct {
	ID        uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	Schedule  string         `json:"schedule" gorm:"type:varchar(255);not null"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// TableName specifies the table name for Trigger
func (Trigger) TableName() string {
	return "triggers"
}
