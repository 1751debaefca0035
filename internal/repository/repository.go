package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"label-notifier-go/internal/model"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// Repository persists triggers and the sweep audit trail
type Repository struct {
	db *gorm.DB
}

// New creates a repository backed by db
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Ping checks the database connection
func (r *Repository) Ping() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	return sqlDB.Ping()
}

// ListTriggers returns the active triggers ordered by creation
func (r *Repository) ListTriggers() ([]model.Trigger, error) {
	var triggers []model.Trigger
	result := r.db.Order("id ASC").Find(&triggers)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get triggers: %w", result.Error)
	}
	return triggers, nil
}

// CreateTrigger stores a new trigger
func (r *Repository) CreateTrigger(trigger *model.Trigger) error {
	if err := r.db.Create(trigger).Error; err != nil {
		return fmt.Errorf("failed to create trigger: %w", err)
	}
	return nil
}

// DeleteAllTriggers removes every active trigger and returns how many were removed
func (r *Repository) DeleteAllTriggers() (int64, error) {
	result := r.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.Trigger{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete triggers: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// HasTriggerHistory reports whether a trigger was ever stored, including deleted ones
func (r *Repository) HasTriggerHistory() (bool, error) {
	var count int64
	if err := r.db.Unscoped().Model(&model.Trigger{}).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to count triggers: %w", err)
	}
	return count > 0, nil
}

// CreateSweepRun stores the start of a sweep
func (r *Repository) CreateSweepRun(run *model.SweepRun) error {
	if err := r.db.Create(run).Error; err != nil {
		return fmt.Errorf("failed to create sweep run: %w", err)
	}
	return nil
}

// FinishSweepRun stores the outcome of a sweep
func (r *Repository) FinishSweepRun(run *model.SweepRun) error {
	if run.FinishedAt == nil {
		now := time.Now()
		run.FinishedAt = &now
	}
	result := r.db.Model(&model.SweepRun{}).Where("id = ?", run.ID).Updates(map[string]interface{}{
		"status":         run.Status,
		"thread_count":   run.ThreadCount,
		"notified_count": run.NotifiedCount,
		"unmarked_count": run.UnmarkedCount,
		"error_msg":      run.ErrorMsg,
		"finished_at":    run.FinishedAt,
	})
	if result.Error != nil {
		return fmt.Errorf("failed to finish sweep run: %w", result.Error)
	}
	return nil
}

// LogNotification stores one notification attempt
func (r *Repository) LogNotification(entry *model.NotificationLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := r.db.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to log notification: %w", err)
	}
	return nil
}

// ListSweepRuns returns a page of sweep runs, newest first, and the total count
func (r *Repository) ListSweepRuns(offset, limit int) ([]model.SweepRun, int64, error) {
	var total int64
	if err := r.db.Model(&model.SweepRun{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count sweep runs: %w", err)
	}

	var runs []model.SweepRun
	if err := r.db.Order("started_at DESC").Order("id DESC").Offset(offset).Limit(limit).Find(&runs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to get sweep runs: %w", err)
	}
	return runs, total, nil
}

// GetSweepRun returns a sweep run with its notification logs
func (r *Repository) GetSweepRun(id uint) (*model.SweepRun, error) {
	var run model.SweepRun
	err := r.db.Preload("Notifications", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	}).First(&run, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get sweep run: %w", err)
	}
	return &run, nil
}
