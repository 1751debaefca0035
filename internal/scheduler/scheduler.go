package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"label-notifier-go/internal/config"
	"label-notifier-go/internal/metrics"
	"label-notifier-go/internal/model"
	"label-notifier-go/internal/sweep"
)

// ErrInvalidSchedule is returned by AddTrigger for a schedule cron cannot parse
var ErrInvalidSchedule = errors.New("invalid schedule")

// Schedules have a leading seconds field, matching cron.WithSeconds.
var scheduleParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// TriggerStore persists the schedules that invoke the sweep
type TriggerStore interface {
	ListTriggers() ([]model.Trigger, error)
	CreateTrigger(trigger *model.Trigger) error
	DeleteAllTriggers() (int64, error)
	HasTriggerHistory() (bool, error)
}

// SweepRunner runs one sweep without failing
type SweepRunner interface {
	Run(ctx context.Context, opts sweep.Options) sweep.Result
}

// Scheduler invokes the sweep on every persisted trigger
type Scheduler struct {
	cron      *cron.Cron
	entries   map[uint]cron.EntryID
	config    *config.SchedulerConfig
	store     TriggerStore
	sweeper   SweepRunner
	options   sweep.Options
	metrics   *metrics.Metrics
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.RWMutex
}

// NewScheduler creates a new scheduler
func NewScheduler(cfg *config.SchedulerConfig, store TriggerStore, sweeper SweepRunner, opts sweep.Options, metrics *metrics.Metrics) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cronLogger := cron.PrintfLogger(logrus.StandardLogger())

	return &Scheduler{
		cron: cron.New(
			cron.WithParser(scheduleParser),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger)),
		),
		entries: make(map[uint]cron.EntryID),
		config:  cfg,
		store:   store,
		sweeper: sweeper,
		options: opts,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start loads the persisted triggers and starts the scheduler. When no
// trigger was ever stored, the configured default schedule is seeded.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("scheduler is already running")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	triggers, err := s.loadTriggers()
	if err != nil {
		return err
	}

	for _, trigger := range triggers {
		if err := s.schedule(trigger); err != nil {
			logrus.Errorf("Failed to schedule trigger %d (%s): %v", trigger.ID, trigger.Schedule, err)
		}
	}

	s.cron.Start()
	s.isRunning = true
	s.metrics.ActiveTriggers.Set(float64(len(s.entries)))

	logrus.Infof("Scheduler started with %d triggers", len(s.entries))
	return nil
}

// Stop stops the scheduler. Stored triggers are kept and reloaded by Start.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}

	// Cancel context to stop any running sweep
	s.cancel()

	ctx := s.cron.Stop()
	s.removeEntries()
	s.isRunning = false
	s.metrics.ActiveTriggers.Set(0)
	s.mu.Unlock()

	// Wait for running jobs outside the lock; they read isRunning
	select {
	case <-ctx.Done():
		logrus.Info("Scheduler stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Scheduler stop timeout, forcing shutdown")
	}
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// AddTrigger stores a new schedule and activates it if the scheduler is running
func (s *Scheduler) AddTrigger(schedule string) (*model.Trigger, error) {
	if _, err := scheduleParser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidSchedule, schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	trigger := &model.Trigger{Schedule: schedule}
	if err := s.store.CreateTrigger(trigger); err != nil {
		return nil, err
	}

	if s.isRunning {
		if err := s.schedule(*trigger); err != nil {
			return nil, err
		}
		s.metrics.ActiveTriggers.Set(float64(len(s.entries)))
	}

	logrus.WithField("trigger_id", trigger.ID).Infof("Added trigger %s", schedule)
	return trigger, nil
}

// Triggers returns the stored triggers
func (s *Scheduler) Triggers() ([]model.Trigger, error) {
	return s.store.ListTriggers()
}

// StopAlerts removes every trigger from the scheduler and the store.
// It is safe to call repeatedly; the returned count is the number of stored
// triggers deleted by this call.
func (s *Scheduler) StopAlerts() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeEntries()
	s.metrics.ActiveTriggers.Set(0)

	deleted, err := s.store.DeleteAllTriggers()
	if err != nil {
		return 0, err
	}

	logrus.Infof("Stopped alerts, removed %d triggers", deleted)
	return deleted, nil
}

// RunOnce runs a sweep immediately (for manual triggering)
func (s *Scheduler) RunOnce(ctx context.Context) sweep.Result {
	s.wg.Add(1)
	defer s.wg.Done()

	logrus.Info("Running sweep once")
	return s.sweeper.Run(ctx, s.options)
}

// GetNextRun returns the time of the next scheduled run
func (s *Scheduler) GetNextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return time.Time{}
	}

	var next time.Time
	for _, id := range s.entries {
		entry := s.cron.Entry(id)
		if next.IsZero() || (!entry.Next.IsZero() && entry.Next.Before(next)) {
			next = entry.Next
		}
	}
	return next
}

// GetLastRun returns the time of the last scheduled run
func (s *Scheduler) GetLastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return time.Time{}
	}

	var last time.Time
	for _, id := range s.entries {
		entry := s.cron.Entry(id)
		if entry.Prev.After(last) {
			last = entry.Prev
		}
	}
	return last
}

// Wait waits for in-flight sweeps to finish
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// runSweep is the cron job shared by every trigger
func (s *Scheduler) runSweep() {
	s.wg.Add(1)
	defer s.wg.Done()

	s.mu.RLock()
	if !s.isRunning {
		s.mu.RUnlock()
		logrus.Info("Scheduler not running, skipping sweep")
		return
	}
	ctx := s.ctx
	s.mu.RUnlock()

	s.sweeper.Run(ctx, s.options)
}

// loadTriggers returns the stored triggers, seeding the default schedule on first start. Callers hold s.mu.
func (s *Scheduler) loadTriggers() ([]model.Trigger, error) {
	triggers, err := s.store.ListTriggers()
	if err != nil {
		return nil, err
	}
	if len(triggers) > 0 {
		return triggers, nil
	}

	history, err := s.store.HasTriggerHistory()
	if err != nil {
		return nil, err
	}
	schedule := s.config.DefaultSchedule()
	if history || schedule == "" {
		return triggers, nil
	}

	trigger := model.Trigger{Schedule: schedule}
	if err := s.store.CreateTrigger(&trigger); err != nil {
		return nil, fmt.Errorf("failed to seed default trigger: %w", err)
	}
	logrus.Infof("Seeded default trigger with interval: %d minutes", s.config.IntervalMinutes)
	return []model.Trigger{trigger}, nil
}

// schedule registers one trigger with cron. Callers hold s.mu.
func (s *Scheduler) schedule(trigger model.Trigger) error {
	entryID, err := s.cron.AddFunc(trigger.Schedule, s.runSweep)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	s.entries[trigger.ID] = entryID
	return nil
}

// removeEntries unregisters every trigger from cron. Callers hold s.mu.
func (s *Scheduler) removeEntries() {
	for id, entryID := range s.entries {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
}
