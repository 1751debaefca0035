package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"label-notifier-go/internal/config"
	"label-notifier-go/internal/db"
	"label-notifier-go/internal/metrics"
	"label-notifier-go/internal/repository"
	"label-notifier-go/internal/sweep"
)

// countingRunner implements SweepRunner and records its calls
type countingRunner struct {
	mu    sync.Mutex
	calls int
	ctxs  []context.Context
}

func (r *countingRunner) Run(ctx context.Context, opts sweep.Options) sweep.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.ctxs = append(r.ctxs, ctx)
	return sweep.Result{RunID: "run", Marker: opts.Marker}
}

func (r *countingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newTestStore(t *testing.T) *repository.Repository {
	t.Helper()
	conn, err := db.Init(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return repository.New(conn)
}

func newTestScheduler(t *testing.T, intervalMinutes int) (*Scheduler, *countingRunner, *repository.Repository, *metrics.Metrics) {
	t.Helper()
	store := newTestStore(t)
	runner := &countingRunner{}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	cfg := &config.SchedulerConfig{IntervalMinutes: intervalMinutes}
	sched := NewScheduler(cfg, store, runner, sweep.Options{Marker: "sendEmailNotification"}, m)
	t.Cleanup(func() { sched.Stop() })
	return sched, runner, store, m
}

func TestSchedulerRestart(t *testing.T) {
	sched, _, _, _ := newTestScheduler(t, 60)

	if err := sched.Start(); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	if !sched.IsRunning() {
		t.Fatalf("scheduler should be running after Start")
	}
	if err := sched.Start(); err == nil {
		t.Fatalf("second Start while running should fail")
	}
	if err := sched.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if sched.IsRunning() {
		t.Fatalf("scheduler should not be running after Stop")
	}
	if err := sched.Start(); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if !sched.IsRunning() {
		t.Fatalf("scheduler should be running after second Start")
	}
	// context should be active
	if sched.ctx == nil || sched.ctx.Err() != nil {
		t.Fatalf("scheduler context should be active after restart")
	}
	// the default trigger is seeded once, not on every start
	triggers, err := sched.Triggers()
	require.NoError(t, err)
	assert.Len(t, triggers, 1)
	assert.Len(t, sched.cron.Entries(), 1)
}

func TestStartSeedsDefaultTrigger(t *testing.T) {
	sched, _, _, m := newTestScheduler(t, 5)

	require.NoError(t, sched.Start())

	triggers, err := sched.Triggers()
	require.NoError(t, err)
	require.Len(t, triggers, 1)
	assert.Equal(t, "0 */5 * * * *", triggers[0].Schedule)

	assert.False(t, sched.GetNextRun().IsZero())
	assert.True(t, sched.GetLastRun().IsZero())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ActiveTriggers))
}

func TestStartWithoutDefaultSchedule(t *testing.T) {
	sched, _, _, _ := newTestScheduler(t, 0)

	require.NoError(t, sched.Start())

	triggers, err := sched.Triggers()
	require.NoError(t, err)
	assert.Empty(t, triggers)
	assert.True(t, sched.GetNextRun().IsZero())
}

func TestStopAlertsRemovesEveryTrigger(t *testing.T) {
	sched, _, store, m := newTestScheduler(t, 5)

	require.NoError(t, sched.Start())
	_, err := sched.AddTrigger("@hourly")
	require.NoError(t, err)
	assert.Len(t, sched.cron.Entries(), 2)

	deleted, err := sched.StopAlerts()
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)
	assert.Empty(t, sched.cron.Entries())
	assert.True(t, sched.GetNextRun().IsZero())
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ActiveTriggers))

	triggers, err := store.ListTriggers()
	require.NoError(t, err)
	assert.Empty(t, triggers)

	// idempotent
	deleted, err = sched.StopAlerts()
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)

	// a restart does not bring the default trigger back
	require.NoError(t, sched.Stop())
	require.NoError(t, sched.Start())
	assert.Empty(t, sched.cron.Entries())
}

func TestAddTriggerValidatesSchedule(t *testing.T) {
	sched, _, store, _ := newTestScheduler(t, 0)

	_, err := sched.AddTrigger("every five minutes")
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	// five field schedules lack the seconds field
	_, err = sched.AddTrigger("*/5 * * * *")
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	triggers, err := store.ListTriggers()
	require.NoError(t, err)
	assert.Empty(t, triggers)

	trigger, err := sched.AddTrigger("0 0 9 * * MON-FRI")
	require.NoError(t, err)
	assert.NotZero(t, trigger.ID)
	// not running, so nothing is scheduled yet
	assert.Empty(t, sched.cron.Entries())

	require.NoError(t, sched.Start())
	assert.Len(t, sched.cron.Entries(), 1)
}

func TestRunOnce(t *testing.T) {
	sched, runner, _, _ := newTestScheduler(t, 0)

	result := sched.RunOnce(context.Background())
	assert.Equal(t, "sendEmailNotification", result.Marker)
	assert.Equal(t, 1, runner.count())

	sched.Wait()
}

func TestTriggerInvokesSweep(t *testing.T) {
	sched, runner, _, _ := newTestScheduler(t, 0)

	_, err := sched.AddTrigger("* * * * * *")
	require.NoError(t, err)
	require.NoError(t, sched.Start())

	assert.Eventually(t, func() bool { return runner.count() > 0 }, 3*time.Second, 50*time.Millisecond)
	assert.False(t, sched.GetLastRun().IsZero())

	require.NoError(t, sched.Stop())
	sched.Wait()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	for _, ctx := range runner.ctxs {
		assert.Error(t, ctx.Err(), "sweep context should be cancelled by Stop")
	}
}
