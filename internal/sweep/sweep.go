// Package sweep implements the notification sweep: every thread carrying the
// marker gets one notification email, then the marker is removed so the
// thread is not processed again.
package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"label-notifier-go/internal/config"
	"label-notifier-go/internal/mailbox"
	"label-notifier-go/internal/metrics"
	"label-notifier-go/internal/model"
	"label-notifier-go/internal/notifier"
)

// RemovalMode controls when the marker is cleared
type RemovalMode string

const (
	// RemovalAfterAll clears the marker from the whole snapshot once every
	// thread has been notified. A failure part way leaves every thread marked.
	RemovalAfterAll RemovalMode = config.RemovalAfterAll
	// RemovalPerThread clears each thread's marker right after its own send.
	RemovalPerThread RemovalMode = config.RemovalPerThread
)

// Options configures one sweep
type Options struct {
	Marker      string
	Destination string
	Subject     string
	Body        string
	Signature   string
	RemovalMode RemovalMode
}

// OptionsFromConfig builds sweep options from the notification config
func OptionsFromConfig(cfg *config.NotificationConfig) Options {
	return Options{
		Marker:      cfg.Marker,
		Destination: cfg.Destination,
		Subject:     cfg.Subject,
		Body:        cfg.Body,
		Signature:   cfg.Signature,
		RemovalMode: RemovalMode(cfg.RemovalMode),
	}
}

// Result summarizes one sweep
type Result struct {
	RunID      string    `json:"run_id"`
	Marker     string    `json:"marker"`
	Threads    int       `json:"threads"`
	Notified   int       `json:"notified"`
	Unmarked   int       `json:"unmarked"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Recorder persists the audit trail of sweeps
type Recorder interface {
	CreateSweepRun(run *model.SweepRun) error
	FinishSweepRun(run *model.SweepRun) error
	LogNotification(entry *model.NotificationLog) error
}

// Sweeper runs sweeps against a thread source and a notifier
type Sweeper struct {
	source   mailbox.ThreadSource
	notifier notifier.Notifier
	recorder Recorder
	metrics  *metrics.Metrics

	mu sync.Mutex

	lastMu sync.RWMutex
	last   *Result
}

// New creates a Sweeper. recorder may be nil to disable the audit trail.
func New(source mailbox.ThreadSource, n notifier.Notifier, recorder Recorder, m *metrics.Metrics) *Sweeper {
	return &Sweeper{
		source:   source,
		notifier: n,
		recorder: recorder,
		metrics:  m,
	}
}

// Run performs one sweep and never fails. Any error or panic is logged as a
// single "Error Occured" line and reported in the returned Result. Concurrent
// calls are serialized.
func (s *Sweeper) Run(ctx context.Context, opts Options) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.Sweep(ctx, opts)
	if err != nil {
		logrus.WithField("run_id", result.RunID).Error("Error Occured" + err.Error())
	} else {
		logrus.WithFields(logrus.Fields{
			"run_id":   result.RunID,
			"marker":   result.Marker,
			"threads":  result.Threads,
			"notified": result.Notified,
			"unmarked": result.Unmarked,
		}).Info("Sweep completed")
	}

	s.setLast(result)
	return result
}

// Sweep performs one sweep and returns the first error encountered as a
// *Failure. A panic is returned as an error; the audit row is finished
// either way.
func (s *Sweeper) Sweep(ctx context.Context, opts Options) (result Result, err error) {
	result = Result{
		RunID:     uuid.NewString(),
		Marker:    opts.Marker,
		StartedAt: time.Now(),
	}

	s.metrics.SweepCount.Inc()
	timer := prometheus.NewTimer(s.metrics.SweepDuration)
	defer timer.ObserveDuration()

	run := s.startRun(&result)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during sweep: %v", r)
		}

		result.FinishedAt = time.Now()
		if err != nil {
			result.Error = err.Error()
			s.metrics.SweepFailures.Inc()
		}
		s.finishRun(run, &result)
	}()

	err = s.sweep(ctx, opts, &result, run)
	return result, err
}

// LastRun returns the result of the most recent Run
func (s *Sweeper) LastRun() (Result, bool) {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()

	if s.last == nil {
		return Result{}, false
	}
	return *s.last, true
}

func (s *Sweeper) sweep(ctx context.Context, opts Options, result *Result, run *model.SweepRun) error {
	log := logrus.WithFields(logrus.Fields{
		"run_id": result.RunID,
		"marker": opts.Marker,
	})

	threads, err := s.source.Threads(ctx, opts.Marker)
	if err != nil {
		return &Failure{Stage: StageResolve, Marker: opts.Marker, Err: err}
	}

	result.Threads = len(threads)
	s.metrics.ThreadsSeen.Add(float64(len(threads)))
	if len(threads) == 0 {
		log.Debug("No marked threads")
		return nil
	}
	log.Infof("Found %d marked threads", len(threads))

	for _, thread := range threads {
		subject, err := s.source.FirstSubject(ctx, thread)
		if err != nil {
			return &Failure{Stage: StageSubject, Marker: opts.Marker, ThreadID: thread.ID, Err: err}
		}

		n := notifier.Notification{
			To:      opts.Destination,
			Subject: opts.Subject,
			Body:    opts.Body + subject + opts.Signature,
		}
		if err := s.notifier.Send(ctx, n); err != nil {
			s.metrics.NotificationFailures.Inc()
			s.logNotification(run, thread, subject, opts.Destination, err)
			return &Failure{Stage: StageSend, Marker: opts.Marker, ThreadID: thread.ID, Err: err}
		}

		result.Notified++
		s.metrics.NotificationsSent.Inc()
		s.logNotification(run, thread, subject, opts.Destination, nil)
		log.WithField("thread_id", thread.ID).Debug("Notified thread")

		if opts.RemovalMode == RemovalPerThread {
			if err := s.source.RemoveMarker(ctx, opts.Marker, []mailbox.Thread{thread}); err != nil {
				return &Failure{Stage: StageUnmark, Marker: opts.Marker, ThreadID: thread.ID, Err: err}
			}
			result.Unmarked++
			s.metrics.MarkersRemoved.Inc()
		}
	}

	if opts.RemovalMode != RemovalPerThread {
		if err := s.source.RemoveMarker(ctx, opts.Marker, threads); err != nil {
			return &Failure{Stage: StageUnmark, Marker: opts.Marker, Err: err}
		}
		result.Unmarked = len(threads)
		s.metrics.MarkersRemoved.Add(float64(len(threads)))
	}

	return nil
}

func (s *Sweeper) startRun(result *Result) *model.SweepRun {
	if s.recorder == nil {
		return nil
	}

	run := &model.SweepRun{
		RunID:     result.RunID,
		Marker:    result.Marker,
		Status:    model.SweepStatusRunning,
		StartedAt: result.StartedAt,
	}
	if err := s.recorder.CreateSweepRun(run); err != nil {
		logrus.WithField("run_id", result.RunID).Warnf("Failed to record sweep run: %v", err)
		return nil
	}
	return run
}

func (s *Sweeper) finishRun(run *model.SweepRun, result *Result) {
	if run == nil {
		return
	}

	run.Status = model.SweepStatusSuccess
	if result.Error != "" {
		run.Status = model.SweepStatusFailure
	}
	run.ThreadCount = result.Threads
	run.NotifiedCount = result.Notified
	run.UnmarkedCount = result.Unmarked
	run.ErrorMsg = result.Error
	finishedAt := result.FinishedAt
	run.FinishedAt = &finishedAt

	if err := s.recorder.FinishSweepRun(run); err != nil {
		logrus.WithField("run_id", result.RunID).Warnf("Failed to finish sweep run: %v", err)
	}
}

func (s *Sweeper) logNotification(run *model.SweepRun, thread mailbox.Thread, subject, destination string, sendErr error) {
	if run == nil {
		return
	}

	entry := &model.NotificationLog{
		SweepRunID:  run.ID,
		ThreadID:    thread.ID,
		Subject:     subject,
		Destination: destination,
		Status:      model.NotificationStatusSent,
	}
	if sendErr != nil {
		entry.Status = model.NotificationStatusFailure
		entry.ErrorMsg = sendErr.Error()
	}

	if err := s.recorder.LogNotification(entry); err != nil {
		logrus.WithField("thread_id", thread.ID).Warnf("Failed to log notification: %v", err)
	}
}

func (s *Sweeper) setLast(result Result) {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	s.last = &result
}
