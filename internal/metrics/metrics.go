package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	SweepCount           prometheus.Counter
	SweepFailures        prometheus.Counter
	ThreadsSeen          prometheus.Counter
	NotificationsSent    prometheus.Counter
	NotificationFailures prometheus.Counter
	MarkersRemoved       prometheus.Counter
	SweepDuration        prometheus.Histogram
	ActiveTriggers       prometheus.Gauge
}

// NewMetrics creates the metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on /metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SweepCount: factory.NewCounter(prometheus.CounterOpts{
			Name: "label_notifier_sweep_count",
			Help: "Total number of sweeps started",
		}),
		SweepFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "label_notifier_sweep_failures",
			Help: "Total number of sweeps that ended early with an error",
		}),
		ThreadsSeen: factory.NewCounter(prometheus.CounterOpts{
			Name: "label_notifier_threads_seen",
			Help: "Total number of marked threads found across sweeps",
		}),
		NotificationsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "label_notifier_notifications_sent",
			Help: "Total number of notifications delivered",
		}),
		NotificationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "label_notifier_notification_failures",
			Help: "Total number of notifications that failed to send",
		}),
		MarkersRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "label_notifier_markers_removed",
			Help: "Total number of threads the marker was removed from",
		}),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "label_notifier_sweep_duration_seconds",
			Help:    "Time spent per sweep",
			Buckets: prometheus.DefBuckets,
		}),
		ActiveTriggers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "label_notifier_active_triggers",
			Help: "Number of scheduled triggers currently registered",
		}),
	}
}
