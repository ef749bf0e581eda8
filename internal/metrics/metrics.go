package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for ban check cycles and notifications.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Cycle outcomes: completed, skipped (already running), failed (could not read profiles)
	Cycles *prometheus.CounterVec

	// Full cycle latency
	CycleDuration prometheus.Histogram

	// Batches by status: ok, failed
	Batches *prometheus.CounterVec

	// Detected ban events by kind
	Events *prometheus.CounterVec

	// Skipped records by reason: unknown_identity, count_decreased, stale, store_error
	Anomalies *prometheus.CounterVec

	// Notification deliveries by status: sent, failed, dropped
	Notifications *prometheus.CounterVec

	// Profiles still tracked at the start of the last cycle
	TrackedProfiles prometheus.Gauge
}

// New creates a Metrics instance registered with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "steambans_cycles_total",
			Help: "Total ban check cycles by result",
		}, []string{"result"}),

		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "steambans_cycle_duration_seconds",
			Help:    "Duration of a full ban check cycle",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		Batches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "steambans_batches_total",
			Help: "Total GetPlayerBans batches by status",
		}, []string{"status"}),

		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "steambans_events_total",
			Help: "Total detected ban events by kind",
		}, []string{"kind"}),

		Anomalies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "steambans_anomalies_total",
			Help: "Total skipped player records by reason",
		}, []string{"reason"}),

		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "steambans_notifications_total",
			Help: "Total notification deliveries by status",
		}, []string{"status"}),

		TrackedProfiles: factory.NewGauge(prometheus.GaugeOpts{
			Name: "steambans_tracked_profiles",
			Help: "Profiles tracked at the start of the last cycle",
		}),
	}
}

// IncrementCycle records a cycle outcome.
func (m *Metrics) IncrementCycle(result string) {
	if m != nil {
		m.Cycles.WithLabelValues(result).Inc()
	}
}

// ObserveCycleDuration records how long a cycle took.
func (m *Metrics) ObserveCycleDuration(d time.Duration) {
	if m != nil {
		m.CycleDuration.Observe(d.Seconds())
	}
}

// IncrementBatch records a batch outcome.
func (m *Metrics) IncrementBatch(status string) {
	if m != nil {
		m.Batches.WithLabelValues(status).Inc()
	}
}

// IncrementEvent records a detected ban event.
func (m *Metrics) IncrementEvent(kind string) {
	if m != nil {
		m.Events.WithLabelValues(kind).Inc()
	}
}

// IncrementAnomaly records a skipped record.
func (m *Metrics) IncrementAnomaly(reason string) {
	if m != nil {
		m.Anomalies.WithLabelValues(reason).Inc()
	}
}

// IncrementNotification records a delivery outcome.
func (m *Metrics) IncrementNotification(status string) {
	if m != nil {
		m.Notifications.WithLabelValues(status).Inc()
	}
}

// SetTrackedProfiles records the number of tracked profiles.
func (m *Metrics) SetTrackedProfiles(n int) {
	if m != nil {
		m.TrackedProfiles.Set(float64(n))
	}
}
