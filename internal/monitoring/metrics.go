package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the runtime
type Metrics struct {
	registry *prometheus.Registry

	// HTTP surface
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Lifecycle
	InstallPrompts  *prometheus.CounterVec // outcome: accepted/dismissed/unavailable
	WorkerUpdates   prometheus.Counter
	OnlineState     prometheus.Gauge
	UpdateAvailable prometheus.Gauge

	// Loading
	LoadDuration prometheus.Histogram
	LoadTimeouts prometheus.Counter

	// Notifications
	NotificationsShown    prometheus.Counter
	NotificationsFiltered *prometheus.CounterVec // reason: quiet_hours/category/permission
	QueueDepth            prometheus.Gauge
	Subscribed            prometheus.Gauge
	SyncFailures          *prometheus.CounterVec // op: upsert/remove

	// Update checker
	UpdateChecks *prometheus.CounterVec // result: unchanged/changed/error

	startTime time.Time
}

// NewMetrics creates a metrics collector on a private registry so multiple
// instances can coexist in tests
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{registry: reg, startTime: time.Now()}

	m.RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runtime_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	m.RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "runtime_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "path"},
	)
	m.InstallPrompts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runtime_install_prompts_total",
			Help: "Install prompt attempts by outcome",
		},
		[]string{"outcome"},
	)
	m.WorkerUpdates = factory.NewCounter(prometheus.CounterOpts{
		Name: "runtime_worker_updates_total",
		Help: "Completed background-script updates",
	})
	m.OnlineState = factory.NewGauge(prometheus.GaugeOpts{
		Name: "runtime_online",
		Help: "1 when the platform reports online",
	})
	m.UpdateAvailable = factory.NewGauge(prometheus.GaugeOpts{
		Name: "runtime_update_available",
		Help: "1 when a waiting background script exists",
	})
	m.LoadDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "runtime_load_duration_seconds",
		Help:    "Loading simulation duration in seconds",
		Buckets: []float64{.25, .5, 1, 2, 3, 5, 8, 10, 15},
	})
	m.LoadTimeouts = factory.NewCounter(prometheus.CounterOpts{
		Name: "runtime_load_timeouts_total",
		Help: "Loads that hit the hard ceiling",
	})
	m.NotificationsShown = factory.NewCounter(prometheus.CounterOpts{
		Name: "runtime_notifications_shown_total",
		Help: "Notifications passed to the platform for display",
	})
	m.NotificationsFiltered = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runtime_notifications_filtered_total",
			Help: "Notifications suppressed before display",
		},
		[]string{"reason"},
	)
	m.QueueDepth = factory.NewGauge(prometheus.GaugeOpts{
		Name: "runtime_notification_queue_depth",
		Help: "Pending notifications in the durable queue",
	})
	m.Subscribed = factory.NewGauge(prometheus.GaugeOpts{
		Name: "runtime_push_subscribed",
		Help: "1 when a live push subscription exists",
	})
	m.SyncFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runtime_registry_sync_failures_total",
			Help: "Best-effort registry sync failures by operation",
		},
		[]string{"op"},
	)
	m.UpdateChecks = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "runtime_update_checks_total",
			Help: "Background-script update checks by result",
		},
		[]string{"result"},
	)
	// Computed at scrape time
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "runtime_uptime_seconds",
		Help: "Seconds since runtime start",
	}, func() float64 {
		return time.Since(m.startTime).Seconds()
	})

	return m
}

// Registry returns the prometheus registry backing this collector
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records a completed HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
