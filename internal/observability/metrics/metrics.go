package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	metricPrefix = "panel_energy_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	reportRunsTotal   *prometheus.CounterVec
	reportRunLatency  *prometheus.HistogramVec
	telemetryErrors   *prometheus.CounterVec
	persistErrors     *prometheus.CounterVec
	schedulerFires    *prometheus.CounterVec
	schedulerLatency  *prometheus.HistogramVec
	liveForwardsTotal *prometheus.CounterVec
	liveSkipsTotal    *prometheus.CounterVec
	livePublishErrors *prometheus.CounterVec
	liveSources       prometheus.Gauge
)

// Init registers collectors and DB-backed gauges. Safe to call more than once.
// Observe helpers are no-ops until Init has run.
func Init(db *sql.DB, logger *zap.Logger) {
	registerOnce.Do(func() {
		reportRunsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_runs_total",
				Help: "Total report aggregation runs by kind and result",
			},
			[]string{"kind", "result"},
		)
		reportRunLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_run_latency_seconds",
				Help:    "Report aggregation run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		)
		telemetryErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "telemetry_errors_total",
				Help: "Telemetry fetch failures treated as empty readings",
			},
			[]string{"source"},
		)
		persistErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "persist_errors_total",
				Help: "Report store write failures by record kind",
			},
			[]string{"kind"},
		)
		schedulerFires = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "scheduler_fires_total",
				Help: "Scheduled task fires by task and result",
			},
			[]string{"task", "result"},
		)
		schedulerLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "scheduler_task_seconds",
				Help:    "Scheduled task duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"task"},
		)
		liveForwardsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "live_forwards_total",
				Help: "Live readings forwarded to subscribers",
			},
			[]string{"source"},
		)
		liveSkipsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "live_skips_total",
				Help: "Live poll ticks that did not forward, by reason",
			},
			[]string{"source", "reason"},
		)
		livePublishErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "live_publish_errors_total",
				Help: "Live forwards where at least one sink reported an error",
			},
			[]string{"source"},
		)
		liveSources = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricPrefix + "live_sources",
			Help: "Sources with an active live poller",
		})

		prometheus.MustRegister(
			reportRunsTotal,
			reportRunLatency,
			telemetryErrors,
			persistErrors,
			schedulerFires,
			schedulerLatency,
			liveForwardsTotal,
			liveSkipsTotal,
			livePublishErrors,
			liveSources,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveReportRun records an aggregation run.
func ObserveReportRun(kind, result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if reportRunsTotal != nil {
		reportRunsTotal.WithLabelValues(kind, result).Inc()
	}
	if reportRunLatency != nil {
		reportRunLatency.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// IncTelemetryError counts a telemetry fetch failure.
func IncTelemetryError(source string) {
	if source == "" {
		source = "unknown"
	}
	if telemetryErrors != nil {
		telemetryErrors.WithLabelValues(source).Inc()
	}
}

// IncPersistError counts a store write failure.
func IncPersistError(kind string) {
	if persistErrors != nil {
		persistErrors.WithLabelValues(kind).Inc()
	}
}

// ObserveSchedulerFire records a scheduled task execution.
func ObserveSchedulerFire(task, result string, duration time.Duration) {
	if schedulerFires != nil {
		schedulerFires.WithLabelValues(task, result).Inc()
	}
	if schedulerLatency != nil {
		schedulerLatency.WithLabelValues(task).Observe(duration.Seconds())
	}
}

// IncLiveForward counts a forwarded live reading.
func IncLiveForward(source string) {
	if liveForwardsTotal != nil {
		liveForwardsTotal.WithLabelValues(source).Inc()
	}
}

// IncLiveSkip counts a live tick without forward.
func IncLiveSkip(source, reason string) {
	if liveSkipsTotal != nil {
		liveSkipsTotal.WithLabelValues(source, reason).Inc()
	}
}

// IncLivePublishError counts a forwarded live reading that a sink rejected.
func IncLivePublishError(source string) {
	if livePublishErrors != nil {
		livePublishErrors.WithLabelValues(source).Inc()
	}
}

// SetLiveSources sets the number of active live pollers.
func SetLiveSources(n int) {
	if liveSources != nil {
		liveSources.Set(float64(n))
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
)
