package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics application metrics
type Metrics struct {
	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Audit write path
	AuditRecordsWritten *prometheus.CounterVec
	AuditWriteFailures  prometheus.Counter
	AuditQueueDepth     prometheus.Gauge
	AuditQueueDropped   prometheus.Counter

	// Retention sweep
	RetentionDeletedRows   prometheus.Counter
	RetentionSweepDuration prometheus.Histogram
	RetentionSweepFailures prometheus.Counter
}

// New creates the metrics collectors
func New() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rabbitdeck_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rabbitdeck_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		AuditRecordsWritten: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rabbitdeck_audit_records_written_total",
				Help: "Audit records persisted, by processing mode and outcome status",
			},
			[]string{"mode", "status"},
		),

		AuditWriteFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rabbitdeck_audit_write_failures_total",
				Help: "Audit persistence failures (never surfaced to the business operation)",
			},
		),

		AuditQueueDepth: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "rabbitdeck_audit_queue_depth",
				Help: "Pending records in the async audit queue",
			},
		),

		AuditQueueDropped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rabbitdeck_audit_queue_dropped_total",
				Help: "Audit records dropped because the async queue was full",
			},
		),

		RetentionDeletedRows: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rabbitdeck_retention_deleted_rows_total",
				Help: "Audit records removed by retention cleanup",
			},
		),

		RetentionSweepDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rabbitdeck_retention_sweep_duration_seconds",
				Help:    "Duration of a full retention sweep cycle",
				Buckets: prometheus.DefBuckets,
			},
		),

		RetentionSweepFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "rabbitdeck_retention_sweep_failures_total",
				Help: "Retention sweep cycles aborted by an error",
			},
		),
	}
}
