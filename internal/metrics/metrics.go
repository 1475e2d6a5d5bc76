// Package metrics defines Prometheus metrics for cadence.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cadence_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_errors_total",
			Help: "Total errors by code",
		},
		[]string{"code"},
	)

	AutomationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_automation_runs_total",
			Help: "Automation rule evaluations by run status and outcome",
		},
		[]string{"status", "outcome"},
	)

	IngestedRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_ingested_records_total",
			Help: "Records processed by ingestion, by source type and result",
		},
		[]string{"source", "result"},
	)

	JobExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_job_executions_total",
			Help: "Background job executions by queue and outcome",
		},
		[]string{"queue", "outcome"},
	)

	JobQueueLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cadence_job_queue_lag_seconds",
			Help: "Age of the oldest due job per queue",
		},
		[]string{"queue"},
	)

	NotificationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cadence_notifications_total",
			Help: "Notifications written by fan-out, by type and result",
		},
		[]string{"type", "result"},
	)

	MetricEvaluationRecords = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cadence_metric_evaluation_records",
			Help:    "Records read per background metric evaluation",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestDuration, RequestsTotal, ErrorsTotal,
		AutomationRuns, IngestedRecords,
		JobExecutions, JobQueueLag,
		NotificationsCreated, MetricEvaluationRecords,
	)
}
