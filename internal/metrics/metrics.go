package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waterbill_requests_total",
			Help: "Total number of HTTP requests per path",
		},
		[]string{"path"},
	)

	RequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "waterbill_request_duration_seconds",
			Help:    "Request duration in seconds per path",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)

	RequestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waterbill_request_errors_total",
			Help: "Total number of error responses per path and code",
		},
		[]string{"path", "code"},
	)

	BillsComputedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waterbill_bills_computed_total",
			Help: "Total number of bills produced by the billing engine",
		},
	)

	BillsCommittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waterbill_bills_committed_total",
			Help: "Total number of bill commits by outcome",
		},
		[]string{"outcome"},
	)

	IngestSamplesStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waterbill_ingest_samples_stored_total",
			Help: "Total number of usage samples upserted by ingestion",
		},
	)

	IngestFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waterbill_ingest_failures_total",
			Help: "Total number of failed ingestion sources/files",
		},
		[]string{"source"},
	)

	JobLastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "waterbill_job_last_run_timestamp_seconds",
			Help: "Unix time of the last run per background job",
		},
		[]string{"job"},
	)

	JobLastRunDuration = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "waterbill_job_last_run_duration_seconds",
			Help: "Duration of the last run per background job",
		},
		[]string{"job"},
	)

	JobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waterbill_job_failures_total",
			Help: "Total number of failed background job runs",
		},
		[]string{"job"},
	)
)

// UpdateJobMetrics records one background job run.
func UpdateJobMetrics(job string, started time.Time, err error) {
	JobLastRunTimestamp.WithLabelValues(job).Set(float64(started.Unix()))
	JobLastRunDuration.WithLabelValues(job).Set(time.Since(started).Seconds())
	if err != nil {
		JobFailuresTotal.WithLabelValues(job).Inc()
	}
}

// ObserveRequest records one HTTP request.
func ObserveRequest(path string, started time.Time) {
	RequestsTotal.WithLabelValues(path).Inc()
	RequestDurationSeconds.WithLabelValues(path).Observe(time.Since(started).Seconds())
}
