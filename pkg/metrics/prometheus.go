package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus. The
// tracked symbol is fixed at construction so callers never pass it.
type Recorder struct {
	symbol      string
	captures    *prometheus.CounterVec
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	errorsTotal *prometheus.CounterVec
	lastPrice   *prometheus.GaugeVec
}

// New creates a new Prometheus metrics recorder.
func New(symbol string) *Recorder {
	return &Recorder{
		symbol: symbol,
		captures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_captures_total",
				Help: "Checkpoint captures by checkpoint, provenance and outcome",
			},
			[]string{"checkpoint", "provenance", "outcome"},
		),
		jobRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_job_runs_total",
				Help: "Scheduled job executions by job name and result",
			},
			[]string{"job", "result"},
		),
		jobDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracker_job_duration_seconds",
				Help:    "Scheduled job duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"job"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracker_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tracker_last_price",
				Help: "Last observed price for a symbol",
			},
			[]string{"symbol"},
		),
	}
}

// RecordCapture records one checkpoint capture attempt.
func (r *Recorder) RecordCapture(checkpoint, provenance, outcome string) {
	r.captures.WithLabelValues(checkpoint, provenance, outcome).Inc()
}

// RecordJobRun records a scheduled job execution.
func (r *Recorder) RecordJobRun(job, outcome string) {
	r.jobRuns.WithLabelValues(job, outcome).Inc()
}

// RecordJobDuration records how long a job took, in seconds.
func (r *Recorder) RecordJobDuration(job string, seconds float64) {
	r.jobDuration.WithLabelValues(job).Observe(seconds)
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last observed price.
func (r *Recorder) RecordLastPrice(price float64) {
	r.lastPrice.WithLabelValues(r.symbol).Set(price)
}
