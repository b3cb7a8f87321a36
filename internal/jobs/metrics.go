// Package jobmetrics instruments background job runs.
package jobmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for clubspace_jobs_total.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds the job collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	runs      *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	processed *prometheus.CounterVec
}

// NewMetrics builds the collectors and registers them on registerer when it
// is not nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clubspace_jobs_total",
			Help: "Job runs by job name and outcome.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clubspace_jobs_failures_total",
			Help: "Failed job runs by job name.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clubspace_job_duration_seconds",
			Help:    "Job run duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clubspace_job_items_processed_total",
			Help: "Items handled by job runs, such as notifications written or grants expired.",
		}, []string{"job"}),
	}
	if registerer != nil {
		registerer.MustRegister(m.runs, m.failures, m.duration, m.processed)
	}
	return m
}

// Run executes fn as one run of job. fn reports how many items it handled;
// the count is only recorded when fn succeeds.
func (m *Metrics) Run(job string, fn func() (int, error)) error {
	start := time.Now()
	n, err := fn()
	if m == nil {
		return err
	}
	m.duration.WithLabelValues(job).Observe(time.Since(start).Seconds())
	if err != nil {
		m.failures.WithLabelValues(job).Inc()
		m.runs.WithLabelValues(job, OutcomeFailure).Inc()
		return err
	}
	m.runs.WithLabelValues(job, OutcomeSuccess).Inc()
	if n > 0 {
		m.processed.WithLabelValues(job).Add(float64(n))
	}
	return nil
}
