package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics records metadata for scheduled payout jobs.
type JobMetrics struct {
	duration   *prometheus.HistogramVec
	success    *prometheus.CounterVec
	failure    *prometheus.CounterVec
	swept      prometheus.Counter
	reconciled prometheus.Counter
}

// NewJobMetrics registers the worker job metrics on the provided registerer.
func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "job_duration_seconds",
		Help:    "Duration of scheduled jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_success",
		Help: "Successful scheduled job executions.",
	}, []string{"job"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_failure",
		Help: "Failed scheduled job executions.",
	}, []string{"job"})
	swept := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payouts_swept_total",
		Help: "Payouts created by the scheduled sweep.",
	})
	reconciled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payouts_reconciled_total",
		Help: "Stuck payouts resolved by gateway reconciliation.",
	})
	reg.MustRegister(duration, success, failure, swept, reconciled)
	return &JobMetrics{
		duration:   duration,
		success:    success,
		failure:    failure,
		swept:      swept,
		reconciled: reconciled,
	}
}

// ObserveDuration records the duration for the named job.
func (c *JobMetrics) ObserveDuration(job string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the named job.
func (c *JobMetrics) IncSuccess(job string) {
	if c == nil || c.success == nil {
		return
	}
	c.success.WithLabelValues(normalizeLabel(job)).Inc()
}

// IncFailure increments the failure counter for the named job.
func (c *JobMetrics) IncFailure(job string) {
	if c == nil || c.failure == nil {
		return
	}
	c.failure.WithLabelValues(normalizeLabel(job)).Inc()
}

// AddSwept records payouts created by a sweep pass.
func (c *JobMetrics) AddSwept(n int) {
	if c == nil || c.swept == nil || n <= 0 {
		return
	}
	c.swept.Add(float64(n))
}

// AddReconciled records stuck payouts resolved by a reconcile pass.
func (c *JobMetrics) AddReconciled(n int) {
	if c == nil || c.reconciled == nil || n <= 0 {
		return
	}
	c.reconciled.Add(float64(n))
}

func normalizeLabel(job string) string {
	if job == "" {
		return "unknown"
	}
	return job
}
