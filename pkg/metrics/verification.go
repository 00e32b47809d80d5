package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// VerificationMetrics tracks verdicts and queue processing.
type VerificationMetrics struct {
	verdicts *prometheus.CounterVec
	jobs     *prometheus.CounterVec
	analysis prometheus.Histogram
}

// NewVerificationMetrics registers the verification metrics on reg.
func NewVerificationMetrics(reg prometheus.Registerer) *VerificationMetrics {
	if reg == nil {
		return &VerificationMetrics{}
	}
	verdicts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "verification",
		Name:      "verdicts_total",
		Help:      "Verdicts applied to events by status and source.",
	}, []string{"status", "source"})
	jobs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "verification",
		Name:      "jobs_total",
		Help:      "Verification job outcomes (succeeded, retried, failed, reclaimed, requeued).",
	}, []string{"outcome"})
	analysis := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "verification",
		Name:      "analysis_duration_seconds",
		Help:      "Time spent in the evidence analyzer.",
		Buckets:   prometheus.DefBuckets,
	})
	reg.MustRegister(verdicts, jobs, analysis)
	return &VerificationMetrics{
		verdicts: verdicts,
		jobs:     jobs,
		analysis: analysis,
	}
}

// IncVerdict counts an applied verdict.
func (m *VerificationMetrics) IncVerdict(status, source string) {
	if m == nil || m.verdicts == nil {
		return
	}
	m.verdicts.WithLabelValues(normalizeLabel(status), normalizeLabel(source)).Inc()
}

// IncJobs adds n to the job outcome counter.
func (m *VerificationMetrics) IncJobs(outcome string, n int) {
	if m == nil || m.jobs == nil || n <= 0 {
		return
	}
	m.jobs.WithLabelValues(normalizeLabel(outcome)).Add(float64(n))
}

// ObserveAnalysis records analyzer latency.
func (m *VerificationMetrics) ObserveAnalysis(d time.Duration) {
	if m == nil || m.analysis == nil {
		return
	}
	m.analysis.Observe(d.Seconds())
}
