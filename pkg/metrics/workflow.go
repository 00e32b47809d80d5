package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Dependency labels for the provenance clients used during submission.
const (
	DependencyEvidence = "evidence"
	DependencyLedger   = "ledger"
)

// SubmissionMetrics tracks the event submission workflow.
type SubmissionMetrics struct {
	submissions *prometheus.CounterVec
	fallbacks   *prometheus.CounterVec
	dependency  *prometheus.HistogramVec
}

// NewSubmissionMetrics registers the submission metrics on reg. A nil
// registerer yields a no-op recorder.
func NewSubmissionMetrics(reg prometheus.Registerer) *SubmissionMetrics {
	if reg == nil {
		return &SubmissionMetrics{}
	}
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "submission",
		Name:      "events_total",
		Help:      "Event submissions by outcome.",
	}, []string{"result"})
	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "submission",
		Name:      "degraded_fallbacks_total",
		Help:      "Locators synthesized because a provenance dependency failed.",
	}, []string{"dependency"})
	dependency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "submission",
		Name:      "dependency_duration_seconds",
		Help:      "Latency of evidence and ledger calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"dependency"})
	reg.MustRegister(submissions, fallbacks, dependency)
	return &SubmissionMetrics{
		submissions: submissions,
		fallbacks:   fallbacks,
		dependency:  dependency,
	}
}

// IncSubmission counts a submission outcome ("accepted", "invalid", "error").
func (m *SubmissionMetrics) IncSubmission(result string) {
	if m == nil || m.submissions == nil {
		return
	}
	m.submissions.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncFallback counts a synthesized locator for the dependency.
func (m *SubmissionMetrics) IncFallback(dependency string) {
	if m == nil || m.fallbacks == nil {
		return
	}
	m.fallbacks.WithLabelValues(normalizeLabel(dependency)).Inc()
}

// ObserveDependency records how long a dependency call took.
func (m *SubmissionMetrics) ObserveDependency(dependency string, d time.Duration) {
	if m == nil || m.dependency == nil {
		return
	}
	m.dependency.WithLabelValues(normalizeLabel(dependency)).Observe(d.Seconds())
}
