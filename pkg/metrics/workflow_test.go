package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestSubmissionMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSubmissionMetrics(reg)
	m.IncSubmission("accepted")
	m.IncSubmission("accepted")
	m.IncFallback(DependencyLedger)
	m.ObserveDependency(DependencyEvidence, 30*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "supplytrace_submission_events_total", "result", "accepted"); err != nil || got != 2 {
		t.Fatalf("expected accepted=2, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "supplytrace_submission_degraded_fallbacks_total", "dependency", "ledger"); err != nil || got != 1 {
		t.Fatalf("expected ledger fallback=1, got %f (%v)", got, err)
	}
	if got, err := fetchHistogramSum(mfs, "supplytrace_submission_dependency_duration_seconds", "dependency", "evidence"); err != nil || got <= 0 {
		t.Fatalf("expected evidence latency > 0, got %f (%v)", got, err)
	}
}

func TestVerificationMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewVerificationMetrics(reg)
	m.IncVerdict("verified", "worker")
	m.IncJobs("reclaimed", 3)
	m.IncJobs("reclaimed", 0)
	m.ObserveAnalysis(time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "supplytrace_verification_verdicts_total", "source", "worker"); err != nil || got != 1 {
		t.Fatalf("expected worker verdict=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "supplytrace_verification_jobs_total", "outcome", "reclaimed"); err != nil || got != 3 {
		t.Fatalf("expected reclaimed=3, got %f (%v)", got, err)
	}
}

func TestHTTPAndPipelineMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	httpMetrics := NewHTTPMetrics(reg)
	httpMetrics.Observe(http.MethodPost, "/api/events", http.StatusCreated, 5*time.Millisecond)
	pipeline := NewPipelineMetrics(reg, "outbox-publisher")
	pipeline.Inc("supply_event.recorded", "published")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "supplytrace_http_requests_total", "status", "201"); err != nil || got != 1 {
		t.Fatalf("expected one 201, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "supplytrace_pipeline_messages_total", "outcome", "published"); err != nil || got != 1 {
		t.Fatalf("expected one published message, got %f (%v)", got, err)
	}

	var nilMetrics *HTTPMetrics
	nilMetrics.Observe(http.MethodGet, "/health", http.StatusOK, time.Millisecond)
}
