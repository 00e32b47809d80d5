package cron

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/supplytrace-backend/pkg/logger"
	"github.com/angelmondragon/supplytrace-backend/pkg/metrics"
)

type testJob struct {
	name  string
	err   error
	panic bool
	runs  int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	if t.panic {
		panic("job exploded")
	}
	return t.err
}

type heldLock struct{}

func (heldLock) Acquire(context.Context) (bool, error) { return false, nil }
func (heldLock) Release(context.Context) error         { return nil }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestServiceRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	panicky := &testJob{name: "panics", panic: true}
	last := &testJob{name: "last"}
	registry, err := NewRegistry(success, failure, panicky, last)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	reg := prometheus.NewRegistry()
	lock := &LocalLock{}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	ran, err := service.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if !ran {
		t.Fatal("expected cycle to run")
	}
	for _, job := range []*testJob{success, failure, panicky, last} {
		if job.runs != 1 {
			t.Fatalf("expected %s to run once, ran %d", job.name, job.runs)
		}
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	failures := 0.0
	for _, mf := range mfs {
		if mf.GetName() != "supplytrace_cron_job_failure_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			failures += m.GetCounter().GetValue()
		}
	}
	if failures != 2 {
		t.Fatalf("expected 2 failures recorded, got %v", failures)
	}

	if ok, _ := lock.Acquire(context.Background()); !ok {
		t.Fatal("expected lock to be released after the cycle")
	}
}

func TestServiceRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "only"}
	registry, _ := NewRegistry(job)
	service, err := NewService(ServiceParams{Logger: testLogger(), Registry: registry, Lock: heldLock{}})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	ran, err := service.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if ran || job.runs != 0 {
		t.Fatalf("expected skipped cycle, ran=%v runs=%d", ran, job.runs)
	}
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "only"}
	registry, _ := NewRegistry(job)
	service, err := NewService(ServiceParams{Logger: testLogger(), Registry: registry, Lock: &LocalLock{}})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := service.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestNewServiceRequiresLoggerAndLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Lock: &LocalLock{}}); err == nil {
		t.Fatal("expected logger error")
	}
	if _, err := NewService(ServiceParams{Logger: testLogger()}); err == nil {
		t.Fatal("expected lock error")
	}
}
