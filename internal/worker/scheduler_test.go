package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/settle-next/internal/service"
)

type fakeRetryRunner struct {
	calls []time.Time
	err   error
}

func (f *fakeRetryRunner) ProcessDueRetries(_ context.Context, now time.Time) (*service.RetryRunResult, error) {
	f.calls = append(f.calls, now)
	if f.err != nil {
		return nil, f.err
	}
	return &service.RetryRunResult{Total: 1, Succeeded: 1}, nil
}

type fakeCascadeRunner struct {
	calls int
}

func (f *fakeCascadeRunner) RunMonthlyCascade(_ context.Context, _ time.Time) (*service.CascadeResult, error) {
	f.calls++
	return &service.CascadeResult{ProcessedCount: 2}, nil
}

func TestNewSchedulerValidation(t *testing.T) {
	if _, err := NewScheduler(nil, nil, SchedulerOptions{}); err == nil {
		t.Fatalf("scheduler without jobs should fail")
	}
	if _, err := NewScheduler(nil, &fakeCascadeRunner{}, SchedulerOptions{CascadeCron: "not a cron"}); err == nil {
		t.Fatalf("invalid cron expression should fail")
	}
}

func TestSchedulerRunsJobsWithClock(t *testing.T) {
	retries := &fakeRetryRunner{}
	cascade := &fakeCascadeRunner{}
	s, err := NewScheduler(retries, cascade, SchedulerOptions{
		RetryPollInterval: time.Hour,
		CascadeCron:       "0 3 1 * *",
	})
	if err != nil {
		t.Fatalf("new scheduler failed: %v", err)
	}
	defer func() {
		if err := s.Stop(context.Background()); err != nil {
			t.Fatalf("stop scheduler failed: %v", err)
		}
	}()
	fixed := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return fixed }

	s.runRetries()
	s.runCascade()
	if len(retries.calls) != 1 || !retries.calls[0].Equal(fixed) {
		t.Fatalf("retry runner want one call at %v, got %v", fixed, retries.calls)
	}
	if cascade.calls != 1 {
		t.Fatalf("cascade runner want one call, got %d", cascade.calls)
	}

	retries.err = errors.New("db down")
	s.runRetries()
	if len(retries.calls) != 2 {
		t.Fatalf("failing retry run should still be attempted")
	}
}

func TestSchedulerStopIdempotent(t *testing.T) {
	s, err := NewScheduler(&fakeRetryRunner{}, nil, SchedulerOptions{})
	if err != nil {
		t.Fatalf("new scheduler failed: %v", err)
	}
	if s.opts.RetryPollInterval != defaultRetryPollInterval {
		t.Fatalf("default poll interval want %v got %v", defaultRetryPollInterval, s.opts.RetryPollInterval)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("first stop failed: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
}
