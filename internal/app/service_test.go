package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeService struct {
	name     string
	startErr error
	block    bool
	mu       sync.Mutex
	stopped  bool
}

func (f *fakeService) Name() string { return f.name }

func (f *fakeService) Start(ctx context.Context) error {
	if f.block {
		<-ctx.Done()
		return nil
	}
	return f.startErr
}

func (f *fakeService) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeService) wasStopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

func TestRunnerStopsAllOnServiceError(t *testing.T) {
	boom := errors.New("listen failed")
	failing := &fakeService{name: "http", startErr: boom}
	blocking := &fakeService{name: "scheduler", block: true}

	err := NewRunner(failing, blocking).Run(context.Background(), time.Second, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("runner error want %v got %v", boom, err)
	}
	if !failing.wasStopped() || !blocking.wasStopped() {
		t.Fatalf("all services should be stopped")
	}
}

func TestRunnerContextCancel(t *testing.T) {
	blocking := &fakeService{name: "scheduler", block: true}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewRunner(blocking).Run(ctx, time.Second, nil)
	}()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("cancelled runner should return nil, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("runner did not stop after cancel")
	}
	if !blocking.wasStopped() {
		t.Fatalf("service should be stopped")
	}
}

func TestRunnerRejectsEmpty(t *testing.T) {
	if err := NewRunner().Run(context.Background(), time.Second, nil); err == nil {
		t.Fatalf("empty runner should fail")
	}
	if err := RunWithOptions(nil, Options{}); err == nil {
		t.Fatalf("nil runner should fail")
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]string{"": ModeAll, " API ": ModeAPI, "worker": ModeWorker, "all": ModeAll}
	for in, want := range cases {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("parse %q want %q got %q err=%v", in, want, got, err)
		}
	}
	if _, err := ParseMode("cron"); err == nil {
		t.Fatalf("unknown mode should fail")
	}
}
