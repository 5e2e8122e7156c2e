package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduler_RunNowExecutesJob(t *testing.T) {
	var calls atomic.Int32
	job := func(context.Context, time.Time) error {
		calls.Add(1)
		return nil
	}

	s, err := New(job, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := s.RunNow(context.Background(), time.Now()); err != nil {
		t.Fatalf("RunNow: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestScheduler_ConcurrentTriggersSingleInstance(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	var calls atomic.Int32

	job := func(context.Context, time.Time) error {
		calls.Add(1)
		started <- struct{}{}
		<-release
		return nil
	}

	s, err := New(job, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	go s.trigger()
	<-started

	// Second trigger while the first is in flight must be dropped.
	s.trigger()

	close(release)
	time.Sleep(50 * time.Millisecond)

	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want exactly 1 (second trigger should be skipped)", calls.Load())
	}
	if s.skipped.Load() != 1 {
		t.Fatalf("skipped = %d, want 1", s.skipped.Load())
	}
}

func TestScheduler_Status(t *testing.T) {
	s, err := New(func(context.Context, time.Time) error { return nil }, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	status := s.Status()
	if len(status.Jobs) != 1 {
		t.Fatalf("Jobs = %v, want 1 entry", status.Jobs)
	}
	if status.Jobs[0].Name != "prediction_generation" {
		t.Fatalf("job name = %q", status.Jobs[0].Name)
	}
	if status.Running {
		t.Fatal("Running should be false before any trigger")
	}
}

func TestScheduler_LockDeniesRun(t *testing.T) {
	var calls atomic.Int32
	job := func(context.Context, time.Time) error {
		calls.Add(1)
		return nil
	}

	s, err := New(job, &denyLock{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s.trigger()
	if calls.Load() != 0 {
		t.Fatalf("calls = %d, want 0 (lock should have denied the run)", calls.Load())
	}
	if s.skipped.Load() != 1 {
		t.Fatalf("skipped = %d, want 1", s.skipped.Load())
	}
}

type denyLock struct{}

func (denyLock) TryAcquire(context.Context, time.Duration) (bool, error) { return false, nil }
func (denyLock) Release(context.Context) error                          { return nil }
