// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package cron

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeClaimer always grants or always denies claims, and counts attempts.
type fakeClaimer struct {
	grant    bool
	err      error
	attempts int32
}

func (f *fakeClaimer) ClaimCronJob(ctx context.Context, jobName string, minInterval time.Duration) (bool, error) {
	atomic.AddInt32(&f.attempts, 1)
	if f.err != nil {
		return false, f.err
	}
	return f.grant, nil
}

func TestSchedulerRunsClaimedJobs(t *testing.T) {
	claimer := &fakeClaimer{grant: true}
	var runs int32

	job := Job{
		Name:     "test-job",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	s := New(claimer, zap.NewNop(), job)
	s.Run(ctx)

	if atomic.LoadInt32(&runs) == 0 {
		t.Error("expected at least one claimed tick to run the job")
	}
}

func TestSchedulerSkipsUnclaimedJobs(t *testing.T) {
	claimer := &fakeClaimer{grant: false}
	var runs int32

	job := Job{
		Name:     "test-job",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	s := New(claimer, zap.NewNop(), job)
	s.Run(ctx)

	if atomic.LoadInt32(&runs) != 0 {
		t.Errorf("expected zero runs when the claim is denied, got %d", runs)
	}
	if atomic.LoadInt32(&claimer.attempts) == 0 {
		t.Error("expected the scheduler to still attempt the claim every tick")
	}
}

func TestSchedulerSurvivesClaimError(t *testing.T) {
	claimer := &fakeClaimer{err: context.DeadlineExceeded}
	var runs int32

	job := Job{
		Name:     "test-job",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	s := New(claimer, zap.NewNop(), job)
	s.Run(ctx)

	if atomic.LoadInt32(&runs) != 0 {
		t.Errorf("expected zero runs when claiming errors, got %d", runs)
	}
}

func TestSchedulerRunsAllJobsConcurrently(t *testing.T) {
	claimer := &fakeClaimer{grant: true}
	var mu sync.Mutex
	seen := make(map[string]bool)

	mark := func(name string) func(context.Context) error {
		return func(ctx context.Context) error {
			mu.Lock()
			seen[name] = true
			mu.Unlock()
			return nil
		}
	}

	jobs := []Job{
		{Name: "a", Interval: 5 * time.Millisecond, Run: mark("a")},
		{Name: "b", Interval: 5 * time.Millisecond, Run: mark("b")},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	s := New(claimer, zap.NewNop(), jobs...)
	s.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	if !seen["a"] || !seen["b"] {
		t.Errorf("expected both jobs to run at least once, got %+v", seen)
	}
}

func TestSchedulerReturnsOnContextCancel(t *testing.T) {
	claimer := &fakeClaimer{grant: true}
	job := Job{
		Name:     "slow-job",
		Interval: time.Hour,
		Run:      func(ctx context.Context) error { return nil },
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := New(claimer, zap.NewNop(), job)

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return promptly after context cancellation")
	}
}
