// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package cron runs the periodic maintenance jobs described in spec
// §4.10. Each job claims its run via the transactional store's conditional
// last_run_at update so multiple instances racing at boot only let one
// through, per spec §9.
package cron

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Claimer is the subset of store.TransactionalStore cron needs to
// coordinate job runs across instances.
type Claimer interface {
	ClaimCronJob(ctx context.Context, jobName string, minInterval time.Duration) (bool, error)
}

// Job is one periodic maintenance task.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler ticks each registered Job on its own interval, skipping a tick
// when another instance has already claimed that job recently.
type Scheduler struct {
	claimer Claimer
	jobs    []Job
	logger  *zap.Logger
}

// New constructs a Scheduler with the given jobs.
func New(claimer Claimer, logger *zap.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{claimer: claimer, jobs: jobs, logger: logger}
}

// Run starts one ticking goroutine per job and blocks until ctx is
// canceled.
func (s *Scheduler) Run(ctx context.Context) {
	done := make(chan struct{}, len(s.jobs))
	for _, job := range s.jobs {
		job := job
		go func() {
			s.runJob(ctx, job)
			done <- struct{}{}
		}()
	}
	for range s.jobs {
		<-done
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		claimed, err := s.claimer.ClaimCronJob(ctx, job.Name, job.Interval)
		if err != nil {
			s.logger.Warn("failed to claim cron job", zap.String("job", job.Name), zap.Error(err))
			continue
		}
		if !claimed {
			continue
		}

		if err := job.Run(ctx); err != nil {
			s.logger.Error("cron job failed", zap.String("job", job.Name), zap.Error(err))
		}
	}
}
