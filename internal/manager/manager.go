// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package manager implements the Chain Manager (spec §4.9): it reads the
// enabled chain set, spawns one Chain Worker per chain via
// golang.org/x/sync/errgroup, and coordinates process-wide shutdown on OS
// signal within a bounded deadline.
package manager

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/luxfi/geth/ethclient"

	"github.com/luxfi/runic/internal/chain"
	"github.com/luxfi/runic/internal/config"
	"github.com/luxfi/runic/internal/cron"
	"github.com/luxfi/runic/internal/metrics"
	"github.com/luxfi/runic/internal/pubsub"
	"github.com/luxfi/runic/internal/store"
	"github.com/luxfi/runic/internal/token"
	"github.com/luxfi/runic/internal/worker"
)

// shutdownDeadline bounds how long workers are given to drain in-flight
// batches before the process forces exit, per spec §4.9/§6.
const shutdownDeadline = 30 * time.Second

// Manager owns every chain worker in the process.
type Manager struct {
	cfg     config.Config
	txn     store.TransactionalStore
	anl     store.AnalyticalStore
	metr    *metrics.Registry
	logger  *zap.Logger
	workers map[uint64]*worker.Worker
}

// New constructs a Manager bound to the resolved process configuration and
// both stores.
func New(cfg config.Config, txn store.TransactionalStore, anl store.AnalyticalStore, metr *metrics.Registry, logger *zap.Logger) *Manager {
	return &Manager{cfg: cfg, txn: txn, anl: anl, metr: metr, logger: logger, workers: make(map[uint64]*worker.Worker)}
}

// Run loads the enabled chain set, wires one worker per chain, and blocks
// until every worker exits or the process receives a terminating signal.
// It returns the process exit code per spec §6: 0 clean, 2 unrecoverable
// runtime error, 130 signal-initiated exit that failed to drain in time.
func (m *Manager) Run(ctx context.Context, chains []chain.Config) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, gctx := errgroup.WithContext(ctx)
	var scheduler *cron.Scheduler
	var jobs []cron.Job

	for _, c := range chains {
		if !c.Enabled {
			continue
		}
		c := c
		w, teardown, err := m.buildWorker(gctx, c)
		if err != nil {
			m.logger.Error("failed to build worker, skipping chain", zap.Uint64("chain_id", c.ChainID), zap.Error(err))
			continue
		}
		defer teardown()
		m.workers[c.ChainID] = w

		group.Go(func() error {
			if err := w.Run(gctx); err != nil && gctx.Err() == nil {
				return fmt.Errorf("chain %d worker: %w", c.ChainID, err)
			}
			return nil
		})

		jobs = append(jobs, m.chainJobs(c, w)...)
	}

	if len(jobs) > 0 {
		scheduler = cron.New(m.txn, m.logger.Named("cron"), jobs...)
		group.Go(func() error {
			scheduler.Run(gctx)
			return nil
		})
	}

	if m.cfg.Metrics.Enabled {
		group.Go(func() error {
			if err := m.metr.Serve(gctx, m.cfg.Metrics.ListenAddr); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	errCh := make(chan error, 1)
	go func() { errCh <- group.Wait() }()

	select {
	case err := <-errCh:
		if err != nil {
			m.logger.Error("worker group exited with error", zap.Error(err))
			return 2
		}
		return 0
	case <-ctx.Done():
		m.logger.Info("shutdown signal received, draining workers", zap.Duration("deadline", shutdownDeadline))
		select {
		case err := <-errCh:
			if err != nil {
				m.logger.Error("worker group exited with error during drain", zap.Error(err))
				return 2
			}
			return 0
		case <-time.After(shutdownDeadline):
			m.logger.Error("shutdown deadline exceeded, forcing exit", zap.Duration("deadline", shutdownDeadline))
			return 130
		}
	}
}

func (m *Manager) buildWorker(ctx context.Context, c chain.Config) (*worker.Worker, func(), error) {
	rpc, err := ethclient.DialContext(ctx, c.RPCEndpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing rpc for chain %d: %w", c.ChainID, err)
	}

	tok, err := token.New(c.ChainID, rpc, m.cfg.Indexer.Concurrency, m.logger.Named("token"))
	if err != nil {
		rpc.Close()
		return nil, nil, fmt.Errorf("building token fetcher for chain %d: %w", c.ChainID, err)
	}

	var pub *pubsub.Publisher
	if m.cfg.Redpanda.Enabled {
		pub = pubsub.New(c.ChainID, m.cfg.Redpanda.Brokers, m.cfg.Redpanda.TopicPrefix, m.logger.Named("pubsub"))
	}

	cc := c
	w := worker.New(&cc, m.txn, m.anl, rpc, tok, pub, m.metr, m.logger.Named(fmt.Sprintf("chain-%d", c.ChainID)))

	teardown := func() {
		rpc.Close()
		if pub != nil {
			pub.Close()
		}
	}
	return w, teardown, nil
}

// rollingCounterInterval and its implied decay approximate a 24h rolling
// window over periodic in-memory decay, per spec §4.10.
const rollingCounterInterval = 15 * time.Minute

const rollingCounterDecay = 1.0 - float64(rollingCounterInterval)/float64(24*time.Hour)

func (m *Manager) chainJobs(c chain.Config, w *worker.Worker) []cron.Job {
	jobPrefix := fmt.Sprintf("chain_%d_", c.ChainID)
	jobs := []cron.Job{
		{
			Name:     jobPrefix + "native_price",
			Interval: time.Minute,
			Run:      w.RefreshNativePrice,
		},
		{
			Name:     jobPrefix + "pool_snapshots",
			Interval: time.Hour,
			Run:      w.SnapshotPools,
		},
		{
			Name:     jobPrefix + "rolling_counters",
			Interval: rollingCounterInterval,
			Run: func(ctx context.Context) error {
				return w.RefreshRollingCounters(ctx, rollingCounterDecay)
			},
		},
		{
			Name:     jobPrefix + "token_snapshots",
			Interval: 24 * time.Hour,
			Run:      w.SnapshotTokens,
		},
	}

	if c.EventRetention != nil {
		retention := *c.EventRetention
		jobs = append(jobs, cron.Job{
			Name:     jobPrefix + "event_retention_purge",
			Interval: time.Hour,
			Run: func(ctx context.Context) error {
				return m.anl.PurgeEventsOlderThan(ctx, c.ChainID, time.Now().Add(-retention))
			},
		})
	}
	return jobs
}
