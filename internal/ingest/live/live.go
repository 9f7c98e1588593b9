// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package live implements the tip channel described in spec §4.7: it
// polls the chain head and emits one batch per advance, starting only
// once the historical ingestor has signaled it is caught up. Polling
// (rather than a raw log subscription) is used so the same safety-margin
// and backoff delays as the historical channel apply uniformly; grounded
// on nirajvora-watcher's reconciler chunk/backoff loop, adapted from a
// closed range to an open-ended poll.
package live

import (
	"context"
	"math/big"
	"time"

	ethereum "github.com/luxfi/geth"
	"go.uber.org/zap"

	"github.com/luxfi/runic/internal/ingest"
)

// pollInterval is how often the tip is checked for new blocks.
const pollInterval = 3 * time.Second

// maxWindow bounds how many blocks a single poll tick will claim, so a
// long-paused process doesn't try to pull an enormous window in one call;
// the remainder is picked up on the next tick.
const maxWindow = 500

// backoffBase and backoffMax bound the exponential wait after consecutive
// failed polls: the same delays the historical channel uses between chunk
// attempts. The live channel has no attempt limit; it keeps polling.
const (
	backoffBase = 500 * time.Millisecond
	backoffMax  = 30 * time.Second
)

// Ingestor polls from a starting block to the chain tip minus a safety
// margin, emitting one ingest.Batch per new window of blocks.
type Ingestor struct {
	client         ingest.Client
	addrs          ingest.Addresses
	safetyMargin   uint64
	logger         *zap.Logger
	Out            chan ingest.Batch
}

// New constructs an Ingestor. safetyMargin is the number of confirmations
// to hold back from the reported chain head, per spec §3/§4.7.
func New(client ingest.Client, addrs ingest.Addresses, safetyMargin uint64, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		client:       client,
		addrs:        addrs,
		safetyMargin: safetyMargin,
		logger:       logger,
		Out:          make(chan ingest.Batch, 64),
	}
}

// Run polls from fromBlock onward until ctx is canceled.
func (ing *Ingestor) Run(ctx context.Context, fromBlock uint64) error {
	defer close(ing.Out)
	next := fromBlock
	failures := 0
	backoff := func() time.Duration {
		d := backoffBase << failures
		if d >= backoffMax {
			return backoffMax
		}
		failures++
		return d
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		tip, err := ing.client.BlockNumber(ctx)
		if err != nil {
			ing.logger.Warn("failed to read chain tip, backing off", zap.Error(err))
			select {
			case <-time.After(backoff()):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		if tip < ing.safetyMargin {
			continue
		}
		safeTip := tip - ing.safetyMargin
		if next > safeTip {
			continue
		}

		windowEnd := safeTip
		if windowEnd-next+1 > maxWindow {
			windowEnd = next + maxWindow - 1
		}

		logs, err := ing.client.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(next),
			ToBlock:   new(big.Int).SetUint64(windowEnd),
			Addresses: ing.addrs.All(),
		})
		if err != nil {
			ing.logger.Warn("filterLogs failed, will retry next tick",
				zap.Uint64("from", next), zap.Uint64("to", windowEnd), zap.Error(err))
			select {
			case <-time.After(backoff()):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		failures = 0

		filtered := logs[:0]
		for _, l := range logs {
			if !l.Removed {
				filtered = append(filtered, l)
			}
		}

		batch := ingest.Batch{FromBlock: next, ToBlock: windowEnd, Logs: filtered, Source: "live"}
		select {
		case ing.Out <- batch:
			next = windowEnd + 1
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
