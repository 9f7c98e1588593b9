// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package historical implements the backfill channel described in spec
// §4.6: chunked getLogs over a closed block range, feeding ordered batches
// to the chain worker until it catches up to the live tip. The chunking and
// reorg-skip (Removed logs) behavior are grounded on nirajvora-watcher's
// Reconciler.Reconcile / fetchSyncEvents. A chunk that still fails after
// its retries ends Run with an error; later chunks are not fetched.
package historical

import (
	"context"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/luxfi/geth"
	"github.com/luxfi/geth/core/types"
	"go.uber.org/zap"

	"github.com/luxfi/runic/internal/ingest"
)

// maxBlockRange bounds a single getLogs call, avoiding RPC timeouts on
// wide ranges, per spec §4.6.
const maxBlockRange = 2000

// retryBaseDelay is the first wait before a failed chunk is retried, rather
// than being skipped, since historical backfill has no "next block" to fall
// back to — unlike the live channel, a skipped historical chunk is
// permanently missing history. Each later wait doubles, up to retryMaxDelay.
const (
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 30 * time.Second
)

const maxChunkAttempts = 8

// Ingestor walks a closed block range in order, emitting ingest.Batch
// values on Out until the range is exhausted or the context is canceled.
type Ingestor struct {
	client  ingest.Client
	addrs   ingest.Addresses
	logger  *zap.Logger
	Out     chan ingest.Batch
}

// New constructs an Ingestor bound to one chain's RPC client and watched
// address set.
func New(client ingest.Client, addrs ingest.Addresses, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		client: client,
		addrs:  addrs,
		logger: logger,
		Out:    make(chan ingest.Batch, 64),
	}
}

// Run fetches [fromBlock, toBlock] in chunks of maxBlockRange, sending one
// Batch per chunk, then closes Out. Safe to call with fromBlock > toBlock
// (nothing to backfill); it closes Out immediately.
func (ing *Ingestor) Run(ctx context.Context, fromBlock, toBlock uint64) error {
	defer close(ing.Out)
	if fromBlock > toBlock {
		return nil
	}

	ing.logger.Info("starting historical backfill", zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))

	for chunkStart := fromBlock; chunkStart <= toBlock; chunkStart += maxBlockRange {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		chunkEnd := chunkStart + maxBlockRange - 1
		if chunkEnd > toBlock {
			chunkEnd = toBlock
		}

		logs, err := ing.fetchChunk(ctx, chunkStart, chunkEnd)
		if err != nil {
			return fmt.Errorf("backfilling blocks %d-%d: %w", chunkStart, chunkEnd, err)
		}

		batch := ingest.Batch{FromBlock: chunkStart, ToBlock: chunkEnd, Logs: logs, Source: "historical"}
		select {
		case ing.Out <- batch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	ing.logger.Info("historical backfill complete", zap.Uint64("to", toBlock))
	return nil
}

// fetchChunk retries transient RPC failures up to maxChunkAttempts before
// giving up, since a dropped historical chunk is permanently missing
// history (unlike the live channel, which will see the same state again
// via the next poll/subscription tick).
func (ing *Ingestor) fetchChunk(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: ing.addrs.All(),
	}

	var lastErr error
	delay := retryBaseDelay
	for attempt := 1; attempt <= maxChunkAttempts; attempt++ {
		logs, err := ing.client.FilterLogs(ctx, query)
		if err == nil {
			out := make([]types.Log, 0, len(logs))
			for _, l := range logs {
				if l.Removed {
					continue
				}
				out = append(out, l)
			}
			return out, nil
		}
		lastErr = err
		ing.logger.Warn("filterLogs attempt failed",
			zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock),
			zap.Int("attempt", attempt), zap.Error(err))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}
	return nil, fmt.Errorf("exhausted %d attempts: %w", maxChunkAttempts, lastErr)
}
