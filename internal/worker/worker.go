// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package worker implements the Chain Worker (spec §4.8): it owns one
// chain end to end — wiring the historical and live ingestors into the
// decoder/enricher and both stores, holding the in-memory pool index the
// price resolver reads, and driving checkpoint advancement.
package worker

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"

	"github.com/luxfi/runic/internal/chain"
	"github.com/luxfi/runic/internal/decode"
	"github.com/luxfi/runic/internal/domain"
	"github.com/luxfi/runic/internal/enrich"
	"github.com/luxfi/runic/internal/ingest"
	"github.com/luxfi/runic/internal/ingest/historical"
	"github.com/luxfi/runic/internal/ingest/live"
	"github.com/luxfi/runic/internal/metrics"
	"github.com/luxfi/runic/internal/price"
	"github.com/luxfi/runic/internal/pubsub"
	"github.com/luxfi/runic/internal/token"
)

// Worker drives ingestion for a single chain.
type Worker struct {
	cfg   *chain.Config
	txn   TransactionalStore
	anl   AnalyticalStore
	ethc  ingest.Client
	tok   *token.Fetcher
	pub   *pubsub.Publisher // may be nil
	metr  *metrics.Registry
	logger *zap.Logger

	mu           sync.RWMutex
	pools        map[common.Address]*domain.Pool
	poolsByToken map[common.Address][]*domain.Pool
	nativePrice  float64
	nativeKnown  bool

	resolver *price.Resolver
	enricher *enrich.Enricher
}

// TransactionalStore is the subset of store.TransactionalStore the worker
// writes through; declared locally to avoid an import cycle with store.
type TransactionalStore interface {
	UpsertPool(ctx context.Context, pool *domain.Pool) error
	UpsertToken(ctx context.Context, token *domain.Token) error
	LoadPools(ctx context.Context, chainID uint64) ([]*domain.Pool, error)
	LoadTokens(ctx context.Context, chainID uint64) ([]*domain.Token, error)
	ReadCheckpoint(ctx context.Context, chainID uint64) (domain.Checkpoint, error)
	WriteCheckpoint(ctx context.Context, chainID uint64, block uint64) error
	SetNativePrice(ctx context.Context, price domain.NativePrice) error
}

// AnalyticalStore is the subset of store.AnalyticalStore the worker writes
// through.
type AnalyticalStore interface {
	AppendEvents(ctx context.Context, batch []*domain.Event) error
	AppendSupplyEvents(ctx context.Context, batch []*domain.SupplyEvent) error
	AppendNewPools(ctx context.Context, batch []*domain.NewPoolRecord) error
	InsertPoolSnapshot(ctx context.Context, pool *domain.Pool, takenAt time.Time) error
	InsertTokenSnapshot(ctx context.Context, token *domain.Token, takenAt time.Time) error
}

// New constructs a Worker for one chain. pub may be nil if Redpanda
// publishing is disabled.
func New(cfg *chain.Config, txn TransactionalStore, anl AnalyticalStore, ethc ingest.Client, tok *token.Fetcher, pub *pubsub.Publisher, metr *metrics.Registry, logger *zap.Logger) *Worker {
	w := &Worker{
		cfg:          cfg,
		txn:          txn,
		anl:          anl,
		ethc:         ethc,
		tok:          tok,
		pub:          pub,
		metr:         metr,
		logger:       logger,
		pools:        make(map[common.Address]*domain.Pool),
		poolsByToken: make(map[common.Address][]*domain.Pool),
	}
	w.resolver = price.New(cfg, w)
	w.enricher = enrich.New(cfg, w, tok, w.resolver, logger)
	return w
}

// PoolsForToken implements price.PoolIndex.
func (w *Worker) PoolsForToken(token common.Address) []*domain.Pool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]*domain.Pool(nil), w.poolsByToken[token]...)
}

// NativePriceUSD implements price.PoolIndex.
func (w *Worker) NativePriceUSD() (float64, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.nativePrice, w.nativeKnown
}

// SetNativePriceUSD is called by the cron native-price-refresh job.
func (w *Worker) SetNativePriceUSD(usd float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nativePrice = usd
	w.nativeKnown = true
}

// Get implements enrich.Pools.
func (w *Worker) Get(address common.Address) (*domain.Pool, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	p, ok := w.pools[address]
	return p, ok
}

// Put implements enrich.Pools.
func (w *Worker) Put(pool *domain.Pool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, existed := w.pools[pool.Address]; !existed {
		w.poolsByToken[pool.Token0] = append(w.poolsByToken[pool.Token0], pool)
		w.poolsByToken[pool.Token1] = append(w.poolsByToken[pool.Token1], pool)
	}
	w.pools[pool.Address] = pool
}

// Run loads persisted state then drives the historical-then-live pipeline
// until ctx is canceled, per spec §4.8's five-step lifecycle.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.loadState(ctx); err != nil {
		return fmt.Errorf("loading chain %d state: %w", w.cfg.ChainID, err)
	}

	checkpoint, err := w.txn.ReadCheckpoint(ctx, w.cfg.ChainID)
	if err != nil {
		return fmt.Errorf("reading checkpoint for chain %d: %w", w.cfg.ChainID, err)
	}

	tip, err := w.ethc.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("reading tip for chain %d: %w", w.cfg.ChainID, err)
	}
	safeTip := uint64(0)
	if tip > w.cfg.SafetyMarginBlocks {
		safeTip = tip - w.cfg.SafetyMarginBlocks
	}

	from := checkpoint.LastIndexed + 1
	addrs := w.watchedAddresses()

	hist := historical.New(w.ethc, addrs, w.logger.Named("historical"))
	go func() {
		if err := hist.Run(ctx, from, safeTip); err != nil && ctx.Err() == nil {
			w.logger.Error("historical ingestor exited", zap.Error(err))
		}
	}()
	for batch := range hist.Out {
		if err := w.processBatch(ctx, batch); err != nil {
			return fmt.Errorf("processing historical batch %d-%d: %w", batch.FromBlock, batch.ToBlock, err)
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	next := safeTip + 1
	if from > next {
		next = from
	}
	liveIng := live.New(w.ethc, addrs, w.cfg.SafetyMarginBlocks, w.logger.Named("live"))
	go func() {
		if err := liveIng.Run(ctx, next); err != nil && ctx.Err() == nil {
			w.logger.Error("live ingestor exited", zap.Error(err))
		}
	}()
	for batch := range liveIng.Out {
		if err := w.processBatch(ctx, batch); err != nil {
			w.logger.Error("dropping batch after processing error", zap.Error(err))
			continue
		}
	}
	return ctx.Err()
}

func (w *Worker) loadState(ctx context.Context) error {
	pools, err := w.txn.LoadPools(ctx, w.cfg.ChainID)
	if err != nil {
		return err
	}
	for _, p := range pools {
		w.Put(p)
	}
	if w.tok != nil {
		tokens, err := w.txn.LoadTokens(ctx, w.cfg.ChainID)
		if err != nil {
			return err
		}
		for _, t := range tokens {
			w.tok.Seed(t.Address, token.Metadata{Symbol: t.Symbol, Name: t.Name, Decimals: t.Decimals})
		}
	}
	return nil
}

func (w *Worker) watchedAddresses() ingest.Addresses {
	w.mu.RLock()
	defer w.mu.RUnlock()
	addrs := ingest.Addresses{}
	seen := make(map[common.Address]struct{})
	for _, p := range w.pools {
		if _, ok := seen[p.Address]; !ok {
			addrs.Pools = append(addrs.Pools, p.Address)
			seen[p.Address] = struct{}{}
		}
		if _, ok := seen[p.Factory]; !ok && p.Factory != (common.Address{}) {
			addrs.Factories = append(addrs.Factories, p.Factory)
			seen[p.Factory] = struct{}{}
		}
	}
	return addrs
}

// processBatch decodes, enriches, and durably persists one ingest.Batch in
// strict (block, tx_index, log_index) order, advancing the checkpoint only
// after both stores have accepted the batch's writes, per spec §3/§9.
func (w *Worker) processBatch(ctx context.Context, batch ingest.Batch) error {
	logs := append([]types.Log(nil), batch.Logs...)
	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		if logs[i].TxIndex != logs[j].TxIndex {
			return logs[i].TxIndex < logs[j].TxIndex
		}
		return logs[i].Index < logs[j].Index
	})

	w.resolver.ResetCache()
	blockTimes := w.blockTimestamps(ctx, logs)

	var events []*domain.Event
	var supplies []*domain.SupplyEvent
	var newPools []*domain.NewPoolRecord
	touchedPools := make(map[common.Address]*domain.Pool)

	for _, l := range logs {
		loc := decode.Locator{
			ChainID:     w.cfg.ChainID,
			BlockNumber: l.BlockNumber,
			TxHash:      l.TxHash,
			TxIndex:     uint(l.TxIndex),
			LogIndex:    uint(l.Index),
		}
		decoded, err := decode.Decode(l.Address, l.Topics, l.Data, loc)
		if err != nil {
			w.logger.Warn("decode error, skipping log", zap.Error(err))
			if w.metr != nil {
				w.metr.DecodeErrors.WithLabelValues(fmt.Sprint(w.cfg.ChainID)).Inc()
			}
			continue
		}
		if decoded.Kind == decode.KindUnknown {
			continue
		}
		if decoded.Kind == decode.KindPairCreated || decoded.Kind == decode.KindPoolCreated {
			decoded.Factory = l.Address
		} else {
			decoded.Pool = l.Address
		}

		result, err := w.enricher.Process(ctx, decoded, blockTimes[l.BlockNumber])
		if err != nil {
			return fmt.Errorf("enriching log %s#%d: %w", l.TxHash, l.Index, err)
		}
		if result.Pool != nil {
			touchedPools[result.Pool.Address] = result.Pool
		}
		if result.Event != nil {
			events = append(events, result.Event)
			if w.pub != nil {
				w.pub.PublishEvent(ctx, result.Event)
			}
		}
		if result.Supply != nil {
			supplies = append(supplies, result.Supply)
		}
		if result.NewPool != nil {
			newPools = append(newPools, result.NewPool)
			if w.pub != nil {
				w.pub.PublishNewPool(ctx, result.NewPool)
			}
		}
		if w.metr != nil {
			w.metr.LogsDecoded.WithLabelValues(fmt.Sprint(w.cfg.ChainID), string(decoded.Kind)).Inc()
		}
	}

	if err := w.anl.AppendEvents(ctx, events); err != nil {
		return fmt.Errorf("appending events: %w", err)
	}
	if err := w.anl.AppendSupplyEvents(ctx, supplies); err != nil {
		return fmt.Errorf("appending supply events: %w", err)
	}
	if err := w.anl.AppendNewPools(ctx, newPools); err != nil {
		return fmt.Errorf("appending new pools: %w", err)
	}
	for _, p := range touchedPools {
		if err := w.txn.UpsertPool(ctx, p); err != nil {
			return fmt.Errorf("upserting pool %s: %w", p.Address, err)
		}
	}

	if err := w.txn.WriteCheckpoint(ctx, w.cfg.ChainID, batch.ToBlock); err != nil {
		return fmt.Errorf("advancing checkpoint to %d: %w", batch.ToBlock, err)
	}
	if w.metr != nil {
		w.metr.BatchesIngested.WithLabelValues(fmt.Sprint(w.cfg.ChainID), batch.Source).Inc()
	}
	return nil
}

// blockTimestamps fetches each distinct block's header once and returns
// its on-chain timestamp, so analytical rows carry the block's real time
// rather than processing wall-clock time (which would make historical
// backfill nondeterministic and replay-unsafe).
func (w *Worker) blockTimestamps(ctx context.Context, logs []types.Log) map[uint64]time.Time {
	out := make(map[uint64]time.Time)
	for _, l := range logs {
		if _, ok := out[l.BlockNumber]; ok {
			continue
		}
		header, err := w.ethc.HeaderByNumber(ctx, new(big.Int).SetUint64(l.BlockNumber))
		if err != nil {
			w.logger.Warn("failed to fetch block header, using zero timestamp",
				zap.Uint64("block", l.BlockNumber), zap.Error(err))
			out[l.BlockNumber] = time.Time{}
			continue
		}
		out[l.BlockNumber] = time.Unix(int64(header.Time), 0).UTC()
	}
	return out
}

// ListPools returns a snapshot of every pool currently tracked in memory,
// for cron jobs that need to walk the full set.
func (w *Worker) ListPools() []*domain.Pool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*domain.Pool, 0, len(w.pools))
	for _, p := range w.pools {
		out = append(out, p)
	}
	return out
}

// RefreshNativePrice recomputes the chain's native-token USD price from
// its configured stable reference pool and persists it, per the native
// price cron job in spec §4.10.
func (w *Worker) RefreshNativePrice(ctx context.Context) error {
	if w.cfg.StablePoolAddress == (common.Address{}) {
		return nil
	}
	pool, ok := w.Get(w.cfg.StablePoolAddress)
	if !ok {
		return nil
	}

	usd := pool.Price
	if pool.Token1 == w.cfg.Native.Address {
		if usd == 0 {
			return nil
		}
		usd = 1 / usd
	}
	if usd == 0 {
		return nil
	}

	w.SetNativePriceUSD(usd)
	return w.txn.SetNativePrice(ctx, domain.NativePrice{ChainID: w.cfg.ChainID, PriceUSD: usd, UpdatedAt: time.Now()})
}

// SnapshotPools writes the current in-memory state of every tracked pool
// to the analytical store, per the pool_snapshots cron job in spec §4.10.
func (w *Worker) SnapshotPools(ctx context.Context) error {
	now := time.Now()
	for _, p := range w.ListPools() {
		if err := w.anl.InsertPoolSnapshot(ctx, p, now); err != nil {
			return fmt.Errorf("snapshotting pool %s: %w", p.Address, err)
		}
	}
	return nil
}

// SnapshotTokens derives a per-token aggregate from the in-memory pool
// index (summed volume/swaps across every pool the token appears in, price
// taken from the resolver) and persists it, covering the token_snapshots
// and materialized-summary-refresh cron jobs in spec §4.10 — the indexer
// tracks no separate token ledger, so tokens are aggregated on demand from
// pool state rather than maintained as their own mutation stream.
func (w *Worker) SnapshotTokens(ctx context.Context) error {
	now := time.Now()
	w.mu.RLock()
	byToken := make(map[common.Address]*domain.Token, len(w.poolsByToken))
	for tokenAddr, pools := range w.poolsByToken {
		agg := &domain.Token{ChainID: w.cfg.ChainID, Address: tokenAddr}
		for _, p := range pools {
			agg.Volume24h += p.Volume24h
			agg.Swaps24h += p.Swaps24h
			agg.PoolCount++
			if p.Token0 == tokenAddr {
				agg.Symbol = p.Token0Symbol
			} else {
				agg.Symbol = p.Token1Symbol
			}
		}
		byToken[tokenAddr] = agg
	}
	w.mu.RUnlock()

	for tokenAddr, agg := range byToken {
		if price, ok := w.resolver.GetPrice(tokenAddr); ok {
			agg.PriceUSD = price
			agg.PriceUpdatedAt = now
		}
		if err := w.txn.UpsertToken(ctx, agg); err != nil {
			return fmt.Errorf("persisting token aggregate %s: %w", tokenAddr, err)
		}
		if err := w.anl.InsertTokenSnapshot(ctx, agg, now); err != nil {
			return fmt.Errorf("snapshotting token %s: %w", tokenAddr, err)
		}
	}
	return nil
}

// RefreshRollingCounters decays each tracked pool's rolling 24h counters
// and persists the refreshed values, per spec §4.10. This worker holds the
// authoritative running volume/swap counters in memory; the job's role is
// periodic persistence plus decay of the rolling window. Nothing recomputes
// the counters from the analytical store's event log.
func (w *Worker) RefreshRollingCounters(ctx context.Context, decay float64) error {
	for _, p := range w.ListPools() {
		w.mu.Lock()
		p.Volume24h *= decay
		p.Swaps24h = uint64(float64(p.Swaps24h) * decay)
		w.mu.Unlock()
		if err := w.txn.UpsertPool(ctx, p); err != nil {
			return fmt.Errorf("persisting decayed counters for pool %s: %w", p.Address, err)
		}
	}
	return nil
}
