// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package manager

import (
	"context"
	"math/big"
	"testing"
	"time"

	"go.uber.org/zap"

	ethereum "github.com/luxfi/geth"
	"github.com/luxfi/geth/core/types"

	"github.com/luxfi/runic/internal/chain"
	"github.com/luxfi/runic/internal/domain"
	"github.com/luxfi/runic/internal/token"
	"github.com/luxfi/runic/internal/worker"
)

// Minimal no-op doubles satisfying worker.TransactionalStore, store.AnalyticalStore
// (which also covers worker.AnalyticalStore), and ingest.Client — chainJobs only needs a constructible *worker.Worker, never
// actually runs it, so every method here is a stub.

type noopTxnStore struct{}

func (noopTxnStore) UpsertPool(ctx context.Context, pool *domain.Pool) error  { return nil }
func (noopTxnStore) UpsertToken(ctx context.Context, t *domain.Token) error   { return nil }
func (noopTxnStore) LoadPools(ctx context.Context, chainID uint64) ([]*domain.Pool, error) {
	return nil, nil
}
func (noopTxnStore) LoadTokens(ctx context.Context, chainID uint64) ([]*domain.Token, error) {
	return nil, nil
}
func (noopTxnStore) ReadCheckpoint(ctx context.Context, chainID uint64) (domain.Checkpoint, error) {
	return domain.Checkpoint{}, nil
}
func (noopTxnStore) WriteCheckpoint(ctx context.Context, chainID uint64, block uint64) error {
	return nil
}
func (noopTxnStore) SetNativePrice(ctx context.Context, p domain.NativePrice) error { return nil }

type noopAnlStore struct{}

func (noopAnlStore) AppendEvents(ctx context.Context, batch []*domain.Event) error { return nil }
func (noopAnlStore) AppendSupplyEvents(ctx context.Context, batch []*domain.SupplyEvent) error {
	return nil
}
func (noopAnlStore) AppendNewPools(ctx context.Context, batch []*domain.NewPoolRecord) error {
	return nil
}
func (noopAnlStore) InsertPoolSnapshot(ctx context.Context, pool *domain.Pool, takenAt time.Time) error {
	return nil
}
func (noopAnlStore) InsertTokenSnapshot(ctx context.Context, tok *domain.Token, takenAt time.Time) error {
	return nil
}
func (noopAnlStore) PurgeEventsOlderThan(ctx context.Context, chainID uint64, cutoff time.Time) error {
	return nil
}
func (noopAnlStore) Close() error { return nil }

type noopEthClient struct{}

func (noopEthClient) BlockNumber(ctx context.Context) (uint64, error) { return 0, nil }
func (noopEthClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{}, nil
}
func (noopEthClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}
func (noopEthClient) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, nil
}

func testManagerWorker(t *testing.T, cfg *chain.Config) *worker.Worker {
	t.Helper()
	tok, err := token.New(cfg.ChainID, nil, 4, zap.NewNop())
	if err != nil {
		t.Fatalf("token.New() error: %v", err)
	}
	return worker.New(cfg, noopTxnStore{}, noopAnlStore{}, noopEthClient{}, tok, nil, nil, zap.NewNop())
}

func TestChainJobsNamesAndIntervals(t *testing.T) {
	cfg := chain.Config{ChainID: 137}
	m := &Manager{logger: zap.NewNop()}
	w := testManagerWorker(t, &cfg)

	jobs := m.chainJobs(cfg, w)

	want := map[string]time.Duration{
		"chain_137_native_price":     time.Minute,
		"chain_137_pool_snapshots":   time.Hour,
		"chain_137_rolling_counters": rollingCounterInterval,
		"chain_137_token_snapshots":  24 * time.Hour,
	}
	if len(jobs) != len(want) {
		t.Fatalf("expected %d jobs without event retention configured, got %d", len(want), len(jobs))
	}
	for _, j := range jobs {
		interval, ok := want[j.Name]
		if !ok {
			t.Errorf("unexpected job name %q", j.Name)
			continue
		}
		if j.Interval != interval {
			t.Errorf("job %q interval = %v, want %v", j.Name, j.Interval, interval)
		}
		if j.Run == nil {
			t.Errorf("job %q has a nil Run func", j.Name)
		}
	}
}

func TestChainJobsAddsRetentionPurgeWhenConfigured(t *testing.T) {
	retention := 30 * 24 * time.Hour
	cfg := chain.Config{ChainID: 1, EventRetention: &retention}
	m := &Manager{anl: noopAnlStore{}, logger: zap.NewNop()}
	w := testManagerWorker(t, &cfg)

	jobs := m.chainJobs(cfg, w)

	found := false
	for _, j := range jobs {
		if j.Name == "chain_1_event_retention_purge" {
			found = true
			if j.Interval != time.Hour {
				t.Errorf("retention purge interval = %v, want 1h", j.Interval)
			}
		}
	}
	if !found {
		t.Error("expected an event_retention_purge job when EventRetention is set")
	}
}

func TestRollingCounterDecayApproximatesADailyWindow(t *testing.T) {
	// After 24h/rollingCounterInterval applications of the decay factor,
	// the remaining fraction is (1-1/96)^96, about 1/e (0.37): well under
	// half of a day-old value is left.
	remaining := 1.0
	steps := int(24 * time.Hour / rollingCounterInterval)
	for i := 0; i < steps; i++ {
		remaining *= rollingCounterDecay
	}
	if remaining > 0.5 {
		t.Errorf("expected most of a 24h-old value to have decayed away after a full day of ticks, remaining = %v", remaining)
	}
	if rollingCounterDecay <= 0 || rollingCounterDecay >= 1 {
		t.Errorf("rollingCounterDecay = %v, want a value in (0, 1)", rollingCounterDecay)
	}
}
