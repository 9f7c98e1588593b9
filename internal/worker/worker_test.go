// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package worker

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	ethereum "github.com/luxfi/geth"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/geth/crypto"

	"github.com/luxfi/runic/internal/chain"
	"github.com/luxfi/runic/internal/domain"
	"github.com/luxfi/runic/internal/ingest"
	"github.com/luxfi/runic/internal/token"
)

var sigSyncV2 = crypto.Keccak256Hash([]byte("Sync(uint112,uint112)"))

type fakeTxnStore struct {
	mu          sync.Mutex
	pools       []*domain.Pool
	tokens      []*domain.Token
	checkpoint  domain.Checkpoint
	upsertedPools []*domain.Pool
	writtenCheckpoints []uint64
}

func (f *fakeTxnStore) UpsertPool(ctx context.Context, pool *domain.Pool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertedPools = append(f.upsertedPools, pool)
	return nil
}

func (f *fakeTxnStore) UpsertToken(ctx context.Context, t *domain.Token) error { return nil }

func (f *fakeTxnStore) LoadPools(ctx context.Context, chainID uint64) ([]*domain.Pool, error) {
	return f.pools, nil
}

func (f *fakeTxnStore) LoadTokens(ctx context.Context, chainID uint64) ([]*domain.Token, error) {
	return f.tokens, nil
}

func (f *fakeTxnStore) ReadCheckpoint(ctx context.Context, chainID uint64) (domain.Checkpoint, error) {
	return f.checkpoint, nil
}

func (f *fakeTxnStore) WriteCheckpoint(ctx context.Context, chainID uint64, block uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writtenCheckpoints = append(f.writtenCheckpoints, block)
	return nil
}

func (f *fakeTxnStore) SetNativePrice(ctx context.Context, p domain.NativePrice) error { return nil }

type fakeAnlStore struct {
	mu             sync.Mutex
	events         []*domain.Event
	supplies       []*domain.SupplyEvent
	newPools       []*domain.NewPoolRecord
	poolSnapshots  int
	tokenSnapshots int
}

func (f *fakeAnlStore) AppendEvents(ctx context.Context, batch []*domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, batch...)
	return nil
}

func (f *fakeAnlStore) AppendSupplyEvents(ctx context.Context, batch []*domain.SupplyEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.supplies = append(f.supplies, batch...)
	return nil
}

func (f *fakeAnlStore) AppendNewPools(ctx context.Context, batch []*domain.NewPoolRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.newPools = append(f.newPools, batch...)
	return nil
}

func (f *fakeAnlStore) InsertPoolSnapshot(ctx context.Context, pool *domain.Pool, takenAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.poolSnapshots++
	return nil
}

func (f *fakeAnlStore) InsertTokenSnapshot(ctx context.Context, tok *domain.Token, takenAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenSnapshots++
	return nil
}

type fakeEthClient struct {
	tip     uint64
	headers map[uint64]*types.Header
}

func (f *fakeEthClient) BlockNumber(ctx context.Context) (uint64, error) { return f.tip, nil }

func (f *fakeEthClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if h, ok := f.headers[number.Uint64()]; ok {
		return h, nil
	}
	return &types.Header{Time: 0}, nil
}

func (f *fakeEthClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (f *fakeEthClient) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("not implemented")
}

func testWorker(t *testing.T) (*Worker, *fakeTxnStore, *fakeAnlStore) {
	t.Helper()
	cfg := &chain.Config{ChainID: 1}
	txn := &fakeTxnStore{}
	anl := &fakeAnlStore{}
	eth := &fakeEthClient{tip: 1_000_000, headers: map[uint64]*types.Header{100: {Time: 1_700_000_000}}}
	tok, err := token.New(cfg.ChainID, nil, 4, zap.NewNop())
	if err != nil {
		t.Fatalf("token.New() error: %v", err)
	}
	w := New(cfg, txn, anl, eth, tok, nil, nil, zap.NewNop())
	return w, txn, anl
}

func seedPool(w *Worker, addr, token0, token1 common.Address) *domain.Pool {
	p := &domain.Pool{
		ChainID:        w.cfg.ChainID,
		Address:        addr,
		Token0:         token0,
		Token1:         token1,
		Token0Decimals: 18,
		Token1Decimals: 6,
		Reserve0:       big.NewInt(0),
		Reserve1:       big.NewInt(0),
	}
	w.Put(p)
	return p
}

func syncLog(pool common.Address, blockNumber uint64, logIndex uint, reserve0, reserve1 *big.Int) types.Log {
	data := make([]byte, 64)
	reserve0.FillBytes(data[0:32])
	reserve1.FillBytes(data[32:64])
	return types.Log{
		Address:     pool,
		Topics:      []common.Hash{sigSyncV2},
		Data:        data,
		BlockNumber: blockNumber,
		Index:       logIndex,
		TxHash:      common.HexToHash("0xabc"),
	}
}

func TestProcessBatchAppliesSyncAndAdvancesCheckpoint(t *testing.T) {
	w, txn, anl := testWorker(t)
	poolAddr := common.HexToAddress("0xpool")
	seedPool(w, poolAddr, common.HexToAddress("0xtoken0"), common.HexToAddress("0xtoken1"))

	batch := ingest.Batch{
		FromBlock: 100,
		ToBlock:   100,
		Source:    "historical",
		Logs:      []types.Log{syncLog(poolAddr, 100, 0, big.NewInt(2_000), big.NewInt(1_000))},
	}

	if err := w.processBatch(context.Background(), batch); err != nil {
		t.Fatalf("processBatch() error: %v", err)
	}

	got, ok := w.Get(poolAddr)
	if !ok {
		t.Fatal("expected the pool to still be tracked after Sync")
	}
	if got.Reserve0.Cmp(big.NewInt(2_000)) != 0 || got.Reserve1.Cmp(big.NewInt(1_000)) != 0 {
		t.Errorf("reserves after Sync = (%s, %s), want (2000, 1000)", got.Reserve0, got.Reserve1)
	}

	if len(txn.upsertedPools) != 1 {
		t.Errorf("expected exactly 1 UpsertPool call, got %d", len(txn.upsertedPools))
	}
	if len(txn.writtenCheckpoints) != 1 || txn.writtenCheckpoints[0] != 100 {
		t.Errorf("expected checkpoint advanced to 100, got %v", txn.writtenCheckpoints)
	}
	if anl.events != nil {
		t.Errorf("Sync alone should not emit an analytical event, got %d", len(anl.events))
	}
}

func TestProcessBatchSkipsUnknownLogsButStillAdvancesCheckpoint(t *testing.T) {
	w, txn, anl := testWorker(t)

	unknownLog := types.Log{
		Address:     common.HexToAddress("0xpool"),
		Topics:      []common.Hash{common.HexToHash("0xdeadbeef")},
		Data:        nil,
		BlockNumber: 50,
		Index:       0,
		TxHash:      common.HexToHash("0xdef"),
	}
	batch := ingest.Batch{FromBlock: 50, ToBlock: 50, Source: "historical", Logs: []types.Log{unknownLog}}

	if err := w.processBatch(context.Background(), batch); err != nil {
		t.Fatalf("processBatch() error: %v", err)
	}
	if len(txn.writtenCheckpoints) != 1 || txn.writtenCheckpoints[0] != 50 {
		t.Errorf("expected checkpoint to advance even when every log is unknown, got %v", txn.writtenCheckpoints)
	}
	if anl.events != nil || anl.supplies != nil || anl.newPools != nil {
		t.Error("expected no analytical rows for a batch of unknown logs")
	}
}

func TestProcessBatchOrdersLogsByBlockTxAndLogIndex(t *testing.T) {
	w, _, _ := testWorker(t)
	poolAddr := common.HexToAddress("0xpool")
	seedPool(w, poolAddr, common.HexToAddress("0xtoken0"), common.HexToAddress("0xtoken1"))

	// Two Syncs in the same block, out of index order; the later log index
	// must win since processSync overwrites reserves unconditionally.
	first := syncLog(poolAddr, 100, 1, big.NewInt(1), big.NewInt(1))
	second := syncLog(poolAddr, 100, 0, big.NewInt(999), big.NewInt(999))
	batch := ingest.Batch{FromBlock: 100, ToBlock: 100, Source: "historical", Logs: []types.Log{first, second}}

	if err := w.processBatch(context.Background(), batch); err != nil {
		t.Fatalf("processBatch() error: %v", err)
	}
	got, _ := w.Get(poolAddr)
	if got.Reserve0.Cmp(big.NewInt(1)) != 0 {
		t.Errorf("expected the higher log-index Sync (reserve0=1) to win, got %s", got.Reserve0)
	}
}

func TestPutIndexesPoolByBothTokens(t *testing.T) {
	w, _, _ := testWorker(t)
	token0 := common.HexToAddress("0xa0")
	token1 := common.HexToAddress("0xa1")
	pool := seedPool(w, common.HexToAddress("0xpool"), token0, token1)

	for _, tok := range []common.Address{token0, token1} {
		pools := w.PoolsForToken(tok)
		if len(pools) != 1 || pools[0].Address != pool.Address {
			t.Errorf("PoolsForToken(%s) = %v, want [%s]", tok, pools, pool.Address)
		}
	}
}

func TestNativePriceUSDRoundTrip(t *testing.T) {
	w, _, _ := testWorker(t)
	if _, ok := w.NativePriceUSD(); ok {
		t.Fatal("expected native price to be unknown before it is set")
	}
	w.SetNativePriceUSD(3.5)
	got, ok := w.NativePriceUSD()
	if !ok || got != 3.5 {
		t.Errorf("NativePriceUSD() = (%v, %v), want (3.5, true)", got, ok)
	}
}

func TestRefreshNativePriceNoopWithoutStablePool(t *testing.T) {
	w, _, _ := testWorker(t)
	if err := w.RefreshNativePrice(context.Background()); err != nil {
		t.Fatalf("RefreshNativePrice() error: %v", err)
	}
	if _, ok := w.NativePriceUSD(); ok {
		t.Error("expected native price to remain unknown when no stable pool is configured")
	}
}

func TestRefreshNativePriceUsesStablePoolPrice(t *testing.T) {
	w, _, _ := testWorker(t)
	native := common.HexToAddress("0xe0")
	stable := common.HexToAddress("0x5e")
	w.cfg.Native.Address = native
	w.cfg.StablePoolAddress = common.HexToAddress("0x9000")
	pool := seedPool(w, w.cfg.StablePoolAddress, native, stable)
	pool.Price = 2.0 // native priced in terms of token1 (stable)

	if err := w.RefreshNativePrice(context.Background()); err != nil {
		t.Fatalf("RefreshNativePrice() error: %v", err)
	}
	got, ok := w.NativePriceUSD()
	if !ok || got != 2.0 {
		t.Errorf("NativePriceUSD() = (%v, %v), want (2.0, true)", got, ok)
	}
}

func TestRefreshNativePriceInvertsWhenNativeIsToken1(t *testing.T) {
	w, _, _ := testWorker(t)
	native := common.HexToAddress("0xe0")
	stable := common.HexToAddress("0x5e")
	w.cfg.Native.Address = native
	w.cfg.StablePoolAddress = common.HexToAddress("0x9000")
	pool := seedPool(w, w.cfg.StablePoolAddress, stable, native)
	pool.Price = 4.0 // price is token1-per-token0 = native-per-stable

	if err := w.RefreshNativePrice(context.Background()); err != nil {
		t.Fatalf("RefreshNativePrice() error: %v", err)
	}
	got, ok := w.NativePriceUSD()
	if !ok || got != 0.25 {
		t.Errorf("NativePriceUSD() = (%v, %v), want (0.25, true)", got, ok)
	}
}

func TestSnapshotPoolsWritesOneRowPerTrackedPool(t *testing.T) {
	w, _, anl := testWorker(t)
	seedPool(w, common.HexToAddress("0x9001"), common.HexToAddress("0xa"), common.HexToAddress("0xb"))
	seedPool(w, common.HexToAddress("0x9002"), common.HexToAddress("0xc"), common.HexToAddress("0xd"))

	if err := w.SnapshotPools(context.Background()); err != nil {
		t.Fatalf("SnapshotPools() error: %v", err)
	}
	if anl.poolSnapshots != 2 {
		t.Errorf("expected 2 pool snapshots, got %d", anl.poolSnapshots)
	}
}

func TestRefreshRollingCountersDecaysVolumeAndSwaps(t *testing.T) {
	w, txn, _ := testWorker(t)
	pool := seedPool(w, common.HexToAddress("0xpool"), common.HexToAddress("0xa"), common.HexToAddress("0xb"))
	pool.Volume24h = 100
	pool.Swaps24h = 10

	if err := w.RefreshRollingCounters(context.Background(), 0.5); err != nil {
		t.Fatalf("RefreshRollingCounters() error: %v", err)
	}
	if pool.Volume24h != 50 {
		t.Errorf("Volume24h after decay = %v, want 50", pool.Volume24h)
	}
	if pool.Swaps24h != 5 {
		t.Errorf("Swaps24h after decay = %v, want 5", pool.Swaps24h)
	}
	if len(txn.upsertedPools) != 1 {
		t.Errorf("expected decayed counters to be persisted, got %d upserts", len(txn.upsertedPools))
	}
}

func TestWatchedAddressesDedupesPoolsAndFactories(t *testing.T) {
	w, _, _ := testWorker(t)
	factory := common.HexToAddress("0xfactory")
	pool := seedPool(w, common.HexToAddress("0x9001"), common.HexToAddress("0xa"), common.HexToAddress("0xb"))
	pool.Factory = factory
	pool2 := seedPool(w, common.HexToAddress("0x9002"), common.HexToAddress("0xc"), common.HexToAddress("0xd"))
	pool2.Factory = factory

	addrs := w.watchedAddresses()
	if len(addrs.Pools) != 2 {
		t.Errorf("expected 2 distinct pools, got %d", len(addrs.Pools))
	}
	if len(addrs.Factories) != 1 {
		t.Errorf("expected factories deduped to 1, got %d", len(addrs.Factories))
	}
}

func TestLoadStateSeedsPoolsAndTokenCache(t *testing.T) {
	w, txn, _ := testWorker(t)
	poolAddr := common.HexToAddress("0xpool")
	tokenAddr := common.HexToAddress("0xtoken")
	txn.pools = []*domain.Pool{{ChainID: 1, Address: poolAddr, Token0: tokenAddr, Token1: common.HexToAddress("0xother")}}
	txn.tokens = []*domain.Token{{ChainID: 1, Address: tokenAddr, Symbol: "TOK", Decimals: 18}}

	if err := w.loadState(context.Background()); err != nil {
		t.Fatalf("loadState() error: %v", err)
	}
	if _, ok := w.Get(poolAddr); !ok {
		t.Error("expected loadState to seed the pool index from LoadPools")
	}
	meta, status := w.tok.Get(context.Background(), tokenAddr)
	if status != token.StatusResolved || meta.Symbol != "TOK" {
		t.Errorf("expected loadState to seed token metadata from LoadTokens, got (%+v, %v)", meta, status)
	}
}
