// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package token

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
	gethrpc "github.com/luxfi/geth/rpc"
)

// fakeRPCClient answers eth_call batches by method selector, so tests don't
// need a live RPC endpoint.
type fakeRPCClient struct {
	mu        sync.Mutex
	calls     int32
	symbol    string
	name      string
	decimals  uint8
	batchErr  error
	callErr   error
	abi       abi.ABI
}

func newFakeClient(t *testing.T, symbol, name string, decimals uint8) *fakeRPCClient {
	t.Helper()
	parsed, err := abi.JSON(stringsReader(erc20ABI))
	if err != nil {
		t.Fatalf("parsing test abi: %v", err)
	}
	return &fakeRPCClient{abi: parsed, symbol: symbol, name: name, decimals: decimals}
}

func (f *fakeRPCClient) BatchCallContext(ctx context.Context, batch []gethrpc.BatchElem) error {
	atomic.AddInt32(&f.calls, 1)
	if f.batchErr != nil {
		return f.batchErr
	}
	for i := range batch {
		if f.callErr != nil {
			batch[i].Error = f.callErr
			continue
		}
		var (
			packed []byte
			err    error
		)
		// Elements arrive in the fetcher's own construction order: symbol,
		// name, decimals.
		switch i {
		case 0:
			packed, err = f.abi.Methods["symbol"].Outputs.Pack(f.symbol)
		case 1:
			packed, err = f.abi.Methods["name"].Outputs.Pack(f.name)
		case 2:
			packed, err = f.abi.Methods["decimals"].Outputs.Pack(f.decimals)
		}
		if err != nil {
			return err
		}
		*(batch[i].Result.(*string)) = hexBytes(packed)
	}
	return nil
}

func TestFetcherResolvesMetadata(t *testing.T) {
	client := newFakeClient(t, "USDC", "USD Coin", 6)
	f, err := New(1, client, 4, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	addr := common.HexToAddress("0xusdc")
	meta, status := f.Get(context.Background(), addr)
	if status != StatusResolved {
		t.Fatalf("expected StatusResolved, got %v", status)
	}
	if meta.Symbol != "USDC" || meta.Name != "USD Coin" || meta.Decimals != 6 {
		t.Errorf("unexpected metadata: %+v", meta)
	}
}

func TestFetcherCachesAfterResolve(t *testing.T) {
	client := newFakeClient(t, "WETH", "Wrapped Ether", 18)
	f, err := New(1, client, 4, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	addr := common.HexToAddress("0xweth")
	ctx := context.Background()
	if _, status := f.Get(ctx, addr); status != StatusResolved {
		t.Fatal("expected first Get to resolve")
	}
	if _, status := f.Get(ctx, addr); status != StatusResolved {
		t.Fatal("expected second Get to resolve from cache")
	}
	if calls := atomic.LoadInt32(&client.calls); calls != 1 {
		t.Errorf("expected exactly one RPC batch call, got %d", calls)
	}
}

func TestFetcherSeedAvoidsRPC(t *testing.T) {
	client := newFakeClient(t, "SHOULD", "NOT BE CALLED", 0)
	f, err := New(1, client, 4, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	addr := common.HexToAddress("0xdai")
	f.Seed(addr, Metadata{Symbol: "DAI", Name: "Dai Stablecoin", Decimals: 18})

	meta, status := f.Get(context.Background(), addr)
	if status != StatusResolved {
		t.Fatalf("expected seeded entry to resolve without RPC, got %v", status)
	}
	if meta.Symbol != "DAI" {
		t.Errorf("expected seeded metadata to be returned, got %+v", meta)
	}
	if calls := atomic.LoadInt32(&client.calls); calls != 0 {
		t.Errorf("expected zero RPC calls for a seeded address, got %d", calls)
	}
}

func TestFetcherUnavailableOnBatchError(t *testing.T) {
	client := newFakeClient(t, "X", "X", 18)
	client.batchErr = errors.New("connection refused")
	f, err := New(1, client, 4, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	_, status := f.Get(context.Background(), common.HexToAddress("0xdead"))
	if status != StatusUnavailable {
		t.Errorf("expected StatusUnavailable on batch error, got %v", status)
	}
}

func TestFetcherUnavailableCachedWithinCooldown(t *testing.T) {
	client := newFakeClient(t, "X", "X", 18)
	client.batchErr = errors.New("connection refused")
	f, err := New(1, client, 4, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	addr := common.HexToAddress("0xdead")
	ctx := context.Background()
	f.Get(ctx, addr)
	f.Get(ctx, addr)

	if calls := atomic.LoadInt32(&client.calls); calls != 1 {
		t.Errorf("expected the cooldown to suppress the second RPC attempt, got %d calls", calls)
	}
}

func TestFetcherDefaultsConcurrency(t *testing.T) {
	client := newFakeClient(t, "X", "X", 18)
	f, err := New(1, client, 0, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if cap(f.sem) != 8 {
		t.Errorf("expected default concurrency of 8, got %d", cap(f.sem))
	}
}
