// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package token implements the bounded-concurrency, coalescing metadata
// cache around ERC20 symbol/name/decimals RPC reads described in spec
// §4.2. The batched-call pattern (parse the ABI once, batch the three
// calls via rpc.BatchElem) is grounded on
// 4878fd73_NemoNetwork-slinky...uniswapv3-fetcher.go.
package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
	gethrpc "github.com/luxfi/geth/rpc"
)

// Status distinguishes a resolved lookup from one still in flight or one
// that has permanently failed within the cooldown window.
type Status int

const (
	StatusPending Status = iota
	StatusResolved
	StatusUnavailable
)

// Metadata is the resolved ERC20 identity of a token.
type Metadata struct {
	Symbol   string
	Name     string
	Decimals uint8
}

// unavailableCooldown bounds how long a failed lookup is cached before the
// fetcher will retry it, per spec §4.2.
const unavailableCooldown = 10 * time.Minute

// erc20ABI is the minimal ERC20 read surface. New parses it once; the
// symbol/name/decimals calls are packed again for each lookup.
const erc20ABI = `[
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"}
]`

// RPCClient is the subset of an ethclient-shaped client the fetcher needs.
type RPCClient interface {
	BatchCallContext(ctx context.Context, batch []gethrpc.BatchElem) error
}

type entry struct {
	status   Status
	meta     Metadata
	cachedAt time.Time
}

// Fetcher resolves (chain_id, address) -> Metadata, memoized for the
// process lifetime and seeded at startup through Seed.
type Fetcher struct {
	chainID uint64
	client  RPCClient
	abi     abi.ABI
	logger  *zap.Logger

	sem   chan struct{}
	group singleflight.Group

	mu    sync.RWMutex
	cache map[common.Address]entry
}

// New constructs a Fetcher with the given per-chain RPC concurrency cap
// (spec §4.2 default: small, e.g. 8).
func New(chainID uint64, client RPCClient, concurrency int, logger *zap.Logger) (*Fetcher, error) {
	parsed, err := abi.JSON(stringsReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("parsing erc20 abi: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Fetcher{
		chainID: chainID,
		client:  client,
		abi:     parsed,
		logger:  logger,
		sem:     make(chan struct{}, concurrency),
		cache:   make(map[common.Address]entry),
	}, nil
}

// Seed preloads metadata known from the persisted tokens table, avoiding
// RPC round-trips for tokens already seen in a prior run.
func (f *Fetcher) Seed(addr common.Address, meta Metadata) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache[addr] = entry{status: StatusResolved, meta: meta, cachedAt: time.Now()}
}

// Get resolves addr's metadata, coalescing concurrent lookups for the same
// address into one outstanding RPC batch call.
func (f *Fetcher) Get(ctx context.Context, addr common.Address) (Metadata, Status) {
	f.mu.RLock()
	if e, ok := f.cache[addr]; ok {
		if e.status == StatusResolved {
			f.mu.RUnlock()
			return e.meta, StatusResolved
		}
		if e.status == StatusUnavailable && time.Since(e.cachedAt) < unavailableCooldown {
			f.mu.RUnlock()
			return Metadata{}, StatusUnavailable
		}
	}
	f.mu.RUnlock()

	v, err, _ := f.group.Do(addr.Hex(), func() (interface{}, error) {
		return f.fetch(ctx, addr)
	})
	if err != nil {
		f.logger.Debug("token metadata fetch failed", zap.Stringer("address", addr), zap.Error(err))
		f.mu.Lock()
		f.cache[addr] = entry{status: StatusUnavailable, cachedAt: time.Now()}
		f.mu.Unlock()
		return Metadata{}, StatusUnavailable
	}

	meta := v.(Metadata)
	f.mu.Lock()
	f.cache[addr] = entry{status: StatusResolved, meta: meta, cachedAt: time.Now()}
	f.mu.Unlock()
	return meta, StatusResolved
}

func (f *Fetcher) fetch(ctx context.Context, addr common.Address) (Metadata, error) {
	select {
	case f.sem <- struct{}{}:
		defer func() { <-f.sem }()
	case <-ctx.Done():
		return Metadata{}, ctx.Err()
	}

	symbolPayload, err := f.abi.Pack("symbol")
	if err != nil {
		return Metadata{}, fmt.Errorf("packing symbol call: %w", err)
	}
	namePayload, err := f.abi.Pack("name")
	if err != nil {
		return Metadata{}, fmt.Errorf("packing name call: %w", err)
	}
	decimalsPayload, err := f.abi.Pack("decimals")
	if err != nil {
		return Metadata{}, fmt.Errorf("packing decimals call: %w", err)
	}

	var symbolResult, nameResult, decimalsResult string
	batch := []gethrpc.BatchElem{
		callElem(addr, symbolPayload, &symbolResult),
		callElem(addr, namePayload, &nameResult),
		callElem(addr, decimalsPayload, &decimalsResult),
	}

	if err := f.client.BatchCallContext(ctx, batch); err != nil {
		return Metadata{}, fmt.Errorf("batch call for %s: %w", addr, err)
	}
	for _, elem := range batch {
		if elem.Error != nil {
			return Metadata{}, fmt.Errorf("rpc error for %s: %w", addr, elem.Error)
		}
	}

	symbol, err := unpackString(f.abi, "symbol", symbolResult)
	if err != nil {
		return Metadata{}, err
	}
	name, err := unpackString(f.abi, "name", nameResult)
	if err != nil {
		return Metadata{}, err
	}
	decimals, err := unpackUint8(f.abi, "decimals", decimalsResult)
	if err != nil {
		return Metadata{}, err
	}

	return Metadata{Symbol: symbol, Name: name, Decimals: decimals}, nil
}

func callElem(addr common.Address, payload []byte, result *string) gethrpc.BatchElem {
	return gethrpc.BatchElem{
		Method: "eth_call",
		Args: []interface{}{
			map[string]interface{}{
				"to":   addr,
				"data": hexBytes(payload),
			},
			"latest",
		},
		Result: result,
	}
}
