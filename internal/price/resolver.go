// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package price

import (
	"sort"
	"sync"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/runic/internal/chain"
	"github.com/luxfi/runic/internal/decode"
	"github.com/luxfi/runic/internal/domain"
	"github.com/luxfi/runic/internal/idkey"
)

// maxDepth bounds the resolver's recursive walk to prevent cycles in
// pathological pool graphs, per spec §4.3 / §9.
const maxDepth = 2

// PoolIndex is the in-memory, chain-worker-owned view of current pool
// state the resolver reads from. It never issues RPCs; see spec §4.3.
type PoolIndex interface {
	PoolsForToken(token common.Address) []*domain.Pool
	NativePriceUSD() (float64, bool)
}

// Source is the resolver's public shape, grounded on osmosis-labs-sqs's
// domain.PricingSource interface.
type Source interface {
	GetPrice(token common.Address) (price float64, ok bool)
}

// Resolver implements Source for one chain.
type Resolver struct {
	cfg   *chain.Config
	index PoolIndex

	mu    sync.Mutex
	cache map[[32]byte]float64
}

// New constructs a Resolver bound to one chain's configuration and live
// pool index.
func New(cfg *chain.Config, index PoolIndex) *Resolver {
	return &Resolver{
		cfg:   cfg,
		index: index,
		cache: make(map[[32]byte]float64),
	}
}

// ResetCache clears the within-pass route memoization; the chain worker
// calls this once per batch so stale routes don't leak across batches
// whose pool state has since moved.
func (r *Resolver) ResetCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[[32]byte]float64)
}

// GetPrice implements Source, per the algorithm in spec §4.3.
func (r *Resolver) GetPrice(token common.Address) (float64, bool) {
	return r.resolve(token, nil, 0)
}

func (r *Resolver) resolve(token common.Address, visited []common.Address, depth int) (float64, bool) {
	if r.cfg.IsStablecoin(token) {
		return 1.0, true
	}
	if r.cfg.IsNative(token) {
		if p, ok := r.index.NativePriceUSD(); ok {
			return p, true
		}
		return 0, false
	}
	if depth >= maxDepth {
		return 0, false
	}
	for _, seen := range visited {
		if seen == token {
			return 0, false
		}
	}
	visited = append(visited, token)

	key := idkey.RouteKey(r.cfg.ChainID, visited)
	r.mu.Lock()
	if cached, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return cached, cached != 0
	}
	r.mu.Unlock()

	candidate := r.bestPool(token)
	if candidate == nil {
		return 0, false
	}

	paired, ok := candidate.OtherToken(token)
	if !ok {
		return 0, false
	}

	pairedPrice, ok := r.resolve(paired, visited, depth+1)
	if !ok {
		return 0, false
	}

	tokenInPaired := priceOfTokenInPool(candidate, token)
	usd := tokenInPaired * pairedPrice

	r.mu.Lock()
	r.cache[key] = usd
	r.mu.Unlock()
	return usd, true
}

// bestPool ranks candidate pools containing token by priority tier
// (stablecoin pair > native pair > major-token pair), then by highest
// TVL within a tier, tie-broken by lower pool address for determinism.
func (r *Resolver) bestPool(token common.Address) *domain.Pool {
	pools := r.index.PoolsForToken(token)
	if len(pools) == 0 {
		return nil
	}

	tier := func(p *domain.Pool) int {
		other, ok := p.OtherToken(token)
		if !ok {
			return -1
		}
		switch {
		case r.cfg.IsStablecoin(other):
			return 1
		case r.cfg.IsNative(other):
			return 2
		case r.cfg.IsMajor(other):
			return 3
		default:
			return -1
		}
	}

	var candidates []*domain.Pool
	for _, p := range pools {
		if tier(p) > 0 {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		ti, tj := tier(candidates[i]), tier(candidates[j])
		if ti != tj {
			return ti < tj
		}
		if candidates[i].TVLUSD != candidates[j].TVLUSD {
			return candidates[i].TVLUSD > candidates[j].TVLUSD
		}
		return candidates[i].Address.Hex() < candidates[j].Address.Hex()
	})
	return candidates[0]
}

// priceOfTokenInPool returns the price of token in units of the pool's
// other side, from current pool state.
func priceOfTokenInPool(p *domain.Pool, token common.Address) float64 {
	var priceT1PerT0 float64
	switch p.Protocol {
	case decode.ProtocolV2:
		priceT1PerT0 = V2Price(p.Reserve0, p.Reserve1, p.Token0Decimals, p.Token1Decimals)
	case decode.ProtocolV3, decode.ProtocolV4:
		priceT1PerT0 = V3Price(p.SqrtPriceX96, p.Token0Decimals, p.Token1Decimals)
	}

	if token == p.Token0 {
		return priceT1PerT0
	}
	if priceT1PerT0 == 0 {
		return 0
	}
	return 1 / priceT1PerT0
}
