// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package enrich turns a decode.DecodedEvent plus current pool state into
// the analytical Event/SupplyEvent/NewPoolRecord rows and the pool-state
// mutation that must accompany it, per spec §4.4. The state-application
// rules (Sync/Swap overwrite, Mint/Burn/ModifyLiquidity adjust liquidity)
// are adapted from dex/pool_manager.go's Swap/ModifyLiquidity/Donate
// methods, generalized from EVM storage writes to in-memory struct fields.
package enrich

import (
	"context"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/runic/internal/chain"
	"github.com/luxfi/runic/internal/decode"
	"github.com/luxfi/runic/internal/domain"
	"github.com/luxfi/runic/internal/price"
	"github.com/luxfi/runic/internal/token"
)

// Pools is the enricher's view of persisted pool state: lazy-created on
// first sight, mutated in place as events arrive.
type Pools interface {
	Get(address common.Address) (*domain.Pool, bool)
	Put(pool *domain.Pool)
}

// Prices resolves a token's current USD price; satisfied by *price.Resolver.
type Prices interface {
	GetPrice(token common.Address) (float64, bool)
}

// Result is everything one decoded event produced. Any field may be nil/zero
// if the event kind didn't produce it.
type Result struct {
	Event    *domain.Event
	NewPool  *domain.NewPoolRecord
	Supply   *domain.SupplyEvent
	Pool     *domain.Pool
}

// Enricher wires pool lookup, token metadata resolution, and price
// resolution around a single decoded event.
type Enricher struct {
	cfg    *chain.Config
	pools  Pools
	tokens *token.Fetcher
	prices Prices
	logger *zap.Logger
}

// New constructs an Enricher bound to one chain.
func New(cfg *chain.Config, pools Pools, tokens *token.Fetcher, prices Prices, logger *zap.Logger) *Enricher {
	return &Enricher{cfg: cfg, pools: pools, tokens: tokens, prices: prices, logger: logger}
}

// Process applies ev to pool state and returns the rows it produced.
// blockTime is the timestamp of the block the event's log belongs to.
func (e *Enricher) Process(ctx context.Context, ev decode.DecodedEvent, blockTime time.Time) (Result, error) {
	switch ev.Kind {
	case decode.KindPairCreated, decode.KindPoolCreated, decode.KindInitialize:
		return e.processCreation(ctx, ev, blockTime)
	case decode.KindSync:
		return e.processSync(ctx, ev)
	case decode.KindSwap:
		return e.processSwap(ctx, ev, blockTime)
	case decode.KindMint:
		return e.processMint(ctx, ev, blockTime)
	case decode.KindBurn:
		return e.processBurn(ctx, ev, blockTime)
	case decode.KindCollect:
		return e.processCollect(ctx, ev, blockTime)
	case decode.KindModifyLiquidity:
		return e.processModifyLiquidity(ctx, ev, blockTime)
	case decode.KindTransfer:
		return e.processTransfer(ctx, ev, blockTime)
	default:
		return Result{}, nil
	}
}

func (e *Enricher) processCreation(ctx context.Context, ev decode.DecodedEvent, blockTime time.Time) (Result, error) {
	meta0, status0 := e.tokens.Get(ctx, ev.Token0)
	meta1, status1 := e.tokens.Get(ctx, ev.Token1)

	// Unresolved metadata defaults to 18 decimals per spec §4.2 for display
	// only; MetadataResolved is what actually gates enrichment below.
	decimals0, decimals1 := meta0.Decimals, meta1.Decimals
	if status0 != token.StatusResolved {
		decimals0 = 18
	}
	if status1 != token.StatusResolved {
		decimals1 = 18
	}

	pool := &domain.Pool{
		ChainID:          e.cfg.ChainID,
		Address:          ev.Pool,
		Token0:           ev.Token0,
		Token1:           ev.Token1,
		Token0Decimals:   decimals0,
		Token1Decimals:   decimals1,
		Token0Symbol:     meta0.Symbol,
		Token1Symbol:     meta1.Symbol,
		Protocol:         ev.Protocol,
		Factory:          ev.Factory,
		FeePPM:           ev.Fee,
		CreationBlock:    ev.Locator.BlockNumber,
		CreationTx:       ev.Locator.TxHash,
		TickSpacing:      ev.TickSpacing,
		MetadataResolved: status0 == token.StatusResolved && status1 == token.StatusResolved,
		UpdatedAt:        blockTime,
	}
	if ev.Kind == decode.KindInitialize {
		pool.SqrtPriceX96 = ev.SqrtPriceX96
		pool.Tick = ev.Tick
		pool.Liquidity = big.NewInt(0)
	} else {
		pool.Reserve0 = big.NewInt(0)
		pool.Reserve1 = big.NewInt(0)
	}
	e.pools.Put(pool)

	return Result{
		Pool: pool,
		NewPool: &domain.NewPoolRecord{
			ChainID:     e.cfg.ChainID,
			PoolAddress: ev.Pool,
			Token0:      ev.Token0,
			Token1:      ev.Token1,
			Protocol:    ev.Protocol,
			Factory:     ev.Factory,
			BlockNumber: ev.Locator.BlockNumber,
			TxHash:      ev.Locator.TxHash,
			LogIndex:    ev.Locator.LogIndex,
			Timestamp:   blockTime,
		},
	}, nil
}

func (e *Enricher) processSync(_ context.Context, ev decode.DecodedEvent) (Result, error) {
	pool, ok := e.pools.Get(ev.Pool)
	if !ok {
		return Result{}, nil
	}
	pool.Reserve0 = ev.Reserve0
	pool.Reserve1 = ev.Reserve1
	if !pool.MetadataResolved {
		pool.Reserve0Adjusted, pool.Reserve1Adjusted = 0, 0
		pool.Price, pool.PriceUSD, pool.TVLUSD = 0, 0, 0
		return Result{Pool: pool}, nil
	}
	pool.Reserve0Adjusted = adjustedFloat(ev.Reserve0, pool.Token0Decimals)
	pool.Reserve1Adjusted = adjustedFloat(ev.Reserve1, pool.Token1Decimals)
	pool.Price = price.V2Price(pool.Reserve0, pool.Reserve1, pool.Token0Decimals, pool.Token1Decimals)
	e.applyUSD(pool)
	return Result{Pool: pool}, nil
}

func (e *Enricher) processSwap(_ context.Context, ev decode.DecodedEvent, blockTime time.Time) (Result, error) {
	pool, ok := e.pools.Get(ev.Pool)
	if !ok {
		return Result{}, nil
	}

	var amount0, amount1 *big.Int
	switch ev.Protocol {
	case decode.ProtocolV2:
		amount0 = new(big.Int).Sub(ev.Amount0In, ev.Amount0Out)
		amount1 = new(big.Int).Sub(ev.Amount1In, ev.Amount1Out)
	default:
		amount0, amount1 = ev.Amount0, ev.Amount1
		pool.SqrtPriceX96 = ev.SqrtPriceX96
		pool.Tick = ev.Tick
		if ev.Liquidity != nil {
			pool.Liquidity = ev.Liquidity
		}
	}

	// Decimal-scaled and USD-derived fields require both sides' ERC20
	// metadata to be resolved (spec §4.2/§4.4 step 2); otherwise the raw
	// event is still persisted but those fields stay zeroed.
	var amount0Adj, amount1Adj, volumeUSD, feesUSD float64
	if pool.MetadataResolved {
		if ev.Protocol == decode.ProtocolV2 {
			pool.Price = price.V2Price(pool.Reserve0, pool.Reserve1, pool.Token0Decimals, pool.Token1Decimals)
		} else {
			pool.Price = price.V3Price(pool.SqrtPriceX96, pool.Token0Decimals, pool.Token1Decimals)
		}
		e.applyUSD(pool)

		amount0Adj = adjustedFloat(amount0, pool.Token0Decimals)
		amount1Adj = adjustedFloat(amount1, pool.Token1Decimals)
		price0USD, _ := e.prices.GetPrice(pool.Token0)
		price1USD, _ := e.prices.GetPrice(pool.Token1)
		volumeUSD = volumeFromLeg(amount0Adj, price0USD, amount1Adj, price1USD)
		feesUSD = volumeUSD * float64(pool.FeePPM) / 1_000_000

		pool.Volume24h += volumeUSD
		pool.Swaps24h++
	}
	pool.LastSwapAt = blockTime
	pool.UpdatedAt = blockTime

	evt := &domain.Event{
		ChainID:          e.cfg.ChainID,
		BlockNumber:      ev.Locator.BlockNumber,
		TxHash:           ev.Locator.TxHash,
		TxIndex:          ev.Locator.TxIndex,
		LogIndex:         ev.Locator.LogIndex,
		Timestamp:        blockTime,
		PoolAddress:      ev.Pool,
		Token0:           pool.Token0,
		Token1:           pool.Token1,
		Maker:            ev.Sender,
		Owner:            ev.Recipient,
		EventType:        domain.EventSwap,
		Amount0:          amount0,
		Amount1:          amount1,
		Amount0Adjusted:  amount0Adj,
		Amount1Adjusted:  amount1Adj,
		Amount0Direction: sign(amount0),
		Amount1Direction: sign(amount1),
		Price:            pool.Price,
		PriceUSD:         pool.PriceUSD,
		VolumeUSD:        volumeUSD,
		FeesUSD:          feesUSD,
		FeePPM:           pool.FeePPM,
		SqrtPriceX96:     pool.SqrtPriceX96,
		Tick:             pool.Tick,
		Liquidity:        pool.Liquidity,
	}
	return Result{Event: evt, Pool: pool}, nil
}

func (e *Enricher) processMint(_ context.Context, ev decode.DecodedEvent, blockTime time.Time) (Result, error) {
	pool, ok := e.pools.Get(ev.Pool)
	if !ok {
		return Result{}, nil
	}
	if ev.Protocol != decode.ProtocolV2 && ev.Liquidity != nil {
		pool.Liquidity = new(big.Int).Add(zeroIfNil(pool.Liquidity), ev.Liquidity)
	}
	pool.UpdatedAt = blockTime

	return Result{Pool: pool, Event: e.liquidityEvent(ev, domain.EventMint, pool, blockTime)}, nil
}

func (e *Enricher) processBurn(_ context.Context, ev decode.DecodedEvent, blockTime time.Time) (Result, error) {
	pool, ok := e.pools.Get(ev.Pool)
	if !ok {
		return Result{}, nil
	}
	if ev.Protocol != decode.ProtocolV2 && ev.Liquidity != nil {
		pool.Liquidity = new(big.Int).Sub(zeroIfNil(pool.Liquidity), ev.Liquidity)
	}
	pool.UpdatedAt = blockTime

	return Result{Pool: pool, Event: e.liquidityEvent(ev, domain.EventBurn, pool, blockTime)}, nil
}

func (e *Enricher) processCollect(_ context.Context, ev decode.DecodedEvent, blockTime time.Time) (Result, error) {
	pool, ok := e.pools.Get(ev.Pool)
	if !ok {
		return Result{}, nil
	}
	return Result{Pool: pool, Event: e.liquidityEvent(ev, domain.EventCollect, pool, blockTime)}, nil
}

func (e *Enricher) processModifyLiquidity(_ context.Context, ev decode.DecodedEvent, blockTime time.Time) (Result, error) {
	pool, ok := e.pools.Get(ev.Pool)
	if !ok {
		return Result{}, nil
	}
	if ev.LiquidityDelta != nil {
		pool.Liquidity = new(big.Int).Add(zeroIfNil(pool.Liquidity), ev.LiquidityDelta)
	}
	pool.UpdatedAt = blockTime

	evt := e.liquidityEvent(ev, domain.EventModifyLiquidity, pool, blockTime)
	if evt != nil {
		evt.TickLower = ev.TickLower
		evt.TickUpper = ev.TickUpper
	}
	return Result{Pool: pool, Event: evt}, nil
}

func (e *Enricher) liquidityEvent(ev decode.DecodedEvent, kind domain.EventType, pool *domain.Pool, blockTime time.Time) *domain.Event {
	var amount0Adj, amount1Adj float64
	if pool.MetadataResolved {
		amount0Adj = adjustedFloat(ev.Amount0, pool.Token0Decimals)
		amount1Adj = adjustedFloat(ev.Amount1, pool.Token1Decimals)
	}
	return &domain.Event{
		ChainID:         e.cfg.ChainID,
		BlockNumber:     ev.Locator.BlockNumber,
		TxHash:          ev.Locator.TxHash,
		TxIndex:         ev.Locator.TxIndex,
		LogIndex:        ev.Locator.LogIndex,
		Timestamp:       blockTime,
		PoolAddress:     ev.Pool,
		Token0:          pool.Token0,
		Token1:          pool.Token1,
		Maker:           ev.Sender,
		Owner:           ev.Owner,
		EventType:       kind,
		Amount0:         ev.Amount0,
		Amount1:         ev.Amount1,
		Amount0Adjusted: amount0Adj,
		Amount1Adjusted: amount1Adj,
		Price:           pool.Price,
		PriceUSD:        pool.PriceUSD,
		SqrtPriceX96:    pool.SqrtPriceX96,
		Tick:            pool.Tick,
		TickLower:       ev.TickLower,
		TickUpper:       ev.TickUpper,
		Liquidity:       pool.Liquidity,
	}
}

func (e *Enricher) processTransfer(ctx context.Context, ev decode.DecodedEvent, blockTime time.Time) (Result, error) {
	var zero common.Address
	if ev.From != zero && ev.To != zero {
		return Result{}, nil
	}

	supplyType := domain.SupplyMint
	if ev.To == zero {
		supplyType = domain.SupplyBurn
	}

	meta, status := e.tokens.Get(ctx, ev.Token0)
	var amountAdj float64
	if status == token.StatusResolved {
		amountAdj = adjustedFloat(ev.Amount0, meta.Decimals)
	}
	return Result{Supply: &domain.SupplyEvent{
		ChainID:        e.cfg.ChainID,
		BlockNumber:    ev.Locator.BlockNumber,
		Timestamp:      blockTime,
		TxHash:         ev.Locator.TxHash,
		LogIndex:       ev.Locator.LogIndex,
		TokenAddress:   ev.Token0,
		Type:           supplyType,
		Amount:         ev.Amount0,
		AmountAdjusted: amountAdj,
	}}, nil
}

// applyUSD refreshes a pool's price_usd and tvl_usd from the current
// resolver state, per spec §4.3/§4.4.
func (e *Enricher) applyUSD(pool *domain.Pool) {
	price0, ok0 := e.prices.GetPrice(pool.Token0)
	price1, ok1 := e.prices.GetPrice(pool.Token1)

	// price_usd denominates token0: the resolver already returns a USD
	// price directly, so token0's is used as-is, and token1's is carried
	// across the pool's token1-per-token0 ratio.
	if ok0 {
		pool.PriceUSD = price0
	} else if ok1 {
		pool.PriceUSD = price1 * pool.Price
	}

	r0, r1 := pool.Reserve0Adjusted, pool.Reserve1Adjusted
	if pool.Protocol != decode.ProtocolV2 {
		r0, r1 = VirtualReserves(pool)
	}
	tvl := 0.0
	if ok0 {
		tvl += r0 * price0
	}
	if ok1 {
		tvl += r1 * price1
	}
	pool.TVLUSD = tvl
}

// VirtualReserves returns the reserve pair used for TVL estimation,
// computing a full-range approximation for concentrated-liquidity pools.
func VirtualReserves(pool *domain.Pool) (float64, float64) {
	return price.VirtualReservesV3(pool.Liquidity, pool.SqrtPriceX96, pool.Token0Decimals, pool.Token1Decimals)
}

func adjustedFloat(raw *big.Int, decimals uint8) float64 {
	if raw == nil {
		return 0
	}
	f := new(big.Float).SetInt(raw)
	scale := new(big.Float).SetFloat64(pow10(-int(decimals)))
	f.Mul(f, scale)
	out, _ := f.Float64()
	return out
}

func pow10(exp int) float64 {
	result := 1.0
	if exp >= 0 {
		for i := 0; i < exp; i++ {
			result *= 10
		}
		return result
	}
	for i := 0; i < -exp; i++ {
		result /= 10
	}
	return result
}

func sign(v *big.Int) int8 {
	if v == nil {
		return 0
	}
	switch v.Sign() {
	case 1:
		return 1
	case -1:
		return -1
	default:
		return 0
	}
}

func zeroIfNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func volumeFromLeg(amount0Adj, price0USD float64, amount1Adj, price1USD float64) float64 {
	v0 := absf(amount0Adj) * price0USD
	v1 := absf(amount1Adj) * price1USD
	if v0 > 0 {
		return v0
	}
	return v1
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
