// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package domain holds the row-shaped types shared by the resolver,
// enricher, and store adapters, matching the data model in spec §3.
package domain

import (
	"math/big"
	"time"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/runic/internal/decode"
)

// Pool is the transactional-store representation of a DEX pool, identified
// by (chain_id, address).
type Pool struct {
	ChainID uint64
	Address common.Address

	Token0         common.Address
	Token1         common.Address
	Token0Decimals uint8
	Token1Decimals uint8
	Token0Symbol   string
	Token1Symbol   string

	Protocol decode.Protocol
	Factory  common.Address
	// Fee is in parts-per-million (ppm) regardless of protocol, so v2's
	// fixed fee and v3/v4's per-pool fee tier share one representation.
	FeePPM uint32

	CreationBlock uint64
	CreationTx    common.Hash

	// v2 state.
	Reserve0         *big.Int
	Reserve1         *big.Int
	Reserve0Adjusted float64
	Reserve1Adjusted float64

	// v3/v4 state.
	SqrtPriceX96 *big.Int
	Tick         int32
	TickSpacing  int32
	Liquidity    *big.Int

	Price    float64 // token1 per token0
	PriceUSD float64
	TVLUSD   float64

	// MetadataResolved is false when either side's ERC20 decimals are
	// still unknown (token.StatusUnavailable/StatusPending at creation
	// time). Decimal-scaled and USD-denominated fields must not be
	// derived from the pool while this is false.
	MetadataResolved bool

	Volume24h float64
	Swaps24h  uint64

	LastSwapAt time.Time
	UpdatedAt  time.Time
}

// HasToken reports whether addr is one of the pool's two sides.
func (p *Pool) HasToken(addr common.Address) bool {
	return p.Token0 == addr || p.Token1 == addr
}

// OtherToken returns the side of the pool that is not addr, and whether
// addr was actually a side of this pool.
func (p *Pool) OtherToken(addr common.Address) (common.Address, bool) {
	switch addr {
	case p.Token0:
		return p.Token1, true
	case p.Token1:
		return p.Token0, true
	default:
		return common.Address{}, false
	}
}

// Token is the transactional-store representation of an ERC20 asset,
// identified by (chain_id, address).
type Token struct {
	ChainID uint64
	Address common.Address

	Symbol   string
	Name     string
	Decimals uint8

	PriceUSD        float64
	PriceUpdatedAt  time.Time
	PriceChange24h  float64
	PriceChange7d   float64
	Volume24h       float64
	Swaps24h        uint64
	PoolCount       int
	CirculatingSupply float64
	MarketCapUSD    float64

	FirstSeenBlock uint64
	LastActivityAt time.Time
}

// EventType enumerates the analytical event's event_type column.
type EventType string

const (
	EventSwap            EventType = "swap"
	EventMint            EventType = "mint"
	EventBurn            EventType = "burn"
	EventCollect         EventType = "collect"
	EventModifyLiquidity EventType = "modify_liquidity"
)

// Event is one immutable analytical append, per spec §3.
type Event struct {
	ChainID     uint64
	BlockNumber uint64
	TxHash      common.Hash
	TxIndex     uint
	LogIndex    uint
	Timestamp   time.Time

	PoolAddress common.Address
	Token0      common.Address
	Token1      common.Address
	Maker       common.Address
	Owner       common.Address

	EventType EventType

	Amount0         *big.Int
	Amount1         *big.Int
	Amount0Adjusted float64
	Amount1Adjusted float64
	// Direction is -1, 0, or +1; non-zero only for EventSwap.
	Amount0Direction int8
	Amount1Direction int8

	Price     float64
	PriceUSD  float64
	VolumeUSD float64
	FeesUSD   float64
	FeePPM    uint32

	SqrtPriceX96 *big.Int
	Tick         int32
	TickLower    int32
	TickUpper    int32
	Liquidity    *big.Int
}

// SupplyEventType enumerates mint/burn supply derivations.
type SupplyEventType string

const (
	SupplyMint SupplyEventType = "mint"
	SupplyBurn SupplyEventType = "burn"
)

// SupplyEvent is derived from ERC20 transfers where from or to is the zero
// address, per spec §3.
type SupplyEvent struct {
	ChainID       uint64
	BlockNumber   uint64
	Timestamp     time.Time
	TxHash        common.Hash
	LogIndex      uint
	TokenAddress  common.Address
	Type          SupplyEventType
	Amount        *big.Int
	AmountAdjusted float64
}

// NewPoolRecord is an append-only discovery-log row written on factory
// creation events.
type NewPoolRecord struct {
	ChainID     uint64
	PoolAddress common.Address
	Token0      common.Address
	Token1      common.Address
	Protocol    decode.Protocol
	Factory     common.Address
	BlockNumber uint64
	TxHash      common.Hash
	LogIndex    uint
	Timestamp   time.Time
}

// NativePrice is the cached native-token USD price for one chain.
type NativePrice struct {
	ChainID   uint64
	PriceUSD  float64
	UpdatedAt time.Time
}

// Checkpoint is the last block whose writes are durable for a chain.
type Checkpoint struct {
	ChainID       uint64
	LastIndexed   uint64
	UpdatedAt     time.Time
}
