// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package chain holds the static, per-chain configuration loaded from the
// transactional store at startup. Chain rows are immutable for the lifetime
// of a process; picking up a newly enabled chain requires a restart.
package chain

import (
	"time"

	"github.com/luxfi/geth/common"
)

// NativeToken describes the chain's gas/native asset.
type NativeToken struct {
	Address  common.Address
	Decimals uint8
	Symbol   string
}

// StableToken is the chain's canonical USD-pegged reference asset.
type StableToken struct {
	Address  common.Address
	Decimals uint8
}

// Config is one row of chain configuration.
type Config struct {
	ChainID uint64
	Name    string
	Enabled bool

	DataSourceEndpoint string
	RPCEndpoint        string

	Native NativeToken
	Stable StableToken

	// StablePoolAddress is the native/stable reference pool used to price
	// the native token and, transitively, anything routed through it.
	StablePoolAddress common.Address

	// Stablecoins are priced at exactly 1.0 by the resolver.
	Stablecoins []common.Address

	// MajorTokens are used as priority-3 routing hops when no stablecoin
	// or native-token pair exists for a given token.
	MajorTokens []common.Address

	// SafetyMarginBlocks is how far behind the tip the historical ingestor
	// treats a block as safely finalized.
	SafetyMarginBlocks uint64

	// BatchSize is the number of blocks per historical ingestor range scan.
	BatchSize uint64

	// EventRetention is the analytical event TTL for this chain; nil means
	// no TTL (the default — see DESIGN.md Open Question 1).
	EventRetention *time.Duration
}

// IsStablecoin reports whether addr is one of the chain's configured
// stablecoins.
func (c *Config) IsStablecoin(addr common.Address) bool {
	for _, s := range c.Stablecoins {
		if s == addr {
			return true
		}
	}
	return false
}

// IsNative reports whether addr is the chain's native token.
func (c *Config) IsNative(addr common.Address) bool {
	return addr == c.Native.Address
}

// IsMajor reports whether addr is a configured major routing token.
func (c *Config) IsMajor(addr common.Address) bool {
	for _, m := range c.MajorTokens {
		if m == addr {
			return true
		}
	}
	return false
}
