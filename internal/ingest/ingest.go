// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ingest defines the shapes and RPC surface shared by the
// historical and live ingestors (spec §4.6/§4.7).
package ingest

import (
	"context"
	"math/big"

	ethereum "github.com/luxfi/geth"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
)

// Client is the subset of an ethclient-shaped RPC client the ingestors
// need. A single interface lets both channels share one connection.
type Client interface {
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// Batch is one contiguous, ordered group of logs handed to the chain
// worker's parser stage. Logs within a batch are strictly ordered by
// (block_number, tx_index, log_index) per spec §3.
type Batch struct {
	FromBlock uint64
	ToBlock   uint64
	Logs      []types.Log
	// Source distinguishes which channel produced the batch, for metrics
	// and log lines only — the worker treats both identically otherwise.
	Source string
}

// Addresses known by the chain worker to watch, built from the currently
// tracked pools and their factories; both ingestors use this set as the
// getLogs address filter, taken once when the ingestor is built. Pool
// creations are seen only from factories of already tracked pools; an
// empty set applies no address filter at all.
type Addresses struct {
	Factories []common.Address
	Pools     []common.Address
}

// All returns the full combined address list for a FilterQuery.
func (a Addresses) All() []common.Address {
	out := make([]common.Address, 0, len(a.Factories)+len(a.Pools))
	out = append(out, a.Factories...)
	out = append(out, a.Pools...)
	return out
}
