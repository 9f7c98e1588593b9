// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package idkey derives content-addressed keys used for append idempotency
// and route memoization. Adapted from dex/pool_manager.go's makeStorageKey
// (blake3 of prefix+id) and graph/graph.go's makeCacheKey (hash of
// query+variables), generalized to the indexer's dedupe and cache needs.
package idkey

import (
	"encoding/binary"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// EventKey returns the idempotency key for an analytical event append,
// keyed on (chain_id, tx_hash, log_index) per spec §3/§4.5.
func EventKey(chainID uint64, txHash common.Hash, logIndex uint) [32]byte {
	h := blake3.New()
	var chainBuf [8]byte
	binary.BigEndian.PutUint64(chainBuf[:], chainID)
	h.Write(chainBuf[:])
	h.Write(txHash[:])
	var logBuf [8]byte
	binary.BigEndian.PutUint64(logBuf[:], uint64(logIndex))
	h.Write(logBuf[:])

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// RouteKey returns a memoization key for a price-resolver walk, keyed on
// the chain and the ordered sequence of tokens visited so far. Two walks
// that have visited the same prefix share a cache entry within one
// enrichment pass.
func RouteKey(chainID uint64, visited []common.Address) [32]byte {
	h := blake3.New()
	var chainBuf [8]byte
	binary.BigEndian.PutUint64(chainBuf[:], chainID)
	h.Write(chainBuf[:])
	for _, addr := range visited {
		h.Write(addr[:])
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
