// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package localcache implements the process-local, disk-backed cache
// described in spec §2b component 23: a pebble KV store holding token
// metadata and per-chain checkpoints. The token fetcher and the chain
// worker do not read from it. It is never authoritative; the
// transactional store holds the durable copy of every value.
package localcache

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/runic/internal/token"
)

// Cache wraps a pebble database under one base directory.
type Cache struct {
	db *pebble.DB
}

// Open opens (creating if absent) the pebble database at dir.
func Open(dir string) (*Cache, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening local cache at %s: %w", dir, err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

func tokenKey(chainID uint64, addr common.Address) []byte {
	key := make([]byte, 0, 5+8+20)
	key = append(key, "token:"...)
	var chainBuf [8]byte
	binary.BigEndian.PutUint64(chainBuf[:], chainID)
	key = append(key, chainBuf[:]...)
	key = append(key, addr.Bytes()...)
	return key
}

func checkpointKey(chainID uint64) []byte {
	key := make([]byte, 0, 11+8)
	key = append(key, "checkpoint:"...)
	var chainBuf [8]byte
	binary.BigEndian.PutUint64(chainBuf[:], chainID)
	return append(key, chainBuf[:]...)
}

// PutToken seeds a token metadata entry for fast restart reads.
func (c *Cache) PutToken(chainID uint64, addr common.Address, meta token.Metadata) error {
	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling token metadata: %w", err)
	}
	return c.db.Set(tokenKey(chainID, addr), payload, pebble.Sync)
}

// GetToken returns a previously cached token metadata entry, if any.
func (c *Cache) GetToken(chainID uint64, addr common.Address) (token.Metadata, bool) {
	val, closer, err := c.db.Get(tokenKey(chainID, addr))
	if err != nil {
		return token.Metadata{}, false
	}
	defer closer.Close()

	var meta token.Metadata
	if err := json.Unmarshal(val, &meta); err != nil {
		return token.Metadata{}, false
	}
	return meta, true
}

// PutCheckpoint records the last-indexed block for fast-path restart reads.
// The transactional store's value remains authoritative; see spec §9.
func (c *Cache) PutCheckpoint(chainID uint64, block uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], block)
	return c.db.Set(checkpointKey(chainID), buf[:], pebble.Sync)
}

// GetCheckpoint returns the locally cached checkpoint, if any.
func (c *Cache) GetCheckpoint(chainID uint64) (uint64, bool) {
	val, closer, err := c.db.Get(checkpointKey(chainID))
	if err != nil || len(val) != 8 {
		return 0, false
	}
	defer closer.Close()
	return binary.BigEndian.Uint64(val), true
}
