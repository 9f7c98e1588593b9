// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package clickhouse implements store.AnalyticalStore over a
// clickhouse-go/v2 native client, per spec §4.5 / §2b. Tables are assumed
// ReplacingMergeTree-ordered on their natural unique key so replayed
// appends collapse on merge; the in-process idempotency guard (idkey)
// additionally rejects replays within one process's retry window, since
// ClickHouse merges are asynchronous and cannot be relied on alone.
package clickhouse

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/luxfi/runic/internal/domain"
	"github.com/luxfi/runic/internal/idkey"
)

// replayWindow bounds how long an idempotency key is remembered. Retries
// land well within this window, so entries older than it are safe to
// forget, which keeps the in-process seen set from growing unbounded over
// a long-running process's lifetime.
const replayWindow = 10 * time.Minute

// sweepInterval amortizes the cost of pruning stale seen entries across
// inserts instead of paying it on every append.
const sweepInterval = 1024

// Store is a store.AnalyticalStore backed by ClickHouse.
type Store struct {
	conn driver.Conn

	mu      sync.Mutex
	seen    map[[32]byte]time.Time
	inserts uint64
}

// Options configures the native connection.
type Options struct {
	Addr     []string
	Database string
	User     string
	Password string
}

// Open connects to ClickHouse and verifies it with a ping.
func Open(ctx context.Context, opts Options) (*Store, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: opts.Addr,
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.User,
			Password: opts.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening clickhouse connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging clickhouse: %w", err)
	}
	return &Store{conn: conn, seen: make(map[[32]byte]time.Time)}, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) AppendEvents(ctx context.Context, batch []*domain.Event) error {
	if len(batch) == 0 {
		return nil
	}
	b, err := s.conn.PrepareBatch(ctx, "INSERT INTO events")
	if err != nil {
		return fmt.Errorf("preparing events batch: %w", err)
	}
	for _, e := range batch {
		key := idkey.EventKey(e.ChainID, e.TxHash, e.LogIndex)
		if s.alreadySeen(key) {
			continue
		}
		if err := b.Append(
			e.ChainID, e.BlockNumber, e.TxHash.Hex(), e.TxIndex, e.LogIndex, e.Timestamp,
			e.PoolAddress.Hex(), e.Token0.Hex(), e.Token1.Hex(), e.Maker.Hex(), e.Owner.Hex(),
			string(e.EventType), bigStringOrZero(e.Amount0), bigStringOrZero(e.Amount1),
			e.Amount0Adjusted, e.Amount1Adjusted, e.Amount0Direction, e.Amount1Direction,
			e.Price, e.PriceUSD, e.VolumeUSD, e.FeesUSD, e.FeePPM,
			bigStringOrZero(e.SqrtPriceX96), e.Tick, e.TickLower, e.TickUpper, bigStringOrZero(e.Liquidity),
		); err != nil {
			return fmt.Errorf("appending event row: %w", err)
		}
		s.markSeen(key)
	}
	if err := b.Send(); err != nil {
		return fmt.Errorf("sending events batch: %w", err)
	}
	return nil
}

func (s *Store) AppendSupplyEvents(ctx context.Context, batch []*domain.SupplyEvent) error {
	if len(batch) == 0 {
		return nil
	}
	b, err := s.conn.PrepareBatch(ctx, "INSERT INTO supply_events")
	if err != nil {
		return fmt.Errorf("preparing supply_events batch: %w", err)
	}
	for _, e := range batch {
		key := idkey.EventKey(e.ChainID, e.TxHash, e.LogIndex)
		if s.alreadySeen(key) {
			continue
		}
		if err := b.Append(
			e.ChainID, e.BlockNumber, e.Timestamp, e.TxHash.Hex(), e.LogIndex,
			e.TokenAddress.Hex(), string(e.Type), bigStringOrZero(e.Amount), e.AmountAdjusted,
		); err != nil {
			return fmt.Errorf("appending supply_event row: %w", err)
		}
		s.markSeen(key)
	}
	if err := b.Send(); err != nil {
		return fmt.Errorf("sending supply_events batch: %w", err)
	}
	return nil
}

func (s *Store) AppendNewPools(ctx context.Context, batch []*domain.NewPoolRecord) error {
	if len(batch) == 0 {
		return nil
	}
	b, err := s.conn.PrepareBatch(ctx, "INSERT INTO new_pools")
	if err != nil {
		return fmt.Errorf("preparing new_pools batch: %w", err)
	}
	for _, np := range batch {
		key := idkey.EventKey(np.ChainID, np.TxHash, np.LogIndex)
		if s.alreadySeen(key) {
			continue
		}
		if err := b.Append(
			np.ChainID, np.PoolAddress.Hex(), np.Token0.Hex(), np.Token1.Hex(),
			string(np.Protocol), np.Factory.Hex(), np.BlockNumber, np.TxHash.Hex(), np.LogIndex, np.Timestamp,
		); err != nil {
			return fmt.Errorf("appending new_pool row: %w", err)
		}
		s.markSeen(key)
	}
	if err := b.Send(); err != nil {
		return fmt.Errorf("sending new_pools batch: %w", err)
	}
	return nil
}

func (s *Store) InsertPoolSnapshot(ctx context.Context, p *domain.Pool, takenAt time.Time) error {
	return s.conn.Exec(ctx, `
		INSERT INTO pool_snapshots (chain_id, address, price, price_usd, tvl_usd, volume_24h, swaps_24h, taken_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ChainID, p.Address.Hex(), p.Price, p.PriceUSD, p.TVLUSD, p.Volume24h, p.Swaps24h, takenAt)
}

func (s *Store) InsertTokenSnapshot(ctx context.Context, t *domain.Token, takenAt time.Time) error {
	return s.conn.Exec(ctx, `
		INSERT INTO token_snapshots (chain_id, address, price_usd, volume_24h, market_cap_usd, taken_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.ChainID, t.Address.Hex(), t.PriceUSD, t.Volume24h, t.MarketCapUSD, takenAt)
}

// PurgeEventsOlderThan deletes event and supply_event rows older than
// cutoff for chainID. ClickHouse deletes are asynchronous mutations; this
// issues them and does not wait for the mutation to complete.
func (s *Store) PurgeEventsOlderThan(ctx context.Context, chainID uint64, cutoff time.Time) error {
	if err := s.conn.Exec(ctx, `ALTER TABLE events DELETE WHERE chain_id = ? AND timestamp < ?`, chainID, cutoff); err != nil {
		return fmt.Errorf("purging events for chain %d: %w", chainID, err)
	}
	if err := s.conn.Exec(ctx, `ALTER TABLE supply_events DELETE WHERE chain_id = ? AND timestamp < ?`, chainID, cutoff); err != nil {
		return fmt.Errorf("purging supply_events for chain %d: %w", chainID, err)
	}
	return nil
}

// alreadySeen provides the explicit idempotency guard spec §4.5 calls for
// on top of the table's ReplacingMergeTree dedupe, which only collapses on
// background merge and so cannot be relied on within a single retry window.
// A key older than replayWindow is treated as unseen and forgotten, since
// no real retry arrives that late.
func (s *Store) alreadySeen(key [32]byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.seen[key]
	if !ok {
		return false
	}
	if time.Since(at) > replayWindow {
		delete(s.seen, key)
		return false
	}
	return true
}

func (s *Store) markSeen(key [32]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[key] = time.Now()
	s.inserts++
	if s.inserts%sweepInterval == 0 {
		s.sweepLocked()
	}
}

// sweepLocked drops seen entries older than replayWindow. Callers must
// hold s.mu.
func (s *Store) sweepLocked() {
	cutoff := time.Now().Add(-replayWindow)
	for k, at := range s.seen {
		if at.Before(cutoff) {
			delete(s.seen, k)
		}
	}
}

func bigStringOrZero(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
