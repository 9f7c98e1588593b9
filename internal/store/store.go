// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package store declares the two narrow persistence interfaces the chain
// worker writes through, per spec §4.5. The interfaces constrain semantics,
// not SQL; postgres and clickhouse hold the concrete adapters.
package store

import (
	"context"
	"time"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/runic/internal/chain"
	"github.com/luxfi/runic/internal/domain"
)

// TransactionalStore holds latest pool/token values and sync checkpoints.
// Writes for a single block must be atomic relative to that block's
// checkpoint advance.
type TransactionalStore interface {
	UpsertPool(ctx context.Context, pool *domain.Pool) error
	UpsertToken(ctx context.Context, token *domain.Token) error
	SetNativePrice(ctx context.Context, price domain.NativePrice) error

	GetPool(ctx context.Context, chainID uint64, address common.Address) (*domain.Pool, error)
	LoadPools(ctx context.Context, chainID uint64) ([]*domain.Pool, error)
	LoadTokens(ctx context.Context, chainID uint64) ([]*domain.Token, error)

	ReadCheckpoint(ctx context.Context, chainID uint64) (domain.Checkpoint, error)
	WriteCheckpoint(ctx context.Context, chainID uint64, block uint64) error

	// LoadChains returns every configured chain row, enabled or not; the
	// manager filters to Enabled before spawning workers.
	LoadChains(ctx context.Context) ([]chain.Config, error)

	// ClaimCronJob performs the conditional last_run_at update described in
	// spec §4.10/§9, returning false if another instance already claimed it.
	ClaimCronJob(ctx context.Context, jobName string, minInterval time.Duration) (bool, error)

	Close() error
}

// AnalyticalStore holds the append-only event log and derived snapshots.
// Appends must tolerate replays without creating duplicates.
type AnalyticalStore interface {
	AppendEvents(ctx context.Context, batch []*domain.Event) error
	AppendSupplyEvents(ctx context.Context, batch []*domain.SupplyEvent) error
	AppendNewPools(ctx context.Context, batch []*domain.NewPoolRecord) error
	InsertPoolSnapshot(ctx context.Context, pool *domain.Pool, takenAt time.Time) error
	InsertTokenSnapshot(ctx context.Context, token *domain.Token, takenAt time.Time) error

	// PurgeEventsOlderThan deletes analytical rows older than cutoff for
	// chainID, resolving Open Question 1 (configurable per-chain retention,
	// nil meaning no purge ever runs for that chain).
	PurgeEventsOlderThan(ctx context.Context, chainID uint64, cutoff time.Time) error

	Close() error
}
