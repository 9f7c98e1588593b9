// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package postgres implements store.TransactionalStore over a pgxpool
// connection pool, per spec §4.5 / §2b.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/runic/internal/chain"
	"github.com/luxfi/runic/internal/decode"
	"github.com/luxfi/runic/internal/domain"
)

// Store is a store.TransactionalStore backed by Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to dsn and verifies it with a ping.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) UpsertPool(ctx context.Context, p *domain.Pool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pools (
			chain_id, address, token0, token1, token0_decimals, token1_decimals,
			token0_symbol, token1_symbol, protocol, factory, fee_ppm,
			creation_block, creation_tx, reserve0, reserve1, reserve0_adjusted,
			reserve1_adjusted, sqrt_price_x96, tick, tick_spacing, liquidity,
			price, price_usd, tvl_usd, volume_24h, swaps_24h, metadata_resolved, last_swap_at, updated_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29
		)
		ON CONFLICT (chain_id, address) DO UPDATE SET
			reserve0 = EXCLUDED.reserve0,
			reserve1 = EXCLUDED.reserve1,
			reserve0_adjusted = EXCLUDED.reserve0_adjusted,
			reserve1_adjusted = EXCLUDED.reserve1_adjusted,
			sqrt_price_x96 = EXCLUDED.sqrt_price_x96,
			tick = EXCLUDED.tick,
			liquidity = EXCLUDED.liquidity,
			price = EXCLUDED.price,
			price_usd = EXCLUDED.price_usd,
			tvl_usd = EXCLUDED.tvl_usd,
			volume_24h = EXCLUDED.volume_24h,
			swaps_24h = EXCLUDED.swaps_24h,
			metadata_resolved = EXCLUDED.metadata_resolved,
			last_swap_at = EXCLUDED.last_swap_at,
			updated_at = EXCLUDED.updated_at
	`,
		p.ChainID, p.Address.Hex(), p.Token0.Hex(), p.Token1.Hex(), p.Token0Decimals, p.Token1Decimals,
		p.Token0Symbol, p.Token1Symbol, string(p.Protocol), p.Factory.Hex(), p.FeePPM,
		p.CreationBlock, p.CreationTx.Hex(), bigString(p.Reserve0), bigString(p.Reserve1), p.Reserve0Adjusted,
		p.Reserve1Adjusted, bigString(p.SqrtPriceX96), p.Tick, p.TickSpacing, bigString(p.Liquidity),
		p.Price, p.PriceUSD, p.TVLUSD, p.Volume24h, p.Swaps24h, p.MetadataResolved, p.LastSwapAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting pool %s: %w", p.Address, err)
	}
	return nil
}

func (s *Store) UpsertToken(ctx context.Context, t *domain.Token) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tokens (
			chain_id, address, symbol, name, decimals, price_usd, price_updated_at,
			price_change_24h, price_change_7d, volume_24h, swaps_24h, pool_count,
			circulating_supply, market_cap_usd, first_seen_block, last_activity_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (chain_id, address) DO UPDATE SET
			price_usd = EXCLUDED.price_usd,
			price_updated_at = EXCLUDED.price_updated_at,
			price_change_24h = EXCLUDED.price_change_24h,
			price_change_7d = EXCLUDED.price_change_7d,
			volume_24h = EXCLUDED.volume_24h,
			swaps_24h = EXCLUDED.swaps_24h,
			pool_count = EXCLUDED.pool_count,
			circulating_supply = EXCLUDED.circulating_supply,
			market_cap_usd = EXCLUDED.market_cap_usd,
			last_activity_at = EXCLUDED.last_activity_at
	`,
		t.ChainID, t.Address.Hex(), t.Symbol, t.Name, t.Decimals, t.PriceUSD, t.PriceUpdatedAt,
		t.PriceChange24h, t.PriceChange7d, t.Volume24h, t.Swaps24h, t.PoolCount,
		t.CirculatingSupply, t.MarketCapUSD, t.FirstSeenBlock, t.LastActivityAt,
	)
	if err != nil {
		return fmt.Errorf("upserting token %s: %w", t.Address, err)
	}
	return nil
}

func (s *Store) SetNativePrice(ctx context.Context, p domain.NativePrice) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO native_prices (chain_id, price_usd, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (chain_id) DO UPDATE SET price_usd = EXCLUDED.price_usd, updated_at = EXCLUDED.updated_at
	`, p.ChainID, p.PriceUSD, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("setting native price for chain %d: %w", p.ChainID, err)
	}
	return nil
}

func (s *Store) GetPool(ctx context.Context, chainID uint64, address common.Address) (*domain.Pool, error) {
	row := s.pool.QueryRow(ctx, `SELECT address FROM pools WHERE chain_id = $1 AND address = $2`, chainID, address.Hex())
	var addr string
	if err := row.Scan(&addr); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("getting pool %s: %w", address, err)
	}
	pools, err := s.LoadPools(ctx, chainID)
	if err != nil {
		return nil, err
	}
	for _, p := range pools {
		if p.Address == address {
			return p, nil
		}
	}
	return nil, nil
}

func (s *Store) LoadPools(ctx context.Context, chainID uint64) ([]*domain.Pool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address, token0, token1, token0_decimals, token1_decimals, token0_symbol,
			token1_symbol, protocol, factory, fee_ppm, creation_block, creation_tx,
			reserve0, reserve1, reserve0_adjusted, reserve1_adjusted, sqrt_price_x96,
			tick, tick_spacing, liquidity, price, price_usd, tvl_usd, volume_24h,
			swaps_24h, metadata_resolved, last_swap_at, updated_at
		FROM pools WHERE chain_id = $1
	`, chainID)
	if err != nil {
		return nil, fmt.Errorf("loading pools for chain %d: %w", chainID, err)
	}
	defer rows.Close()

	var out []*domain.Pool
	for rows.Next() {
		p := &domain.Pool{ChainID: chainID}
		var address, token0, token1, factory, creationTx, reserve0, reserve1, sqrtPrice, liquidity, protocol string
		if err := rows.Scan(
			&address, &token0, &token1, &p.Token0Decimals, &p.Token1Decimals, &p.Token0Symbol,
			&p.Token1Symbol, &protocol, &factory, &p.FeePPM, &p.CreationBlock, &creationTx,
			&reserve0, &reserve1, &p.Reserve0Adjusted, &p.Reserve1Adjusted, &sqrtPrice,
			&p.Tick, &p.TickSpacing, &liquidity, &p.Price, &p.PriceUSD, &p.TVLUSD, &p.Volume24h,
			&p.Swaps24h, &p.MetadataResolved, &p.LastSwapAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning pool row: %w", err)
		}
		p.Address = common.HexToAddress(address)
		p.Token0 = common.HexToAddress(token0)
		p.Token1 = common.HexToAddress(token1)
		p.Factory = common.HexToAddress(factory)
		p.CreationTx = common.HexToHash(creationTx)
		p.Protocol = decodeProtocol(protocol)
		p.Reserve0 = bigFromString(reserve0)
		p.Reserve1 = bigFromString(reserve1)
		p.SqrtPriceX96 = bigFromString(sqrtPrice)
		p.Liquidity = bigFromString(liquidity)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) LoadTokens(ctx context.Context, chainID uint64) ([]*domain.Token, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address, symbol, name, decimals, price_usd, price_updated_at, price_change_24h,
			price_change_7d, volume_24h, swaps_24h, pool_count, circulating_supply,
			market_cap_usd, first_seen_block, last_activity_at
		FROM tokens WHERE chain_id = $1
	`, chainID)
	if err != nil {
		return nil, fmt.Errorf("loading tokens for chain %d: %w", chainID, err)
	}
	defer rows.Close()

	var out []*domain.Token
	for rows.Next() {
		t := &domain.Token{ChainID: chainID}
		var address string
		if err := rows.Scan(
			&address, &t.Symbol, &t.Name, &t.Decimals, &t.PriceUSD, &t.PriceUpdatedAt, &t.PriceChange24h,
			&t.PriceChange7d, &t.Volume24h, &t.Swaps24h, &t.PoolCount, &t.CirculatingSupply,
			&t.MarketCapUSD, &t.FirstSeenBlock, &t.LastActivityAt,
		); err != nil {
			return nil, fmt.Errorf("scanning token row: %w", err)
		}
		t.Address = common.HexToAddress(address)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ReadCheckpoint(ctx context.Context, chainID uint64) (domain.Checkpoint, error) {
	row := s.pool.QueryRow(ctx, `SELECT last_indexed, updated_at FROM checkpoints WHERE chain_id = $1`, chainID)
	cp := domain.Checkpoint{ChainID: chainID}
	if err := row.Scan(&cp.LastIndexed, &cp.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return cp, nil
		}
		return cp, fmt.Errorf("reading checkpoint for chain %d: %w", chainID, err)
	}
	return cp, nil
}

// WriteCheckpoint enforces the monotonic-non-decreasing invariant in spec
// §3/§9: a write that would move the checkpoint backward is rejected.
func (s *Store) WriteCheckpoint(ctx context.Context, chainID uint64, block uint64) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO checkpoints (chain_id, last_indexed, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (chain_id) DO UPDATE SET last_indexed = EXCLUDED.last_indexed, updated_at = now()
		WHERE checkpoints.last_indexed <= $2
	`, chainID, block)
	if err != nil {
		return fmt.Errorf("writing checkpoint for chain %d: %w", chainID, err)
	}
	if tag.RowsAffected() == 0 {
		existing, readErr := s.ReadCheckpoint(ctx, chainID)
		if readErr == nil && existing.LastIndexed > block {
			return fmt.Errorf("refusing non-monotonic checkpoint for chain %d: have %d, got %d", chainID, existing.LastIndexed, block)
		}
	}
	return nil
}

// ClaimCronJob performs the conditional last_run_at update described in
// spec §4.10/§9: claim succeeds only if the job hasn't run within
// minInterval, protecting against double-runs when multiple instances
// race at boot.
func (s *Store) ClaimCronJob(ctx context.Context, jobName string, minInterval time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO cron_checkpoints (job_name, last_run_at)
		VALUES ($1, now())
		ON CONFLICT (job_name) DO UPDATE SET last_run_at = now()
		WHERE cron_checkpoints.last_run_at < now() - $2::interval
	`, jobName, minInterval.String())
	if err != nil {
		return false, fmt.Errorf("claiming cron job %s: %w", jobName, err)
	}
	return tag.RowsAffected() > 0, nil
}

// LoadChains reads every configured chain row. Address lists (stablecoins,
// major tokens) are stored as JSONB arrays of hex strings, decoded here.
func (s *Store) LoadChains(ctx context.Context) ([]chain.Config, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chain_id, name, enabled, data_source_endpoint, rpc_endpoint,
			native_address, native_decimals, native_symbol,
			stable_address, stable_decimals, stable_pool_address,
			stablecoins, major_tokens, safety_margin_blocks, batch_size,
			event_retention_seconds
		FROM chains
	`)
	if err != nil {
		return nil, fmt.Errorf("loading chains: %w", err)
	}
	defer rows.Close()

	var out []chain.Config
	for rows.Next() {
		var c chain.Config
		var native, stable, stablePool string
		var stablecoinsJSON, majorTokensJSON []byte
		var retentionSeconds *int64

		if err := rows.Scan(
			&c.ChainID, &c.Name, &c.Enabled, &c.DataSourceEndpoint, &c.RPCEndpoint,
			&native, &c.Native.Decimals, &c.Native.Symbol,
			&stable, &c.Stable.Decimals, &stablePool,
			&stablecoinsJSON, &majorTokensJSON, &c.SafetyMarginBlocks, &c.BatchSize,
			&retentionSeconds,
		); err != nil {
			return nil, fmt.Errorf("scanning chain row: %w", err)
		}

		c.Native.Address = common.HexToAddress(native)
		c.Stable.Address = common.HexToAddress(stable)
		c.StablePoolAddress = common.HexToAddress(stablePool)
		c.Stablecoins = decodeAddressList(stablecoinsJSON)
		c.MajorTokens = decodeAddressList(majorTokensJSON)
		if retentionSeconds != nil {
			d := time.Duration(*retentionSeconds) * time.Second
			c.EventRetention = &d
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func decodeAddressList(raw []byte) []common.Address {
	if len(raw) == 0 {
		return nil
	}
	var hexes []string
	if err := json.Unmarshal(raw, &hexes); err != nil {
		return nil
	}
	out := make([]common.Address, 0, len(hexes))
	for _, h := range hexes {
		out = append(out, common.HexToAddress(h))
	}
	return out
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func bigFromString(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return v
}

func decodeProtocol(s string) decode.Protocol {
	return decode.Protocol(s)
}
