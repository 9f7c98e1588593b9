// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package postgres

import (
	"context"
	"fmt"
)

// schemaDDL creates every table the TransactionalStore needs, idempotently
// (IF NOT EXISTS throughout), per spec §6's "migrate subcommand applies DDL
// idempotently."
const schemaDDL = `
CREATE TABLE IF NOT EXISTS chains (
	chain_id BIGINT PRIMARY KEY,
	name TEXT NOT NULL,
	enabled BOOLEAN NOT NULL DEFAULT false,
	data_source_endpoint TEXT NOT NULL DEFAULT '',
	rpc_endpoint TEXT NOT NULL,
	native_address TEXT NOT NULL,
	native_decimals SMALLINT NOT NULL,
	native_symbol TEXT NOT NULL,
	stable_address TEXT NOT NULL,
	stable_decimals SMALLINT NOT NULL,
	stable_pool_address TEXT NOT NULL DEFAULT '',
	stablecoins JSONB NOT NULL DEFAULT '[]',
	major_tokens JSONB NOT NULL DEFAULT '[]',
	safety_margin_blocks BIGINT NOT NULL DEFAULT 12,
	batch_size BIGINT NOT NULL DEFAULT 2000,
	event_retention_seconds BIGINT
);

CREATE TABLE IF NOT EXISTS pools (
	chain_id BIGINT NOT NULL,
	address TEXT NOT NULL,
	token0 TEXT NOT NULL,
	token1 TEXT NOT NULL,
	token0_decimals SMALLINT NOT NULL,
	token1_decimals SMALLINT NOT NULL,
	token0_symbol TEXT NOT NULL DEFAULT '',
	token1_symbol TEXT NOT NULL DEFAULT '',
	protocol TEXT NOT NULL,
	factory TEXT NOT NULL DEFAULT '',
	fee_ppm INT NOT NULL DEFAULT 0,
	creation_block BIGINT NOT NULL,
	creation_tx TEXT NOT NULL,
	reserve0 NUMERIC NOT NULL DEFAULT 0,
	reserve1 NUMERIC NOT NULL DEFAULT 0,
	reserve0_adjusted DOUBLE PRECISION NOT NULL DEFAULT 0,
	reserve1_adjusted DOUBLE PRECISION NOT NULL DEFAULT 0,
	sqrt_price_x96 NUMERIC NOT NULL DEFAULT 0,
	tick INT NOT NULL DEFAULT 0,
	tick_spacing INT NOT NULL DEFAULT 0,
	liquidity NUMERIC NOT NULL DEFAULT 0,
	price DOUBLE PRECISION NOT NULL DEFAULT 0,
	price_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	tvl_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	volume_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
	swaps_24h BIGINT NOT NULL DEFAULT 0,
	metadata_resolved BOOLEAN NOT NULL DEFAULT false,
	last_swap_at TIMESTAMPTZ,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, address)
);

CREATE TABLE IF NOT EXISTS tokens (
	chain_id BIGINT NOT NULL,
	address TEXT NOT NULL,
	symbol TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	decimals SMALLINT NOT NULL DEFAULT 18,
	price_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	price_updated_at TIMESTAMPTZ,
	price_change_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
	price_change_7d DOUBLE PRECISION NOT NULL DEFAULT 0,
	volume_24h DOUBLE PRECISION NOT NULL DEFAULT 0,
	swaps_24h BIGINT NOT NULL DEFAULT 0,
	pool_count INT NOT NULL DEFAULT 0,
	circulating_supply DOUBLE PRECISION NOT NULL DEFAULT 0,
	market_cap_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	first_seen_block BIGINT NOT NULL DEFAULT 0,
	last_activity_at TIMESTAMPTZ,
	PRIMARY KEY (chain_id, address)
);

CREATE TABLE IF NOT EXISTS native_prices (
	chain_id BIGINT PRIMARY KEY,
	price_usd DOUBLE PRECISION NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS checkpoints (
	chain_id BIGINT PRIMARY KEY,
	last_indexed BIGINT NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cron_checkpoints (
	job_name TEXT PRIMARY KEY,
	last_run_at TIMESTAMPTZ NOT NULL DEFAULT 'epoch'
);
`

// Migrate applies schemaDDL. Every statement is idempotent, so this is
// safe to run on every deploy as well as via the explicit migrate command.
func Migrate(ctx context.Context, s *Store) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("applying postgres schema: %w", err)
	}
	return nil
}
