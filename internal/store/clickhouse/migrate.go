// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package clickhouse

import (
	"context"
	"fmt"
)

// ddlStatements creates every table the AnalyticalStore needs. Event and
// supply-event tables use ReplacingMergeTree keyed on their natural unique
// key so a replayed append collapses on the next background merge,
// complementing the in-process idempotency guard in Store.
var ddlStatements = []string{
	`CREATE TABLE IF NOT EXISTS events (
		chain_id UInt64,
		block_number UInt64,
		tx_hash String,
		tx_index UInt32,
		log_index UInt32,
		timestamp DateTime,
		pool_address String,
		token0 String,
		token1 String,
		maker String,
		owner String,
		event_type String,
		amount0 String,
		amount1 String,
		amount0_adjusted Float64,
		amount1_adjusted Float64,
		amount0_direction Int8,
		amount1_direction Int8,
		price Float64,
		price_usd Float64,
		volume_usd Float64,
		fees_usd Float64,
		fee_ppm UInt32,
		sqrt_price_x96 String,
		tick Int32,
		tick_lower Int32,
		tick_upper Int32,
		liquidity String
	) ENGINE = ReplacingMergeTree
	ORDER BY (chain_id, tx_hash, log_index)`,

	`CREATE TABLE IF NOT EXISTS supply_events (
		chain_id UInt64,
		block_number UInt64,
		timestamp DateTime,
		tx_hash String,
		log_index UInt32,
		token_address String,
		type String,
		amount String,
		amount_adjusted Float64
	) ENGINE = ReplacingMergeTree
	ORDER BY (chain_id, tx_hash, log_index)`,

	`CREATE TABLE IF NOT EXISTS new_pools (
		chain_id UInt64,
		pool_address String,
		token0 String,
		token1 String,
		protocol String,
		factory String,
		block_number UInt64,
		tx_hash String,
		log_index UInt64,
		timestamp DateTime
	) ENGINE = ReplacingMergeTree
	ORDER BY (chain_id, tx_hash, log_index)`,

	`CREATE TABLE IF NOT EXISTS pool_snapshots (
		chain_id UInt64,
		address String,
		price Float64,
		price_usd Float64,
		tvl_usd Float64,
		volume_24h Float64,
		swaps_24h UInt64,
		taken_at DateTime
	) ENGINE = MergeTree
	ORDER BY (chain_id, address, taken_at)`,

	`CREATE TABLE IF NOT EXISTS token_snapshots (
		chain_id UInt64,
		address String,
		price_usd Float64,
		volume_24h Float64,
		market_cap_usd Float64,
		taken_at DateTime
	) ENGINE = MergeTree
	ORDER BY (chain_id, address, taken_at)`,
}

// Migrate applies every DDL statement. Each CREATE TABLE is IF NOT EXISTS,
// so this is safe to run repeatedly.
func Migrate(ctx context.Context, s *Store) error {
	for _, stmt := range ddlStatements {
		if err := s.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying clickhouse ddl: %w", err)
		}
	}
	return nil
}
