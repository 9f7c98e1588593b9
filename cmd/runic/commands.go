// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/luxfi/runic/internal/config"
	"github.com/luxfi/runic/internal/logging"
	"github.com/luxfi/runic/internal/manager"
	"github.com/luxfi/runic/internal/metrics"
	"github.com/luxfi/runic/internal/store/clickhouse"
	"github.com/luxfi/runic/internal/store/postgres"
)

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "runic",
		Short:         "Multi-chain DEX indexer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath(), "path to config.yaml")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newMigrateCmd(&configPath))
	return root
}

// defaultConfigPath honors RUNIC_CONFIG, falling back to ./config.yaml per
// spec §6.
func defaultConfigPath() string {
	if p := os.Getenv("RUNIC_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

func newRunCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start ingestion for every enabled chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd.Context(), *configPath)
		},
	}
}

func runRun(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return &exitCodeError{err: fmt.Errorf("loading config: %w", err), code: 1}
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return &exitCodeError{err: fmt.Errorf("building logger: %w", err), code: 1}
	}
	defer logger.Sync()

	txn, err := postgres.Open(ctx, postgresDSN(cfg.Postgres))
	if err != nil {
		return &exitCodeError{err: fmt.Errorf("opening postgres: %w", err), code: 1}
	}
	defer txn.Close()

	anl, err := clickhouse.Open(ctx, clickhouse.Options{
		Addr:     []string{cfg.ClickHouse.URL},
		Database: cfg.ClickHouse.Database,
		User:     cfg.ClickHouse.User,
		Password: cfg.ClickHouse.Password,
	})
	if err != nil {
		return &exitCodeError{err: fmt.Errorf("opening clickhouse: %w", err), code: 1}
	}
	defer anl.Close()

	chains, err := txn.LoadChains(ctx)
	if err != nil {
		return &exitCodeError{err: fmt.Errorf("loading chains: %w", err), code: 1}
	}

	metr := metrics.New()
	mgr := manager.New(cfg, txn, anl, metr, logger)

	code := mgr.Run(ctx, chains)
	if code != 0 {
		return &exitCodeError{err: fmt.Errorf("indexer exited with code %d", code), code: code}
	}
	return nil
}

func postgresDSN(p config.Postgres) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", p.User, p.Password, p.Host, p.Port, p.Database)
}

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema DDL idempotently to Postgres and ClickHouse",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), *configPath)
		},
	}
}

func runMigrate(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return &exitCodeError{err: fmt.Errorf("loading config: %w", err), code: 1}
	}

	txn, err := postgres.Open(ctx, postgresDSN(cfg.Postgres))
	if err != nil {
		return &exitCodeError{err: fmt.Errorf("opening postgres: %w", err), code: 1}
	}
	defer txn.Close()

	if err := postgres.Migrate(ctx, txn); err != nil {
		return &exitCodeError{err: fmt.Errorf("applying postgres migrations: %w", err), code: 1}
	}

	anl, err := clickhouse.Open(ctx, clickhouse.Options{
		Addr:     []string{cfg.ClickHouse.URL},
		Database: cfg.ClickHouse.Database,
		User:     cfg.ClickHouse.User,
		Password: cfg.ClickHouse.Password,
	})
	if err != nil {
		return &exitCodeError{err: fmt.Errorf("opening clickhouse: %w", err), code: 1}
	}
	defer anl.Close()

	if err := clickhouse.Migrate(ctx, anl); err != nil {
		return &exitCodeError{err: fmt.Errorf("applying clickhouse migrations: %w", err), code: 1}
	}
	return nil
}
