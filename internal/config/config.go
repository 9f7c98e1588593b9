// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads the process-level configuration file and applies
// RUNIC_<SECTION>_<KEY> environment overrides on top of it via viper.
// Chain rows are not part of this file — they live in the transactional
// store, per spec.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ClickHouse holds the AnalyticalStore connection settings.
type ClickHouse struct {
	URL      string `mapstructure:"url"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// Postgres holds the TransactionalStore connection settings.
type Postgres struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// Indexer holds ingestion-tuning knobs shared across chains.
type Indexer struct {
	HypersyncBearerToken string `mapstructure:"hypersync_bearer_token"`
	SafetyMarginBlocks   uint64 `mapstructure:"safety_margin_blocks"`
	BatchSize            uint64 `mapstructure:"batch_size"`
	Concurrency          int    `mapstructure:"concurrency"`
}

// Redpanda holds the optional pub/sub publisher settings.
type Redpanda struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// Logging holds structured-logger construction settings.
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Metrics holds the optional Prometheus exposition settings.
type Metrics struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// Config is the fully resolved process configuration.
type Config struct {
	ClickHouse ClickHouse `mapstructure:"clickhouse"`
	Postgres   Postgres   `mapstructure:"postgres"`
	Indexer    Indexer    `mapstructure:"indexer"`
	Redpanda   Redpanda   `mapstructure:"redpanda"`
	Logging    Logging    `mapstructure:"logging"`
	Metrics    Metrics    `mapstructure:"metrics"`
}

// Default returns the configuration defaults applied before the file and
// environment are layered on top.
func Default() Config {
	return Config{
		Indexer: Indexer{
			SafetyMarginBlocks: 12,
			BatchSize:          2000,
			Concurrency:        8,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
		Metrics: Metrics{
			Enabled:    false,
			ListenAddr: ":9090",
		},
	}
}

// Load reads path (YAML) and overlays RUNIC_<SECTION>_<KEY> environment
// variables, then validates the result.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("runic")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("indexer.safety_margin_blocks", def.Indexer.SafetyMarginBlocks)
	v.SetDefault("indexer.batch_size", def.Indexer.BatchSize)
	v.SetDefault("indexer.concurrency", def.Indexer.Concurrency)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("metrics.enabled", def.Metrics.Enabled)
	v.SetDefault("metrics.listen_addr", def.Metrics.ListenAddr)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Postgres.Host == "" {
		return fmt.Errorf("postgres.host is required")
	}
	if c.ClickHouse.URL == "" {
		return fmt.Errorf("clickhouse.url is required")
	}
	if c.Redpanda.Enabled && len(c.Redpanda.Brokers) == 0 {
		return fmt.Errorf("redpanda.enabled is true but no brokers configured")
	}
	return nil
}
