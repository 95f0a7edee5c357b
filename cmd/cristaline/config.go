package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

const (
	adapterMemory   = "memory"
	adapterFile     = "file"
	adapterSQLite   = "sqlite"
	adapterPostgres = "postgres"
	adapterNATS     = "nats"
)

type Config struct {
	Adapter       string `env:"CRISTALINE_ADAPTER" envDefault:"file"`
	Path          string `env:"CRISTALINE_PATH" envDefault:"todos.json"`
	DSN           string `env:"CRISTALINE_DSN"`
	NatsURL       string `env:"CRISTALINE_NATS_URL" envDefault:"nats://127.0.0.1:4222"`
	Bucket        string `env:"CRISTALINE_BUCKET" envDefault:"cristaline"`
	LogLevel      string `env:"CRISTALINE_LOG_LEVEL" envDefault:"warn"`
	MetricsAddr   string `env:"CRISTALINE_METRICS_ADDR"`
	SnapshotEvery int    `env:"CRISTALINE_SNAPSHOT_EVERY" envDefault:"0"`
}

func parseConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Adapter {
	case adapterMemory, adapterNATS:
	case adapterFile, adapterSQLite:
		if strings.TrimSpace(c.Path) == "" {
			return fmt.Errorf("CRISTALINE_PATH is required for the %s adapter", c.Adapter)
		}
	case adapterPostgres:
		if strings.TrimSpace(c.DSN) == "" {
			return fmt.Errorf("CRISTALINE_DSN is required for the %s adapter", c.Adapter)
		}
	default:
		return fmt.Errorf("unknown adapter %q", c.Adapter)
	}
	if c.SnapshotEvery < 0 {
		return fmt.Errorf("CRISTALINE_SNAPSHOT_EVERY must not be negative")
	}
	if _, err := c.level(); err != nil {
		return err
	}
	return nil
}

func (c Config) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid CRISTALINE_LOG_LEVEL: %w", err)
	}
	return level, nil
}
