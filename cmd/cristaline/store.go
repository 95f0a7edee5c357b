package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aminnairi/cristaline/adapters/file"
	"github.com/aminnairi/cristaline/adapters/kvlog"
	"github.com/aminnairi/cristaline/adapters/nats"
	"github.com/aminnairi/cristaline/adapters/otel"
	"github.com/aminnairi/cristaline/adapters/sqldb"
	"github.com/aminnairi/cristaline/core/es"
)

// openAdapter returns the configured adapter wrapped for tracing, and a
// function releasing whatever it holds open.
func openAdapter(ctx context.Context, cfg Config, log *slog.Logger) (es.Adapter, func(), error) {
	var (
		adapter es.Adapter
		closeFn = func() {}
	)

	switch cfg.Adapter {
	case adapterMemory:
		adapter = es.NewMemoryAdapter()

	case adapterFile:
		a, err := file.New(file.Config{Path: cfg.Path, Log: log})
		if err != nil {
			return nil, nil, err
		}
		adapter = a

	case adapterSQLite, adapterPostgres:
		var (
			a   *sqldb.Adapter
			err error
		)
		if cfg.Adapter == adapterSQLite {
			a, err = sqldb.OpenSQLite(ctx, cfg.Path, log)
		} else {
			a, err = sqldb.OpenPostgres(ctx, cfg.DSN, log)
		}
		if err != nil {
			return nil, nil, err
		}
		adapter = a
		closeFn = func() {
			if err := a.Close(); err != nil {
				log.Error("close database", slog.Any("error", err))
			}
		}

	case adapterNATS:
		store, err := nats.NewKvStore(ctx, nats.KvConfig{
			Connect: nats.ConnectURL(cfg.NatsURL),
			Log:     log,
			Bucket:  cfg.Bucket,
		})
		if err != nil {
			return nil, nil, err
		}
		a, err := kvlog.New(kvlog.Config{Store: store, Log: log})
		if err != nil {
			store.Close()
			return nil, nil, err
		}
		adapter = a
		closeFn = store.Close

	default:
		return nil, nil, fmt.Errorf("unknown adapter %q", cfg.Adapter)
	}

	return otel.Wrap(adapter, otel.WithName(cfg.Adapter)), closeFn, nil
}
