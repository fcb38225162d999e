// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package main

import (
	"context"
	"fmt"

	"github.com/tomtom215/heimdall/internal/config"
	"github.com/tomtom215/heimdall/internal/store"
	"github.com/tomtom215/heimdall/internal/store/badgerstore"
	"github.com/tomtom215/heimdall/internal/store/redisstore"
	"github.com/tomtom215/heimdall/internal/store/sqlstore"
)

// openStore opens the configured backend and wraps it in the guard.
func openStore(ctx context.Context, cfg config.StorageConfig) (*store.Guard, error) {
	var (
		backend store.Store
		err     error
	)
	switch cfg.Backend {
	case config.BackendBadger:
		backend, err = badgerstore.Open(badgerstore.Config{Path: cfg.Path, SyncWrites: cfg.SyncWrites})
	case config.BackendSQLite:
		backend, err = sqlstore.Open(ctx, sqlstore.Config{Driver: sqlstore.DriverSQLite, DSN: cfg.DSN})
	case config.BackendDuckDB:
		backend, err = sqlstore.Open(ctx, sqlstore.Config{Driver: sqlstore.DriverDuckDB, DSN: cfg.DSN})
	case config.BackendRedis:
		backend, err = redisstore.Open(ctx, redisstore.Config{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}

	return store.NewGuard(backend, store.GuardConfig{
		Backend:          cfg.Backend,
		Timeout:          cfg.Timeout,
		BreakerEnabled:   cfg.Breaker.Enabled,
		FailureThreshold: cfg.Breaker.FailureThreshold,
		OpenTimeout:      cfg.Breaker.OpenTimeout,
	}), nil
}
