// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

/*
Package config provides centralized configuration management for Heimdall.

Configuration is layered with Koanf v2. Later sources override earlier ones:

 1. Defaults from defaultConfig()
 2. An optional YAML file (CONFIG_PATH, ./config.yaml, /etc/heimdall/config.yaml)
 3. Mapped environment variables such as HTTP_PORT or STORAGE_BACKEND

Environment variables not listed in envTransformFunc are ignored.

# Sections

  - server: HTTP listener and timeouts
  - storage: backend selection (badger, sqlite, duckdb, redis), call timeout,
    circuit breaker and BadgerDB value log GC
  - broadcast: history batch size and per-observer buffering
  - ingest: enforcement mode, node discovery and the NATS transport
  - registry: lock stripes, strict penalize and the offline sweeper
  - firewall: quick block penalty and default rule reason
  - security: CORS and rate limiting
  - logging: zerolog level, format and caller info

Example:

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	addr := cfg.Server.Addr()

Config is immutable after Load and safe for concurrent reads.
*/
package config
