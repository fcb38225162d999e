// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

// Package main is the entry point for the Heimdall server.
//
// Heimdall ingests network flow events from a producer, persists them, keeps a
// registry of observed nodes with trust scores, maintains administrative
// firewall rules and streams accepted events to live observers.
//
// # Startup
//
//  1. Configuration: koanf layers (defaults, config.yaml, environment)
//  2. Logging: zerolog from the logging section
//  3. Storage: badger, sqlite, duckdb or redis behind the timeout and breaker guard
//  4. State: the registry and rule store load their tables; the coordinator
//     resumes the sequence and seeds the hub history
//  5. Transports: HTTP API and WebSocket, optionally NATS (embedded or external)
//  6. Supervision: every long-lived service runs under a suture tree
//
// # Example
//
//	export STORAGE_BACKEND=sqlite
//	export STORAGE_DSN=/var/lib/heimdall/heimdall.db
//	export NATS_ENABLED=true NATS_EMBEDDED=true
//	./heimdall
//
// SIGINT and SIGTERM cancel the root context; the tree stops the HTTP server
// gracefully and closes every observer before storage is closed.
package main
