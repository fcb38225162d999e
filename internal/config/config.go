// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Storage   StorageConfig   `koanf:"storage"`
	Broadcast BroadcastConfig `koanf:"broadcast"`
	Ingest    IngestConfig    `koanf:"ingest"`
	Registry  RegistryConfig  `koanf:"registry"`
	Firewall  FirewallConfig  `koanf:"firewall"`
	Security  SecurityConfig  `koanf:"security"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"`
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Storage backends.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendDuckDB = "duckdb"
	BackendRedis  = "redis"
)

// StorageConfig selects and tunes the persistence gateway.
type StorageConfig struct {
	// Backend is badger, sqlite, duckdb or redis.
	Backend string `koanf:"backend"`

	// Path is the BadgerDB directory.
	Path string `koanf:"path"`

	// DSN is the sqlite or duckdb data source.
	DSN string `koanf:"dsn"`

	// SyncWrites fsyncs every BadgerDB commit.
	SyncWrites bool `koanf:"sync_writes"`

	// Timeout bounds every gateway call.
	Timeout time.Duration `koanf:"timeout"`

	Redis   RedisConfig   `koanf:"redis"`
	Breaker BreakerConfig `koanf:"breaker"`

	// GCInterval is how often the BadgerDB value log is collected. Zero disables it.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// RedisConfig holds the redis backend connection.
type RedisConfig struct {
	Addr      string `koanf:"addr"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
}

// BreakerConfig configures the storage circuit breaker.
type BreakerConfig struct {
	Enabled          bool          `koanf:"enabled"`
	FailureThreshold uint32        `koanf:"failure_threshold"`
	OpenTimeout      time.Duration `koanf:"open_timeout"`
}

// BroadcastConfig tunes the event hub.
type BroadcastConfig struct {
	HistorySize int           `koanf:"history_size"`
	BufferSize  int           `koanf:"buffer_size"`
	SendTimeout time.Duration `koanf:"send_timeout"`
}

// IngestConfig tunes the ingestion coordinator.
type IngestConfig struct {
	// Enforcement is off, flag or reject.
	Enforcement        string        `koanf:"enforcement"`
	DiscoverNodes      bool          `koanf:"discover_nodes"`
	DiscoveryInterval  time.Duration `koanf:"discovery_interval"`
	DiscoveryCacheSize int           `koanf:"discovery_cache_size"`
	BlockedPenalty     int           `koanf:"blocked_penalty"`
	NATS               NATSConfig    `koanf:"nats"`
}

// NATSConfig configures the NATS ingest transport.
type NATSConfig struct {
	Enabled bool   `koanf:"enabled"`
	URL     string `koanf:"url"`

	// EmbeddedServer starts an in-process nats-server and ignores URL.
	EmbeddedServer bool   `koanf:"embedded_server"`
	EmbeddedHost   string `koanf:"embedded_host"`
	EmbeddedPort   int    `koanf:"embedded_port"`

	Subject       string        `koanf:"subject"`
	QueueGroup    string        `koanf:"queue_group"`
	SubmitTimeout time.Duration `koanf:"submit_timeout"`
}

// RegistryConfig tunes the node registry.
type RegistryConfig struct {
	Shards int  `koanf:"shards"`
	Strict bool `koanf:"strict"`

	// OfflineAfter marks nodes OFFLINE once unseen this long. Zero disables the sweeper.
	OfflineAfter  time.Duration `koanf:"offline_after"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// FirewallConfig tunes the rule store and quick block.
type FirewallConfig struct {
	Shards            int    `koanf:"shards"`
	QuickBlockPenalty int    `koanf:"quick_block_penalty"`
	DefaultReason     string `koanf:"default_reason"`
}

// SecurityConfig holds CORS and rate limiting.
type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds zerolog settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}
