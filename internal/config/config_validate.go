// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	minRateLimitRequests = 1
	maxRateLimitRequests = 1000000
	minRateLimitWindow   = time.Second
	maxRateLimitWindow   = time.Hour
	maxHistorySize       = 10000
)

var (
	validBackends     = []string{BackendBadger, BackendSQLite, BackendDuckDB, BackendRedis}
	validEnforcements = []string{"off", "flag", "reject"}
	validLogLevels    = []string{"trace", "debug", "info", "warn", "error"}
	validLogFormats   = []string{"json", "console"}
)

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateBroadcast(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	if err := c.validateRegistry(); err != nil {
		return err
	}
	if err := c.validateFirewall(); err != nil {
		return err
	}
	if err := c.validateRateLimits(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	return nil
}

func (c *Config) validateStorage() error {
	s := c.Storage
	if !slices.Contains(validBackends, s.Backend) {
		return fmt.Errorf("STORAGE_BACKEND must be one of: %s", strings.Join(validBackends, ", "))
	}
	switch s.Backend {
	case BackendBadger:
		if strings.TrimSpace(s.Path) == "" {
			return fmt.Errorf("STORAGE_PATH is required for the badger backend")
		}
	case BackendSQLite, BackendDuckDB:
		if strings.TrimSpace(s.DSN) == "" {
			return fmt.Errorf("STORAGE_DSN is required for the %s backend", s.Backend)
		}
	case BackendRedis:
		if strings.TrimSpace(s.Redis.Addr) == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis backend")
		}
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("STORAGE_TIMEOUT must be positive")
	}
	if s.Breaker.Enabled && s.Breaker.FailureThreshold == 0 {
		return fmt.Errorf("STORAGE_BREAKER_FAILURE_THRESHOLD must be at least 1")
	}
	if s.GCInterval < 0 {
		return fmt.Errorf("STORAGE_GC_INTERVAL must not be negative")
	}
	return nil
}

func (c *Config) validateBroadcast() error {
	if c.Broadcast.HistorySize < 1 || c.Broadcast.HistorySize > maxHistorySize {
		return fmt.Errorf("BROADCAST_HISTORY_SIZE must be between 1 and %d", maxHistorySize)
	}
	if c.Broadcast.BufferSize < 1 {
		return fmt.Errorf("BROADCAST_BUFFER_SIZE must be at least 1")
	}
	if c.Broadcast.SendTimeout < 0 {
		return fmt.Errorf("BROADCAST_SEND_TIMEOUT must not be negative")
	}
	return nil
}

func (c *Config) validateIngest() error {
	in := c.Ingest
	if !slices.Contains(validEnforcements, in.Enforcement) {
		return fmt.Errorf("INGEST_ENFORCEMENT must be one of: %s", strings.Join(validEnforcements, ", "))
	}
	if in.BlockedPenalty < 0 {
		return fmt.Errorf("INGEST_BLOCKED_PENALTY must not be negative")
	}
	if in.DiscoverNodes && in.DiscoveryCacheSize < 1 {
		return fmt.Errorf("INGEST_DISCOVERY_CACHE_SIZE must be at least 1 when discovery is enabled")
	}
	if !in.NATS.Enabled {
		return nil
	}
	if !in.NATS.EmbeddedServer && !strings.HasPrefix(in.NATS.URL, "nats://") && !strings.HasPrefix(in.NATS.URL, "tls://") {
		return fmt.Errorf("NATS_URL must start with nats:// or tls://")
	}
	if in.NATS.EmbeddedServer && (in.NATS.EmbeddedPort < -1 || in.NATS.EmbeddedPort > 65535) {
		return fmt.Errorf("NATS_EMBEDDED_PORT must be between -1 and 65535")
	}
	if strings.TrimSpace(in.NATS.Subject) == "" {
		return fmt.Errorf("NATS_SUBJECT is required when NATS is enabled")
	}
	return nil
}

func (c *Config) validateRegistry() error {
	if c.Registry.Shards < 1 {
		return fmt.Errorf("REGISTRY_SHARDS must be at least 1")
	}
	if c.Registry.OfflineAfter > 0 && c.Registry.SweepInterval <= 0 {
		return fmt.Errorf("REGISTRY_SWEEP_INTERVAL must be positive when REGISTRY_OFFLINE_AFTER is set")
	}
	return nil
}

func (c *Config) validateFirewall() error {
	if c.Firewall.Shards < 1 {
		return fmt.Errorf("FIREWALL_SHARDS must be at least 1")
	}
	if c.Firewall.QuickBlockPenalty < 0 {
		return fmt.Errorf("FIREWALL_QUICK_BLOCK_PENALTY must not be negative")
	}
	return nil
}

func (c *Config) validateRateLimits() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < minRateLimitRequests || c.Security.RateLimitReqs > maxRateLimitRequests {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be between %d and %d", minRateLimitRequests, maxRateLimitRequests)
	}
	if c.Security.RateLimitWindow < minRateLimitWindow || c.Security.RateLimitWindow > maxRateLimitWindow {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be between %v and %v", minRateLimitWindow, maxRateLimitWindow)
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !slices.Contains(validLogLevels, c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", "))
	}
	if c.Logging.Format != "" && !slices.Contains(validLogFormats, c.Logging.Format) {
		return fmt.Errorf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", "))
	}
	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

// HasWildcardCORS reports whether any CORS origin is "*".
func (c *Config) HasWildcardCORS() bool {
	return slices.Contains(c.Security.CORSOrigins, "*")
}
