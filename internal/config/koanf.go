// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/heimdall/config.yaml",
	"/etc/heimdall/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			Environment:     "development",
		},
		Storage: StorageConfig{
			Backend:    BackendBadger,
			Path:       "/data/heimdall",
			DSN:        "/data/heimdall.db",
			SyncWrites: false,
			Timeout:    2 * time.Second,
			Redis: RedisConfig{
				Addr:      "127.0.0.1:6379",
				KeyPrefix: "heimdall",
			},
			Breaker: BreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				OpenTimeout:      30 * time.Second,
			},
			GCInterval: 10 * time.Minute,
		},
		Broadcast: BroadcastConfig{
			HistorySize: 50,
			BufferSize:  256,
			SendTimeout: 0, // never block the ingest path
		},
		Ingest: IngestConfig{
			Enforcement:        "flag",
			DiscoverNodes:      true,
			DiscoveryInterval:  time.Minute,
			DiscoveryCacheSize: 4096,
			BlockedPenalty:     10,
			NATS: NATSConfig{
				Enabled:        false,
				URL:            "nats://127.0.0.1:4222",
				EmbeddedServer: false,
				EmbeddedHost:   "127.0.0.1",
				EmbeddedPort:   4222,
				Subject:        "heimdall.events",
				QueueGroup:     "heimdall",
				SubmitTimeout:  5 * time.Second,
			},
		},
		Registry: RegistryConfig{
			Shards:        32,
			Strict:        false,
			OfflineAfter:  15 * time.Minute,
			SweepInterval: time.Minute,
		},
		Firewall: FirewallConfig{
			Shards:            16,
			QuickBlockPenalty: 50,
			DefaultReason:     "Manual Admin Block",
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{"*"},
			RateLimitReqs:     600,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds the configuration from defaults, the optional config file and
// the environment, then validates it.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// HTTP_PORT -> server.port, STORAGE_BACKEND -> storage.backend
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths are parsed as comma-separated lists when set from the environment.
var sliceConfigPaths = []string{
	"security.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

var envMappings = map[string]string{
	// Server
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_read_timeout":     "server.read_timeout",
	"http_write_timeout":    "server.write_timeout",
	"http_idle_timeout":     "server.idle_timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"environment":           "server.environment",

	// Storage
	"storage_backend":                   "storage.backend",
	"storage_path":                      "storage.path",
	"badger_path":                       "storage.path",
	"storage_dsn":                       "storage.dsn",
	"storage_sync_writes":               "storage.sync_writes",
	"storage_timeout":                   "storage.timeout",
	"storage_gc_interval":               "storage.gc_interval",
	"redis_addr":                        "storage.redis.addr",
	"redis_password":                    "storage.redis.password",
	"redis_db":                          "storage.redis.db",
	"redis_key_prefix":                  "storage.redis.key_prefix",
	"storage_breaker_enabled":           "storage.breaker.enabled",
	"storage_breaker_failure_threshold": "storage.breaker.failure_threshold",
	"storage_breaker_open_timeout":      "storage.breaker.open_timeout",

	// Broadcast
	"broadcast_history_size": "broadcast.history_size",
	"broadcast_buffer_size":  "broadcast.buffer_size",
	"broadcast_send_timeout": "broadcast.send_timeout",

	// Ingest
	"ingest_enforcement":          "ingest.enforcement",
	"ingest_discover_nodes":       "ingest.discover_nodes",
	"ingest_discovery_interval":   "ingest.discovery_interval",
	"ingest_discovery_cache_size": "ingest.discovery_cache_size",
	"ingest_blocked_penalty":      "ingest.blocked_penalty",
	"nats_enabled":                "ingest.nats.enabled",
	"nats_url":                    "ingest.nats.url",
	"nats_embedded":               "ingest.nats.embedded_server",
	"nats_embedded_host":          "ingest.nats.embedded_host",
	"nats_embedded_port":          "ingest.nats.embedded_port",
	"nats_subject":                "ingest.nats.subject",
	"nats_queue_group":            "ingest.nats.queue_group",
	"nats_submit_timeout":         "ingest.nats.submit_timeout",

	// Registry
	"registry_shards":         "registry.shards",
	"registry_strict":         "registry.strict",
	"registry_offline_after":  "registry.offline_after",
	"registry_sweep_interval": "registry.sweep_interval",

	// Firewall
	"firewall_shards":              "firewall.shards",
	"firewall_quick_block_penalty": "firewall.quick_block_penalty",
	"firewall_default_reason":      "firewall.default_reason",

	// Security
	"cors_origins":        "security.cors_origins",
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps an environment variable name to its koanf path.
// Unmapped variables return "" and are skipped.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
