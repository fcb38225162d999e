// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package api

import (
	"context"
	"time"

	"github.com/tomtom215/heimdall/internal/models"
	"github.com/tomtom215/heimdall/internal/registry"
	ws "github.com/tomtom215/heimdall/internal/websocket"
)

// Ingestor accepts new events.
type Ingestor interface {
	Submit(ctx context.Context, raw models.RawEvent) (models.Event, error)
}

// EventReader reads the persisted event log.
type EventReader interface {
	RecentEvents(ctx context.Context, limit int) ([]models.Event, error)
}

// NodeRegistry is the node registry as seen by the API.
type NodeRegistry interface {
	Upsert(ctx context.Context, obs registry.Observation) (models.Node, error)
	Penalize(ctx context.Context, address string, amount int) (models.Node, bool, error)
	List() []models.Node
}

// RuleBook is the rule store as seen by the API.
type RuleBook interface {
	AddWithAction(ctx context.Context, address, reason string, action models.RuleAction) (models.Rule, error)
	Remove(ctx context.Context, id string) error
	List() []models.Rule
}

// Pinger reports backend reachability for readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandlerConfig holds the request-level settings.
type HandlerConfig struct {
	// QuickBlockPenalty is applied to a node by the quick block action.
	QuickBlockPenalty int

	// DefaultEventLimit and MaxEventLimit bound GET /events.
	DefaultEventLimit int
	MaxEventLimit     int

	// AllowedOrigins restricts WebSocket upgrades; "*" allows any.
	AllowedOrigins []string

	// ReadyTimeout bounds the readiness ping.
	ReadyTimeout time.Duration
}

// DefaultHandlerConfig returns the production defaults.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		QuickBlockPenalty: 50,
		DefaultEventLimit: 50,
		MaxEventLimit:     500,
		ReadyTimeout:      2 * time.Second,
	}
}

// Handler serves the HTTP API.
type Handler struct {
	ingest    Ingestor
	events    EventReader
	nodes     NodeRegistry
	rules     RuleBook
	hub       *ws.Hub
	health    Pinger
	cfg       HandlerConfig
	startTime time.Time
}

// Deps groups the Handler's collaborators.
type Deps struct {
	Ingest Ingestor
	Events EventReader
	Nodes  NodeRegistry
	Rules  RuleBook
	Hub    *ws.Hub
	Health Pinger
}

// NewHandler creates a Handler. Zero config values take defaults.
func NewHandler(deps Deps, cfg HandlerConfig) *Handler {
	defaults := DefaultHandlerConfig()
	if cfg.QuickBlockPenalty <= 0 {
		cfg.QuickBlockPenalty = defaults.QuickBlockPenalty
	}
	if cfg.DefaultEventLimit <= 0 {
		cfg.DefaultEventLimit = defaults.DefaultEventLimit
	}
	if cfg.MaxEventLimit <= 0 {
		cfg.MaxEventLimit = defaults.MaxEventLimit
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = defaults.ReadyTimeout
	}
	return &Handler{
		ingest:    deps.Ingest,
		events:    deps.Events,
		nodes:     deps.Nodes,
		rules:     deps.Rules,
		hub:       deps.Hub,
		health:    deps.Health,
		cfg:       cfg,
		startTime: time.Now(),
	}
}

// firstNonEmpty returns the first non-blank value, used to accept both the
// current field names and the legacy aliases.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
