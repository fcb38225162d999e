// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

// Package ingest validates, sequences, persists and publishes network events,
// and applies the registry side effects of observed traffic.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/tomtom215/heimdall/internal/logging"
	"github.com/tomtom215/heimdall/internal/metrics"
	"github.com/tomtom215/heimdall/internal/models"
	"github.com/tomtom215/heimdall/internal/registry"
	"github.com/tomtom215/heimdall/internal/validation"
)

// Enforcement controls what happens to an event whose source has an active
// DENY rule.
type Enforcement string

const (
	// EnforcementOff ignores rules at ingestion.
	EnforcementOff Enforcement = "off"
	// EnforcementFlag accepts the event, marks it flagged and forces BLOCKED.
	EnforcementFlag Enforcement = "flag"
	// EnforcementReject refuses the event with models.ErrInvalidEvent.
	EnforcementReject Enforcement = "reject"
)

// Valid reports whether e is a known mode.
func (e Enforcement) Valid() bool {
	return e == EnforcementOff || e == EnforcementFlag || e == EnforcementReject
}

// EventLog is the slice of the persistence gateway the coordinator needs.
type EventLog interface {
	AppendEvent(ctx context.Context, ev *models.Event) error
	RecentEvents(ctx context.Context, limit int) ([]models.Event, error)
	LastEventSeq(ctx context.Context) (uint64, error)
}

// Publisher delivers accepted events to observers.
type Publisher interface {
	Publish(ev models.Event)
	Seed(events []models.Event)
}

// RuleLookup finds the rule for an address.
type RuleLookup interface {
	Lookup(address string) (models.Rule, bool)
}

// NodeTracker receives the side effects of observed traffic.
type NodeTracker interface {
	Upsert(ctx context.Context, obs registry.Observation) (models.Node, error)
	Penalize(ctx context.Context, address string, amount int) (models.Node, bool, error)
}

// Config configures a Coordinator.
type Config struct {
	Enforcement Enforcement

	// DiscoverNodes upserts the source of every accepted event into the
	// registry, at most once per DiscoveryInterval per address.
	DiscoverNodes      bool
	DiscoveryInterval  time.Duration
	DiscoveryCacheSize int

	// BlockedPenalty is taken from the source's trust score for every
	// accepted BLOCKED event. Zero disables the penalty.
	BlockedPenalty int

	// HistorySize is how many events Restore seeds into the publisher.
	HistorySize int

	Clock func() time.Time
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Enforcement:        EnforcementFlag,
		DiscoverNodes:      true,
		DiscoveryInterval:  60 * time.Second,
		DiscoveryCacheSize: 4096,
		BlockedPenalty:     10,
		HistorySize:        50,
	}
}

// Coordinator is the single entry point for new events. Submit calls are
// serialized from sequence assignment through publish, so observers see
// events in seq order.
type Coordinator struct {
	log   EventLog
	pub   Publisher
	rules RuleLookup
	nodes NodeTracker
	cfg   Config
	clock func() time.Time

	// seen throttles discovery upserts per source address.
	seen *expirable.LRU[string, struct{}]

	mu  sync.Mutex
	seq uint64
}

// New creates a Coordinator. rules and nodes may be nil, which disables
// cross-referencing and correlation respectively.
func New(log EventLog, pub Publisher, rules RuleLookup, nodes NodeTracker, cfg Config) *Coordinator {
	defaults := DefaultConfig()
	if cfg.Enforcement == "" {
		cfg.Enforcement = defaults.Enforcement
	}
	if cfg.DiscoveryInterval <= 0 {
		cfg.DiscoveryInterval = defaults.DiscoveryInterval
	}
	if cfg.DiscoveryCacheSize <= 0 {
		cfg.DiscoveryCacheSize = defaults.DiscoveryCacheSize
	}
	if cfg.BlockedPenalty < 0 {
		cfg.BlockedPenalty = 0
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaults.HistorySize
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Coordinator{
		log:   log,
		pub:   pub,
		rules: rules,
		nodes: nodes,
		cfg:   cfg,
		clock: clock,
		seen:  expirable.NewLRU[string, struct{}](cfg.DiscoveryCacheSize, nil, cfg.DiscoveryInterval),
	}
}

// Restore resumes sequencing after the highest stored seq and seeds the
// publisher's history from the gateway.
func (c *Coordinator) Restore(ctx context.Context) error {
	last, err := c.log.LastEventSeq(ctx)
	if err != nil {
		return models.WrapStorage("restore sequence", err)
	}
	recent, err := c.log.RecentEvents(ctx, c.cfg.HistorySize)
	if err != nil {
		return models.WrapStorage("restore history", err)
	}

	c.mu.Lock()
	c.seq = max(c.seq, last)
	c.mu.Unlock()
	c.pub.Seed(recent)

	logging.Info().Uint64("last_seq", last).Int("history", len(recent)).Msg("Ingestion state restored")
	return nil
}

// LastSeq returns the most recently assigned sequence number.
func (c *Coordinator) LastSeq() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Submit validates raw, persists it and publishes it. An invalid event
// returns models.ErrInvalidEvent with no side effects. A persistence
// failure returns models.ErrStorage and nothing is published.
func (c *Coordinator) Submit(ctx context.Context, raw models.RawEvent) (models.Event, error) {
	start := time.Now()
	raw = normalize(raw)

	if verr := validation.ValidateStruct(&raw); verr != nil {
		metrics.EventsRejected.WithLabelValues("invalid").Inc()
		return models.Event{}, verr.AsError(models.ErrInvalidEvent)
	}

	ev := models.Event{
		Timestamp: raw.Timestamp,
		Src:       raw.Src,
		Dst:       raw.Dst,
		Protocol:  raw.Protocol,
		Status:    models.EventStatus(raw.Status),
		Message:   raw.Message,
	}

	if err := c.crossReference(&ev); err != nil {
		metrics.EventsRejected.WithLabelValues("blocked_source").Inc()
		return models.Event{}, err
	}

	if err := c.appendAndPublish(ctx, &ev); err != nil {
		metrics.EventsRejected.WithLabelValues("storage").Inc()
		logging.Ctx(ctx).Error().Err(err).Str("src", ev.Src).Msg("Failed to persist event")
		return models.Event{}, err
	}

	metrics.RecordIngest(string(ev.Status), ev.Flagged, time.Since(start))
	c.correlate(ctx, ev)
	return ev, nil
}

func (c *Coordinator) appendAndPublish(ctx context.Context, ev *models.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// A seq is never reused, even when the append fails: an abandoned write
	// may still land after its timeout.
	c.seq++
	ev.Seq = c.seq
	ev.ReceivedAt = c.clock().UTC()
	if ev.Timestamp == "" {
		ev.Timestamp = ev.ReceivedAt.Format(time.RFC3339)
	}

	if err := c.log.AppendEvent(ctx, ev); err != nil {
		return models.WrapStorage(fmt.Sprintf("append event %d", ev.Seq), err)
	}
	c.pub.Publish(*ev)
	return nil
}

func (c *Coordinator) crossReference(ev *models.Event) error {
	if c.rules == nil || c.cfg.Enforcement == EnforcementOff {
		return nil
	}
	rule, ok := c.rules.Lookup(ev.Src)
	if !ok || rule.Action != models.ActionDeny {
		return nil
	}
	if c.cfg.Enforcement == EnforcementReject {
		return &models.ValidationError{
			Kind:   models.ErrInvalidEvent,
			Fields: map[string]string{"src": "src is blocked by rule " + rule.ID},
		}
	}
	ev.Flagged = true
	ev.RuleID = rule.ID
	ev.Status = models.StatusBlocked
	return nil
}

// correlate applies best-effort registry updates. Failures are logged and
// counted but never fail the submit.
func (c *Coordinator) correlate(ctx context.Context, ev models.Event) {
	if c.nodes == nil {
		return
	}
	logger := logging.Ctx(ctx)

	if c.cfg.DiscoverNodes && !c.seen.Contains(ev.Src) {
		c.seen.Add(ev.Src, struct{}{})
		if _, err := c.nodes.Upsert(ctx, registry.Observation{Address: ev.Src}); err != nil {
			if !errors.Is(err, models.ErrInvalidArgument) {
				c.seen.Remove(ev.Src)
				metrics.CorrelationFailures.WithLabelValues("discover").Inc()
				logger.Warn().Err(err).Str("src", ev.Src).Msg("Node discovery failed")
			}
		}
	}

	if ev.Status == models.StatusBlocked && c.cfg.BlockedPenalty > 0 {
		if _, _, err := c.nodes.Penalize(ctx, ev.Src, c.cfg.BlockedPenalty); err != nil && !errors.Is(err, models.ErrNotFound) {
			metrics.CorrelationFailures.WithLabelValues("penalize").Inc()
			logger.Warn().Err(err).Str("src", ev.Src).Msg("Trust penalty failed")
		}
	}
}

func normalize(raw models.RawEvent) models.RawEvent {
	raw.Timestamp = strings.TrimSpace(raw.Timestamp)
	raw.Src = strings.TrimSpace(raw.Src)
	raw.Dst = strings.TrimSpace(raw.Dst)
	raw.Protocol = strings.ToUpper(strings.TrimSpace(raw.Protocol))
	raw.Status = strings.ToUpper(strings.TrimSpace(raw.Status))
	raw.Message = strings.TrimSpace(raw.Message)
	return raw
}
