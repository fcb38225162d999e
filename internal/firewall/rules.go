// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

// Package firewall holds the administrative rule list consumed by external
// enforcement agents. Heimdall never programs a packet filter itself.
//
// At most one rule exists per address. The uniqueness check and the write
// through the persistence gateway happen under the address's lock stripe,
// so two concurrent adds for one address yield one rule and one
// models.ErrDuplicateRule.
package firewall

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/tomtom215/heimdall/internal/logging"
	"github.com/tomtom215/heimdall/internal/metrics"
	"github.com/tomtom215/heimdall/internal/models"
	"github.com/tomtom215/heimdall/internal/validation"
)

// RuleStore is the slice of the persistence gateway the rule store needs.
type RuleStore interface {
	AddRule(ctx context.Context, rule *models.Rule) error
	DeleteRule(ctx context.Context, id string) error
	ListRules(ctx context.Context) ([]models.Rule, error)
}

// Config configures a Store.
type Config struct {
	// Shards is the number of lock stripes. Defaults to 16.
	Shards int

	// DefaultReason replaces an empty reason. Defaults to models.DefaultRuleReason.
	DefaultReason string

	// Clock overrides time.Now. Used by tests.
	Clock func() time.Time
}

type shard struct {
	mu     sync.Mutex
	byAddr map[string]*models.Rule
}

// Store is the authoritative in-memory rule list.
type Store struct {
	store         RuleStore
	shards        []*shard
	defaultReason string
	clock         func() time.Time

	idMu sync.RWMutex
	byID map[string]string // id -> address
}

// New creates an empty rule store. Call Load to restore persisted rules.
func New(store RuleStore, cfg Config) *Store {
	n := cfg.Shards
	if n <= 0 {
		n = 16
	}
	reason := strings.TrimSpace(cfg.DefaultReason)
	if reason == "" {
		reason = models.DefaultRuleReason
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	s := &Store{
		store:         store,
		shards:        make([]*shard, n),
		defaultReason: reason,
		clock:         clock,
		byID:          make(map[string]string),
	}
	for i := range s.shards {
		s.shards[i] = &shard{byAddr: make(map[string]*models.Rule)}
	}
	return s
}

func (s *Store) shardFor(address string) *shard {
	return s.shards[xxhash.Sum64String(address)%uint64(len(s.shards))]
}

// Load replaces the in-memory rules with the gateway's contents.
func (s *Store) Load(ctx context.Context) error {
	rules, err := s.store.ListRules(ctx)
	if err != nil {
		return models.WrapStorage("load rules", err)
	}

	for _, sh := range s.shards {
		sh.mu.Lock()
		clear(sh.byAddr)
		sh.mu.Unlock()
	}

	byID := make(map[string]string, len(rules))
	for i := range rules {
		r := rules[i]
		sh := s.shardFor(r.Address)
		sh.mu.Lock()
		if _, dup := sh.byAddr[r.Address]; dup {
			sh.mu.Unlock()
			logging.Warn().Str("address", r.Address).Str("id", r.ID).Msg("Skipping duplicate persisted rule")
			continue
		}
		sh.byAddr[r.Address] = &r
		sh.mu.Unlock()
		byID[r.ID] = r.Address
	}

	s.idMu.Lock()
	s.byID = byID
	s.idMu.Unlock()
	metrics.RulesActive.Set(float64(len(byID)))

	logging.Info().Int("rules", len(byID)).Msg("Rule store loaded")
	return nil
}

// Add creates a DENY rule for address.
func (s *Store) Add(ctx context.Context, address, reason string) (models.Rule, error) {
	return s.AddWithAction(ctx, address, reason, models.ActionDeny)
}

// AddWithAction creates a rule with an explicit action. An empty reason
// becomes the configured default.
func (s *Store) AddWithAction(ctx context.Context, address, reason string, action models.RuleAction) (models.Rule, error) {
	if err := validation.ValidateAddress(address); err != nil {
		return models.Rule{}, err
	}
	if action == "" {
		action = models.ActionDeny
	}
	if !action.Valid() {
		return models.Rule{}, &models.ValidationError{
			Kind:   models.ErrInvalidArgument,
			Fields: map[string]string{"action": "action must be one of: ALLOW DENY"},
		}
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = s.defaultReason
	}

	sh := s.shardFor(address)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if existing, ok := sh.byAddr[address]; ok {
		return models.Rule{}, fmt.Errorf("address %s (rule %s): %w", address, existing.ID, models.ErrDuplicateRule)
	}

	rule := models.Rule{
		ID:      uuid.NewString(),
		Address: address,
		Action:  action,
		Reason:  reason,
		AddedAt: s.clock().UTC(),
	}
	if err := s.store.AddRule(ctx, &rule); err != nil {
		if errors.Is(err, models.ErrAlreadyExists) {
			return models.Rule{}, fmt.Errorf("address %s: %w", address, models.ErrDuplicateRule)
		}
		return models.Rule{}, models.WrapStorage("persist rule", err)
	}

	sh.byAddr[address] = &rule
	s.idMu.Lock()
	s.byID[rule.ID] = address
	active := len(s.byID)
	s.idMu.Unlock()
	metrics.RulesActive.Set(float64(active))

	logging.Ctx(ctx).Info().Str("id", rule.ID).Str("address", address).Str("action", string(action)).Msg("Rule added")
	return rule, nil
}

// Remove deletes the rule with id. Removing an unknown id succeeds.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.idMu.RLock()
	address, ok := s.byID[id]
	s.idMu.RUnlock()
	if !ok {
		return nil
	}

	sh := s.shardFor(address)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	current, ok := sh.byAddr[address]
	if !ok || current.ID != id {
		return nil
	}

	if err := s.store.DeleteRule(ctx, id); err != nil {
		return models.WrapStorage("delete rule", err)
	}

	delete(sh.byAddr, address)
	s.idMu.Lock()
	delete(s.byID, id)
	active := len(s.byID)
	s.idMu.Unlock()
	metrics.RulesActive.Set(float64(active))

	logging.Ctx(ctx).Info().Str("id", id).Str("address", address).Msg("Rule removed")
	return nil
}

// List returns all rules, newest first.
func (s *Store) List() []models.Rule {
	var out []models.Rule
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, r := range sh.byAddr {
			out = append(out, *r)
		}
		sh.mu.Unlock()
	}
	if out == nil {
		out = []models.Rule{}
	}
	slices.SortFunc(out, func(a, b models.Rule) int {
		if c := b.AddedAt.Compare(a.AddedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Lookup returns the rule for address.
func (s *Store) Lookup(address string) (models.Rule, bool) {
	sh := s.shardFor(address)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	r, ok := sh.byAddr[address]
	if !ok {
		return models.Rule{}, false
	}
	return *r, true
}

// Len returns the number of rules.
func (s *Store) Len() int {
	s.idMu.RLock()
	defer s.idMu.RUnlock()
	return len(s.byID)
}
