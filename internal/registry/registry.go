// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

// Package registry tracks observed network nodes and their trust scores.
//
// Nodes are spread over lock stripes chosen by xxhash of the address. Each
// mutation computes the new record, writes it through the persistence
// gateway and only then replaces the in-memory copy, all under the stripe
// lock, so concurrent updates to one address are linearizable and a
// failed write leaves the registry unchanged.
package registry

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/tomtom215/heimdall/internal/logging"
	"github.com/tomtom215/heimdall/internal/metrics"
	"github.com/tomtom215/heimdall/internal/models"
	"github.com/tomtom215/heimdall/internal/validation"
)

// NodeStore is the slice of the persistence gateway the registry needs.
type NodeStore interface {
	UpsertNode(ctx context.Context, node *models.Node) error
	ListNodes(ctx context.Context) ([]models.Node, error)
}

// Config configures a Registry.
type Config struct {
	// Shards is the number of lock stripes. Defaults to 32.
	Shards int

	// Strict makes Penalize on an unknown address return models.ErrNotFound
	// instead of succeeding as a no-op.
	Strict bool

	// Clock overrides time.Now. Used by tests.
	Clock func() time.Time
}

// Observation is a sighting of a node reported by a producer or operator.
// Empty or "Unknown" attributes never overwrite known ones.
type Observation struct {
	Address string
	OS      string
	MAC     string
	Type    string
}

type shard struct {
	mu    sync.Mutex
	nodes map[string]*models.Node
}

// Registry is the authoritative in-memory view of all nodes.
type Registry struct {
	store  NodeStore
	shards []*shard
	strict bool
	clock  func() time.Time
	count  atomic.Int64
}

// New creates an empty registry. Call Load to restore persisted nodes.
func New(store NodeStore, cfg Config) *Registry {
	n := cfg.Shards
	if n <= 0 {
		n = 32
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	r := &Registry{
		store:  store,
		shards: make([]*shard, n),
		strict: cfg.Strict,
		clock:  clock,
	}
	for i := range r.shards {
		r.shards[i] = &shard{nodes: make(map[string]*models.Node)}
	}
	return r
}

func (r *Registry) shardFor(address string) *shard {
	return r.shards[xxhash.Sum64String(address)%uint64(len(r.shards))]
}

// Load replaces the in-memory state with the gateway's contents.
func (r *Registry) Load(ctx context.Context) error {
	nodes, err := r.store.ListNodes(ctx)
	if err != nil {
		return models.WrapStorage("load nodes", err)
	}

	for _, sh := range r.shards {
		sh.mu.Lock()
		clear(sh.nodes)
		sh.mu.Unlock()
	}
	for i := range nodes {
		n := nodes[i]
		n.TrustScore = clampScore(n.TrustScore)
		sh := r.shardFor(n.Address)
		sh.mu.Lock()
		sh.nodes[n.Address] = &n
		sh.mu.Unlock()
	}
	r.count.Store(int64(len(nodes)))
	metrics.NodesTracked.Set(float64(len(nodes)))

	logging.Info().Int("nodes", len(nodes)).Msg("Node registry loaded")
	return nil
}

// Upsert records a sighting. A new node starts with full trust, ONLINE,
// and "Unknown" for missing attributes. An existing node is set ONLINE,
// its last_seen refreshed, and os/mac replaced only by known values.
func (r *Registry) Upsert(ctx context.Context, obs Observation) (models.Node, error) {
	if err := validation.ValidateAddress(obs.Address); err != nil {
		return models.Node{}, err
	}
	obs.OS = strings.TrimSpace(obs.OS)
	obs.MAC = strings.TrimSpace(obs.MAC)
	obs.Type = strings.TrimSpace(obs.Type)

	sh := r.shardFor(obs.Address)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := r.clock().UTC()
	prev, exists := sh.nodes[obs.Address]

	var next models.Node
	if !exists {
		next = models.Node{
			Address:    obs.Address,
			MAC:        orUnknown(obs.MAC),
			OS:         orUnknown(obs.OS),
			Type:       models.DefaultNodeType,
			TrustScore: models.MaxTrustScore,
			Status:     models.NodeOnline,
			FirstSeen:  now,
			LastSeen:   now,
		}
		if obs.Type != "" {
			next.Type = obs.Type
		}
	} else {
		next = *prev
		next.Status = models.NodeOnline
		if now.After(next.LastSeen) {
			next.LastSeen = now
		}
		if models.KnownAttr(obs.OS) {
			next.OS = obs.OS
		}
		if models.KnownAttr(obs.MAC) {
			next.MAC = obs.MAC
		}
		if obs.Type != "" {
			next.Type = obs.Type
		}
	}

	if err := r.store.UpsertNode(ctx, &next); err != nil {
		return models.Node{}, models.WrapStorage("persist node "+obs.Address, err)
	}
	sh.nodes[obs.Address] = &next
	if !exists {
		metrics.NodesTracked.Set(float64(r.count.Add(1)))
	}
	return next, nil
}

// Penalize lowers the node's trust score by amount, flooring at zero.
// It reports whether the node was known. An unknown address is a no-op
// unless the registry is strict.
func (r *Registry) Penalize(ctx context.Context, address string, amount int) (models.Node, bool, error) {
	if amount < 0 {
		return models.Node{}, false, &models.ValidationError{
			Kind:   models.ErrInvalidArgument,
			Fields: map[string]string{"amount": "amount must be greater than or equal to 0"},
		}
	}

	sh := r.shardFor(address)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	prev, ok := sh.nodes[address]
	if !ok {
		if r.strict {
			return models.Node{}, false, fmt.Errorf("node %s: %w", address, models.ErrNotFound)
		}
		return models.Node{}, false, nil
	}

	next := *prev
	next.TrustScore = max(0, prev.TrustScore-amount)

	if err := r.store.UpsertNode(ctx, &next); err != nil {
		return models.Node{}, true, models.WrapStorage("persist node "+address, err)
	}
	sh.nodes[address] = &next
	metrics.NodesPenalized.Inc()
	return next, true, nil
}

// Get returns a copy of the node.
func (r *Registry) Get(address string) (models.Node, bool) {
	sh := r.shardFor(address)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	n, ok := sh.nodes[address]
	if !ok {
		return models.Node{}, false
	}
	return *n, true
}

// List returns a snapshot of all nodes, most recently seen first.
func (r *Registry) List() []models.Node {
	out := make([]models.Node, 0, r.count.Load())
	for _, sh := range r.shards {
		sh.mu.Lock()
		for _, n := range sh.nodes {
			out = append(out, *n)
		}
		sh.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b models.Node) int {
		if c := b.LastSeen.Compare(a.LastSeen); c != 0 {
			return c
		}
		return strings.Compare(a.Address, b.Address)
	})
	return out
}

// Len returns the number of tracked nodes.
func (r *Registry) Len() int {
	return int(r.count.Load())
}

// SweepOffline marks ONLINE nodes not seen for longer than olderThan as
// OFFLINE. Nodes whose write fails stay ONLINE in memory; the first such
// error is returned after the sweep completes.
func (r *Registry) SweepOffline(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := r.clock().UTC().Add(-olderThan)
	marked := 0
	var firstErr error

	for _, sh := range r.shards {
		sh.mu.Lock()
		for addr, n := range sh.nodes {
			if n.Status != models.NodeOnline || !n.LastSeen.Before(cutoff) {
				continue
			}
			next := *n
			next.Status = models.NodeOffline
			if err := r.store.UpsertNode(ctx, &next); err != nil {
				if firstErr == nil {
					firstErr = models.WrapStorage("persist node "+addr, err)
				}
				continue
			}
			sh.nodes[addr] = &next
			marked++
		}
		sh.mu.Unlock()
	}

	if marked > 0 {
		metrics.NodesMarkedOffline.Add(float64(marked))
		logging.Info().Int("nodes", marked).Dur("older_than", olderThan).Msg("Marked idle nodes offline")
	}
	return marked, firstErr
}

func orUnknown(v string) string {
	if v == "" {
		return models.UnknownAttr
	}
	return v
}

func clampScore(s int) int {
	return min(max(s, 0), models.MaxTrustScore)
}
