// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

// Package store defines the persistence gateway shared by the event log,
// node registry and rule store, plus the Guard decorator that bounds and
// classifies every call.
//
// Backends live in sub-packages (badgerstore, sqlstore, redisstore) and all
// satisfy the conformance suite in storetest. A backend keeps no in-memory
// copy of the data; callers that need one (registry, firewall) own it.
package store

import (
	"context"

	"github.com/tomtom215/heimdall/internal/models"
)

// Store is the durable persistence gateway. Implementations must be safe
// for concurrent use.
type Store interface {
	// AppendEvent durably writes ev keyed by ev.Seq.
	AppendEvent(ctx context.Context, ev *models.Event) error

	// RecentEvents returns at most limit events, highest Seq first.
	RecentEvents(ctx context.Context, limit int) ([]models.Event, error)

	// LastEventSeq returns the highest stored Seq, or 0 when empty.
	LastEventSeq(ctx context.Context) (uint64, error)

	// UpsertNode inserts or replaces the node keyed by node.Address.
	UpsertNode(ctx context.Context, node *models.Node) error

	// ListNodes returns all nodes, most recently seen first.
	ListNodes(ctx context.Context) ([]models.Node, error)

	// AddRule inserts rule. It returns models.ErrAlreadyExists when a rule
	// for rule.Address is already stored.
	AddRule(ctx context.Context, rule *models.Rule) error

	// DeleteRule removes the rule with the given id. Missing ids are not an error.
	DeleteRule(ctx context.Context, id string) error

	// ListRules returns all rules, newest first.
	ListRules(ctx context.Context) ([]models.Rule, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}

// GarbageCollector is implemented by backends with periodic space reclamation.
type GarbageCollector interface {
	RunGC(ctx context.Context) error
}
