// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

// Package storetest is the conformance suite every store backend runs.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/heimdall/internal/models"
	"github.com/tomtom215/heimdall/internal/store"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run executes the full conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"EmptyStore", testEmptyStore},
		{"RecentEventsOrderAndLimit", testRecentEventsOrderAndLimit},
		{"LastEventSeq", testLastEventSeq},
		{"UpsertNodeReplaces", testUpsertNodeReplaces},
		{"ListNodesOrder", testListNodesOrder},
		{"AddRuleDuplicate", testAddRuleDuplicate},
		{"DeleteRuleIdempotent", testDeleteRuleIdempotent},
		{"ListRulesOrder", testListRulesOrder},
		{"ConcurrentAddRuleSameAddress", testConcurrentAddRule},
		{"CanceledWritesDoNotLand", testCanceledWritesDoNotLand},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			tt.fn(t, s)
		})
	}
}

// NewEvent returns a valid event with the given sequence.
func NewEvent(seq uint64) *models.Event {
	return &models.Event{
		Seq:        seq,
		Timestamp:  "2026-01-02T03:04:05Z",
		Src:        "192.168.1.10",
		Dst:        fmt.Sprintf("10.0.0.%d", seq%250),
		Protocol:   "TCP",
		Status:     models.StatusAllowed,
		Message:    fmt.Sprintf("flow %d", seq),
		ReceivedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Add(time.Duration(seq) * time.Second),
	}
}

// NewRule returns a DENY rule for address.
func NewRule(id, address string, addedAt time.Time) *models.Rule {
	return &models.Rule{
		ID:      id,
		Address: address,
		Action:  models.ActionDeny,
		Reason:  models.DefaultRuleReason,
		AddedAt: addedAt,
	}
}

func testEmptyStore(t *testing.T, s store.Store) {
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	events, err := s.RecentEvents(ctx, 50)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
	nodes, err := s.ListNodes(ctx)
	if err != nil {
		t.Fatalf("ListNodes: %v", err)
	}
	if len(nodes) != 0 {
		t.Errorf("expected no nodes, got %d", len(nodes))
	}
	rules, err := s.ListRules(ctx)
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if len(rules) != 0 {
		t.Errorf("expected no rules, got %d", len(rules))
	}
}

func testRecentEventsOrderAndLimit(t *testing.T, s store.Store) {
	ctx := context.Background()

	for seq := uint64(1); seq <= 300; seq++ {
		if err := s.AppendEvent(ctx, NewEvent(seq)); err != nil {
			t.Fatalf("AppendEvent(%d): %v", seq, err)
		}
	}

	events, err := s.RecentEvents(ctx, 50)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(events) != 50 {
		t.Fatalf("expected 50 events, got %d", len(events))
	}
	for i, ev := range events {
		if want := uint64(300 - i); ev.Seq != want {
			t.Fatalf("events[%d].Seq = %d, want %d", i, ev.Seq, want)
		}
	}
	first := events[0]
	if first.Src != "192.168.1.10" || first.Protocol != "TCP" || first.Status != models.StatusAllowed || first.Message != "flow 300" {
		t.Errorf("event fields not round-tripped: %+v", first)
	}
	if !first.ReceivedAt.Equal(NewEvent(300).ReceivedAt) {
		t.Errorf("received_at = %v, want %v", first.ReceivedAt, NewEvent(300).ReceivedAt)
	}

	few, err := s.RecentEvents(ctx, 3)
	if err != nil {
		t.Fatalf("RecentEvents(3): %v", err)
	}
	if len(few) != 3 || few[2].Seq != 298 {
		t.Errorf("unexpected RecentEvents(3): %+v", few)
	}
}

func testLastEventSeq(t *testing.T, s store.Store) {
	ctx := context.Background()

	seq, err := s.LastEventSeq(ctx)
	if err != nil {
		t.Fatalf("LastEventSeq: %v", err)
	}
	if seq != 0 {
		t.Errorf("expected 0 on empty store, got %d", seq)
	}

	for _, n := range []uint64{1, 2, 256, 257, 1024} {
		if err := s.AppendEvent(ctx, NewEvent(n)); err != nil {
			t.Fatalf("AppendEvent(%d): %v", n, err)
		}
	}
	seq, err = s.LastEventSeq(ctx)
	if err != nil {
		t.Fatalf("LastEventSeq: %v", err)
	}
	if seq != 1024 {
		t.Errorf("LastEventSeq = %d, want 1024", seq)
	}
}

func testUpsertNodeReplaces(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	node := &models.Node{
		Address: "10.0.0.5", MAC: models.UnknownAttr, OS: models.UnknownAttr, Type: models.DefaultNodeType,
		TrustScore: 100, Status: models.NodeOnline, FirstSeen: now, LastSeen: now,
	}
	if err := s.UpsertNode(ctx, node); err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}

	updated := *node
	updated.OS = "Linux"
	updated.TrustScore = 70
	updated.LastSeen = now.Add(time.Minute)
	if err := s.UpsertNode(ctx, &updated); err != nil {
		t.Fatalf("UpsertNode: %v", err)
	}

	nodes, err := s.ListNodes(ctx)
	if err != nil {
		t.Fatalf("ListNodes: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(nodes))
	}
	got := nodes[0]
	if got.OS != "Linux" || got.TrustScore != 70 || !got.LastSeen.Equal(updated.LastSeen) || !got.FirstSeen.Equal(now) {
		t.Errorf("node not replaced: %+v", got)
	}
}

func testListNodesOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, addr := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		seen := base.Add(time.Duration(i) * time.Minute)
		if err := s.UpsertNode(ctx, &models.Node{
			Address: addr, TrustScore: 100, Status: models.NodeOnline, FirstSeen: seen, LastSeen: seen,
		}); err != nil {
			t.Fatalf("UpsertNode: %v", err)
		}
	}

	nodes, err := s.ListNodes(ctx)
	if err != nil {
		t.Fatalf("ListNodes: %v", err)
	}
	want := []string{"10.0.0.3", "10.0.0.2", "10.0.0.1"}
	if len(nodes) != len(want) {
		t.Fatalf("expected %d nodes, got %d", len(want), len(nodes))
	}
	for i := range want {
		if nodes[i].Address != want[i] {
			t.Errorf("nodes[%d] = %s, want %s", i, nodes[i].Address, want[i])
		}
	}
}

func testAddRuleDuplicate(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.AddRule(ctx, NewRule("r1", "1.2.3.4", now)); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	err := s.AddRule(ctx, NewRule("r2", "1.2.3.4", now))
	if !errors.Is(err, models.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	rules, err := s.ListRules(ctx)
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if len(rules) != 1 || rules[0].ID != "r1" {
		t.Errorf("expected only r1, got %+v", rules)
	}
}

func testDeleteRuleIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC()

	if err := s.AddRule(ctx, NewRule("r1", "5.6.7.8", now)); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := s.DeleteRule(ctx, "r1"); err != nil {
			t.Fatalf("DeleteRule #%d: %v", i+1, err)
		}
	}
	if err := s.DeleteRule(ctx, "never-existed"); err != nil {
		t.Fatalf("DeleteRule unknown: %v", err)
	}

	rules, err := s.ListRules(ctx)
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if len(rules) != 0 {
		t.Errorf("expected no rules, got %+v", rules)
	}

	if err := s.AddRule(ctx, NewRule("r2", "5.6.7.8", now)); err != nil {
		t.Fatalf("re-adding address after delete: %v", err)
	}
}

func testListRulesOrder(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, addr := range []string{"1.1.1.1", "2.2.2.2", "3.3.3.3"} {
		if err := s.AddRule(ctx, NewRule(fmt.Sprintf("r%d", i), addr, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("AddRule: %v", err)
		}
	}

	rules, err := s.ListRules(ctx)
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	want := []string{"3.3.3.3", "2.2.2.2", "1.1.1.1"}
	if len(rules) != len(want) {
		t.Fatalf("expected %d rules, got %d", len(want), len(rules))
	}
	for i := range want {
		if rules[i].Address != want[i] {
			t.Errorf("rules[%d] = %s, want %s", i, rules[i].Address, want[i])
		}
		if rules[i].Action != models.ActionDeny || rules[i].Reason != models.DefaultRuleReason {
			t.Errorf("rule fields not round-tripped: %+v", rules[i])
		}
	}
}

func testConcurrentAddRule(t *testing.T, s store.Store) {
	ctx := context.Background()
	const workers = 8

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		dupes     int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.AddRule(ctx, NewRule(fmt.Sprintf("c%d", i), "9.9.9.9", time.Now().UTC()))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, models.ErrAlreadyExists):
				dupes++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successes != 1 || dupes != workers-1 {
		t.Errorf("expected 1 success and %d duplicates, got %d and %d", workers-1, successes, dupes)
	}
}

// testCanceledWritesDoNotLand checks that a write issued after the caller
// gave up fails and leaves nothing behind.
func testCanceledWritesDoNotLand(t *testing.T, s store.Store) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	now := time.Now().UTC()

	if err := s.AppendEvent(ctx, NewEvent(1)); err == nil {
		t.Error("AppendEvent with canceled context succeeded")
	}
	if err := s.UpsertNode(ctx, &models.Node{Address: "10.1.1.1", TrustScore: 100, LastSeen: now}); err == nil {
		t.Error("UpsertNode with canceled context succeeded")
	}
	if err := s.AddRule(ctx, NewRule("r1", "10.1.1.1", now)); err == nil {
		t.Error("AddRule with canceled context succeeded")
	}

	live := context.Background()
	events, err := s.RecentEvents(live, 50)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	nodes, err := s.ListNodes(live)
	if err != nil {
		t.Fatalf("ListNodes: %v", err)
	}
	rules, err := s.ListRules(live)
	if err != nil {
		t.Fatalf("ListRules: %v", err)
	}
	if len(events)+len(nodes)+len(rules) != 0 {
		t.Errorf("canceled writes landed: events=%d nodes=%d rules=%d", len(events), len(nodes), len(rules))
	}

	// The address stays free for a later rule.
	if err := s.AddRule(live, NewRule("r2", "10.1.1.1", now)); err != nil {
		t.Errorf("AddRule after canceled attempt: %v", err)
	}
}
