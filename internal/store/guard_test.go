// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package store

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/heimdall/internal/logging"
	"github.com/tomtom215/heimdall/internal/models"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

// stubStore fails or stalls on demand. Methods not exercised return zero values.
// A stall honors ctx unless ignoreCtx is set.
type stubStore struct {
	err       error
	delay     time.Duration
	ignoreCtx bool
	calls     atomic.Int32
	finished  atomic.Int32
}

func (s *stubStore) do(ctx context.Context) error {
	s.calls.Add(1)
	defer s.finished.Add(1)
	if s.delay > 0 {
		if s.ignoreCtx {
			time.Sleep(s.delay)
		} else {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return s.err
}

func (s *stubStore) AppendEvent(ctx context.Context, _ *models.Event) error { return s.do(ctx) }
func (s *stubStore) RecentEvents(ctx context.Context, _ int) ([]models.Event, error) {
	return []models.Event{{Seq: 1}}, s.do(ctx)
}
func (s *stubStore) LastEventSeq(ctx context.Context) (uint64, error) { return 9, s.do(ctx) }
func (s *stubStore) UpsertNode(ctx context.Context, _ *models.Node) error { return s.do(ctx) }
func (s *stubStore) ListNodes(ctx context.Context) ([]models.Node, error) { return nil, s.do(ctx) }
func (s *stubStore) AddRule(ctx context.Context, _ *models.Rule) error { return s.do(ctx) }
func (s *stubStore) DeleteRule(ctx context.Context, _ string) error { return s.do(ctx) }
func (s *stubStore) ListRules(ctx context.Context) ([]models.Rule, error) { return nil, s.do(ctx) }
func (s *stubStore) Ping(ctx context.Context) error { return s.do(ctx) }
func (s *stubStore) Close() error { return nil }

func TestGuardClassifiesErrors(t *testing.T) {
	tests := []struct {
		name        string
		backendErr  error
		delay       time.Duration
		wantStorage bool
		wantTimeout bool
		wantExists  bool
	}{
		{name: "success"},
		{name: "backend failure", backendErr: errors.New("disk full"), wantStorage: true},
		{name: "deadline", delay: 200 * time.Millisecond, wantStorage: true, wantTimeout: true},
		{name: "already exists", backendErr: models.ErrAlreadyExists, wantExists: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGuard(&stubStore{err: tt.backendErr, delay: tt.delay}, GuardConfig{
				Backend: "stub",
				Timeout: 20 * time.Millisecond,
			})

			err := g.AddRule(context.Background(), &models.Rule{ID: "r", Address: "1.2.3.4"})

			if got := errors.Is(err, models.ErrStorage); got != tt.wantStorage {
				t.Errorf("errors.Is(err, ErrStorage) = %v, want %v (err=%v)", got, tt.wantStorage, err)
			}
			if got := errors.Is(err, models.ErrTimeout); got != tt.wantTimeout {
				t.Errorf("errors.Is(err, ErrTimeout) = %v, want %v (err=%v)", got, tt.wantTimeout, err)
			}
			if got := errors.Is(err, models.ErrAlreadyExists); got != tt.wantExists {
				t.Errorf("errors.Is(err, ErrAlreadyExists) = %v, want %v (err=%v)", got, tt.wantExists, err)
			}
		})
	}
}

func TestGuardTimeoutReturnsPromptly(t *testing.T) {
	tests := []struct {
		name    string
		backend *stubStore
		call    func(g *Guard) error
	}{
		{
			name:    "write honoring ctx",
			backend: &stubStore{delay: time.Second},
			call: func(g *Guard) error {
				return g.AppendEvent(context.Background(), &models.Event{Seq: 1})
			},
		},
		{
			name:    "read ignoring ctx",
			backend: &stubStore{delay: time.Second, ignoreCtx: true},
			call: func(g *Guard) error {
				_, err := g.RecentEvents(context.Background(), 10)
				return err
			},
		},
		{
			name:    "last seq ignoring ctx",
			backend: &stubStore{delay: time.Second, ignoreCtx: true},
			call: func(g *Guard) error {
				seq, err := g.LastEventSeq(context.Background())
				if seq != 0 {
					t.Errorf("LastEventSeq returned %d alongside an error", seq)
				}
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGuard(tt.backend, GuardConfig{Backend: "stub", Timeout: 20 * time.Millisecond})

			start := time.Now()
			err := tt.call(g)
			if !errors.Is(err, models.ErrTimeout) {
				t.Fatalf("expected ErrTimeout, got %v", err)
			}
			if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
				t.Errorf("guard waited %v for a stalled backend", elapsed)
			}
		})
	}
}

func TestGuardWriteWaitsForBackend(t *testing.T) {
	t.Run("late success is reported", func(t *testing.T) {
		backend := &stubStore{delay: 60 * time.Millisecond, ignoreCtx: true}
		g := NewGuard(backend, GuardConfig{Backend: "stub", Timeout: 10 * time.Millisecond})

		if err := g.AddRule(context.Background(), &models.Rule{ID: "r", Address: "1.2.3.4"}); err != nil {
			t.Fatalf("AddRule = %v, want the backend's nil", err)
		}
		if backend.finished.Load() != 1 {
			t.Error("guard returned before the backend finished")
		}
	})

	t.Run("late failure is a timeout", func(t *testing.T) {
		backend := &stubStore{delay: 60 * time.Millisecond, ignoreCtx: true, err: errors.New("aborted")}
		g := NewGuard(backend, GuardConfig{Backend: "stub", Timeout: 10 * time.Millisecond})

		err := g.UpsertNode(context.Background(), &models.Node{Address: "1.2.3.4"})
		if !errors.Is(err, models.ErrTimeout) || !errors.Is(err, models.ErrStorage) {
			t.Fatalf("expected storage timeout, got %v", err)
		}
		if backend.finished.Load() != 1 {
			t.Error("guard returned before the backend finished")
		}
	})

	t.Run("duplicate after deadline stays a duplicate", func(t *testing.T) {
		backend := &stubStore{delay: 40 * time.Millisecond, ignoreCtx: true, err: models.ErrAlreadyExists}
		g := NewGuard(backend, GuardConfig{Backend: "stub", Timeout: 10 * time.Millisecond})

		err := g.AddRule(context.Background(), &models.Rule{ID: "r", Address: "1.2.3.4"})
		if !errors.Is(err, models.ErrAlreadyExists) || errors.Is(err, models.ErrStorage) {
			t.Fatalf("expected bare ErrAlreadyExists, got %v", err)
		}
	})
}

func TestGuardPassesResults(t *testing.T) {
	g := NewGuard(&stubStore{}, GuardConfig{Backend: "stub", Timeout: time.Second})

	events, err := g.RecentEvents(context.Background(), 50)
	if err != nil || len(events) != 1 {
		t.Fatalf("RecentEvents = %v, %v", events, err)
	}
	seq, err := g.LastEventSeq(context.Background())
	if err != nil || seq != 9 {
		t.Fatalf("LastEventSeq = %d, %v", seq, err)
	}
}

func TestGuardBreakerOpens(t *testing.T) {
	backend := &stubStore{err: errors.New("connection refused")}
	g := NewGuard(backend, GuardConfig{
		Backend:          "stub",
		Timeout:          time.Second,
		BreakerEnabled:   true,
		FailureThreshold: 3,
		OpenTimeout:      time.Minute,
	})

	for i := 0; i < 3; i++ {
		_ = g.Ping(context.Background())
	}
	if got := g.BreakerState(); got != "open" {
		t.Fatalf("breaker state = %s, want open", got)
	}

	calls := backend.calls.Load()
	err := g.Ping(context.Background())
	if !errors.Is(err, models.ErrStorage) {
		t.Errorf("expected ErrStorage while open, got %v", err)
	}
	if backend.calls.Load() != calls {
		t.Error("backend should not be called while the breaker is open")
	}
}

func TestGuardBreakerIgnoresDuplicates(t *testing.T) {
	g := NewGuard(&stubStore{err: models.ErrAlreadyExists}, GuardConfig{
		Backend:          "stub",
		BreakerEnabled:   true,
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
	})

	for i := 0; i < 5; i++ {
		_ = g.AddRule(context.Background(), &models.Rule{ID: "r", Address: "1.2.3.4"})
	}
	if got := g.BreakerState(); got != "closed" {
		t.Errorf("duplicates must not trip the breaker, state = %s", got)
	}
}

func TestGuardDisabledBreakerState(t *testing.T) {
	g := NewGuard(&stubStore{}, GuardConfig{Backend: "stub"})
	if got := g.BreakerState(); got != "disabled" {
		t.Errorf("BreakerState() = %s, want disabled", got)
	}
	if g.Unwrap() == nil {
		t.Error("Unwrap returned nil")
	}
}
