// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/heimdall/internal/logging"
	"github.com/tomtom215/heimdall/internal/metrics"
	"github.com/tomtom215/heimdall/internal/models"
)

// GuardConfig configures the Guard decorator.
type GuardConfig struct {
	// Backend labels metrics (badger, sqlite, duckdb, redis).
	Backend string

	// Timeout bounds every call. Zero disables the bound.
	Timeout time.Duration

	// BreakerEnabled turns on the circuit breaker.
	BreakerEnabled bool

	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32

	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// Guard wraps a Store so that every call carries a deadline and every
// failure matches models.ErrStorage. Repeated failures trip a circuit
// breaker. models.ErrAlreadyExists passes through unclassified.
//
// Reads are abandoned at the deadline. Writes pass the deadline down and
// wait for the backend, which must not commit once ctx is done.
type Guard struct {
	inner Store
	cfg   GuardConfig
	cb    *gobreaker.CircuitBreaker[interface{}]
}

var _ Store = (*Guard)(nil)

// NewGuard wraps inner.
func NewGuard(inner Store, cfg GuardConfig) *Guard {
	g := &Guard{inner: inner, cfg: cfg}
	if cfg.BreakerEnabled {
		threshold := cfg.FailureThreshold
		if threshold == 0 {
			threshold = 5
		}
		g.cb = gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
			Name:        "store-" + cfg.Backend,
			MaxRequests: 1,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, models.ErrAlreadyExists) || errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Storage circuit breaker state changed")
				metrics.StorageBreakerOpen.Set(boolGauge(to == gobreaker.StateOpen))
			},
		})
	}
	return g
}

// BreakerState returns the breaker state, or "disabled".
func (g *Guard) BreakerState() string {
	if g.cb == nil {
		return "disabled"
	}
	return g.cb.State().String()
}

// Unwrap returns the decorated store.
func (g *Guard) Unwrap() Store {
	return g.inner
}

// read runs a read-only fn with the configured deadline. A backend that
// ignores ctx is abandoned when the deadline passes; its result is dropped.
func (g *Guard) read(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return g.call(ctx, op, func(ctx context.Context) error {
		done := make(chan error, 1)
		go func() { done <- fn(ctx) }()
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// write runs a mutating fn with the configured deadline and always waits for
// the backend to return, so the reported outcome is the stored outcome. A
// failure after the deadline is reported as a timeout.
func (g *Guard) write(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return g.call(ctx, op, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
			return fmt.Errorf("%w: %w", ctx.Err(), err)
		}
		return err
	})
}

func (g *Guard) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	start := time.Now()
	run := func() (interface{}, error) {
		return nil, fn(ctx)
	}

	var err error
	if g.cb != nil {
		_, err = g.cb.Execute(run)
	} else {
		_, err = run()
	}
	metrics.StorageOpDuration.WithLabelValues(op, g.cfg.Backend).Observe(time.Since(start).Seconds())

	return g.classify(op, err)
}

func (g *Guard) classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, models.ErrAlreadyExists):
		return fmt.Errorf("%s: %w", op, err)
	case errors.Is(err, context.DeadlineExceeded):
		metrics.StorageErrors.WithLabelValues(op, "timeout").Inc()
		return fmt.Errorf("%s: %w: %w: %w", op, models.ErrStorage, models.ErrTimeout, err)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.StorageErrors.WithLabelValues(op, "breaker_open").Inc()
		return fmt.Errorf("%s: %w: %w", op, models.ErrStorage, err)
	default:
		metrics.StorageErrors.WithLabelValues(op, "backend").Inc()
		return fmt.Errorf("%s: %w: %w", op, models.ErrStorage, err)
	}
}

func (g *Guard) AppendEvent(ctx context.Context, ev *models.Event) error {
	return g.write(ctx, "append_event", func(ctx context.Context) error {
		return g.inner.AppendEvent(ctx, ev)
	})
}

func (g *Guard) RecentEvents(ctx context.Context, limit int) ([]models.Event, error) {
	var out []models.Event
	err := g.read(ctx, "recent_events", func(ctx context.Context) error {
		events, err := g.inner.RecentEvents(ctx, limit)
		out = events
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Guard) LastEventSeq(ctx context.Context) (uint64, error) {
	var seq uint64
	err := g.read(ctx, "last_event_seq", func(ctx context.Context) error {
		s, err := g.inner.LastEventSeq(ctx)
		seq = s
		return err
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

func (g *Guard) UpsertNode(ctx context.Context, node *models.Node) error {
	return g.write(ctx, "upsert_node", func(ctx context.Context) error {
		return g.inner.UpsertNode(ctx, node)
	})
}

func (g *Guard) ListNodes(ctx context.Context) ([]models.Node, error) {
	var out []models.Node
	err := g.read(ctx, "list_nodes", func(ctx context.Context) error {
		nodes, err := g.inner.ListNodes(ctx)
		out = nodes
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Guard) AddRule(ctx context.Context, rule *models.Rule) error {
	return g.write(ctx, "add_rule", func(ctx context.Context) error {
		return g.inner.AddRule(ctx, rule)
	})
}

func (g *Guard) DeleteRule(ctx context.Context, id string) error {
	return g.write(ctx, "delete_rule", func(ctx context.Context) error {
		return g.inner.DeleteRule(ctx, id)
	})
}

func (g *Guard) ListRules(ctx context.Context) ([]models.Rule, error) {
	var out []models.Rule
	err := g.read(ctx, "list_rules", func(ctx context.Context) error {
		rules, err := g.inner.ListRules(ctx)
		out = rules
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Guard) Ping(ctx context.Context) error {
	return g.read(ctx, "ping", g.inner.Ping)
}

// RunGC forwards to the backend when it supports garbage collection.
func (g *Guard) RunGC(ctx context.Context) error {
	gc, ok := g.inner.(GarbageCollector)
	if !ok {
		return nil
	}
	return gc.RunGC(ctx)
}

func (g *Guard) Close() error {
	return g.inner.Close()
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
