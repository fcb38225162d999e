// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/heimdall/internal/logging"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

var (
	_ suture.Service = (*HTTPServerService)(nil)
	_ suture.Service = (*HubService)(nil)
	_ suture.Service = (*PeriodicService)(nil)
)

type mockHTTPServer struct {
	listenErr     error
	shutdownErr   error
	shutdownCount atomic.Int32
	started       chan struct{}
	stopCh        chan struct{}
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{started: make(chan struct{}, 1), stopCh: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	m.started <- struct{}{}
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stopCh
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(context.Context) error {
	m.shutdownCount.Add(1)
	close(m.stopCh)
	return m.shutdownErr
}

func TestHTTPServerService(t *testing.T) {
	t.Run("graceful shutdown", func(t *testing.T) {
		srv := newMockHTTPServer()
		svc := NewHTTPServerService(srv, time.Second)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Serve(ctx) }()

		<-srv.started
		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
		if srv.shutdownCount.Load() != 1 {
			t.Errorf("Shutdown called %d times", srv.shutdownCount.Load())
		}
	})

	t.Run("listen failure", func(t *testing.T) {
		srv := newMockHTTPServer()
		srv.listenErr = errors.New("address in use")
		svc := NewHTTPServerService(srv, time.Second)

		err := svc.Serve(context.Background())
		if err == nil || !errors.Is(err, srv.listenErr) {
			t.Errorf("Serve() = %v, want wrapped listen error", err)
		}
	})

	t.Run("shutdown failure", func(t *testing.T) {
		srv := newMockHTTPServer()
		srv.shutdownErr = errors.New("deadline")
		svc := NewHTTPServerService(srv, time.Second)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- svc.Serve(ctx) }()
		<-srv.started
		cancel()
		if err := <-done; !errors.Is(err, srv.shutdownErr) {
			t.Errorf("Serve() = %v, want shutdown error", err)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		svc := NewHTTPServerService(newMockHTTPServer(), 0)
		if svc.shutdownTimeout != 10*time.Second || svc.String() != "http-server" {
			t.Errorf("svc = %+v", svc)
		}
	})
}

type mockHub struct{ runs atomic.Int32 }

func (m *mockHub) RunWithContext(ctx context.Context) error {
	m.runs.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestHubService(t *testing.T) {
	hub := &mockHub{}
	svc := NewHubService(hub)
	if svc.String() != "event-hub" {
		t.Errorf("String() = %q", svc.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := svc.Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v", err)
	}
	if hub.runs.Load() != 1 {
		t.Errorf("RunWithContext called %d times", hub.runs.Load())
	}
}

func TestPeriodicServiceKeepsRunningAfterTaskError(t *testing.T) {
	var calls atomic.Int32
	svc := NewPeriodicService("flaky", 5*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return errors.New("transient")
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("task did not run repeatedly")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v", err)
	}
}

type gcFunc func(ctx context.Context) error

func (f gcFunc) RunGC(ctx context.Context) error { return f(ctx) }

type sweeperFunc func(ctx context.Context, olderThan time.Duration) (int, error)

func (f sweeperFunc) SweepOffline(ctx context.Context, olderThan time.Duration) (int, error) {
	return f(ctx, olderThan)
}

func TestStoreGCAndSweeperServices(t *testing.T) {
	gcRan := make(chan struct{}, 1)
	gc := NewStoreGCService(gcFunc(func(context.Context) error {
		select {
		case gcRan <- struct{}{}:
		default:
		}
		return nil
	}), 5*time.Millisecond)

	swept := make(chan time.Duration, 1)
	sweeper := NewNodeSweeperService(sweeperFunc(func(_ context.Context, olderThan time.Duration) (int, error) {
		select {
		case swept <- olderThan:
		default:
		}
		return 0, nil
	}), 15*time.Minute, 5*time.Millisecond)

	if gc.String() != "store-gc" || sweeper.String() != "node-sweeper" {
		t.Errorf("names = %q, %q", gc.String(), sweeper.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gc.Serve(ctx)
	go sweeper.Serve(ctx)

	select {
	case <-gcRan:
	case <-time.After(2 * time.Second):
		t.Fatal("gc did not run")
	}
	select {
	case d := <-swept:
		if d != 15*time.Minute {
			t.Errorf("olderThan = %v", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not run")
	}
}
