// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package badgerstore

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/tomtom215/heimdall/internal/logging"
	"github.com/tomtom215/heimdall/internal/store"
	"github.com/tomtom215/heimdall/internal/store/storetest"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

func openMemory(t *testing.T) store.Store {
	t.Helper()
	s, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, openMemory)
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "badger")

	s, err := Open(Config{Path: path})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for seq := uint64(1); seq <= 3; seq++ {
		if err := s.AppendEvent(ctx, storetest.NewEvent(seq)); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(Config{Path: path})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	seq, err := s.LastEventSeq(ctx)
	if err != nil {
		t.Fatalf("LastEventSeq: %v", err)
	}
	if seq != 3 {
		t.Errorf("LastEventSeq after reopen = %d, want 3", seq)
	}
	if err := s.RunGC(ctx); err != nil {
		t.Errorf("RunGC: %v", err)
	}
}

func TestPingAfterClose(t *testing.T) {
	s, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestRunGCInMemory(t *testing.T) {
	s, err := Open(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	if err := s.RunGC(context.Background()); err != nil {
		t.Errorf("RunGC in memory mode should be a no-op, got %v", err)
	}
}
