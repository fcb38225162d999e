// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"
)

// startNATS runs an embedded server and a subscriber bound to h.
func startNATS(t *testing.T, h *harness) *natsgo.Conn {
	t.Helper()

	srv, err := StartEmbeddedServer("127.0.0.1", -1)
	if err != nil {
		t.Fatalf("StartEmbeddedServer: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	if !srv.IsRunning() {
		t.Fatal("embedded server not running")
	}

	sub := NewNATSSubscriber(h.coord, NATSConfig{URL: srv.ClientURL(), SubmitTimeout: time.Second})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sub.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("subscriber did not stop")
		}
	})

	nc, err := natsgo.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(nc.Close)
	return nc
}

// request retries until the subscriber is listening.
func request(t *testing.T, nc *natsgo.Conn, payload []byte) Reply {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		msg, err := nc.Request(DefaultSubject, payload, time.Second)
		if errors.Is(err, natsgo.ErrNoResponders) && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if err != nil {
			t.Fatalf("Request: %v", err)
		}
		var r Reply
		if err := json.Unmarshal(msg.Data, &r); err != nil {
			t.Fatalf("Unmarshal reply %s: %v", msg.Data, err)
		}
		return r
	}
}

func TestNATSSubscriberRequestReply(t *testing.T) {
	h := newHarness(DefaultConfig(), nil)
	nc := startNATS(t, h)

	payload, _ := json.Marshal(validRaw())
	r := request(t, nc, payload)
	if !r.Success || r.Seq != 1 || r.Error != "" {
		t.Fatalf("reply = %+v, want success seq 1", r)
	}
	if h.log.count() != 1 {
		t.Errorf("persisted %d events, want 1", h.log.count())
	}

	r = request(t, nc, []byte(`{"src":"10.0.0.1","dst":"10.0.0.2","protocol":"TCP","status":"LOST"}`))
	if r.Success || !strings.Contains(r.Error, "invalid event") {
		t.Errorf("invalid reply = %+v", r)
	}

	r = request(t, nc, []byte(`not json`))
	if r.Success || !strings.HasPrefix(r.Error, "malformed event") {
		t.Errorf("malformed reply = %+v", r)
	}

	h.log.setErr(errors.New("disk full"))
	r = request(t, nc, payload)
	if r.Success || !strings.Contains(r.Error, "storage failure") {
		t.Errorf("storage reply = %+v", r)
	}
}

func TestNATSSubscriberFireAndForget(t *testing.T) {
	h := newHarness(DefaultConfig(), nil)
	nc := startNATS(t, h)

	payload, _ := json.Marshal(validRaw())
	request(t, nc, payload)

	for i := 0; i < 5; i++ {
		if err := nc.Publish(DefaultSubject, payload); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	if err := nc.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for h.log.count() < 6 {
		if time.Now().After(deadline) {
			t.Fatalf("persisted %d events, want 6", h.log.count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNATSSubscriberDefaults(t *testing.T) {
	sub := NewNATSSubscriber(nil, NATSConfig{})
	if sub.cfg.Subject != DefaultSubject || sub.cfg.QueueGroup != "heimdall" || sub.cfg.SubmitTimeout != 5*time.Second {
		t.Errorf("defaults = %+v", sub.cfg)
	}
	if sub.String() != "nats-ingest" {
		t.Errorf("String() = %q", sub.String())
	}
}

func TestNATSSubscriberConnectFailure(t *testing.T) {
	sub := NewNATSSubscriber(nil, NATSConfig{URL: "nats://127.0.0.1:1"})
	if err := sub.Serve(context.Background()); err == nil {
		t.Error("expected connect error")
	}
}
