// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package websocket

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/heimdall/internal/logging"
	"github.com/tomtom215/heimdall/internal/metrics"
	"github.com/tomtom215/heimdall/internal/models"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled indicates the parent context was canceled.
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the context deadline was exceeded.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// DeliveryKind distinguishes the attach-time history batch from live events.
type DeliveryKind string

const (
	KindHistory DeliveryKind = "history"
	KindEvent   DeliveryKind = "event"
)

// Delivery is one unit handed to an observer. Live events are wrapped as a
// one-element slice so both kinds can be treated as sequences.
type Delivery struct {
	Kind   DeliveryKind
	Events []models.Event
}

const (
	DefaultHistorySize = 50
	DefaultBufferSize  = 256
)

// Config configures a Hub.
type Config struct {
	// HistorySize caps the batch delivered on attach.
	HistorySize int

	// BufferSize is the per-observer delivery queue length.
	BufferSize int

	// SendTimeout is how long Publish waits on a full queue before the
	// observer is detached. Zero means no wait.
	SendTimeout time.Duration
}

// Observer is a registered receiver of deliveries. Its channel is closed
// when it is detached, either explicitly or because it fell behind.
type Observer struct {
	id      uint64
	ch      chan Delivery
	dropped atomic.Bool
}

// ID returns the observer's attach order.
func (o *Observer) ID() uint64 { return o.id }

// C returns the delivery channel.
func (o *Observer) C() <-chan Delivery { return o.ch }

// Dropped reports whether the hub detached the observer for being too slow.
func (o *Observer) Dropped() bool { return o.dropped.Load() }

// Hub fans accepted events out to every attached observer and keeps the
// most recent events for new observers.
type Hub struct {
	cfg Config

	mu        sync.Mutex
	observers map[uint64]*Observer
	nextID    uint64

	// history is a ring of the last HistorySize events, oldest at head.
	history []models.Event
	head    int
	size    int
}

// NewHub creates a Hub. Zero config fields take their defaults.
func NewHub(cfg Config) *Hub {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	return &Hub{
		cfg:       cfg,
		observers: make(map[uint64]*Observer),
		history:   make([]models.Event, cfg.HistorySize),
	}
}

// Attach registers a new observer. The history batch is queued before the
// observer becomes visible to Publish, so it always arrives first and no
// event published after Attach returns is missed.
func (h *Hub) Attach() *Observer {
	h.mu.Lock()
	h.nextID++
	o := &Observer{
		id: h.nextID,
		ch: make(chan Delivery, h.cfg.BufferSize),
	}
	o.ch <- Delivery{Kind: KindHistory, Events: h.recentLocked()}
	h.observers[o.id] = o
	count := len(h.observers)
	h.mu.Unlock()

	metrics.BroadcastObservers.Set(float64(count))
	logging.Debug().Uint64("observer_id", o.id).Int("observers", count).Msg("Observer attached")
	return o
}

// Detach removes o and closes its channel. Detaching twice is a no-op.
func (h *Hub) Detach(o *Observer) {
	if o == nil {
		return
	}
	h.mu.Lock()
	removed := h.removeLocked(o)
	count := len(h.observers)
	h.mu.Unlock()

	if removed {
		metrics.BroadcastObservers.Set(float64(count))
		logging.Debug().Uint64("observer_id", o.id).Int("observers", count).Msg("Observer detached")
	}
}

// Publish records ev in the history and delivers it to every observer in
// attach order. An observer whose queue stays full past SendTimeout is
// detached; Publish never blocks longer than that per observer.
func (h *Hub) Publish(ev models.Event) {
	d := Delivery{Kind: KindEvent, Events: []models.Event{ev}}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.pushLocked(ev)

	ids := make([]uint64, 0, len(h.observers))
	for id := range h.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var dropped int
	for _, id := range ids {
		o := h.observers[id]
		if h.send(o, d) {
			metrics.BroadcastDeliveries.Inc()
			continue
		}
		o.dropped.Store(true)
		h.removeLocked(o)
		dropped++
		metrics.BroadcastDropped.Inc()
		logging.Warn().Uint64("observer_id", id).Uint64("seq", ev.Seq).Msg("Observer too slow, detached")
	}
	if dropped > 0 {
		metrics.BroadcastObservers.Set(float64(len(h.observers)))
	}
}

func (h *Hub) send(o *Observer, d Delivery) bool {
	select {
	case o.ch <- d:
		return true
	default:
	}
	if h.cfg.SendTimeout <= 0 {
		return false
	}
	t := time.NewTimer(h.cfg.SendTimeout)
	defer t.Stop()
	select {
	case o.ch <- d:
		return true
	case <-t.C:
		return false
	}
}

// Seed replaces the history with events, given most-recent-first as the
// gateway returns them.
func (h *Hub) Seed(events []models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.head, h.size = 0, 0
	n := min(len(events), h.cfg.HistorySize)
	for i := n - 1; i >= 0; i-- {
		h.pushLocked(events[i])
	}
}

// History returns the retained events, most recent first.
func (h *Hub) History() []models.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.recentLocked()
}

// ObserverCount returns the number of attached observers.
func (h *Hub) ObserverCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// RunWithContext blocks until ctx is done, then detaches every observer.
// The hub stays usable afterwards so a supervisor can restart it.
func (h *Hub) RunWithContext(ctx context.Context) error {
	<-ctx.Done()

	closed := h.closeAll()
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("observers_closed", closed).
		Msg("websocket hub stopped")
	return ctx.Err()
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

func (h *Hub) closeAll() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := len(h.observers)
	for _, o := range h.observers {
		h.removeLocked(o)
	}
	metrics.BroadcastObservers.Set(0)
	return n
}

func (h *Hub) removeLocked(o *Observer) bool {
	if _, ok := h.observers[o.id]; !ok {
		return false
	}
	delete(h.observers, o.id)
	close(o.ch)
	return true
}

func (h *Hub) pushLocked(ev models.Event) {
	capacity := len(h.history)
	if h.size < capacity {
		h.history[(h.head+h.size)%capacity] = ev
		h.size++
		return
	}
	h.history[h.head] = ev
	h.head = (h.head + 1) % capacity
}

func (h *Hub) recentLocked() []models.Event {
	out := make([]models.Event, h.size)
	capacity := len(h.history)
	for i := 0; i < h.size; i++ {
		out[i] = h.history[(h.head+h.size-1-i)%capacity]
	}
	return out
}
