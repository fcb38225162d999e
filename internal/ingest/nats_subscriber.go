// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/heimdall/internal/logging"
	"github.com/tomtom215/heimdall/internal/metrics"
	"github.com/tomtom215/heimdall/internal/models"
)

// DefaultSubject is the subject producers publish events on.
const DefaultSubject = "heimdall.events"

// Submitter accepts raw events. *Coordinator implements it.
type Submitter interface {
	Submit(ctx context.Context, raw models.RawEvent) (models.Event, error)
}

// NATSConfig configures the NATS transport.
type NATSConfig struct {
	URL        string
	Subject    string
	QueueGroup string

	// SubmitTimeout bounds each message's submit. Messages are handled with
	// their own context so in-flight work finishes during drain.
	SubmitTimeout time.Duration
}

// Reply is sent back on request/reply messages.
type Reply struct {
	Success bool   `json:"success"`
	Seq     uint64 `json:"seq,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NATSSubscriber feeds events published on NATS into a Submitter. It
// implements suture.Service.
type NATSSubscriber struct {
	submitter Submitter
	cfg       NATSConfig
}

// NewNATSSubscriber creates a subscriber. Empty subject and queue group take
// defaults.
func NewNATSSubscriber(submitter Submitter, cfg NATSConfig) *NATSSubscriber {
	if cfg.Subject == "" {
		cfg.Subject = DefaultSubject
	}
	if cfg.QueueGroup == "" {
		cfg.QueueGroup = "heimdall"
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = 5 * time.Second
	}
	return &NATSSubscriber{submitter: submitter, cfg: cfg}
}

// Serve connects, subscribes and blocks until ctx is canceled, then drains
// the connection so in-flight messages complete.
func (s *NATSSubscriber) Serve(ctx context.Context) error {
	nc, err := natsgo.Connect(s.cfg.URL,
		natsgo.Name("heimdall-ingest"),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2*time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logging.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(c *natsgo.Conn) {
			logging.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	sub, err := nc.QueueSubscribe(s.cfg.Subject, s.cfg.QueueGroup, s.handle)
	if err != nil {
		nc.Close()
		return fmt.Errorf("subscribe %s: %w", s.cfg.Subject, err)
	}
	logging.Info().
		Str("subject", sub.Subject).
		Str("queue", sub.Queue).
		Msg("NATS ingest subscriber started")

	<-ctx.Done()

	if err := nc.Drain(); err != nil {
		logging.Warn().Err(err).Msg("NATS drain failed")
		nc.Close()
	}
	logging.Info().Msg("NATS ingest subscriber stopped")
	return ctx.Err()
}

// String names the service for the supervisor.
func (s *NATSSubscriber) String() string {
	return "nats-ingest"
}

func (s *NATSSubscriber) handle(msg *natsgo.Msg) {
	ctx, cancel := context.WithTimeout(logging.ContextWithNewCorrelationID(context.Background()), s.cfg.SubmitTimeout)
	defer cancel()

	var raw models.RawEvent
	if err := json.Unmarshal(msg.Data, &raw); err != nil {
		metrics.NATSMessages.WithLabelValues("parse_error").Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("subject", msg.Subject).Msg("Malformed NATS event")
		s.reply(ctx, msg, Reply{Error: "malformed event: " + err.Error()})
		return
	}

	ev, err := s.submitter.Submit(ctx, raw)
	switch {
	case err == nil:
		metrics.NATSMessages.WithLabelValues("accepted").Inc()
		s.reply(ctx, msg, Reply{Success: true, Seq: ev.Seq})
	case errors.Is(err, models.ErrInvalidEvent):
		metrics.NATSMessages.WithLabelValues("invalid").Inc()
		s.reply(ctx, msg, Reply{Error: err.Error()})
	default:
		metrics.NATSMessages.WithLabelValues("failed").Inc()
		s.reply(ctx, msg, Reply{Error: err.Error()})
	}
}

func (s *NATSSubscriber) reply(ctx context.Context, msg *natsgo.Msg, r Reply) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := msg.Respond(data); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("NATS reply failed")
	}
}
