// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

// Package sqlstore is the database/sql persistence backend. The same schema
// and queries run on SQLite (modernc.org/sqlite, pure Go) and DuckDB.
//
// Instants are stored as BIGINT unix nanoseconds so both engines compare
// and order them identically.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "modernc.org/sqlite"

	"github.com/tomtom215/heimdall/internal/logging"
	"github.com/tomtom215/heimdall/internal/models"
	"github.com/tomtom215/heimdall/internal/store"
)

// Supported driver names.
const (
	DriverSQLite = "sqlite"
	DriverDuckDB = "duckdb"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		seq         BIGINT PRIMARY KEY,
		ts          TEXT NOT NULL,
		src         TEXT NOT NULL,
		dst         TEXT NOT NULL,
		protocol    TEXT NOT NULL,
		status      TEXT NOT NULL,
		message     TEXT NOT NULL,
		received_at BIGINT NOT NULL,
		flagged     BOOLEAN NOT NULL,
		rule_id     TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS nodes (
		address     TEXT PRIMARY KEY,
		mac         TEXT NOT NULL,
		os          TEXT NOT NULL,
		node_type   TEXT NOT NULL,
		trust_score INTEGER NOT NULL,
		status      TEXT NOT NULL,
		first_seen  BIGINT NOT NULL,
		last_seen   BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rules (
		id       TEXT PRIMARY KEY,
		address  TEXT NOT NULL UNIQUE,
		action   TEXT NOT NULL,
		reason   TEXT NOT NULL,
		added_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_rules_added_at ON rules(added_at)`,
}

// Config configures the SQL backend.
type Config struct {
	// Driver is DriverSQLite or DriverDuckDB.
	Driver string

	// DSN is the data source; ":memory:" for an in-memory database.
	DSN string
}

// Store implements store.Store over database/sql.
type Store struct {
	db     *sql.DB
	driver string

	// ruleMu serializes rule writes so the existence check and insert are
	// atomic on engines with optimistic concurrency.
	ruleMu sync.Mutex
}

var _ store.Store = (*Store)(nil)

// Open connects and creates the schema.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	switch cfg.Driver {
	case DriverSQLite, DriverDuckDB:
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", cfg.Driver)
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == DriverSQLite {
		// One connection: SQLite allows a single writer, and every pooled
		// connection to ":memory:" would otherwise see its own database.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, driver: cfg.Driver}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logging.Info().Str("driver", cfg.Driver).Str("dsn", cfg.DSN).Msg("SQL store opened")
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	for _, q := range schema {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// AppendEvent inserts one event row.
func (s *Store) AppendEvent(ctx context.Context, ev *models.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (seq, ts, src, dst, protocol, status, message, received_at, flagged, rule_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(ev.Seq), ev.Timestamp, ev.Src, ev.Dst, ev.Protocol, string(ev.Status),
		ev.Message, toNanos(ev.ReceivedAt), ev.Flagged, ev.RuleID,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// RecentEvents selects the newest rows by seq.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]models.Event, error) {
	events := []models.Event{}
	if limit <= 0 {
		return events, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, ts, src, dst, protocol, status, message, received_at, flagged, rule_id
		FROM events
		ORDER BY seq DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ev       models.Event
			seq      int64
			status   string
			received int64
		)
		if err := rows.Scan(&seq, &ev.Timestamp, &ev.Src, &ev.Dst, &ev.Protocol, &status,
			&ev.Message, &received, &ev.Flagged, &ev.RuleID); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Seq = uint64(seq)
		ev.Status = models.EventStatus(status)
		ev.ReceivedAt = fromNanos(received)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// LastEventSeq returns MAX(seq).
func (s *Store) LastEventSeq(ctx context.Context) (uint64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return uint64(seq), nil
}

// UpsertNode inserts or overwrites by address.
func (s *Store) UpsertNode(ctx context.Context, n *models.Node) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nodes (address, mac, os, node_type, trust_score, status, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (address) DO UPDATE SET
			mac = excluded.mac,
			os = excluded.os,
			node_type = excluded.node_type,
			trust_score = excluded.trust_score,
			status = excluded.status,
			first_seen = excluded.first_seen,
			last_seen = excluded.last_seen`,
		n.Address, n.MAC, n.OS, n.Type, n.TrustScore, string(n.Status), toNanos(n.FirstSeen), toNanos(n.LastSeen),
	)
	if err != nil {
		return fmt.Errorf("upsert node: %w", err)
	}
	return nil
}

// ListNodes returns nodes by last_seen descending.
func (s *Store) ListNodes(ctx context.Context) ([]models.Node, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT address, mac, os, node_type, trust_score, status, first_seen, last_seen
		FROM nodes
		ORDER BY last_seen DESC, address`)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	nodes := []models.Node{}
	for rows.Next() {
		var (
			n               models.Node
			status          string
			first, lastSeen int64
		)
		if err := rows.Scan(&n.Address, &n.MAC, &n.OS, &n.Type, &n.TrustScore, &status, &first, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		n.Status = models.NodeStatus(status)
		n.FirstSeen = fromNanos(first)
		n.LastSeen = fromNanos(lastSeen)
		nodes = append(nodes, n)
	}
	return nodes, rows.Err()
}

// AddRule inserts the rule unless its address is taken.
func (s *Store) AddRule(ctx context.Context, r *models.Rule) error {
	s.ruleMu.Lock()
	defer s.ruleMu.Unlock()

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rules WHERE address = ?`, r.Address).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check rule address: %w", err)
	}
	if exists > 0 {
		return models.ErrAlreadyExists
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rules (id, address, action, reason, added_at)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Address, string(r.Action), r.Reason, toNanos(r.AddedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.ErrAlreadyExists
		}
		return fmt.Errorf("insert rule: %w", err)
	}
	return nil
}

// DeleteRule deletes by id; zero affected rows is not an error.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	s.ruleMu.Lock()
	defer s.ruleMu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return nil
}

// ListRules returns rules by added_at descending.
func (s *Store) ListRules(ctx context.Context) ([]models.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, address, action, reason, added_at
		FROM rules
		ORDER BY added_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	rules := []models.Rule{}
	for rows.Next() {
		var (
			r       models.Rule
			action  string
			addedAt int64
		)
		if err := rows.Scan(&r.ID, &r.Address, &action, &r.Reason, &addedAt); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.Action = models.RuleAction(action)
		r.AddedAt = fromNanos(addedAt)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "constraint error")
}
