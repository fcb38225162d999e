// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

// Package badgerstore is the embedded BadgerDB persistence backend.
//
// Key layout:
//
//	event:<8-byte big-endian seq>  -> Event JSON
//	node:<address>                 -> Node JSON
//	rule:<id>                      -> Rule JSON
//	ruleaddr:<address>             -> rule id
//
// Big-endian sequence keys sort numerically, so the newest events are read
// with a reverse iterator.
package badgerstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/heimdall/internal/logging"
	"github.com/tomtom215/heimdall/internal/models"
	"github.com/tomtom215/heimdall/internal/store"
)

const (
	prefixEvent    = "event:"
	prefixNode     = "node:"
	prefixRule     = "rule:"
	prefixRuleAddr = "ruleaddr:"

	gcDiscardRatio = 0.5
	maxTxnRetries  = 3
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("badger store closed")

// Config configures the badger backend.
type Config struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps all data in memory. Used by tests.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool
}

// Store implements store.Store on BadgerDB.
type Store struct {
	db *badger.DB
}

var (
	_ store.Store            = (*Store)(nil)
	_ store.GarbageCollector = (*Store)(nil)
)

// Open opens (or creates) the database.
func Open(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Bool("in_memory", cfg.InMemory).Msg("Badger store opened")
	return &Store{db: db}, nil
}

func eventKey(seq uint64) []byte {
	key := make([]byte, len(prefixEvent)+8)
	copy(key, prefixEvent)
	binary.BigEndian.PutUint64(key[len(prefixEvent):], seq)
	return key
}

func seqFromKey(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(prefixEvent):])
}

// update runs fn in a read-write transaction. The transaction is discarded
// instead of committed once ctx is done, so a caller that gave up never
// sees its write land later.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := fn(txn); err != nil {
			return err
		}
		return ctx.Err()
	})
}

// AppendEvent writes ev under its sequence key.
func (s *Store) AppendEvent(ctx context.Context, ev *models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(eventKey(ev.Seq), data))
	})
}

// RecentEvents walks the event prefix backwards.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]models.Event, error) {
	if limit <= 0 {
		return []models.Event{}, nil
	}

	events := make([]models.Event, 0, limit)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixEvent)
		for it.Seek(append([]byte(prefixEvent), 0xFF)); it.ValidForPrefix(prefix) && len(events) < limit; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var ev models.Event
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &ev)
			}); err != nil {
				return fmt.Errorf("unmarshal event: %w", err)
			}
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// LastEventSeq reads the key of the newest event.
func (s *Store) LastEventSeq(_ context.Context) (uint64, error) {
	var seq uint64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixEvent)
		it.Seek(append([]byte(prefixEvent), 0xFF))
		if it.ValidForPrefix(prefix) {
			seq = seqFromKey(it.Item().Key())
		}
		return nil
	})
	return seq, err
}

// UpsertNode replaces the node record.
func (s *Store) UpsertNode(ctx context.Context, node *models.Node) error {
	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("marshal node: %w", err)
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		return txn.Set([]byte(prefixNode+node.Address), data)
	})
}

// ListNodes returns every node ordered by LastSeen descending.
func (s *Store) ListNodes(ctx context.Context) ([]models.Node, error) {
	nodes := []models.Node{}
	err := scanPrefix(ctx, s.db, prefixNode, func(val []byte) error {
		var n models.Node
		if err := json.Unmarshal(val, &n); err != nil {
			return fmt.Errorf("unmarshal node: %w", err)
		}
		nodes = append(nodes, n)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(nodes, func(a, b models.Node) int {
		return b.LastSeen.Compare(a.LastSeen)
	})
	return nodes, nil
}

// AddRule writes the rule and its address index in one transaction.
// Concurrent adds for one address conflict at commit; the retry then sees
// the winner's index entry.
func (s *Store) AddRule(ctx context.Context, rule *models.Rule) error {
	data, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("marshal rule: %w", err)
	}

	addrKey := []byte(prefixRuleAddr + rule.Address)
	for attempt := 0; ; attempt++ {
		err = s.update(ctx, func(txn *badger.Txn) error {
			_, err := txn.Get(addrKey)
			if err == nil {
				return models.ErrAlreadyExists
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("read rule index: %w", err)
			}
			if err := txn.Set([]byte(prefixRule+rule.ID), data); err != nil {
				return err
			}
			return txn.Set(addrKey, []byte(rule.ID))
		})
		if errors.Is(err, badger.ErrConflict) && attempt < maxTxnRetries {
			continue
		}
		return err
	}
}

// DeleteRule removes the rule and its index entry. Unknown ids are ignored.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	for attempt := 0; ; attempt++ {
		err := s.update(ctx, func(txn *badger.Txn) error {
			item, err := txn.Get([]byte(prefixRule + id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read rule: %w", err)
			}

			var rule models.Rule
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rule)
			}); err != nil {
				return fmt.Errorf("unmarshal rule: %w", err)
			}

			if err := txn.Delete([]byte(prefixRule + id)); err != nil {
				return err
			}
			addrKey := []byte(prefixRuleAddr + rule.Address)
			idx, err := txn.Get(addrKey)
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read rule index: %w", err)
			}
			owner, err := idx.ValueCopy(nil)
			if err != nil {
				return err
			}
			if string(owner) == id {
				return txn.Delete(addrKey)
			}
			return nil
		})
		if errors.Is(err, badger.ErrConflict) && attempt < maxTxnRetries {
			continue
		}
		return err
	}
}

// ListRules returns every rule ordered by AddedAt descending.
func (s *Store) ListRules(ctx context.Context) ([]models.Rule, error) {
	rules := []models.Rule{}
	err := scanPrefix(ctx, s.db, prefixRule, func(val []byte) error {
		var r models.Rule
		if err := json.Unmarshal(val, &r); err != nil {
			return fmt.Errorf("unmarshal rule: %w", err)
		}
		rules = append(rules, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(rules, func(a, b models.Rule) int {
		return b.AddedAt.Compare(a.AddedAt)
	})
	return rules, nil
}

// Ping fails once the database is closed.
func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return ErrClosed
	}
	return nil
}

// RunGC reclaims value log space until nothing is left to rewrite.
func (s *Store) RunGC(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.RunValueLogGC(gcDiscardRatio)
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("run GC: %w", err)
		}
	}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// scanPrefix calls fn for every value under prefix. "rule:" never matches
// "ruleaddr:" keys because the colon differs from 'a'.
func scanPrefix(ctx context.Context, db *badger.DB, prefix string, fn func(val []byte) error) error {
	return db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}
