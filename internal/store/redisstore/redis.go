// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

// Package redisstore is the Redis persistence backend.
//
// Key layout under the configured prefix:
//
//	<p>:events          ZSET  member=seq score=seq
//	<p>:event:<seq>     STRING Event JSON
//	<p>:nodes           HASH  address -> Node JSON (sorted by last_seen on read)
//	<p>:rules           HASH  id -> Rule JSON
//	<p>:rules:address   HASH  address -> id (claimed by a Lua script with the body)
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	redis "github.com/redis/go-redis/v9"

	"github.com/tomtom215/heimdall/internal/logging"
	"github.com/tomtom215/heimdall/internal/models"
	"github.com/tomtom215/heimdall/internal/store"
)

// Config configures Redis access.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Store implements store.Store on Redis.
type Store struct {
	client *redis.Client
	prefix string
}

var _ store.Store = (*Store)(nil)

// Open connects and pings Redis.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "heimdall"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	logging.Info().Str("addr", cfg.Addr).Str("prefix", cfg.KeyPrefix).Msg("Redis store opened")
	return &Store{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix)}, nil
}

func (s *Store) eventsKey() string { return s.prefix + ":events" }
func (s *Store) eventKey(seq uint64) string { return s.prefix + ":event:" + strconv.FormatUint(seq, 10) }
func (s *Store) nodesKey() string { return s.prefix + ":nodes" }
func (s *Store) rulesKey() string { return s.prefix + ":rules" }
func (s *Store) ruleAddrKey() string { return s.prefix + ":rules:address" }

// AppendEvent writes the event body and its index entry in one MULTI.
func (s *Store) AppendEvent(ctx context.Context, ev *models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.eventKey(ev.Seq), data, 0)
		pipe.ZAdd(ctx, s.eventsKey(), redis.Z{Score: float64(ev.Seq), Member: strconv.FormatUint(ev.Seq, 10)})
		return nil
	})
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// RecentEvents reads the top of the sequence index and fetches bodies.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]models.Event, error) {
	events := []models.Event{}
	if limit <= 0 {
		return events, nil
	}

	members, err := s.client.ZRevRange(ctx, s.eventsKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read event index: %w", err)
	}
	if len(members) == 0 {
		return events, nil
	}

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = s.prefix + ":event:" + m
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}

	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var ev models.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			return nil, fmt.Errorf("unmarshal event: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}

// LastEventSeq reads the highest score in the sequence index.
func (s *Store) LastEventSeq(ctx context.Context) (uint64, error) {
	top, err := s.client.ZRevRangeWithScores(ctx, s.eventsKey(), 0, 0).Result()
	if err != nil {
		return 0, fmt.Errorf("read event index: %w", err)
	}
	if len(top) == 0 {
		return 0, nil
	}
	return uint64(top[0].Score), nil
}

// UpsertNode overwrites the node's hash field.
func (s *Store) UpsertNode(ctx context.Context, n *models.Node) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal node: %w", err)
	}
	if err := s.client.HSet(ctx, s.nodesKey(), n.Address, data).Err(); err != nil {
		return fmt.Errorf("upsert node: %w", err)
	}
	return nil
}

// ListNodes returns every node, most recently seen first.
func (s *Store) ListNodes(ctx context.Context) ([]models.Node, error) {
	all, err := s.client.HGetAll(ctx, s.nodesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("read nodes: %w", err)
	}

	nodes := make([]models.Node, 0, len(all))
	for _, raw := range all {
		var n models.Node
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			return nil, fmt.Errorf("unmarshal node: %w", err)
		}
		nodes = append(nodes, n)
	}
	slices.SortFunc(nodes, func(a, b models.Node) int {
		if c := b.LastSeen.Compare(a.LastSeen); c != 0 {
			return c
		}
		return strings.Compare(a.Address, b.Address)
	})
	return nodes, nil
}

// addRuleScript claims the address and writes the rule body in one atomic
// step. KEYS[1] is the address index, KEYS[2] the rule hash; ARGV is
// address, id, body. Returns 0 when the address is taken.
var addRuleScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 0 then
	return 0
end
redis.call('HSET', KEYS[2], ARGV[2], ARGV[3])
return 1
`)

// AddRule claims the address and stores the rule atomically.
func (s *Store) AddRule(ctx context.Context, r *models.Rule) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal rule: %w", err)
	}

	added, err := addRuleScript.Run(ctx, s.client,
		[]string{s.ruleAddrKey(), s.rulesKey()},
		r.Address, r.ID, string(data),
	).Int()
	if err != nil {
		return fmt.Errorf("add rule: %w", err)
	}
	if added == 0 {
		return models.ErrAlreadyExists
	}
	return nil
}

// DeleteRule removes the rule and releases its address if still owned by it.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	raw, err := s.client.HGet(ctx, s.rulesKey(), id).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read rule: %w", err)
	}

	var r models.Rule
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return fmt.Errorf("unmarshal rule: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		owner, err := tx.HGet(ctx, s.ruleAddrKey(), r.Address).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, s.rulesKey(), id)
			if owner == id {
				pipe.HDel(ctx, s.ruleAddrKey(), r.Address)
			}
			return nil
		})
		return err
	}, s.ruleAddrKey())
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return nil
}

// ListRules returns every rule, newest first.
func (s *Store) ListRules(ctx context.Context) ([]models.Rule, error) {
	all, err := s.client.HGetAll(ctx, s.rulesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}

	rules := make([]models.Rule, 0, len(all))
	for _, raw := range all {
		var r models.Rule
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("unmarshal rule: %w", err)
		}
		rules = append(rules, r)
	}
	slices.SortFunc(rules, func(a, b models.Rule) int {
		if c := b.AddedAt.Compare(a.AddedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return rules, nil
}

// Ping pings the server.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}
