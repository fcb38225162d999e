// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package services

import (
	"context"
	"time"

	"github.com/tomtom215/heimdall/internal/logging"
)

// PeriodicService runs task every interval. A failing task is logged and
// retried on the next tick; it never restarts the service.
type PeriodicService struct {
	name     string
	interval time.Duration
	task     func(ctx context.Context) error
}

// NewPeriodicService creates a ticker-driven service. interval must be positive.
func NewPeriodicService(name string, interval time.Duration, task func(ctx context.Context) error) *PeriodicService {
	return &PeriodicService{name: name, interval: interval, task: task}
}

// Serve implements suture.Service.
func (s *PeriodicService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.task(ctx); err != nil && ctx.Err() == nil {
				logging.Warn().Err(err).Str("service", s.name).Msg("Periodic task failed")
			}
		}
	}
}

func (s *PeriodicService) String() string {
	return s.name
}

// GarbageCollector is satisfied by the persistence gateway.
type GarbageCollector interface {
	RunGC(ctx context.Context) error
}

// NewStoreGCService reclaims BadgerDB value log space every interval.
func NewStoreGCService(gc GarbageCollector, interval time.Duration) *PeriodicService {
	return NewPeriodicService("store-gc", interval, gc.RunGC)
}

// OfflineSweeper is satisfied by *registry.Registry.
type OfflineSweeper interface {
	SweepOffline(ctx context.Context, olderThan time.Duration) (int, error)
}

// NewNodeSweeperService marks nodes unseen for offlineAfter as OFFLINE every interval.
func NewNodeSweeperService(sweeper OfflineSweeper, offlineAfter, interval time.Duration) *PeriodicService {
	return NewPeriodicService("node-sweeper", interval, func(ctx context.Context) error {
		_, err := sweeper.SweepOffline(ctx, offlineAfter)
		return err
	})
}
