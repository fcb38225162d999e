// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package services

import "context"

// ContextHub is satisfied by *websocket.Hub.
type ContextHub interface {
	RunWithContext(ctx context.Context) error
}

// HubService supervises the event hub. Stopping it closes every observer
// channel; the hub itself stays usable after a restart.
type HubService struct {
	hub  ContextHub
	name string
}

// NewHubService wraps hub.
func NewHubService(hub ContextHub) *HubService {
	return &HubService{hub: hub, name: "event-hub"}
}

// Serve implements suture.Service.
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.RunWithContext(ctx)
}

func (s *HubService) String() string {
	return s.name
}
