// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package models

import (
	"strings"
	"time"
)

// NodeStatus is the liveness of a node.
type NodeStatus string

const (
	NodeOnline  NodeStatus = "ONLINE"
	NodeOffline NodeStatus = "OFFLINE"
)

const (
	// MaxTrustScore is the score of a newly discovered node.
	MaxTrustScore = 100

	// UnknownAttr is the placeholder for an os or mac not yet fingerprinted.
	UnknownAttr = "Unknown"

	// DefaultNodeType is the type given to nodes discovered from traffic.
	DefaultNodeType = "Device"
)

// Node is a network endpoint keyed by Address.
type Node struct {
	Address    string     `json:"address"`
	MAC        string     `json:"mac"`
	OS         string     `json:"os"`
	Type       string     `json:"type"`
	TrustScore int        `json:"trust_score"`
	Status     NodeStatus `json:"status"`
	FirstSeen  time.Time  `json:"first_seen"`
	LastSeen   time.Time  `json:"last_seen"`
}

// KnownAttr reports whether v carries real information.
func KnownAttr(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && v != UnknownAttr
}
