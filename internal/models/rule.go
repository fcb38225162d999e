// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package models

import "time"

// RuleAction is what the enforcement agent should do with matching traffic.
type RuleAction string

const (
	ActionAllow RuleAction = "ALLOW"
	ActionDeny  RuleAction = "DENY"
)

// Valid reports whether a is a known action.
func (a RuleAction) Valid() bool {
	return a == ActionAllow || a == ActionDeny
}

// DefaultRuleReason is recorded when an operator gives no reason.
const DefaultRuleReason = "Manual Admin Block"

// Rule is an administrative entry for a single address. At most one rule
// exists per address.
type Rule struct {
	ID      string     `json:"id"`
	Address string     `json:"address"`
	Action  RuleAction `json:"action"`
	Reason  string     `json:"reason"`
	AddedAt time.Time  `json:"added_at"`
}
