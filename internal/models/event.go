// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package models

import "time"

// EventStatus is the verdict attached to an event by the producer.
type EventStatus string

const (
	StatusAllowed EventStatus = "ALLOWED"
	StatusBlocked EventStatus = "BLOCKED"
)

// Valid reports whether s is a known status.
func (s EventStatus) Valid() bool {
	return s == StatusAllowed || s == StatusBlocked
}

// Event is a single observed network flow.
//
// Seq is assigned by the ingestion coordinator and orders events by arrival.
// Timestamp is the producer's clock and is never used for ordering.
type Event struct {
	Seq        uint64      `json:"seq"`
	Timestamp  string      `json:"timestamp"`
	Src        string      `json:"src"`
	Dst        string      `json:"dst"`
	Protocol   string      `json:"protocol"`
	Status     EventStatus `json:"status"`
	Message    string      `json:"message,omitempty"`
	ReceivedAt time.Time   `json:"received_at"`

	// Flagged is set when Src matched an active DENY rule at ingestion.
	Flagged bool   `json:"flagged,omitempty"`
	RuleID  string `json:"rule_id,omitempty"`
}

// RawEvent is an event as submitted by a producer, before validation.
type RawEvent struct {
	Timestamp string `json:"timestamp"`
	Src       string `json:"src" validate:"required,max=255"`
	Dst       string `json:"dst" validate:"required,max=255"`
	Protocol  string `json:"protocol" validate:"required,max=32"`
	Status    string `json:"status" validate:"required,oneof=ALLOWED BLOCKED"`
	Message   string `json:"message" validate:"max=4096"`
}
