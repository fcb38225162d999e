// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/tomtom215/heimdall/internal/models"
)

// legacyRule is a rule under the field names the dashboard reads.
type legacyRule struct {
	ID      string    `json:"_id"`
	IP      string    `json:"ip"`
	Action  string    `json:"action"`
	Reason  string    `json:"reason"`
	AddedAt time.Time `json:"addedAt"`
}

// legacyNode is a node under the field names the dashboard reads. The
// address doubles as _id.
type legacyNode struct {
	ID         string    `json:"_id"`
	IP         string    `json:"ip"`
	MAC        string    `json:"mac"`
	OS         string    `json:"os"`
	Type       string    `json:"type"`
	TrustScore int       `json:"trustScore"`
	Status     string    `json:"status"`
	LastSeen   time.Time `json:"lastSeen"`
}

// legacyUpsertResult is the body of POST /api/nodes/update.
type legacyUpsertResult struct {
	Success bool       `json:"success"`
	Node    legacyNode `json:"node"`
}

func toLegacyRule(r models.Rule) legacyRule {
	return legacyRule{
		ID:      r.ID,
		IP:      r.Address,
		Action:  string(r.Action),
		Reason:  r.Reason,
		AddedAt: r.AddedAt,
	}
}

func toLegacyNode(n models.Node) legacyNode {
	return legacyNode{
		ID:         n.Address,
		IP:         n.Address,
		MAC:        n.MAC,
		OS:         n.OS,
		Type:       n.Type,
		TrustScore: n.TrustScore,
		Status:     titleStatus(n.Status),
		LastSeen:   n.LastSeen,
	}
}

// titleStatus renders ONLINE as Online.
func titleStatus(s models.NodeStatus) string {
	v := strings.ToLower(string(s))
	if v == "" {
		return v
	}
	return strings.ToUpper(v[:1]) + v[1:]
}

func presentRule(r *http.Request, rule models.Rule) interface{} {
	if isLegacy(r) {
		return toLegacyRule(rule)
	}
	return rule
}

func presentRules(r *http.Request, rules []models.Rule) interface{} {
	if !isLegacy(r) {
		return rules
	}
	out := make([]legacyRule, len(rules))
	for i, rule := range rules {
		out[i] = toLegacyRule(rule)
	}
	return out
}

func presentNodes(r *http.Request, nodes []models.Node) interface{} {
	if !isLegacy(r) {
		return nodes
	}
	out := make([]legacyNode, len(nodes))
	for i, n := range nodes {
		out[i] = toLegacyNode(n)
	}
	return out
}
