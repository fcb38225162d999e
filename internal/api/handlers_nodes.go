// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/heimdall/internal/logging"
	"github.com/tomtom215/heimdall/internal/models"
	"github.com/tomtom215/heimdall/internal/registry"
)

// NodeUpsertRequest reports a sighting. IP is the legacy name for Address.
type NodeUpsertRequest struct {
	Address string `json:"address"`
	IP      string `json:"ip"`
	OS      string `json:"os"`
	MAC     string `json:"mac"`
	Type    string `json:"type"`
}

// PenalizeRequest lowers a node's trust. IP and Penalty are legacy names.
type PenalizeRequest struct {
	Address string `json:"address"`
	IP      string `json:"ip"`
	Amount  *int   `json:"amount"`
	Penalty *int   `json:"penalty"`
}

// PenalizeResult reports the outcome of a penalty.
type PenalizeResult struct {
	Address string       `json:"address"`
	Known   bool         `json:"known"`
	Node    *models.Node `json:"node,omitempty"`
}

// QuickBlockRequest is the optional body of a quick block.
type QuickBlockRequest struct {
	Reason string `json:"reason"`
}

// QuickBlockResult reports both steps of a quick block. The rule is always
// present; the penalty may have failed independently.
type QuickBlockResult struct {
	Rule         models.Rule  `json:"rule"`
	Penalized    bool         `json:"penalized"`
	Node         *models.Node `json:"node,omitempty"`
	PenaltyError string       `json:"penalty_error,omitempty"`
}

// ListNodes returns every node, most recently seen first.
// GET /api/v1/nodes, GET /api/nodes
func (h *Handler) ListNodes(w http.ResponseWriter, r *http.Request) {
	nodes := h.nodes.List()
	respondData(w, r, http.StatusOK, presentNodes(r, nodes), len(nodes))
}

// UpsertNode records a node sighting.
// POST /api/v1/nodes, POST /api/nodes/update
func (h *Handler) UpsertNode(w http.ResponseWriter, r *http.Request) {
	var req NodeUpsertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, err)
		return
	}

	node, err := h.nodes.Upsert(r.Context(), registry.Observation{
		Address: strings.TrimSpace(firstNonEmpty(req.Address, req.IP)),
		OS:      strings.TrimSpace(req.OS),
		MAC:     strings.TrimSpace(req.MAC),
		Type:    strings.TrimSpace(req.Type),
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if isLegacy(r) {
		respondData(w, r, http.StatusOK, legacyUpsertResult{Success: true, Node: toLegacyNode(node)})
		return
	}
	respondData(w, r, http.StatusOK, node)
}

// PenalizeNode lowers a node's trust score. Unknown addresses succeed with
// known=false.
// POST /api/v1/nodes/penalize, POST /api/nodes/penalize
func (h *Handler) PenalizeNode(w http.ResponseWriter, r *http.Request) {
	var req PenalizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, err)
		return
	}

	amount := req.Amount
	if amount == nil {
		amount = req.Penalty
	}
	if amount == nil {
		respondError(w, r, http.StatusBadRequest, CodeValidationFailed, "amount is required",
			map[string]string{"amount": "amount is required"})
		return
	}

	address := strings.TrimSpace(firstNonEmpty(req.Address, req.IP))
	node, known, err := h.nodes.Penalize(r.Context(), address, *amount)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	if isLegacy(r) {
		respondData(w, r, http.StatusOK, map[string]bool{"success": true})
		return
	}

	result := PenalizeResult{Address: address, Known: known}
	if known {
		result.Node = &node
	}
	respondData(w, r, http.StatusOK, result)
}

// QuickBlock adds a DENY rule for the address and then penalizes the node.
// The steps are independent: if the penalty fails the rule stays and the
// response is 207 with the penalty error.
// POST /api/v1/nodes/{address}/block
func (h *Handler) QuickBlock(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(chi.URLParam(r, "address"))

	var req QuickBlockRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		respondErr(w, r, err)
		return
	}

	rule, err := h.rules.AddWithAction(r.Context(), address, strings.TrimSpace(req.Reason), models.ActionDeny)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	result := QuickBlockResult{Rule: rule}
	node, known, err := h.nodes.Penalize(r.Context(), address, h.cfg.QuickBlockPenalty)
	if err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Str("address", address).Str("rule_id", rule.ID).
			Msg("Quick block added rule but penalty failed")
		result.PenaltyError = err.Error()
		respondData(w, r, http.StatusMultiStatus, result)
		return
	}
	if known {
		result.Penalized = true
		result.Node = &node
	}
	respondData(w, r, http.StatusOK, result)
}
