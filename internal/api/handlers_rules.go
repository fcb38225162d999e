// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/heimdall/internal/models"
)

// RuleRequest adds a rule. IP is the legacy name for Address; Action
// defaults to DENY.
type RuleRequest struct {
	Address string `json:"address"`
	IP      string `json:"ip"`
	Reason  string `json:"reason"`
	Action  string `json:"action"`
}

// ListRules returns every rule, newest first.
// GET /api/v1/rules, GET /api/firewall
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules := h.rules.List()
	respondData(w, r, http.StatusOK, presentRules(r, rules), len(rules))
}

// AddRule adds a rule. A second rule for the same address is a 409.
// POST /api/v1/rules, POST /api/firewall
func (h *Handler) AddRule(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondErr(w, r, err)
		return
	}

	action := models.RuleAction(strings.ToUpper(strings.TrimSpace(req.Action)))
	rule, err := h.rules.AddWithAction(r.Context(),
		strings.TrimSpace(firstNonEmpty(req.Address, req.IP)),
		strings.TrimSpace(req.Reason),
		action,
	)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, presentRule(r, rule))
}

// RemoveRule deletes a rule. Unknown ids succeed.
// DELETE /api/v1/rules/{id}, DELETE /api/firewall/{id}
func (h *Handler) RemoveRule(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.rules.Remove(r.Context(), id); err != nil {
		respondErr(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, map[string]string{"id": id, "message": "Rule deleted successfully"})
}
