// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package api

import (
	"net/http"
	"strconv"

	"github.com/tomtom215/heimdall/internal/models"
)

// SubmitEvent accepts an event from the producer.
// POST /api/v1/events, POST /api/log
func (h *Handler) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	var raw models.RawEvent
	if err := decodeJSON(w, r, &raw); err != nil {
		respondErr(w, r, err)
		return
	}

	ev, err := h.ingest.Submit(r.Context(), raw)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, ev)
}

// RecentEvents lists the most recent events, newest first.
// GET /api/v1/events?limit=N
func (h *Handler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := h.cfg.DefaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > h.cfg.MaxEventLimit {
			respondError(w, r, http.StatusBadRequest, CodeValidationFailed,
				"limit must be between 1 and "+strconv.Itoa(h.cfg.MaxEventLimit),
				map[string]string{"limit": v})
			return
		}
		limit = n
	}

	events, err := h.events.RecentEvents(r.Context(), limit)
	if err != nil {
		respondErr(w, r, models.WrapStorage("recent events", err))
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	respondData(w, r, http.StatusOK, events, len(events))
}
