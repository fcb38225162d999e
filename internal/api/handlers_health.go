// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package api

import (
	"context"
	"net/http"
	"time"
)

// HealthStatus is the body of the health endpoints.
type HealthStatus struct {
	Status    string  `json:"status"`
	Uptime    float64 `json:"uptime_seconds"`
	Storage   string  `json:"storage,omitempty"`
	Observers int     `json:"observers"`
}

// HealthLive reports that the process is up, regardless of dependencies.
// GET /api/v1/health/live
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, HealthStatus{
		Status:    "alive",
		Uptime:    time.Since(h.startTime).Seconds(),
		Observers: h.observerCount(),
	})
}

// HealthReady reports 200 only when the persistence gateway answers.
// GET /api/v1/health/ready
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "ready",
		Uptime:    time.Since(h.startTime).Seconds(),
		Storage:   "ok",
		Observers: h.observerCount(),
	}

	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), h.cfg.ReadyTimeout)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			status.Status = "not_ready"
			status.Storage = "unreachable"
			respondData(w, r, http.StatusServiceUnavailable, status)
			return
		}
	}
	respondData(w, r, http.StatusOK, status)
}

func (h *Handler) observerCount() int {
	if h.hub == nil {
		return 0
	}
	return h.hub.ObserverCount()
}
