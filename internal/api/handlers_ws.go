// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/heimdall/internal/logging"
	ws "github.com/tomtom215/heimdall/internal/websocket"
)

// WebSocket upgrades the connection and attaches it as an observer. The
// first frame is the history batch; every accepted event follows. The
// compatibility route writes bare event arrays.
// GET /api/v1/ws, GET /
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, r, http.StatusServiceUnavailable, CodeUnavailable, "WebSocket service unavailable", nil)
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Ctx(r.Context()).Debug().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	format := ws.FormatTyped
	if isLegacy(r) {
		format = ws.FormatBare
	}
	client := ws.NewClientWithFormat(h.hub, conn, format)
	logging.Ctx(r.Context()).Debug().Uint64("observer_id", client.ID()).Msg("WebSocket observer attached")
	client.Start()
}

func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin allows same-host requests, requests without an
// Origin (non-browser observers), and origins on the allow list.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(h.cfg.AllowedOrigins, "*") || slices.Contains(h.cfg.AllowedOrigins, origin) {
		return true
	}
	if origin == "http://"+r.Host || origin == "https://"+r.Host {
		return true
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}
