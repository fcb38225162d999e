// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

// Package api exposes the ingestion engine over HTTP and WebSocket.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/heimdall/internal/middleware"
)

// Router wires handlers and middleware into a chi mux.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a Router.
func NewRouter(handler *Handler, mw *ChiMiddleware) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, chiMiddleware: mw}
}

// Setup builds the route tree.
func (router *Router) Setup() http.Handler {
	h := router.handler
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())
	r.Use(middleware.PrometheusMetrics)

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitCustom(RateLimitHealth))
		r.Use(APISecurityHeaders())
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(APISecurityHeaders())

		r.With(router.chiMiddleware.RateLimitCustom(RateLimitIngest)).Post("/events", h.SubmitEvent)
		r.With(router.chiMiddleware.RateLimitCustom(RateLimitWebSocket)).Get("/ws", h.WebSocket)

		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimit())
			r.Get("/events", h.RecentEvents)

			r.Get("/nodes", h.ListNodes)
			r.Post("/nodes", h.UpsertNode)
			r.Post("/nodes/penalize", h.PenalizeNode)
			r.Post("/nodes/{address}/block", h.QuickBlock)

			r.Get("/rules", h.ListRules)
			r.Post("/rules", h.AddRule)
			r.Delete("/rules/{id}", h.RemoveRule)
		})
	})

	// Routes used by the existing producer and dashboard.
	r.Group(func(r chi.Router) {
		r.Use(withLegacyFormat)
		r.With(router.chiMiddleware.RateLimitCustom(RateLimitIngest)).Post("/api/log", h.SubmitEvent)
		r.With(router.chiMiddleware.RateLimitCustom(RateLimitWebSocket)).Get("/", h.WebSocket)

		r.Group(func(r chi.Router) {
			r.Use(router.chiMiddleware.RateLimit())
			r.Get("/api/firewall", h.ListRules)
			r.Post("/api/firewall", h.AddRule)
			r.Delete("/api/firewall/{id}", h.RemoveRule)
			r.Get("/api/nodes", h.ListNodes)
			r.Post("/api/nodes/update", h.UpsertNode)
			r.Post("/api/nodes/penalize", h.PenalizeNode)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, CodeNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	return r
}
