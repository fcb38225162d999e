// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

// Package metrics holds Heimdall's Prometheus collectors, registered on the
// default registry and exposed at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion

	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heimdall_events_ingested_total",
			Help: "Events persisted and published, by status",
		},
		[]string{"status"},
	)

	EventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heimdall_events_rejected_total",
			Help: "Events refused by the coordinator, by reason",
		},
		[]string{"reason"}, // invalid, blocked_source, storage
	)

	EventsFlagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heimdall_events_flagged_total",
			Help: "Events whose source matched an active DENY rule",
		},
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "heimdall_ingest_duration_seconds",
			Help:    "Time from submit to publish completion",
			Buckets: prometheus.DefBuckets,
		},
	)

	CorrelationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heimdall_correlation_failures_total",
			Help: "Best-effort registry side effects that failed after ingestion",
		},
		[]string{"action"}, // discover, penalize
	)

	NATSMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heimdall_nats_messages_total",
			Help: "Events received over NATS, by outcome",
		},
		[]string{"outcome"}, // accepted, invalid, failed, parse_error
	)

	// Broadcast

	BroadcastObservers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "heimdall_broadcast_observers",
			Help: "Currently attached observers",
		},
	)

	BroadcastDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heimdall_broadcast_deliveries_total",
			Help: "Live events enqueued to observers",
		},
	)

	BroadcastDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heimdall_broadcast_observers_dropped_total",
			Help: "Observers detached because they could not keep up",
		},
	)

	// Registry and rules

	NodesTracked = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "heimdall_nodes_tracked",
			Help: "Nodes held by the registry",
		},
	)

	NodesPenalized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heimdall_nodes_penalized_total",
			Help: "Trust penalties applied to known nodes",
		},
	)

	NodesMarkedOffline = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "heimdall_nodes_marked_offline_total",
			Help: "Nodes transitioned to OFFLINE by the sweeper",
		},
	)

	RulesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "heimdall_rules_active",
			Help: "Rules currently held by the rule store",
		},
	)

	// Storage

	StorageOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "heimdall_storage_op_duration_seconds",
			Help:    "Persistence gateway call latency",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"op", "backend"},
	)

	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heimdall_storage_errors_total",
			Help: "Persistence gateway failures, by op and kind",
		},
		[]string{"op", "kind"}, // kind: timeout, breaker_open, backend
	)

	StorageBreakerOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "heimdall_storage_breaker_open",
			Help: "1 while the storage circuit breaker is open",
		},
	)

	// API

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "heimdall_api_requests_total",
			Help: "HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "heimdall_api_request_duration_seconds",
			Help:    "HTTP request latency by method and route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "heimdall_api_active_requests",
			Help: "In-flight HTTP requests",
		},
	)
)

// RecordAPIRequest records one completed request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordIngest records an accepted event and its end-to-end latency.
func RecordIngest(status string, flagged bool, duration time.Duration) {
	EventsIngested.WithLabelValues(status).Inc()
	if flagged {
		EventsFlagged.Inc()
	}
	IngestDuration.Observe(duration.Seconds())
}
