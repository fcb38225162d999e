// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

/*
Package middleware provides HTTP middleware shared by every route.

  - RequestID: honors or assigns X-Request-ID and X-Correlation-ID and puts
    both into the logging context, so logging.Ctx(r.Context()) tags lines.
  - PrometheusMetrics: request count, latency and in-flight gauge, labeled
    by the chi route pattern rather than the raw path.

Both wrap the response writer with chi's WrapResponseWriter, which keeps
http.Hijacker available for WebSocket upgrades.
*/
package middleware
