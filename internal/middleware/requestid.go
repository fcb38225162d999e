// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tomtom215/heimdall/internal/logging"
)

const (
	RequestIDHeader     = "X-Request-ID"
	CorrelationIDHeader = "X-Correlation-ID"

	maxIDLength = 64
)

// RequestID assigns a request ID (a UUID unless the caller sent one) and a
// correlation ID, echoes both as response headers and stores them in the
// request context for logging.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := cleanID(r.Header.Get(RequestIDHeader))
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		if correlationID := cleanID(r.Header.Get(CorrelationIDHeader)); correlationID != "" {
			ctx = logging.ContextWithCorrelationID(ctx, correlationID)
		} else {
			ctx = logging.ContextWithNewCorrelationID(ctx)
		}

		w.Header().Set(RequestIDHeader, requestID)
		w.Header().Set(CorrelationIDHeader, logging.CorrelationIDFromContext(ctx))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// cleanID drops caller-supplied IDs that are too long or contain anything
// outside [A-Za-z0-9-_.], so they cannot forge log lines.
func cleanID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > maxIDLength {
		return ""
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			return ""
		}
	}
	return id
}
