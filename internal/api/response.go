// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/heimdall/internal/logging"
	"github.com/tomtom215/heimdall/internal/models"
)

// Response is the envelope for every /api/v1 response.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
	Error   *ErrorBody  `json:"error,omitempty"`
	Meta    Meta        `json:"meta"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// Meta carries response metadata.
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
	Count     *int      `json:"count,omitempty"`
}

// Error codes.
const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeBadRequest       = "BAD_REQUEST"
	CodeConflict         = "CONFLICT"
	CodeNotFound         = "NOT_FOUND"
	CodeStorageError     = "STORAGE_ERROR"
	CodeStorageTimeout   = "STORAGE_TIMEOUT"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
	CodeInternal         = "INTERNAL_ERROR"
)

type legacyKey struct{}

// withLegacyFormat marks requests on the compatibility routes, which answer
// with bare JSON bodies instead of the envelope.
func withLegacyFormat(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), legacyKey{}, true)))
	})
}

func isLegacy(r *http.Request) bool {
	v, _ := r.Context().Value(legacyKey{}).(bool)
	return v
}

// sanitizeLogValue removes control characters to prevent log injection.
func sanitizeLogValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		if c < 0x20 || c == 0x7F {
			fmt.Fprintf(&b, "\\x%02x", c)
		} else {
			b.WriteRune(c)
		}
	}
	return b.String()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Debug().Err(err).Msg("Failed to write JSON response")
	}
}

// respondData writes a successful response. Slices also report their length
// in meta.count.
func respondData(w http.ResponseWriter, r *http.Request, status int, data interface{}, count ...int) {
	if isLegacy(r) {
		writeJSON(w, status, data)
		return
	}
	resp := Response{Success: true, Data: data, Meta: Meta{Timestamp: time.Now().UTC()}}
	if len(count) > 0 {
		resp.Meta.Count = &count[0]
	}
	writeJSON(w, status, resp)
}

// respondError writes a failed response with an explicit code.
func respondError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]string) {
	if isLegacy(r) {
		writeJSON(w, status, map[string]interface{}{"error": message, "details": details})
		return
	}
	writeJSON(w, status, Response{
		Success: false,
		Error: &ErrorBody{
			Code:      code,
			Message:   message,
			Details:   details,
			RequestID: logging.RequestIDFromContext(r.Context()),
		},
		Meta: Meta{Timestamp: time.Now().UTC()},
	})
}

// respondErr maps a domain error onto a status code and error code.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)

	var details map[string]string
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		details = ve.Fields
	}

	message := err.Error()
	if status >= http.StatusInternalServerError {
		logging.Ctx(r.Context()).Error().
			Str("code", code).
			Str("path", sanitizeLogValue(r.URL.Path)).
			Str("error", sanitizeLogValue(err.Error())).
			Msg("API error")
		message = publicMessage(code)
	}
	respondError(w, r, status, code, message, details)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrInvalidEvent), errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest, CodeValidationFailed
	case errors.Is(err, models.ErrDuplicateRule):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, models.ErrTimeout):
		return http.StatusGatewayTimeout, CodeStorageTimeout
	case errors.Is(err, models.ErrStorage):
		return http.StatusInternalServerError, CodeStorageError
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

func publicMessage(code string) string {
	switch code {
	case CodeStorageTimeout:
		return "storage did not respond in time"
	case CodeStorageError:
		return "storage failure"
	default:
		return "internal error"
	}
}

// decodeJSON reads a JSON body of at most maxBodyBytes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return decode(w, r, v, false)
}

// decodeOptionalJSON is decodeJSON but accepts an empty body.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return decode(w, r, v, true)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (optional && errors.Is(err, io.EOF)) {
		return nil
	}
	return &models.ValidationError{
		Kind:   models.ErrInvalidArgument,
		Fields: map[string]string{"body": "malformed JSON body"},
	}
}

const maxBodyBytes = 64 * 1024
