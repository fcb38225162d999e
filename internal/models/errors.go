// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

package models

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrInvalidEvent is returned when a submitted event fails validation.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrInvalidArgument is returned for malformed operation arguments such
	// as a negative penalty or an unparseable address.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDuplicateRule is returned when a rule for the address already exists.
	ErrDuplicateRule = errors.New("rule already exists for address")

	// ErrNotFound is returned by strict-mode registry operations on unknown nodes.
	ErrNotFound = errors.New("not found")

	// ErrStorage wraps every persistence failure.
	ErrStorage = errors.New("storage failure")

	// ErrTimeout marks a persistence call that exceeded its deadline.
	// Errors matching ErrTimeout also match ErrStorage.
	ErrTimeout = errors.New("storage timeout")

	// ErrAlreadyExists is the gateway-level uniqueness violation.
	ErrAlreadyExists = errors.New("already exists")
)

// ValidationError carries per-field problems alongside ErrInvalidEvent or
// ErrInvalidArgument.
type ValidationError struct {
	Kind   error
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Kind.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return e.Kind.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// WrapStorage annotates err with op and guarantees the result matches
// ErrStorage, whether or not the gateway already classified it.
func WrapStorage(op string, err error) error {
	if errors.Is(err, ErrStorage) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
