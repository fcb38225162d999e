// Heimdall - Network Event Ingestion and Trust Registry
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heimdall

// Package validation wraps a shared go-playground/validator instance and
// translates its field errors into messages keyed by JSON field name.
//
//	if verr := validation.ValidateStruct(&raw); verr != nil {
//	    return verr.AsError(models.ErrInvalidEvent)
//	}
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/heimdall/internal/models"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is a single failed constraint.
type FieldError struct {
	Field   string
	Tag     string
	Param   string
	Message string
}

// RequestValidationError collects every failed constraint of one struct.
type RequestValidationError struct {
	errors []FieldError
}

// Errors returns the failed constraints in struct order.
func (ve *RequestValidationError) Errors() []FieldError {
	return ve.errors
}

func (ve *RequestValidationError) Error() string {
	if len(ve.errors) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(ve.errors))
	for i, e := range ve.errors {
		msgs[i] = e.Message
	}
	return strings.Join(msgs, "; ")
}

// Fields maps field name to message. When a field fails more than one
// constraint only the first is kept.
func (ve *RequestValidationError) Fields() map[string]string {
	out := make(map[string]string, len(ve.errors))
	for _, e := range ve.errors {
		if _, ok := out[e.Field]; !ok {
			out[e.Field] = e.Message
		}
	}
	return out
}

// AsError converts the collected errors into a models.ValidationError of
// the given kind so callers can match it with errors.Is.
func (ve *RequestValidationError) AsError(kind error) error {
	return &models.ValidationError{Kind: kind, Fields: ve.Fields()}
}

// GetValidator returns the shared validator. Field names in errors are the
// struct's json tag names.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// ValidateStruct validates s and returns nil or the collected field errors.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &RequestValidationError{errors: []FieldError{{Field: "request", Tag: "invalid", Message: err.Error()}}}
	}

	out := make([]FieldError, len(fieldErrs))
	for i, fe := range fieldErrs {
		out[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: translateError(fe),
		}
	}
	return &RequestValidationError{errors: out}
}

// ValidateAddress checks that address is an IPv4 or IPv6 literal.
func ValidateAddress(address string) error {
	if err := GetValidator().Var(address, "required,ip"); err != nil {
		return &models.ValidationError{
			Kind:   models.ErrInvalidArgument,
			Fields: map[string]string{"address": "address must be a valid IP address"},
		}
	}
	return nil
}

var errorMessageTemplates = map[string]string{
	"required": "%s is required",
	"ip":       "%s must be a valid IP address",
	"ipv4":     "%s must be a valid IPv4 address",
	"mac":      "%s must be a valid MAC address",
}

var errorMessageWithParam = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
}

func translateError(fe validator.FieldError) string {
	field, tag, param := fe.Field(), fe.Tag(), fe.Param()

	if tmpl, ok := errorMessageTemplates[tag]; ok {
		return fmt.Sprintf(tmpl, field)
	}
	if tmpl, ok := errorMessageWithParam[tag]; ok {
		return fmt.Sprintf(tmpl, field, param)
	}

	isString := fe.Kind() == reflect.String
	switch tag {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
