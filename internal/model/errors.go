// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

// Category classifies why a chat call failed.
type Category string

const (
	CategoryAuth        Category = "auth"
	CategoryNotFound    Category = "not_found"
	CategoryRateLimited Category = "rate_limited"
	CategoryServerError Category = "server_error"
	CategoryTransient   Category = "transient"
	CategoryProtocol    Category = "protocol"
	CategoryConfig      Category = "config"
	CategoryCanceled    Category = "canceled"
)

// String returns the string representation of the category.
func (c Category) String() string {
	return string(c)
}

// Sentinel errors, one per category. ErrorInfo values match them with errors.Is.
var (
	ErrAuth        = errors.New("authentication failed")
	ErrNotFound    = errors.New("model not found")
	ErrRateLimited = errors.New("rate limited")
	ErrServerError = errors.New("server error")
	ErrTransient   = errors.New("transient failure")
	ErrProtocol    = errors.New("protocol error")
	ErrConfig      = errors.New("invalid configuration")
	ErrCanceled    = errors.New("request canceled")
)

var categorySentinels = map[Category]error{
	CategoryAuth:        ErrAuth,
	CategoryNotFound:    ErrNotFound,
	CategoryRateLimited: ErrRateLimited,
	CategoryServerError: ErrServerError,
	CategoryTransient:   ErrTransient,
	CategoryProtocol:    ErrProtocol,
	CategoryConfig:      ErrConfig,
	CategoryCanceled:    ErrCanceled,
}

// Sentinel returns the sentinel error for the category, or nil if unknown.
func (c Category) Sentinel() error {
	return categorySentinels[c]
}

// =============================================================================
// ERROR INFO
// =============================================================================

// ErrorInfo describes a classified failure. It is the only error type the
// chat client returns to callers.
type ErrorInfo struct {
	Category Category
	// Message is always human-readable and non-empty.
	Message string
	// Detail carries the provider's own error text, when the body had one.
	Detail string
	// HTTPStatus is nil when no response was received.
	HTTPStatus *int
	Retryable  bool

	// Set by the retry scheduler on the terminal error.
	Attempts  int
	Exhausted bool

	// RetryAfter is the server's hint for the next attempt, zero if none.
	RetryAfter time.Duration

	// Cause is the underlying Go error (network or context), if any.
	Cause error
}

// NewError creates an ErrorInfo. An empty message falls back to the
// category's sentinel text.
func NewError(category Category, message string) *ErrorInfo {
	if message == "" {
		if s := category.Sentinel(); s != nil {
			message = s.Error()
		} else {
			message = "unknown error"
		}
	}
	return &ErrorInfo{Category: category, Message: message}
}

// ConfigError returns a Config category error for an invalid setting.
func ConfigError(field, message string) *ErrorInfo {
	return NewError(CategoryConfig, fmt.Sprintf("%s: %s", field, message))
}

// Error implements the error interface.
func (e *ErrorInfo) Error() string {
	if e.HTTPStatus != nil {
		return fmt.Sprintf("%s (HTTP %d)", e.Message, *e.HTTPStatus)
	}
	return e.Message
}

// Is matches the sentinel error of the category.
func (e *ErrorInfo) Is(target error) bool {
	s := e.Category.Sentinel()
	return s != nil && s == target
}

// Unwrap returns the underlying cause.
func (e *ErrorInfo) Unwrap() error {
	return e.Cause
}

// Status returns the HTTP status, or 0 when no response was received.
func (e *ErrorInfo) Status() int {
	if e == nil || e.HTTPStatus == nil {
		return 0
	}
	return *e.HTTPStatus
}

// WithStatus returns a copy of e carrying the given HTTP status.
func (e *ErrorInfo) WithStatus(status int) *ErrorInfo {
	c := *e
	c.HTTPStatus = &status
	return &c
}

// Clone returns a shallow copy of e.
func (e *ErrorInfo) Clone() *ErrorInfo {
	if e == nil {
		return nil
	}
	c := *e
	if e.HTTPStatus != nil {
		s := *e.HTTPStatus
		c.HTTPStatus = &s
	}
	return &c
}

// AsErrorInfo extracts an ErrorInfo from err's chain.
func AsErrorInfo(err error) (*ErrorInfo, bool) {
	var info *ErrorInfo
	if errors.As(err, &info) {
		return info, true
	}
	return nil, false
}
