// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package classify

import (
	"net/http"

	"github.com/jeranaias/xion/internal/model"
)

// Rule is the classification of one HTTP status.
type Rule struct {
	Category  model.Category
	Retryable bool
	Message   string
}

// Table maps HTTP status codes to rules.
type Table map[int]Rule

// User-facing messages.
const (
	MsgInvalidKey    = "Invalid API key. Please check your API key and try again."
	MsgAccessDenied  = "Access denied. Please check your API key permissions."
	MsgQuotaExceeded = "Quota exceeded. Please check your plan and billing details."
	MsgModelNotFound = "Model not found. Please check the model name."
	MsgRateLimited   = "Rate limit exceeded. Please wait a moment and try again."
	MsgModelLoading  = "Model is currently loading. Please try again in a few seconds."
	MsgServerError   = "Server error. Please try again later."
	MsgBadRequest    = "The server rejected the request."
	MsgBadResponse   = "Invalid response format from server."
	MsgEmptyResponse = "The server returned an empty response."
	MsgUnexpected    = "Unexpected response from server."
	MsgNetworkError  = "Network error. Please check your connection."
	MsgRequestCancel = "Request canceled."
)

// DefaultTable returns the status table. Statuses not listed fall back to
// ServerError for 5xx and Protocol for everything else.
func DefaultTable() Table {
	return Table{
		http.StatusBadRequest:         {model.CategoryProtocol, false, MsgBadRequest},
		http.StatusUnauthorized:       {model.CategoryAuth, false, MsgInvalidKey},
		http.StatusPaymentRequired:    {model.CategoryAuth, false, MsgQuotaExceeded},
		http.StatusForbidden:          {model.CategoryAuth, false, MsgAccessDenied},
		http.StatusNotFound:           {model.CategoryNotFound, false, MsgModelNotFound},
		http.StatusTooManyRequests:    {model.CategoryRateLimited, true, MsgRateLimited},
		http.StatusServiceUnavailable: {model.CategoryTransient, true, MsgModelLoading},
	}
}

// Clone returns a copy of t that can be modified freely.
func (t Table) Clone() Table {
	c := make(Table, len(t))
	for k, v := range t {
		c[k] = v
	}
	return c
}
