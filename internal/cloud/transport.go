// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"net/http"
)

// Transport posts a request body and returns the raw response. A non-nil
// error means no HTTP response was received.
type Transport interface {
	Post(ctx context.Context, req Request) (*Response, error)
}

// Request is one POST to a completion endpoint.
type Request struct {
	URL    string
	APIKey string
	Body   []byte
	// Header holds extra headers; Authorization and Content-Type are set
	// by the transport.
	Header http.Header
}

// Response is the raw result of a Request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req Request) (*Response, error)

// Post calls f.
func (f TransportFunc) Post(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}
