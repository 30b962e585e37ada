// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud provides the HTTP transport to hosted completion endpoints.
//
// The transport only moves bytes: it posts a prepared JSON body and returns
// the status, headers and body. Deciding what a response means is left to
// package classify, and retrying is left to package retry.
//
// # Key Types
//
//   - Transport: Interface the chat client depends on
//   - Client: net/http implementation with pooling, size limits and pacing
//   - Request, Response: One POST and its raw result
//
// # Usage
//
//	client := cloud.NewClient().WithTimeout(30 * time.Second)
//	resp, err := client.Post(ctx, cloud.Request{
//	    URL:    "https://api.openai.com/v1/chat/completions",
//	    APIKey: key,
//	    Body:   payload.Body,
//	})
//
// # Security
//
// API keys are never logged; a SHA-256 fingerprint identifies the key in
// log output. Request and response bodies are never logged. All requests
// use TLS 1.2+.
package cloud
