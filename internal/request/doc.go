// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package request builds the JSON payload sent to a completion endpoint.
//
// Two wire formats are supported:
//
//   - FormatChat: OpenAI-style chat completions ({model, messages, ...})
//   - FormatInference: HuggingFace text generation ({inputs, parameters})
//
// Building is deterministic: the same snapshot, prompt and sampling
// parameters always produce the same bytes. The history snapshot passed to
// Build is never modified.
//
// # Usage
//
//	b, err := request.NewBuilder(request.FormatChat, request.Sampling{
//	    Model:       "gpt-3.5-turbo",
//	    Temperature: 0.7,
//	    MaxTokens:   100,
//	})
//	payload, err := b.Build(hist.Snapshot(), "Hello!")
package request
