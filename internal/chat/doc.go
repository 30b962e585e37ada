// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat ties the history, request builder, transport, classifier and
// retry scheduler into one conversation client.
//
// # Key Types
//
//   - Client: Owns one conversation; SendPrompt runs one retried exchange
//   - Options: Endpoint, credentials, sampling, window and retry policy
//   - Reply: Result delivered by SendPromptAsync
//
// # Concurrency
//
// A Client allows one in-flight SendPrompt at a time. An overlapping call
// fails immediately with an error matching ErrBusy instead of queueing. The
// user prompt and the assistant reply are added to the history together,
// only after a successful completion, so a failed or canceled call leaves
// the history unchanged.
//
// # Usage
//
//	client, err := chat.New(chat.Options{
//	    Endpoint: "https://api.openai.com/v1/chat/completions",
//	    APIKey:   key,
//	    Sampling: request.Sampling{Model: "gpt-3.5-turbo", Temperature: 0.7, MaxTokens: 100},
//	    History:  history.Options{MaxTurns: 5, SystemPrompt: "Be brief."},
//	    Policy:   retry.DefaultPolicy(),
//	})
//	text, err := client.SendPrompt(ctx, "Hello!")
package chat
