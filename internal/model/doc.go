// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared by every layer of the
// chat core: messages and the error taxonomy.
//
// # Key Types
//
//   - Message: Immutable conversation entry with role, content and sequence index
//   - Role: Message role enumeration (system, user, assistant)
//   - ErrorInfo: Classified failure with category, status and retry metadata
//   - Category: Error taxonomy (auth, not_found, rate_limited, ...)
//
// # Usage
//
// Check the category of a failed call:
//
//	text, err := client.SendPrompt(ctx, "Hello!")
//	if errors.Is(err, model.ErrRateLimited) {
//	    fmt.Println("slow down")
//	}
//
// Inspect retry metadata:
//
//	if info, ok := model.AsErrorInfo(err); ok && info.Exhausted {
//	    fmt.Printf("gave up after %d attempts\n", info.Attempts)
//	}
package model
