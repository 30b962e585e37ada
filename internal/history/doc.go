// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history provides the bounded rolling conversation window sent with
// every chat request.
//
// # Key Types
//
//   - History: Ordered messages with an optional pinned system prompt
//   - Options: Window size and system prompt
//
// # Invariants
//
// At most one system message exists and it is always first. The number of
// non-system messages never exceeds MaxTurns; when it would, the oldest
// non-system messages are evicted. Messages are never edited in place.
//
// # Usage
//
//	h := history.New(history.Options{MaxTurns: 5, SystemPrompt: "Be brief."})
//	h.AppendExchange("Hi", "Hello!")
//	for _, m := range h.Snapshot() {
//	    fmt.Println(m.Role, m.Content)
//	}
package history
