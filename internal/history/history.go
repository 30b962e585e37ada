// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history provides the bounded rolling conversation window.
package history

import (
	"sync"

	"github.com/jeranaias/xion/internal/model"
)

// DefaultMaxTurns is the window size used when Options.MaxTurns is not positive.
const DefaultMaxTurns = 5

// =============================================================================
// HISTORY TYPES
// =============================================================================

// Options configures a History.
type Options struct {
	// MaxTurns bounds the number of non-system messages (default: 5)
	MaxTurns int

	// SystemPrompt is pinned as the first message when non-empty
	SystemPrompt string
}

// History is an ordered, bounded conversation. Readers may call it
// concurrently; writes are expected from a single owner at a time.
type History struct {
	mu       sync.RWMutex
	maxTurns int
	system   *model.Message
	turns    []model.Message
	nextSeq  int64
}

// =============================================================================
// CONSTRUCTOR
// =============================================================================

// New creates a history with the given options.
func New(opts Options) *History {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}

	h := &History{
		maxTurns: opts.MaxTurns,
		turns:    make([]model.Message, 0, opts.MaxTurns+1),
	}
	if opts.SystemPrompt != "" {
		h.setSystemLocked(opts.SystemPrompt)
	}
	return h
}

// =============================================================================
// MUTATION
// =============================================================================

// Append adds a message to the tail and evicts the oldest non-system
// messages beyond the window. A system message replaces the pinned head.
func (h *History) Append(role model.Role, content string) model.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	if role == model.RoleSystem {
		return h.setSystemLocked(content)
	}
	m := h.appendLocked(role, content)
	h.evictLocked()
	return m
}

// AppendExchange appends a user prompt and the assistant reply as one step.
// Both messages land or neither does; eviction runs once afterwards.
func (h *History) AppendExchange(user, assistant string) (model.Message, model.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	u := h.appendLocked(model.RoleUser, user)
	a := h.appendLocked(model.RoleAssistant, assistant)
	h.evictLocked()
	return u, a
}

// Clear removes every non-system message. The system message is kept.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns = h.turns[:0:0]
}

// SetMaxTurns changes the window size and evicts immediately if needed.
// Non-positive values are ignored.
func (h *History) SetMaxTurns(n int) {
	if n <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.maxTurns = n
	h.evictLocked()
}

func (h *History) setSystemLocked(content string) model.Message {
	h.nextSeq++
	m := model.NewMessage(model.RoleSystem, content, h.nextSeq)
	h.system = &m
	return m
}

func (h *History) appendLocked(role model.Role, content string) model.Message {
	h.nextSeq++
	m := model.NewMessage(role, content, h.nextSeq)
	h.turns = append(h.turns, m)
	return m
}

func (h *History) evictLocked() {
	over := len(h.turns) - h.maxTurns
	if over <= 0 {
		return
	}
	// PERFORMANCE: copy down instead of reslicing so the backing array
	// does not grow without bound over a long session.
	n := copy(h.turns, h.turns[over:])
	clear(h.turns[n:])
	h.turns = h.turns[:n]
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Snapshot returns an ordered copy of the conversation, system message first.
// The returned slice shares nothing with the history.
func (h *History) Snapshot() []model.Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]model.Message, 0, len(h.turns)+1)
	if h.system != nil {
		out = append(out, *h.system)
	}
	return append(out, h.turns...)
}

// System returns the pinned system message, if any.
func (h *History) System() (model.Message, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.system == nil {
		return model.Message{}, false
	}
	return *h.system, true
}

// Len returns the total number of messages including the system message.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := len(h.turns)
	if h.system != nil {
		n++
	}
	return n
}

// Turns returns the number of non-system messages.
func (h *History) Turns() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.turns)
}

// MaxTurns returns the window size.
func (h *History) MaxTurns() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.maxTurns
}
