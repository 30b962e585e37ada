// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures shared by every layer of the chat core.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/xion/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single conversation entry. Messages are values: once created
// by the history they are copied, never edited.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message with a fresh ID. The sequence index is
// assigned by the owning history.
func NewMessage(role Role, content string, seq int64) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Seq:       seq,
		Timestamp: time.Now(),
	}
}

// IsSystem reports whether the message is the system prompt.
func (m Message) IsSystem() bool {
	return m.Role == RoleSystem
}

// Preview returns the content collapsed to one line and cut to at most
// width terminal cells.
func (m Message) Preview(width int) string {
	line := strings.Join(strings.Fields(m.Content), " ")
	if width <= 0 {
		return line
	}
	return util.TruncateWidth(line, width)
}

// EstimateTokens returns a rough token estimate (4 characters per token).
func (m Message) EstimateTokens() int {
	return (len(m.Content) + 3) / 4
}
