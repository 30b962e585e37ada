// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"io"
	"log/slog"
	"strings"
)

// ParseLevel converts a config string to a slog level. Unknown values map
// to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a slog logger writing text or JSON to w.
func NewLogger(level, format string, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// =============================================================================
// LOG OBSERVER
// =============================================================================

// LogObserver writes events to a slog logger. Request and response bodies
// are never part of an Event, so nothing sensitive reaches the log.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver wraps logger. A nil logger uses slog.Default().
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger}
}

// Observe implements Observer.
func (l *LogObserver) Observe(ctx context.Context, e Event) {
	attrs := make([]slog.Attr, 0, 8)
	attrs = append(attrs, slog.String("event", string(e.Kind)))
	if e.CallID != "" {
		attrs = append(attrs, slog.String("call_id", e.CallID))
	}
	if e.Attempt > 0 {
		attrs = append(attrs, slog.Int("attempt", e.Attempt))
	}
	if e.Status > 0 {
		attrs = append(attrs, slog.Int("status", e.Status))
	}
	if e.Outcome != "" {
		attrs = append(attrs, slog.String("outcome", e.Outcome))
	}
	if e.Category != "" {
		attrs = append(attrs, slog.String("category", e.Category.String()))
	}
	if e.Delay > 0 {
		attrs = append(attrs, slog.Duration("delay", e.Delay))
	}
	if e.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", e.Duration))
	}

	msg := e.Message
	if msg == "" {
		msg = "chat " + string(e.Kind)
	}
	l.logger.LogAttrs(ctx, levelFor(e.Kind), msg, attrs...)
}

func levelFor(kind EventKind) slog.Level {
	switch kind {
	case EventGaveUp:
		return slog.LevelWarn
	case EventWait, EventSucceeded:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
