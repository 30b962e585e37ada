// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/xion/internal/model"
)

// =============================================================================
// EVENTS
// =============================================================================

// EventKind identifies what happened.
type EventKind string

const (
	// EventClassified is emitted by the classifier for every response.
	EventClassified EventKind = "classified"
	// EventAttempt is emitted by the scheduler after each attempt resolves.
	EventAttempt EventKind = "attempt"
	// EventWait is emitted before the scheduler sleeps.
	EventWait EventKind = "wait"
	// EventSucceeded and EventGaveUp end a call.
	EventSucceeded EventKind = "succeeded"
	EventGaveUp    EventKind = "gave_up"
)

// Event is a single observation. Zero fields are simply absent.
type Event struct {
	Kind     EventKind
	CallID   string
	Attempt  int
	Status   int
	Outcome  string
	Category model.Category
	Delay    time.Duration
	Duration time.Duration
	Message  string
	Time     time.Time
}

// Observer receives events. Implementations must not block for long and
// must be safe for concurrent use.
type Observer interface {
	Observe(ctx context.Context, e Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, e Event)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, e Event) {
	f(ctx, e)
}

type nopObserver struct{}

func (nopObserver) Observe(context.Context, Event) {}

// Nop returns an observer that discards everything.
func Nop() Observer {
	return nopObserver{}
}

type multiObserver []Observer

func (m multiObserver) Observe(ctx context.Context, e Event) {
	for _, o := range m {
		o.Observe(ctx, e)
	}
}

// Multi returns an observer that forwards to each non-nil observer in order.
func Multi(observers ...Observer) Observer {
	var out multiObserver
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	switch len(out) {
	case 0:
		return Nop()
	case 1:
		return out[0]
	}
	return out
}

// Emit fills in the call ID and timestamp from ctx and forwards e to o.
// A nil observer is ignored.
func Emit(ctx context.Context, o Observer, e Event) {
	if o == nil {
		return
	}
	if e.CallID == "" {
		e.CallID = CallID(ctx)
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	o.Observe(ctx, e)
}

// =============================================================================
// CALL IDS
// =============================================================================

type callIDKey struct{}

// WithCallID returns a context carrying a fresh call ID, unless ctx already
// has one.
func WithCallID(ctx context.Context) context.Context {
	if CallID(ctx) != "" {
		return ctx
	}
	return context.WithValue(ctx, callIDKey{}, uuid.NewString())
}

// CallID returns the call ID stored in ctx, or "".
func CallID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(callIDKey{}).(string)
	return id
}
