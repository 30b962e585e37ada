// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package retry

import (
	"context"
	"time"

	"github.com/jeranaias/xion/internal/classify"
	"github.com/jeranaias/xion/internal/model"
	"github.com/jeranaias/xion/internal/telemetry"
)

// =============================================================================
// STATE
// =============================================================================

// State is the scheduler's position in a call.
type State int

const (
	StateIdle State = iota
	StateAttempting
	StateWaiting
	StateSucceeded
	StateGaveUp
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAttempting:
		return "attempting"
	case StateWaiting:
		return "waiting"
	case StateSucceeded:
		return "succeeded"
	case StateGaveUp:
		return "gave_up"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions follow.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateGaveUp
}

// Result is the final state of one Run.
type Result struct {
	State    State
	Text     string
	Attempts int
	// Delays lists every wait that was started, in order.
	Delays []time.Duration
	// Err is set when State is StateGaveUp.
	Err *model.ErrorInfo
}

// AttemptFunc performs one attempt. attempt is 1-based.
type AttemptFunc func(ctx context.Context, attempt int) classify.Outcome

// =============================================================================
// SCHEDULER
// =============================================================================

// Scheduler runs attempt functions under a Policy. It keeps no per-call
// state and is safe for concurrent use.
type Scheduler struct {
	policy   Policy
	sleep    Sleeper
	observer telemetry.Observer
	onState  func(State)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSleeper replaces the timer-based wait, mainly for tests.
func WithSleeper(sleep Sleeper) Option {
	return func(s *Scheduler) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// WithObserver sets the event observer.
func WithObserver(o telemetry.Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

// WithStateHook is called on every state transition.
func WithStateHook(fn func(State)) Option {
	return func(s *Scheduler) { s.onState = fn }
}

// New validates policy and returns a Scheduler.
func New(policy Policy, opts ...Option) (*Scheduler, error) {
	if policy.Backoff == nil {
		policy.Backoff = Exponential(DefaultBaseDelay, 0)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		policy: policy,
		sleep:  TimerSleep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Policy returns the scheduler's policy.
func (s *Scheduler) Policy() Policy {
	return s.policy
}

// Run calls fn until it succeeds, fails fatally, exhausts MaxAttempts, or
// ctx is canceled. Run never returns with a non-terminal State.
func (s *Scheduler) Run(ctx context.Context, fn AttemptFunc) Result {
	res := Result{State: StateIdle}
	s.transition(&res, StateIdle)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return s.giveUp(ctx, &res, canceled(err), false)
		}

		s.transition(&res, StateAttempting)
		res.Attempts = attempt

		start := time.Now()
		out := normalize(fn(ctx, attempt))
		s.emitAttempt(ctx, attempt, out, time.Since(start))

		switch out.Kind {
		case classify.KindSuccess:
			res.Text = out.Text
			s.transition(&res, StateSucceeded)
			telemetry.Emit(ctx, s.observer, telemetry.Event{
				Kind:    telemetry.EventSucceeded,
				Attempt: attempt,
			})
			return res

		case classify.KindRetryable:
			if attempt >= s.policy.MaxAttempts {
				return s.giveUp(ctx, &res, out.Err, true)
			}

			delay := s.policy.delay(attempt, out.Err)
			res.Delays = append(res.Delays, delay)
			s.transition(&res, StateWaiting)
			telemetry.Emit(ctx, s.observer, telemetry.Event{
				Kind:     telemetry.EventWait,
				Attempt:  attempt,
				Delay:    delay,
				Status:   out.Err.Status(),
				Category: out.Err.Category,
			})

			if err := s.sleep(ctx, delay); err != nil {
				return s.giveUp(ctx, &res, canceled(err), false)
			}

		case classify.KindFatal:
			return s.giveUp(ctx, &res, out.Err, false)

		default:
			return s.giveUp(ctx, &res, model.NewError(model.CategoryProtocol, "attempt returned no outcome"), false)
		}
	}
}

func (s *Scheduler) transition(res *Result, to State) {
	res.State = to
	if s.onState != nil {
		s.onState(to)
	}
}

func (s *Scheduler) giveUp(ctx context.Context, res *Result, info *model.ErrorInfo, exhausted bool) Result {
	if info == nil {
		info = model.NewError(model.CategoryProtocol, "")
	}
	final := info.Clone()
	final.Attempts = res.Attempts
	final.Exhausted = exhausted
	res.Err = final

	s.transition(res, StateGaveUp)
	telemetry.Emit(ctx, s.observer, telemetry.Event{
		Kind:     telemetry.EventGaveUp,
		Attempt:  res.Attempts,
		Status:   final.Status(),
		Category: final.Category,
		Message:  final.Message,
	})
	return *res
}

func (s *Scheduler) emitAttempt(ctx context.Context, attempt int, out classify.Outcome, took time.Duration) {
	ev := telemetry.Event{
		Kind:     telemetry.EventAttempt,
		Attempt:  attempt,
		Outcome:  out.Kind.String(),
		Duration: took,
	}
	if out.Err != nil {
		ev.Status = out.Err.Status()
		ev.Category = out.Err.Category
	}
	telemetry.Emit(ctx, s.observer, ev)
}

// normalize gives every failed outcome an ErrorInfo.
func normalize(out classify.Outcome) classify.Outcome {
	if out.Err != nil {
		return out
	}
	switch out.Kind {
	case classify.KindRetryable:
		return classify.Retryable(model.NewError(model.CategoryTransient, ""))
	case classify.KindFatal:
		return classify.Fatal(model.NewError(model.CategoryProtocol, ""))
	}
	return out
}

func canceled(cause error) *model.ErrorInfo {
	info := model.NewError(model.CategoryCanceled, classify.MsgRequestCancel)
	info.Cause = cause
	return info
}
