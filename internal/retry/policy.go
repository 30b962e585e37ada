// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package retry

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jeranaias/xion/internal/model"
)

// Default policy values.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 5 * time.Second
)

// maxShift bounds the doubling; products past MaxInt64 saturate.
const maxShift = 30

// Backoff returns the wait after the given failed attempt (1-based).
type Backoff func(attempt int) time.Duration

// Fixed waits d after every failed attempt.
func Fixed(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}

// Exponential waits base*2^(attempt-1), capped at limit when limit > 0.
func Exponential(base, limit time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		shift := attempt - 1
		if shift > maxShift {
			shift = maxShift
		}
		d := base << shift
		// Saturate when the shift overflows.
		if base > 0 && (d <= 0 || d>>shift != base) {
			d = time.Duration(math.MaxInt64)
		}
		if limit > 0 && d > limit {
			d = limit
		}
		return d
	}
}

// Kind names a backoff shape in configuration.
type Kind string

const (
	KindFixed       Kind = "fixed"
	KindExponential Kind = "exponential"
)

// ParseKind converts a config string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindFixed, KindExponential:
		return k, nil
	case "":
		return KindExponential, nil
	default:
		return "", model.ConfigError("retry.policy", fmt.Sprintf("unknown backoff %q (want fixed or exponential)", s))
	}
}

// NewBackoff builds a Backoff of the given kind.
func NewBackoff(kind Kind, base, limit time.Duration) Backoff {
	if kind == KindFixed {
		return Fixed(base)
	}
	return Exponential(base, limit)
}

// =============================================================================
// POLICY
// =============================================================================

// Policy bounds a call.
type Policy struct {
	// MaxAttempts is the total number of attempts, first one included
	MaxAttempts int

	// Backoff computes each wait (default: Exponential(5s, 0))
	Backoff Backoff

	// HonorRetryAfter waits at least the server's Retry-After hint
	HonorRetryAfter bool

	// MaxRetryAfter caps a server hint when > 0
	MaxRetryAfter time.Duration
}

// DefaultPolicy returns three attempts with exponential backoff from 5s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     Exponential(DefaultBaseDelay, 0),
	}
}

// Validate checks the policy.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return model.ConfigError("retry.max_attempts", fmt.Sprintf("must be at least 1, got %d", p.MaxAttempts))
	}
	if p.MaxRetryAfter < 0 {
		return model.ConfigError("retry.max_retry_after", "must not be negative")
	}
	return nil
}

// delay returns the wait after a retryable failure on attempt.
func (p Policy) delay(attempt int, info *model.ErrorInfo) time.Duration {
	d := p.Backoff(attempt)
	if d < 0 {
		d = 0
	}
	if p.HonorRetryAfter && info != nil && info.RetryAfter > d {
		hint := info.RetryAfter
		if p.MaxRetryAfter > 0 && hint > p.MaxRetryAfter {
			hint = p.MaxRetryAfter
		}
		if hint > d {
			d = hint
		}
	}
	return d
}

// =============================================================================
// SLEEPING
// =============================================================================

// Sleeper waits for d or until ctx is done, returning ctx.Err() in the
// latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// TimerSleep is the default Sleeper.
func TimerSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
