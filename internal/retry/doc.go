// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package retry runs an attempt function under a bounded retry policy.
//
// A call moves through these states:
//
//	Idle -> Attempting -> Succeeded
//	                   -> Waiting -> Attempting ...
//	                   -> GaveUp
//
// MaxAttempts counts total attempts, so MaxAttempts=3 means at most two
// waits. Fatal outcomes end the call after the attempt that produced them.
// Waiting honors context cancellation and blocks only the calling goroutine.
//
// # Usage
//
//	s, err := retry.New(retry.Policy{
//	    MaxAttempts: 3,
//	    Backoff:     retry.Exponential(5*time.Second, 0),
//	})
//	res := s.Run(ctx, func(ctx context.Context, attempt int) classify.Outcome {
//	    return doOneRequest(ctx)
//	})
package retry
