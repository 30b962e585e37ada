// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package classify

import "github.com/jeranaias/xion/internal/model"

// Kind is the outcome variant.
type Kind int

const (
	KindSuccess Kind = iota + 1
	KindRetryable
	KindFatal
)

// String returns the lowercase variant name.
func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindRetryable:
		return "retryable"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is the result of one attempt. Exactly one of Text (success) or
// Err (retryable, fatal) is meaningful.
type Outcome struct {
	Kind Kind
	Text string
	Err  *model.ErrorInfo
}

// Success returns a successful outcome carrying the completion text.
func Success(text string) Outcome {
	return Outcome{Kind: KindSuccess, Text: text}
}

// Retryable returns a retryable outcome.
func Retryable(err *model.ErrorInfo) Outcome {
	err.Retryable = true
	return Outcome{Kind: KindRetryable, Err: err}
}

// Fatal returns a fatal outcome.
func Fatal(err *model.ErrorInfo) Outcome {
	err.Retryable = false
	return Outcome{Kind: KindFatal, Err: err}
}
