// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package classify

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/jeranaias/xion/internal/model"
	"github.com/jeranaias/xion/internal/telemetry"
	"github.com/jeranaias/xion/internal/util"
)

// Completion paths for the supported response shapes.
const (
	PathChat          = "choices.0.message.content"
	PathGeneratedText = "0.generated_text"
)

// Provider error text locations, tried in order.
var errorPaths = []string{"error.message", "error", "message", "detail"}

// MaxDetailLength caps the provider error text kept on an ErrorInfo, in runes.
const MaxDetailLength = 500

// =============================================================================
// CLASSIFIER
// =============================================================================

// Options configures a Classifier.
type Options struct {
	// SuccessStatus is the one status that can succeed (default: 200)
	SuccessStatus int

	// ResponsePath locates the completion text (default: PathChat)
	ResponsePath string

	// RetryServerErrors makes unlisted 5xx statuses retryable
	RetryServerErrors bool

	// Table overrides DefaultTable
	Table Table

	// Observer receives a classified event per response
	Observer telemetry.Observer
}

// Classifier turns responses into Outcomes. It holds no mutable state and
// is safe for concurrent use.
type Classifier struct {
	successStatus     int
	responsePath      string
	retryServerErrors bool
	table             Table
	observer          telemetry.Observer
}

// New creates a Classifier with defaults applied for zero values.
func New(opts Options) *Classifier {
	if opts.SuccessStatus == 0 {
		opts.SuccessStatus = http.StatusOK
	}
	if opts.ResponsePath == "" {
		opts.ResponsePath = PathChat
	}
	if opts.Table == nil {
		opts.Table = DefaultTable()
	}
	return &Classifier{
		successStatus:     opts.SuccessStatus,
		responsePath:      opts.ResponsePath,
		retryServerErrors: opts.RetryServerErrors,
		table:             opts.Table.Clone(),
		observer:          opts.Observer,
	}
}

// ResponsePath returns the configured completion path.
func (c *Classifier) ResponsePath() string {
	return c.responsePath
}

// Classify maps a status and body to an Outcome.
func (c *Classifier) Classify(status int, body []byte) Outcome {
	return c.classify(status, nil, body)
}

// ClassifyResponse is Classify plus server retry hints from header, with the
// result reported to the observer.
func (c *Classifier) ClassifyResponse(ctx context.Context, status int, header http.Header, body []byte) Outcome {
	out := c.classify(status, header, body)

	ev := telemetry.Event{
		Kind:    telemetry.EventClassified,
		Status:  status,
		Outcome: out.Kind.String(),
	}
	if out.Err != nil {
		ev.Category = out.Err.Category
	}
	telemetry.Emit(ctx, c.observer, ev)

	return out
}

// ClassifyError maps a transport failure (no HTTP response) to an Outcome.
// If ctx is done the call was canceled; anything else is a retryable
// network failure.
func (c *Classifier) ClassifyError(ctx context.Context, err error) Outcome {
	if ctxErr := ctx.Err(); ctxErr != nil {
		info := model.NewError(model.CategoryCanceled, MsgRequestCancel)
		info.Cause = ctxErr
		return Fatal(info)
	}
	if errors.Is(err, context.Canceled) {
		info := model.NewError(model.CategoryCanceled, MsgRequestCancel)
		info.Cause = err
		return Fatal(info)
	}
	info := model.NewError(model.CategoryTransient, MsgNetworkError)
	info.Cause = err
	return Retryable(info)
}

func (c *Classifier) classify(status int, header http.Header, body []byte) Outcome {
	if status == c.successStatus {
		return c.classifySuccess(status, body)
	}

	rule, ok := c.table[status]
	if !ok {
		rule = c.fallbackRule(status)
	}

	info := model.NewError(rule.Category, rule.Message).WithStatus(status)
	info.Detail = providerDetail(body)
	if rule.Retryable {
		info.RetryAfter = retryHint(header, body)
		return Retryable(info)
	}
	return Fatal(info)
}

func (c *Classifier) fallbackRule(status int) Rule {
	if status >= 500 && status <= 599 {
		return Rule{model.CategoryServerError, c.retryServerErrors, MsgServerError}
	}
	return Rule{model.CategoryProtocol, false, MsgUnexpected}
}

func (c *Classifier) classifySuccess(status int, body []byte) Outcome {
	if !gjson.ValidBytes(body) {
		return Fatal(model.NewError(model.CategoryProtocol, MsgBadResponse).WithStatus(status))
	}

	res := gjson.GetBytes(body, c.responsePath)
	if !res.Exists() || res.Type != gjson.String {
		info := model.NewError(model.CategoryProtocol, MsgBadResponse).WithStatus(status)
		info.Detail = "missing " + c.responsePath
		return Fatal(info)
	}

	text := strings.TrimSpace(res.String())
	if text == "" {
		return Fatal(model.NewError(model.CategoryProtocol, MsgEmptyResponse).WithStatus(status))
	}
	return Success(text)
}

// =============================================================================
// HELPERS
// =============================================================================

func providerDetail(body []byte) string {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range errorPaths {
		r := gjson.GetBytes(body, path)
		if r.Type == gjson.String {
			detail := util.TruncateRunes(strings.TrimSpace(r.String()), MaxDetailLength)
			if detail != "" {
				return detail
			}
		}
	}
	return ""
}

// retryHint reads Retry-After (seconds or HTTP date) or the text generation
// API's estimated_time field.
func retryHint(header http.Header, body []byte) time.Duration {
	if v := header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(v); err == nil {
			if d := time.Until(at); d > 0 {
				return d
			}
		}
	}
	if len(body) > 0 && gjson.ValidBytes(body) {
		if r := gjson.GetBytes(body, "estimated_time"); r.Type == gjson.Number && r.Float() > 0 {
			return time.Duration(r.Float() * float64(time.Second))
		}
	}
	return 0
}
