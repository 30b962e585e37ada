// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/jeranaias/xion/internal/classify"
	"github.com/jeranaias/xion/internal/cloud"
	"github.com/jeranaias/xion/internal/history"
	"github.com/jeranaias/xion/internal/model"
	"github.com/jeranaias/xion/internal/request"
	"github.com/jeranaias/xion/internal/retry"
	"github.com/jeranaias/xion/internal/telemetry"
)

// ErrBusy is the cause of the error returned when a call overlaps another
// call on the same Client.
var ErrBusy = errors.New("a request is already in flight for this conversation")

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures a Client.
type Options struct {
	// Endpoint is the full completion URL
	Endpoint string
	APIKey   string
	Header   http.Header

	Format   request.Format
	Sampling request.Sampling
	History  history.Options
	Policy   retry.Policy

	// ResponsePath and RetryServerErrors configure the classifier
	ResponsePath      string
	RetryServerErrors bool

	// Transport defaults to cloud.NewClient()
	Transport cloud.Transport
	// Observer receives classifier and scheduler events
	Observer telemetry.Observer
	// Sleeper replaces the retry wait, mainly for tests
	Sleeper retry.Sleeper
}

// components is the part of a Client that Reconfigure swaps.
type components struct {
	endpoint   string
	apiKey     string
	header     http.Header
	builder    *request.Builder
	classifier *classify.Classifier
	scheduler  *retry.Scheduler
}

func buildComponents(opts Options) (*components, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return nil, model.ConfigError("endpoint", "must not be empty")
	}

	builder, err := request.NewBuilder(opts.Format, opts.Sampling)
	if err != nil {
		return nil, err
	}

	responsePath := opts.ResponsePath
	if responsePath == "" && builder.Format() == request.FormatInference {
		responsePath = classify.PathGeneratedText
	}
	classifier := classify.New(classify.Options{
		ResponsePath:      responsePath,
		RetryServerErrors: opts.RetryServerErrors,
		Observer:          opts.Observer,
	})

	policy := opts.Policy
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}
	scheduler, err := retry.New(policy,
		retry.WithSleeper(opts.Sleeper),
		retry.WithObserver(opts.Observer))
	if err != nil {
		return nil, err
	}

	return &components{
		endpoint:   endpoint,
		apiKey:     opts.APIKey,
		header:     opts.Header.Clone(),
		builder:    builder,
		classifier: classifier,
		scheduler:  scheduler,
	}, nil
}

// =============================================================================
// CLIENT
// =============================================================================

// Client owns one conversation.
type Client struct {
	// guard admits one SendPrompt at a time.
	guard sync.Mutex

	mu        sync.RWMutex
	parts     *components
	transport cloud.Transport

	history *history.History
}

// New validates opts and creates a Client with an empty conversation.
func New(opts Options) (*Client, error) {
	parts, err := buildComponents(opts)
	if err != nil {
		return nil, err
	}

	transport := opts.Transport
	if transport == nil {
		transport = cloud.NewClient()
	}

	return &Client{
		parts:     parts,
		transport: transport,
		history:   history.New(opts.History),
	}, nil
}

// SendPrompt sends prompt with the current conversation and returns the
// assistant's reply. On success the prompt and reply are appended to the
// history as one step. Every error is a *model.ErrorInfo.
func (c *Client) SendPrompt(ctx context.Context, prompt string) (string, error) {
	prompt = request.NormalizePrompt(prompt)
	if prompt == "" {
		return "", model.NewError(model.CategoryProtocol, "empty input")
	}

	if !c.guard.TryLock() {
		info := model.NewError(model.CategoryTransient, ErrBusy.Error())
		info.Cause = ErrBusy
		return "", info
	}
	defer c.guard.Unlock()

	c.mu.RLock()
	parts := c.parts
	c.mu.RUnlock()

	ctx = telemetry.WithCallID(ctx)
	snapshot := c.history.Snapshot()

	res := parts.scheduler.Run(ctx, func(ctx context.Context, attempt int) classify.Outcome {
		return c.attempt(ctx, parts, snapshot, prompt)
	})
	if res.State != retry.StateSucceeded {
		return "", res.Err
	}

	c.history.AppendExchange(prompt, res.Text)
	return res.Text, nil
}

// attempt performs one build-post-classify round.
func (c *Client) attempt(ctx context.Context, parts *components, snapshot []model.Message, prompt string) classify.Outcome {
	payload, err := parts.builder.Build(snapshot, prompt)
	if err != nil {
		info, ok := model.AsErrorInfo(err)
		if !ok {
			info = model.NewError(model.CategoryProtocol, err.Error())
		}
		return classify.Fatal(info)
	}

	resp, err := c.transport.Post(ctx, cloud.Request{
		URL:    parts.endpoint,
		APIKey: parts.apiKey,
		Body:   payload.Body,
		Header: parts.header,
	})
	switch {
	case err == nil && resp == nil:
		return classify.Fatal(model.NewError(model.CategoryProtocol, classify.MsgBadResponse))
	case err == nil:
		return parts.classifier.ClassifyResponse(ctx, resp.StatusCode, resp.Header, resp.Body)
	case errors.Is(err, cloud.ErrResponseTooLarge):
		info := model.NewError(model.CategoryProtocol, classify.MsgBadResponse)
		info.Cause = err
		return classify.Fatal(info)
	case errors.Is(err, cloud.ErrInvalidURL):
		info := model.ConfigError("endpoint", err.Error())
		info.Cause = err
		return classify.Fatal(info)
	default:
		return parts.classifier.ClassifyError(ctx, err)
	}
}

// Reply is the result of SendPromptAsync.
type Reply struct {
	Text string
	Err  error
}

// SendPromptAsync runs SendPrompt in a new goroutine. The returned channel
// receives exactly one Reply and is then closed.
func (c *Client) SendPromptAsync(ctx context.Context, prompt string) <-chan Reply {
	ch := make(chan Reply, 1)
	go func() {
		defer close(ch)
		text, err := c.SendPrompt(ctx, prompt)
		ch <- Reply{Text: text, Err: err}
	}()
	return ch
}

// ClearHistory drops every message except the system prompt.
func (c *Client) ClearHistory() {
	c.history.Clear()
}

// History returns a copy of the conversation.
func (c *Client) History() []model.Message {
	return c.history.Snapshot()
}

// Busy reports whether a SendPrompt is in flight.
func (c *Client) Busy() bool {
	if c.guard.TryLock() {
		c.guard.Unlock()
		return false
	}
	return true
}

// Reconfigure swaps endpoint, credentials, sampling, classifier and retry
// settings, and applies the window size and system prompt to the existing
// history. It waits for an in-flight call to finish. On error nothing
// changes. opts.Transport is ignored.
func (c *Client) Reconfigure(opts Options) error {
	parts, err := buildComponents(opts)
	if err != nil {
		return err
	}

	c.guard.Lock()
	defer c.guard.Unlock()

	c.mu.Lock()
	c.parts = parts
	c.mu.Unlock()

	if opts.History.MaxTurns > 0 {
		c.history.SetMaxTurns(opts.History.MaxTurns)
	}
	if sp := opts.History.SystemPrompt; sp != "" {
		if cur, ok := c.history.System(); !ok || cur.Content != sp {
			c.history.Append(model.RoleSystem, sp)
		}
	}
	return nil
}

// Sampling returns the current sampling parameters.
func (c *Client) Sampling() request.Sampling {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.parts.builder.Sampling()
}
