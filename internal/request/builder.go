// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package request

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/xion/internal/model"
)

// =============================================================================
// FORMATS
// =============================================================================

// Format selects the wire shape of the request body.
type Format string

const (
	FormatChat      Format = "chat"
	FormatInference Format = "inference"
)

// ParseFormat converts a config string to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatChat, FormatInference:
		return f, nil
	case "":
		return FormatChat, nil
	default:
		return "", model.ConfigError("format", fmt.Sprintf("unknown request format %q (want chat or inference)", s))
	}
}

// =============================================================================
// WIRE TYPES
// =============================================================================

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model            string        `json:"model"`
	Messages         []chatMessage `json:"messages"`
	Temperature      float64       `json:"temperature"`
	MaxTokens        int           `json:"max_tokens"`
	TopP             *float64      `json:"top_p,omitempty"`
	PresencePenalty  *float64      `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64      `json:"frequency_penalty,omitempty"`
}

type inferenceParameters struct {
	Temperature       float64  `json:"temperature"`
	TopP              *float64 `json:"top_p,omitempty"`
	MaxNewTokens      int      `json:"max_new_tokens"`
	RepetitionPenalty *float64 `json:"repetition_penalty,omitempty"`
	DoSample          bool     `json:"do_sample"`
	ReturnFullText    bool     `json:"return_full_text"`
}

type inferenceRequest struct {
	Inputs     string              `json:"inputs"`
	Parameters inferenceParameters `json:"parameters"`
}

// =============================================================================
// BUILDER
// =============================================================================

// Payload is the serialized request for one attempt.
type Payload struct {
	Format Format
	Body   []byte
	// Messages is the conversation the body was built from, prompt included.
	Messages []model.Message
}

// Builder turns a history snapshot and a prompt into a Payload.
// A Builder is immutable and safe for concurrent use.
type Builder struct {
	format   Format
	sampling Sampling
}

// NewBuilder validates the sampling parameters and returns a Builder.
func NewBuilder(format Format, sampling Sampling) (*Builder, error) {
	if format == "" {
		format = FormatChat
	}
	if _, err := ParseFormat(string(format)); err != nil {
		return nil, err
	}
	if err := sampling.Validate(); err != nil {
		return nil, err
	}
	return &Builder{format: format, sampling: sampling.Clone()}, nil
}

// Format returns the builder's wire format.
func (b *Builder) Format() Format {
	return b.format
}

// Sampling returns a copy of the builder's parameters.
func (b *Builder) Sampling() Sampling {
	return b.sampling.Clone()
}

// NormalizePrompt trims the prompt and converts it to Unicode NFC.
func NormalizePrompt(prompt string) string {
	return norm.NFC.String(strings.TrimSpace(prompt))
}

// Build appends the prompt as a user message to a copy of snapshot and
// serializes it. snapshot is not modified.
func (b *Builder) Build(snapshot []model.Message, prompt string) (Payload, error) {
	prompt = NormalizePrompt(prompt)
	if prompt == "" {
		return Payload{}, model.NewError(model.CategoryProtocol, "empty input")
	}

	msgs := make([]model.Message, len(snapshot), len(snapshot)+1)
	copy(msgs, snapshot)
	// The prompt is not yet part of the history, so it has no sequence index.
	msgs = append(msgs, model.Message{Role: model.RoleUser, Content: prompt})

	var v any
	switch b.format {
	case FormatInference:
		v = b.inferenceBody(msgs)
	default:
		v = b.chatBody(msgs)
	}

	body, err := json.Marshal(v)
	if err != nil {
		info := model.NewError(model.CategoryProtocol, "failed to encode request")
		info.Cause = fmt.Errorf("marshal %s request: %w", b.format, err)
		return Payload{}, info
	}

	return Payload{Format: b.format, Body: body, Messages: msgs}, nil
}

func (b *Builder) chatBody(msgs []model.Message) chatRequest {
	wire := make([]chatMessage, len(msgs))
	for i, m := range msgs {
		wire[i] = chatMessage{Role: m.Role.String(), Content: m.Content}
	}
	return chatRequest{
		Model:            b.sampling.Model,
		Messages:         wire,
		Temperature:      b.sampling.Temperature,
		MaxTokens:        b.sampling.MaxTokens,
		TopP:             b.sampling.TopP,
		PresencePenalty:  b.sampling.PresencePenalty,
		FrequencyPenalty: b.sampling.FrequencyPenalty,
	}
}

// Text generation endpoints take one flat string; the system prompt is not
// part of it.
func (b *Builder) inferenceBody(msgs []model.Message) inferenceRequest {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.IsSystem() {
			continue
		}
		parts = append(parts, m.Content)
	}
	return inferenceRequest{
		Inputs: strings.Join(parts, " "),
		Parameters: inferenceParameters{
			Temperature:       b.sampling.Temperature,
			TopP:              b.sampling.TopP,
			MaxNewTokens:      b.sampling.MaxTokens,
			RepetitionPenalty: b.sampling.RepetitionPenalty,
			DoSample:          true,
			ReturnFullText:    false,
		},
	}
}
