// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package request

import (
	"fmt"
	"math"
	"strings"

	"github.com/jeranaias/xion/internal/model"
)

// Valid ranges for sampling parameters.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
	MinPenalty     = -2.0
	MaxPenalty     = 2.0
)

// Sampling holds the model name and generation parameters. Pointer fields
// are optional and omitted from the payload when nil.
type Sampling struct {
	Model             string   `toml:"model" json:"model"`
	Temperature       float64  `toml:"temperature" json:"temperature"`
	MaxTokens         int      `toml:"max_tokens" json:"max_tokens"`
	TopP              *float64 `toml:"top_p,omitempty" json:"top_p,omitempty"`
	PresencePenalty   *float64 `toml:"presence_penalty,omitempty" json:"presence_penalty,omitempty"`
	FrequencyPenalty  *float64 `toml:"frequency_penalty,omitempty" json:"frequency_penalty,omitempty"`
	RepetitionPenalty *float64 `toml:"repetition_penalty,omitempty" json:"repetition_penalty,omitempty"`
}

// Float returns a pointer to v, for filling optional Sampling fields.
func Float(v float64) *float64 {
	return &v
}

// Validate checks every parameter range and returns a Config category
// *model.ErrorInfo for the first violation.
func (s Sampling) Validate() error {
	if strings.TrimSpace(s.Model) == "" {
		return model.ConfigError("model", "must not be empty")
	}
	// Ranges are written as !(in range) so NaN is rejected too.
	if !(s.Temperature >= MinTemperature && s.Temperature <= MaxTemperature) {
		return model.ConfigError("temperature",
			fmt.Sprintf("must be between %g and %g, got %g", MinTemperature, MaxTemperature, s.Temperature))
	}
	if s.MaxTokens <= 0 {
		return model.ConfigError("max_tokens", fmt.Sprintf("must be positive, got %d", s.MaxTokens))
	}
	if s.TopP != nil && !(*s.TopP > 0 && *s.TopP <= 1) {
		return model.ConfigError("top_p", fmt.Sprintf("must be in (0, 1], got %g", *s.TopP))
	}
	if err := validatePenalty("presence_penalty", s.PresencePenalty); err != nil {
		return err
	}
	if err := validatePenalty("frequency_penalty", s.FrequencyPenalty); err != nil {
		return err
	}
	if s.RepetitionPenalty != nil && !(*s.RepetitionPenalty > 0 && !math.IsInf(*s.RepetitionPenalty, 1)) {
		return model.ConfigError("repetition_penalty", fmt.Sprintf("must be positive, got %g", *s.RepetitionPenalty))
	}
	return nil
}

func validatePenalty(field string, v *float64) error {
	if v == nil {
		return nil
	}
	if !(*v >= MinPenalty && *v <= MaxPenalty) {
		return model.ConfigError(field, fmt.Sprintf("must be between %g and %g, got %g", MinPenalty, MaxPenalty, *v))
	}
	return nil
}

// Clone returns a deep copy of s.
func (s Sampling) Clone() Sampling {
	c := s
	c.TopP = cloneFloat(s.TopP)
	c.PresencePenalty = cloneFloat(s.PresencePenalty)
	c.FrequencyPenalty = cloneFloat(s.FrequencyPenalty)
	c.RepetitionPenalty = cloneFloat(s.RepetitionPenalty)
	return c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
