// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// =============================================================================
// ENVIRONMENT
// =============================================================================

// LoadEnvFiles loads KEY=VALUE pairs from .env files into the process
// environment. Variables that are already set win. Missing files are
// skipped; with no paths, ./.env and <config dir>/.env are tried.
// SECURITY: .env files hold API keys, keep them out of version control.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
		if dir, err := ConfigDir(); err == nil {
			paths = append(paths, dir+string(os.PathSeparator)+".env")
		}
	}

	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - XION_BACKEND: selects the backend (applied first)
//   - OPENAI_API_KEY: overrides openai.api_key
//   - HF_API_KEY, HUGGINGFACE_API_KEY: override huggingface.api_key
//   - XION_API_KEY: overrides the active backend's api_key
//   - XION_MODEL: overrides the active backend's sampling.model
//   - XION_BASE_URL: overrides the active backend's base_url
//   - XION_SYSTEM_PROMPT: overrides system_prompt
//   - XION_LOG_LEVEL: overrides telemetry.log_level
//   - XION_TELEMETRY: enables or disables the attempt store
func (c *Config) ApplyEnvOverrides() {
	if backend := os.Getenv("XION_BACKEND"); backend != "" {
		c.Backend = strings.ToLower(strings.TrimSpace(backend))
	}

	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.OpenAI.APIKey = key
	}
	if key := os.Getenv("HUGGINGFACE_API_KEY"); key != "" {
		c.HuggingFace.APIKey = key
	}
	// HF_API_KEY is the name the HuggingFace docs use
	if key := os.Getenv("HF_API_KEY"); key != "" {
		c.HuggingFace.APIKey = key
	}

	if active, err := c.Active(); err == nil {
		if key := os.Getenv("XION_API_KEY"); key != "" {
			active.APIKey = key
		}
		if model := os.Getenv("XION_MODEL"); model != "" {
			active.Sampling.Model = model
		}
		if base := os.Getenv("XION_BASE_URL"); base != "" {
			active.BaseURL = base
		}
	}

	if prompt := os.Getenv("XION_SYSTEM_PROMPT"); prompt != "" {
		c.SystemPrompt = prompt
	}
	if level := os.Getenv("XION_LOG_LEVEL"); level != "" {
		c.Telemetry.LogLevel = level
	}
	if enabled := os.Getenv("XION_TELEMETRY"); enabled != "" {
		if v, err := strconv.ParseBool(enabled); err == nil {
			c.Telemetry.Enabled = v
		}
	}
}
