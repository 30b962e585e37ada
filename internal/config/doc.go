// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for xion.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// .env files, environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - BackendConfig: One provider profile (endpoint, sampling, retry)
//   - TransportConfig: HTTP timeout, pacing and size limit
//   - TelemetryConfig: Log level and attempt store settings
//   - Watcher: Reloads the file when it changes
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (XION_*, OPENAI_API_KEY, HF_API_KEY)
//   - .env files (variables already set win)
//   - ~/.xion/config.toml
//   - ~/.xion/config.json
//   - Built-in defaults
//
// # Usage
//
// Load configuration:
//
//	_ = config.LoadEnvFiles()
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	backend, _ := cfg.Active()
//	fmt.Println(backend.Endpoint())
//
// Get/Set by key:
//
//	cfg.Set("openai.sampling.temperature", "0.2")
//	v, _ := cfg.Get("huggingface.max_turns")
package config
