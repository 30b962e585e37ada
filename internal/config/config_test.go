// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/xion/internal/request"
	"github.com/jeranaias/xion/internal/retry"
)

// isolate points the config dir at a temp dir and clears every variable
// ApplyEnvOverrides reads.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XION_HOME", dir)
	for _, k := range []string{
		"XION_BACKEND", "OPENAI_API_KEY", "HF_API_KEY", "HUGGINGFACE_API_KEY",
		"XION_API_KEY", "XION_MODEL", "XION_BASE_URL", "XION_SYSTEM_PROMPT",
		"XION_LOG_LEVEL", "XION_TELEMETRY",
	} {
		t.Setenv(k, "")
	}
	return dir
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, BackendOpenAI, cfg.Backend)
	assert.Equal(t, DefaultSystemPrompt, cfg.SystemPrompt)

	oa := cfg.OpenAI
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", oa.Endpoint())
	assert.Equal(t, "gpt-3.5-turbo", oa.Sampling.Model)
	assert.Equal(t, 0.7, oa.Sampling.Temperature)
	assert.Equal(t, 100, oa.Sampling.MaxTokens)
	assert.Equal(t, 0.6, *oa.Sampling.PresencePenalty)
	assert.Equal(t, 0.6, *oa.Sampling.FrequencyPenalty)
	assert.Equal(t, 5, oa.MaxTurns)

	hf := cfg.HuggingFace
	assert.Equal(t, "https://api-inference.huggingface.co/models/microsoft/DialoGPT-small", hf.Endpoint())
	assert.Equal(t, 0.9, *hf.Sampling.TopP)
	assert.Equal(t, 1.2, *hf.Sampling.RepetitionPenalty)
	assert.Equal(t, 2, hf.MaxTurns)
	f, err := hf.RequestFormat()
	require.NoError(t, err)
	assert.Equal(t, request.FormatInference, f)
}

func TestRetryPolicy(t *testing.T) {
	cfg := Default()

	p, err := cfg.OpenAI.RetryPolicy()
	require.NoError(t, err)
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 5*time.Second, p.Backoff(1))
	assert.Equal(t, 10*time.Second, p.Backoff(2))

	p, err = cfg.HuggingFace.RetryPolicy()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(3))

	cfg.OpenAI.Retry.Policy = "linear"
	_, err = cfg.OpenAI.RetryPolicy()
	assert.Error(t, err)
}

func TestActive(t *testing.T) {
	cfg := Default()
	b, err := cfg.Active()
	require.NoError(t, err)
	assert.Same(t, &cfg.OpenAI, b)

	cfg.Backend = "HuggingFace"
	b, err = cfg.Active()
	require.NoError(t, err)
	assert.Same(t, &cfg.HuggingFace, b)

	cfg.Backend = "ollama"
	_, err = cfg.Active()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown backend", func(c *Config) { c.Backend = "x" }, "backend"},
		{"bad base url", func(c *Config) { c.OpenAI.BaseURL = "ftp://x" }, "openai.base_url"},
		{"bad format", func(c *Config) { c.HuggingFace.Format = "grpc" }, "huggingface.format"},
		{"zero turns", func(c *Config) { c.OpenAI.MaxTurns = 0 }, "openai.max_turns"},
		{"temperature", func(c *Config) { c.OpenAI.Sampling.Temperature = 3 }, "openai.sampling"},
		{"temperature NaN", func(c *Config) { _ = c.Set("openai.sampling.temperature", "NaN") }, "openai.sampling"},
		{"top_p NaN", func(c *Config) { _ = c.Set("huggingface.sampling.top_p", "nan") }, "huggingface.sampling"},
		{"attempts", func(c *Config) { c.HuggingFace.Retry.MaxAttempts = 0 }, "huggingface.retry"},
		{"log level", func(c *Config) { c.Telemetry.LogLevel = "loud" }, "telemetry.log_level"},
		{"log format", func(c *Config) { c.Telemetry.LogFormat = "xml" }, "telemetry.log_format"},
		{"rps", func(c *Config) { c.Transport.RequestsPerSecond = -1 }, "transport.requests_per_second"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)

			var verrs ValidateErrors
			require.ErrorAs(t, err, &verrs)
			var fields []string
			for _, e := range verrs {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("XION_BACKEND", "huggingface")
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("HF_API_KEY", "hf_token")
	t.Setenv("XION_MODEL", "gpt2")
	t.Setenv("XION_LOG_LEVEL", "debug")
	t.Setenv("XION_TELEMETRY", "false")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, BackendHuggingFace, cfg.Backend)
	assert.Equal(t, "sk-openai", cfg.OpenAI.APIKey)
	assert.Equal(t, "hf_token", cfg.HuggingFace.APIKey)
	// XION_MODEL applies to the active backend only
	assert.Equal(t, "gpt2", cfg.HuggingFace.Sampling.Model)
	assert.Equal(t, "gpt-3.5-turbo", cfg.OpenAI.Sampling.Model)
	assert.Equal(t, "debug", cfg.Telemetry.LogLevel)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoadEnvFiles(t *testing.T) {
	dir := isolate(t)
	envPath := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("XION_DOTENV_PROBE=from-file\nXION_MODEL=gpt-4o\n"), 0600))
	t.Setenv("XION_MODEL", "already-set")
	t.Cleanup(func() { os.Unsetenv("XION_DOTENV_PROBE") })

	require.NoError(t, LoadEnvFiles(filepath.Join(dir, "missing.env"), envPath))
	assert.Equal(t, "from-file", os.Getenv("XION_DOTENV_PROBE"))
	assert.Equal(t, "already-set", os.Getenv("XION_MODEL"))
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	isolate(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default().OpenAI.Endpoint(), cfg.OpenAI.Endpoint())
}

func TestSaveLoadTOML(t *testing.T) {
	dir := isolate(t)

	cfg := Default()
	cfg.Backend = BackendHuggingFace
	cfg.HuggingFace.APIKey = "hf_secret"
	cfg.HuggingFace.Sampling.Model = "gpt2"
	cfg.HuggingFace.Retry.HonorRetryAfter = true
	cfg.OpenAI.Sampling.TopP = nil
	require.NoError(t, Save(cfg))

	path := filepath.Join(dir, "config.toml")
	info, err := os.Stat(path)
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendHuggingFace, loaded.Backend)
	assert.Equal(t, "hf_secret", loaded.HuggingFace.APIKey)
	assert.Equal(t, "https://api-inference.huggingface.co/models/gpt2", loaded.HuggingFace.Endpoint())
	assert.True(t, loaded.HuggingFace.Retry.HonorRetryAfter)
	assert.Equal(t, 2*time.Second, loaded.HuggingFace.Retry.BaseDelay.Duration)
	assert.Nil(t, loaded.OpenAI.Sampling.TopP)
	assert.Equal(t, 0.6, *loaded.OpenAI.Sampling.PresencePenalty)
}

func TestLoadFromPath_PartialFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "partial.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend = "openai"

[openai.sampling]
model = "gpt-4o-mini"

[openai.retry]
policy = "fixed"
base_delay = "250ms"
`), 0600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.OpenAI.Sampling.Model)
	assert.Equal(t, 0.7, cfg.OpenAI.Sampling.Temperature)
	assert.Equal(t, 5, cfg.OpenAI.MaxTurns)

	p, err := cfg.OpenAI.RetryPolicy()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, p.Backoff(3))
}

func TestLoadFromPath_Rejects(t *testing.T) {
	dir := isolate(t)

	unknown := filepath.Join(dir, "unknown.toml")
	require.NoError(t, os.WriteFile(unknown, []byte("colour = \"blue\"\n"), 0600))
	_, err := LoadFromPath(unknown)
	assert.ErrorContains(t, err, "colour")

	invalid := filepath.Join(dir, "invalid.toml")
	require.NoError(t, os.WriteFile(invalid, []byte("[openai.sampling]\ntemperature = 9.0\n"), 0600))
	_, err = LoadFromPath(invalid)
	assert.ErrorContains(t, err, "openai.sampling")

	badDur := filepath.Join(dir, "dur.toml")
	require.NoError(t, os.WriteFile(badDur, []byte("[transport]\ntimeout = \"soon\"\n"), 0600))
	_, err = LoadFromPath(badDur)
	assert.Error(t, err)
}

func TestSaveLoadJSON(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.json")

	cfg := Default()
	cfg.Transport.RequestsPerSecond = 2.5
	require.NoError(t, SaveJSON(cfg, path))

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, 2.5, loaded.Transport.RequestsPerSecond)
	assert.Equal(t, 60*time.Second, loaded.Transport.Timeout.Duration)
}

func TestGetSet(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("openai.sampling.temperature", "0.2"))
	v, err := cfg.Get("openai.sampling.temperature")
	require.NoError(t, err)
	assert.Equal(t, 0.2, v)

	require.NoError(t, cfg.Set("huggingface.max-turns", "4"))
	assert.Equal(t, 4, cfg.HuggingFace.MaxTurns)

	require.NoError(t, cfg.Set("openai.retry.base_delay", "750ms"))
	assert.Equal(t, 750*time.Millisecond, cfg.OpenAI.Retry.BaseDelay.Duration)

	require.NoError(t, cfg.Set("openai.sampling.top_p", "0.5"))
	require.NotNil(t, cfg.OpenAI.Sampling.TopP)
	assert.Equal(t, 0.5, *cfg.OpenAI.Sampling.TopP)
	require.NoError(t, cfg.Set("openai.sampling.top_p", ""))
	assert.Nil(t, cfg.OpenAI.Sampling.TopP)

	require.NoError(t, cfg.Set("telemetry.enabled", "false"))
	assert.False(t, cfg.Telemetry.Enabled)
	require.NoError(t, cfg.Set("telemetry.enabled", "Yes"))
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Error(t, cfg.Set("telemetry.enabled", "ture"))
	assert.True(t, cfg.Telemetry.Enabled, "a rejected value leaves the field alone")
	require.NoError(t, cfg.Set("telemetry.enabled", "no"))
	assert.False(t, cfg.Telemetry.Enabled)

	_, err = cfg.Get("openai.nope")
	assert.Error(t, err)
	assert.Error(t, cfg.Set("openai.max_turns.x", "1"))
	assert.Error(t, cfg.Set("openai.max_turns", "many"))
	_, err = cfg.Get("")
	assert.Error(t, err)
}

func TestAllKeys(t *testing.T) {
	keys := AllKeys()
	assert.Contains(t, keys, "backend")
	assert.Contains(t, keys, "openai.sampling.repetition_penalty")
	assert.Contains(t, keys, "huggingface.retry.max_retry_after")
	assert.Contains(t, keys, "transport.timeout")
	assert.NotContains(t, keys, "transport.timeout.duration")

	cfg := Default()
	for _, k := range keys {
		_, err := cfg.Get(k)
		assert.NoError(t, err, k)
	}
}

func TestCloneIsDeep(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	*clone.OpenAI.Sampling.PresencePenalty = 1.5
	clone.HuggingFace.MaxTurns = 9

	assert.Equal(t, 0.6, *cfg.OpenAI.Sampling.PresencePenalty)
	assert.Equal(t, 2, cfg.HuggingFace.MaxTurns)
}

func TestStringRedactsKeys(t *testing.T) {
	cfg := Default()
	cfg.OpenAI.APIKey = "sk-very-secret"
	cfg.HuggingFace.APIKey = "hf_very_secret"

	out := cfg.String()
	assert.NotContains(t, out, "sk-very-secret")
	assert.NotContains(t, out, "hf_very_secret")
	assert.Contains(t, out, "[REDACTED]")
	assert.Equal(t, "sk-very-secret", cfg.OpenAI.APIKey)
}

func TestWatchReloads(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, SaveTOML(Default(), path))

	changes := make(chan *Config, 4)
	w, err := Watch(path, 50*time.Millisecond, func(cfg *Config, err error) {
		if err == nil {
			changes <- cfg
		}
	})
	require.NoError(t, err)
	defer w.Close()

	cfg := Default()
	cfg.OpenAI.MaxTurns = 8
	require.NoError(t, SaveTOML(cfg, path))

	select {
	case got := <-changes:
		assert.Equal(t, 8, got.OpenAI.MaxTurns)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the change")
	}
}

func TestWatchIgnoresOtherFiles(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, SaveTOML(Default(), path))

	called := make(chan struct{}, 1)
	w, err := Watch(path, 20*time.Millisecond, func(*Config, error) {
		select {
		case called <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600))
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, w.Close())

	select {
	case <-called:
		t.Error("onChange fired for an unrelated file")
	default:
	}
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte(" 1m30s ")))
	assert.Equal(t, 90*time.Second, d.Duration)

	out, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(out))

	assert.Error(t, d.UnmarshalText([]byte("later")))
	assert.True(t, strings.HasPrefix(Dur(retry.DefaultBaseDelay).String(), "5s"))
}

func TestReadFile_SkipsEnvironment(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")

	cfg, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Backend, cfg.Backend)

	require.NoError(t, SaveTOML(cfg, path))
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	cfg, err = ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.OpenAI.APIKey)

	cfg, err = LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.OpenAI.APIKey)
}
