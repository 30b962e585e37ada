// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/xion/internal/classify"
	"github.com/jeranaias/xion/internal/request"
	"github.com/jeranaias/xion/internal/retry"
	"github.com/jeranaias/xion/internal/util"
)

// Backend names.
const (
	BackendOpenAI      = "openai"
	BackendHuggingFace = "huggingface"
)

// DefaultSystemPrompt keeps answers short to save tokens.
const DefaultSystemPrompt = "You are a helpful AI assistant. Keep your responses concise and focused. Use minimal tokens while maintaining clarity."

// CurrentVersion is written into new config files.
const CurrentVersion = "1"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete xion configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Backend selects which profile below is used
	Backend      string `toml:"backend" json:"backend"`
	SystemPrompt string `toml:"system_prompt" json:"system_prompt"`

	OpenAI      BackendConfig `toml:"openai" json:"openai"`
	HuggingFace BackendConfig `toml:"huggingface" json:"huggingface"`

	Transport TransportConfig `toml:"transport" json:"transport"`
	Telemetry TelemetryConfig `toml:"telemetry" json:"telemetry"`
}

// BackendConfig is one provider profile.
type BackendConfig struct {
	APIKey  string `toml:"api_key" json:"api_key"`
	BaseURL string `toml:"base_url" json:"base_url"`

	// Format is "chat" or "inference"
	Format string `toml:"format" json:"format"`
	// ResponsePath is the gjson path of the completion text
	ResponsePath string `toml:"response_path" json:"response_path"`
	// MaxTurns bounds the non-system messages kept in history
	MaxTurns int `toml:"max_turns" json:"max_turns"`

	Sampling request.Sampling `toml:"sampling" json:"sampling"`
	Retry    RetryConfig      `toml:"retry" json:"retry"`
}

// RetryConfig configures the retry scheduler.
type RetryConfig struct {
	MaxAttempts int `toml:"max_attempts" json:"max_attempts"`
	// Policy is "fixed" or "exponential"
	Policy            string   `toml:"policy" json:"policy"`
	BaseDelay         Duration `toml:"base_delay" json:"base_delay"`
	MaxDelay          Duration `toml:"max_delay" json:"max_delay"`
	RetryServerErrors bool     `toml:"retry_server_errors" json:"retry_server_errors"`
	HonorRetryAfter   bool     `toml:"honor_retry_after" json:"honor_retry_after"`
	MaxRetryAfter     Duration `toml:"max_retry_after" json:"max_retry_after"`
}

// TransportConfig configures the HTTP client.
type TransportConfig struct {
	Timeout           Duration `toml:"timeout" json:"timeout"`
	RequestsPerSecond float64  `toml:"requests_per_second" json:"requests_per_second"`
	Burst             int      `toml:"burst" json:"burst"`
	MaxResponseBytes  int64    `toml:"max_response_bytes" json:"max_response_bytes"`
}

// TelemetryConfig configures logging and the attempt store.
type TelemetryConfig struct {
	Enabled       bool   `toml:"enabled" json:"enabled"`
	DatabasePath  string `toml:"database_path" json:"database_path"`
	RetentionDays int    `toml:"retention_days" json:"retention_days"`
	LogLevel      string `toml:"log_level" json:"log_level"`
	LogFormat     string `toml:"log_format" json:"log_format"`
}

// =============================================================================
// DURATION
// =============================================================================

// Duration is a time.Duration written as a Go duration string ("5s").
type Duration struct {
	time.Duration
}

// Dur wraps d.
func Dur(d time.Duration) Duration {
	return Duration{d}
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

// =============================================================================
// DEFAULTS
// =============================================================================

// DefaultOpenAI returns the OpenAI chat completions profile.
func DefaultOpenAI() BackendConfig {
	return BackendConfig{
		BaseURL:      "https://api.openai.com/v1",
		Format:       string(request.FormatChat),
		ResponsePath: classify.PathChat,
		MaxTurns:     5,
		Sampling: request.Sampling{
			Model:            "gpt-3.5-turbo",
			Temperature:      0.7,
			MaxTokens:        100,
			PresencePenalty:  request.Float(0.6),
			FrequencyPenalty: request.Float(0.6),
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			Policy:      string(retry.KindExponential),
			BaseDelay:   Dur(5 * time.Second),
			MaxDelay:    Dur(60 * time.Second),
		},
	}
}

// DefaultHuggingFace returns the HuggingFace inference profile.
func DefaultHuggingFace() BackendConfig {
	return BackendConfig{
		BaseURL:      "https://api-inference.huggingface.co/models",
		Format:       string(request.FormatInference),
		ResponsePath: classify.PathGeneratedText,
		MaxTurns:     2,
		Sampling: request.Sampling{
			Model:             "microsoft/DialoGPT-small",
			Temperature:       0.7,
			MaxTokens:         100,
			TopP:              request.Float(0.9),
			RepetitionPenalty: request.Float(1.2),
		},
		Retry: RetryConfig{
			MaxAttempts:   3,
			Policy:        string(retry.KindFixed),
			BaseDelay:     Dur(2 * time.Second),
			MaxRetryAfter: Dur(30 * time.Second),
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version:      CurrentVersion,
		Backend:      BackendOpenAI,
		SystemPrompt: DefaultSystemPrompt,
		OpenAI:       DefaultOpenAI(),
		HuggingFace:  DefaultHuggingFace(),
		Transport: TransportConfig{
			Timeout:          Dur(60 * time.Second),
			Burst:            1,
			MaxResponseBytes: 10 * 1024 * 1024,
		},
		Telemetry: TelemetryConfig{
			Enabled:       true,
			RetentionDays: 30,
			LogLevel:      "warn",
			LogFormat:     "text",
		},
	}
}

// =============================================================================
// BACKEND HELPERS
// =============================================================================

// Active returns the selected backend profile.
func (c *Config) Active() (*BackendConfig, error) {
	switch strings.ToLower(c.Backend) {
	case BackendOpenAI:
		return &c.OpenAI, nil
	case BackendHuggingFace:
		return &c.HuggingFace, nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendOpenAI, BackendHuggingFace)
	}
}

// RequestFormat parses Format.
func (b *BackendConfig) RequestFormat() (request.Format, error) {
	return request.ParseFormat(b.Format)
}

// Endpoint returns the full completion URL: base_url/chat/completions for
// chat, base_url/<model> for inference.
func (b *BackendConfig) Endpoint() string {
	base := strings.TrimRight(b.BaseURL, "/")
	if f, _ := b.RequestFormat(); f == request.FormatInference {
		return base + "/" + b.Sampling.Model
	}
	return base + "/chat/completions"
}

// RetryPolicy converts the retry settings.
func (b *BackendConfig) RetryPolicy() (retry.Policy, error) {
	kind, err := retry.ParseKind(b.Retry.Policy)
	if err != nil {
		return retry.Policy{}, err
	}
	p := retry.Policy{
		MaxAttempts:     b.Retry.MaxAttempts,
		Backoff:         retry.NewBackoff(kind, b.Retry.BaseDelay.Duration, b.Retry.MaxDelay.Duration),
		HonorRetryAfter: b.Retry.HonorRetryAfter,
		MaxRetryAfter:   b.Retry.MaxRetryAfter.Duration,
	}
	return p, p.Validate()
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the xion configuration directory. XION_HOME overrides
// the default ~/.xion.
func ConfigDir() (string, error) {
	if dir := os.Getenv("XION_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".xion"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// DatabasePath returns the telemetry database path, defaulting to
// <config dir>/telemetry.db.
func (c *Config) DatabasePath() (string, error) {
	if c.Telemetry.DatabasePath != "" {
		return c.Telemetry.DatabasePath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "telemetry.db"), nil
}

// ensureSecurePermissions checks and fixes permissions on config files.
// SECURITY: Config files should be 0600 (owner read/write only) to protect API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default location. Tries TOML first,
// then JSON, and falls back to defaults. Environment overrides are applied
// last.
func Load() (*Config, error) {
	for _, pathFn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON} {
		path, err := pathFn()
		if err != nil {
			continue
		}
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file with full
// validation. Values missing from the file keep their defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadFile loads a config file without environment overrides, for editing
// and saving back. A missing file yields the defaults.
func ReadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	cfg, err := readFile(path)
	if err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	return cfg, nil
}

func readFile(path string) (*Config, error) {
	cfg := Default()

	var err error
	if strings.HasSuffix(path, ".json") {
		err = LoadJSON(cfg, path)
	} else {
		err = LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return cfg, nil
}

// finish applies environment overrides, defaults and validation.
func (c *Config) finish() error {
	c.ApplyEnvOverrides()
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadTOML decodes a TOML file into cfg.
// SECURITY: Checks and fixes file permissions on load.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// LoadJSON decodes a JSON file into cfg.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// SetDefaults fills zero values that would otherwise fail validation.
func (c *Config) SetDefaults() {
	if c.Version == "" {
		c.Version = CurrentVersion
	}
	if c.Backend == "" {
		c.Backend = BackendOpenAI
	}
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))

	fillBackend(&c.OpenAI, DefaultOpenAI())
	fillBackend(&c.HuggingFace, DefaultHuggingFace())

	if c.Transport.Burst < 1 {
		c.Transport.Burst = 1
	}
	if c.Transport.MaxResponseBytes <= 0 {
		c.Transport.MaxResponseBytes = Default().Transport.MaxResponseBytes
	}
	if c.Telemetry.LogLevel == "" {
		c.Telemetry.LogLevel = "warn"
	}
	if c.Telemetry.LogFormat == "" {
		c.Telemetry.LogFormat = "text"
	}
}

func fillBackend(b *BackendConfig, d BackendConfig) {
	if b.BaseURL == "" {
		b.BaseURL = d.BaseURL
	}
	if b.Format == "" {
		b.Format = d.Format
	}
	if b.ResponsePath == "" {
		b.ResponsePath = d.ResponsePath
	}
	if b.MaxTurns == 0 {
		b.MaxTurns = d.MaxTurns
	}
	if b.Sampling.Model == "" {
		b.Sampling.Model = d.Sampling.Model
	}
	if b.Sampling.MaxTokens == 0 {
		b.Sampling.MaxTokens = d.Sampling.MaxTokens
	}
	if b.Retry.MaxAttempts == 0 {
		b.Retry.MaxAttempts = d.Retry.MaxAttempts
	}
	if b.Retry.Policy == "" {
		b.Retry.Policy = d.Retry.Policy
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# xion configuration file\n")
	buf.WriteString("# Generated by xion - edit with care\n")
	buf.WriteString("#\n")
	buf.WriteString("# API keys may also come from OPENAI_API_KEY, HF_API_KEY or a .env file.\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
func SaveJSON(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, data, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns ValidateErrors if
// anything is wrong.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if _, err := c.Active(); err != nil {
		errs = append(errs, ValidationError{Field: "backend", Message: err.Error()})
	}

	errs = append(errs, c.OpenAI.validate(BackendOpenAI)...)
	errs = append(errs, c.HuggingFace.validate(BackendHuggingFace)...)

	if c.Transport.Timeout.Duration < 0 {
		errs = append(errs, ValidationError{Field: "transport.timeout", Message: "must not be negative"})
	}
	if c.Transport.RequestsPerSecond < 0 {
		errs = append(errs, ValidationError{Field: "transport.requests_per_second", Message: "must not be negative"})
	}

	switch strings.ToLower(c.Telemetry.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "telemetry.log_level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Telemetry.LogLevel),
		})
	}
	switch strings.ToLower(c.Telemetry.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "telemetry.log_format",
			Message: fmt.Sprintf("invalid format '%s', must be one of: text, json", c.Telemetry.LogFormat),
		})
	}
	if c.Telemetry.RetentionDays < 0 {
		errs = append(errs, ValidationError{Field: "telemetry.retention_days", Message: "must not be negative"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (b *BackendConfig) validate(prefix string) ValidateErrors {
	var errs ValidateErrors
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: prefix + "." + field, Message: msg})
	}

	if u, err := url.Parse(b.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("base_url", fmt.Sprintf("invalid URL '%s', must be http(s)://host[/path]", b.BaseURL))
	}
	if _, err := b.RequestFormat(); err != nil {
		add("format", err.Error())
	}
	if b.MaxTurns < 1 {
		add("max_turns", fmt.Sprintf("must be at least 1, got %d", b.MaxTurns))
	}
	if err := b.Sampling.Validate(); err != nil {
		add("sampling", err.Error())
	}
	if _, err := b.RetryPolicy(); err != nil {
		add("retry", err.Error())
	}
	if b.Retry.BaseDelay.Duration < 0 || b.Retry.MaxDelay.Duration < 0 {
		add("retry", "delays must not be negative")
	}
	return errs
}

// =============================================================================
// DISPLAY
// =============================================================================

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	clone.OpenAI.Sampling = c.OpenAI.Sampling.Clone()
	clone.HuggingFace.Sampling = c.HuggingFace.Sampling.Clone()
	return &clone
}

// Redacted returns a copy with API keys replaced.
// SECURITY: Secrets must not appear in any output that could be logged or displayed.
func (c *Config) Redacted() *Config {
	safe := c.Clone()
	for _, b := range []*BackendConfig{&safe.OpenAI, &safe.HuggingFace} {
		if b.APIKey != "" {
			b.APIKey = "[REDACTED]"
		}
	}
	return safe
}

// String returns the redacted configuration as TOML.
func (c *Config) String() string {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c.Redacted()); err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return buf.String()
}
