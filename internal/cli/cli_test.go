// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/xion/internal/chat"
	"github.com/jeranaias/xion/internal/cloud"
	"github.com/jeranaias/xion/internal/config"
	"github.com/jeranaias/xion/internal/model"
	"github.com/jeranaias/xion/internal/telemetry"
)

// fastRetry keeps retry waits out of the tests.
const fastRetry = `
[openai.retry]
base_delay = "1ms"

[huggingface.retry]
base_delay = "1ms"
`

// isolate points every xion path at a temp dir and clears the variables
// config reads. It returns the config file path.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XION_HOME", dir)
	t.Setenv("NO_COLOR", "1")
	for _, k := range []string{
		"XION_CONFIG", "XION_BACKEND", "OPENAI_API_KEY", "HF_API_KEY", "HUGGINGFACE_API_KEY",
		"XION_API_KEY", "XION_MODEL", "XION_BASE_URL", "XION_SYSTEM_PROMPT",
		"XION_LOG_LEVEL", "XION_TELEMETRY",
	} {
		t.Setenv(k, "")
	}
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(fastRetry), 0600))
	return path
}

// recorder is a fake transport that replays responses and keeps requests.
type recorder struct {
	mu        sync.Mutex
	responses []cloud.Response
	requests  []cloud.Request
}

func (r *recorder) Post(ctx context.Context, req cloud.Request) (*cloud.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	if len(r.responses) == 0 {
		return nil, errors.New("no response scripted")
	}
	resp := r.responses[0]
	if len(r.responses) > 1 {
		r.responses = r.responses[1:]
	}
	return &resp, nil
}

func chatReply(text string) cloud.Response {
	body := fmt.Sprintf(`{"choices":[{"message":{"role":"assistant","content":%q}}]}`, text)
	return cloud.Response{StatusCode: http.StatusOK, Body: []byte(body)}
}

func status(code int, body string) cloud.Response {
	return cloud.Response{StatusCode: code, Body: []byte(body)}
}

// scriptReader feeds fixed lines to the REPL, then io.EOF.
type scriptReader struct {
	lines []string
}

func (s *scriptReader) Prompt(string) (string, error) {
	if len(s.lines) == 0 {
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *scriptReader) AppendHistory(string) {}
func (s *scriptReader) Close() error         { return nil }

type harness struct {
	app    *App
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newHarness(transport cloud.Transport, lines ...string) *harness {
	h := &harness{}
	h.app = &App{
		stdin:     strings.NewReader(""),
		stdout:    &h.stdout,
		stderr:    &h.stderr,
		transport: transport,
		newReader: func() (lineReader, error) {
			return &scriptReader{lines: lines}, nil
		},
	}
	return h
}

func (h *harness) run(t *testing.T, args ...string) error {
	t.Helper()
	return h.app.Run(context.Background(), append([]string{"xion"}, args...))
}

// =============================================================================
// ASK
// =============================================================================

func TestAsk_PrintsReply(t *testing.T) {
	cfgPath := isolate(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	rec := &recorder{responses: []cloud.Response{chatReply("Hello there")}}

	h := newHarness(rec)
	require.NoError(t, h.run(t, "--config", cfgPath, "ask", "say", "hi"))
	assert.Contains(t, h.stdout.String(), "Hello there")

	require.Len(t, rec.requests, 1)
	req := rec.requests[0]
	assert.Equal(t, "https://api.openai.com/v1/chat/completions", req.URL)
	assert.Equal(t, "sk-test", req.APIKey)

	var body struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(req.Body, &body))
	assert.Equal(t, "gpt-3.5-turbo", body.Model)
	require.Len(t, body.Messages, 2)
	assert.Equal(t, "system", body.Messages[0].Role)
	assert.Equal(t, config.DefaultSystemPrompt, body.Messages[0].Content)
	assert.Equal(t, "say hi", body.Messages[1].Content)
}

func TestAsk_ReadsStdin(t *testing.T) {
	cfgPath := isolate(t)
	rec := &recorder{responses: []cloud.Response{chatReply("ok")}}

	h := newHarness(rec)
	h.app.stdin = strings.NewReader("  piped prompt\n")
	require.NoError(t, h.run(t, "--config", cfgPath, "ask"))
	require.Len(t, rec.requests, 1)
	assert.Contains(t, string(rec.requests[0].Body), "piped prompt")
}

func TestAsk_NoPrompt(t *testing.T) {
	cfgPath := isolate(t)
	rec := &recorder{}

	h := newHarness(rec)
	err := h.run(t, "--config", cfgPath, "ask")
	require.Error(t, err)
	assert.Equal(t, ExitUsageError, ExitCode(err))
	assert.Empty(t, rec.requests)
}

func TestAsk_AuthFailureExitCode(t *testing.T) {
	cfgPath := isolate(t)
	rec := &recorder{responses: []cloud.Response{status(401, `{"error":{"message":"bad key"}}`)}}

	h := newHarness(rec)
	err := h.run(t, "--config", cfgPath, "ask", "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrAuth))
	assert.Equal(t, ExitAuthError, ExitCode(err))
	// 401 is never retried
	assert.Len(t, rec.requests, 1)
}

func TestAsk_RetriesThenSucceeds(t *testing.T) {
	cfgPath := isolate(t)
	rec := &recorder{responses: []cloud.Response{
		status(503, `{}`),
		status(503, `{}`),
		chatReply("hi"),
	}}

	h := newHarness(rec)
	require.NoError(t, h.run(t, "--config", cfgPath, "ask", "hello"))
	assert.Contains(t, h.stdout.String(), "hi")
	assert.Len(t, rec.requests, 3)
}

func TestAsk_HuggingFaceBackendFlag(t *testing.T) {
	cfgPath := isolate(t)
	rec := &recorder{responses: []cloud.Response{
		{StatusCode: 200, Body: []byte(`[{"generated_text":"hey"}]`)},
	}}

	h := newHarness(rec)
	require.NoError(t, h.run(t, "--config", cfgPath, "--backend", "huggingface", "ask", "yo"))
	assert.Contains(t, h.stdout.String(), "hey")

	require.Len(t, rec.requests, 1)
	assert.Equal(t, "https://api-inference.huggingface.co/models/microsoft/DialoGPT-small", rec.requests[0].URL)
	assert.Contains(t, string(rec.requests[0].Body), `"inputs":"yo"`)
}

func TestAsk_InvalidBackendIsConfigError(t *testing.T) {
	cfgPath := isolate(t)
	h := newHarness(&recorder{})
	err := h.run(t, "--config", cfgPath, "--backend", "ollama", "ask", "hi")
	require.Error(t, err)
	assert.Equal(t, ExitConfigError, ExitCode(err))
}

// =============================================================================
// CHAT
// =============================================================================

func TestChat_Session(t *testing.T) {
	cfgPath := isolate(t)
	rec := &recorder{responses: []cloud.Response{chatReply("Hello!")}}

	h := newHarness(rec, "hi", "/history", "/clear", "/history", "/exit")
	require.NoError(t, h.run(t, "--config", cfgPath, "chat", "--no-watch"))

	out := h.stdout.String()
	assert.Contains(t, out, "Hello!")
	assert.Contains(t, out, "You:")
	assert.Contains(t, out, "Assistant:")
	assert.Contains(t, out, "[Conversation cleared]")
	assert.Contains(t, out, "Goodbye.")

	// After /clear only the system prompt remains
	after := out[strings.Index(out, "[Conversation cleared]"):]
	assert.NotContains(t, after, "Assistant:")
	assert.Contains(t, after, "System:")
}

func TestChat_ErrorIsApologyAndHistoryUnchanged(t *testing.T) {
	cfgPath := isolate(t)
	rec := &recorder{responses: []cloud.Response{status(404, `{"error":"no such model"}`)}}

	h := newHarness(rec, "hi", "/history")
	require.NoError(t, h.run(t, "--config", cfgPath, "chat", "--no-watch"))

	out := h.stdout.String()
	assert.Contains(t, out, "Sorry, I encountered an error:")
	assert.NotContains(t, out, "You:")
}

func TestChat_SendsConversation(t *testing.T) {
	cfgPath := isolate(t)
	rec := &recorder{responses: []cloud.Response{chatReply("one"), chatReply("two")}}

	h := newHarness(rec, "first", "second")
	require.NoError(t, h.run(t, "--config", cfgPath, "chat", "--no-watch"))

	require.Len(t, rec.requests, 2)
	second := string(rec.requests[1].Body)
	assert.Contains(t, second, "first")
	assert.Contains(t, second, "one")
	assert.Contains(t, second, "second")
}

func TestChat_UnknownSlashCommand(t *testing.T) {
	cfgPath := isolate(t)
	rec := &recorder{}

	h := newHarness(rec, "/bogus", "quit")
	require.NoError(t, h.run(t, "--config", cfgPath, "chat", "--no-watch"))
	assert.Contains(t, h.stdout.String(), "unknown command /bogus")
	assert.Empty(t, rec.requests)
}

// reloadHarness starts watchConfig on a client built from the file at
// cfgPath, as runChat does.
func reloadHarness(t *testing.T, cfgPath string, flags func(*App)) *chat.Client {
	t.Helper()
	h := newHarness(&recorder{})
	a := h.app
	if flags != nil {
		flags(a)
	}

	cfg, err := config.LoadFromPath(cfgPath)
	require.NoError(t, err)
	a.applyFlags(cfg)
	a.cfg = cfg
	a.cfgPath = cfgPath
	a.logger = telemetry.NewLogger("error", "text", io.Discard)
	a.watchDebounce = 20 * time.Millisecond

	opts, err := chatOptions(cfg, a.transport, telemetry.Nop())
	require.NoError(t, err)
	client, err := chat.New(opts)
	require.NoError(t, err)

	w := a.watchConfig(client, telemetry.Nop())
	require.NotNil(t, w)
	t.Cleanup(func() { w.Close() })
	return client
}

func TestChat_ReloadAppliesFileEdits(t *testing.T) {
	cfgPath := isolate(t)
	client := reloadHarness(t, cfgPath, nil)
	require.Equal(t, "gpt-3.5-turbo", client.Sampling().Model)

	edited := fastRetry + `
[openai.sampling]
model = "gpt-4o"
temperature = 0.2
max_tokens = 100
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(edited), 0600))
	require.Eventually(t, func() bool {
		sp := client.Sampling()
		return sp.Model == "gpt-4o" && sp.Temperature == 0.2
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(cfgPath, []byte("backend = \"huggingface\"\n"+fastRetry), 0600))
	require.Eventually(t, func() bool {
		return client.Sampling().Model == "microsoft/DialoGPT-small"
	}, 3*time.Second, 10*time.Millisecond)
}

func TestChat_ReloadKeepsFlagOverrides(t *testing.T) {
	cfgPath := isolate(t)
	client := reloadHarness(t, cfgPath, func(a *App) { a.modelFlag = "pinned-model" })
	require.Equal(t, "pinned-model", client.Sampling().Model)

	edited := fastRetry + `
[openai.sampling]
model = "gpt-4o"
temperature = 0.2
max_tokens = 100
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(edited), 0600))
	require.Eventually(t, func() bool {
		return client.Sampling().Temperature == 0.2
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "pinned-model", client.Sampling().Model)
}

// =============================================================================
// CONFIG
// =============================================================================

func TestConfig_InitSetGet(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "xion.toml")

	h := newHarness(nil)
	require.NoError(t, h.run(t, "--config", path, "config", "init"))
	assert.FileExists(t, path)

	h = newHarness(nil)
	err := h.run(t, "--config", path, "config", "init")
	assert.Equal(t, ExitUsageError, ExitCode(err))

	h = newHarness(nil)
	require.NoError(t, h.run(t, "--config", path, "config", "set", "openai.max_turns", "3"))

	h = newHarness(nil)
	require.NoError(t, h.run(t, "--config", path, "config", "get", "openai.max_turns"))
	assert.Equal(t, "3", strings.TrimSpace(h.stdout.String()))

	h = newHarness(nil)
	err = h.run(t, "--config", path, "config", "set", "openai.max_turns", "0")
	assert.Equal(t, ExitConfigError, ExitCode(err))

	h = newHarness(nil)
	err = h.run(t, "--config", path, "config", "set", "openai.colour", "blue")
	assert.Equal(t, ExitUsageError, ExitCode(err))
}

func TestConfig_SetDoesNotPersistEnvironment(t *testing.T) {
	cfgPath := isolate(t)
	t.Setenv("OPENAI_API_KEY", "sk-env-only")

	h := newHarness(nil)
	require.NoError(t, h.run(t, "--config", cfgPath, "config", "set", "system_prompt", "Be brief."))

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-env-only")
	assert.Contains(t, string(data), "Be brief.")
}

func TestConfig_ShowRedactsKeys(t *testing.T) {
	cfgPath := isolate(t)
	t.Setenv("OPENAI_API_KEY", "sk-super-secret-value")

	h := newHarness(nil)
	require.NoError(t, h.run(t, "--config", cfgPath, "config", "show"))
	out := h.stdout.String()
	assert.NotContains(t, out, "sk-super-secret-value")
	assert.Contains(t, out, "[REDACTED]")
	assert.Contains(t, out, "https://api.openai.com/v1/chat/completions")

	h = newHarness(nil)
	require.NoError(t, h.run(t, "--config", cfgPath, "config", "get", "openai.api_key"))
	assert.NotContains(t, h.stdout.String(), "sk-super-secret-value")
}

func TestConfig_BrokenFileCanBeFixed(t *testing.T) {
	cfgPath := isolate(t)
	require.NoError(t, os.WriteFile(cfgPath, []byte("[openai]\nmax_turns = -1\n"), 0600))

	h := newHarness(&recorder{})
	err := h.run(t, "--config", cfgPath, "ask", "hi")
	assert.Equal(t, ExitConfigError, ExitCode(err))

	h = newHarness(nil)
	require.NoError(t, h.run(t, "--config", cfgPath, "config", "set", "openai.max_turns", "4"))
}

// =============================================================================
// STATS
// =============================================================================

func TestStats_AfterCalls(t *testing.T) {
	cfgPath := isolate(t)
	rec := &recorder{responses: []cloud.Response{status(429, `{}`), chatReply("ok")}}

	h := newHarness(rec)
	require.NoError(t, h.run(t, "--config", cfgPath, "ask", "hello"))

	h = newHarness(&recorder{responses: []cloud.Response{status(401, `{}`)}})
	require.Error(t, h.run(t, "--config", cfgPath, "ask", "hello"))

	h = newHarness(nil)
	require.NoError(t, h.run(t, "--config", cfgPath, "stats", "--json"))

	var report statsReport
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &report))
	assert.Equal(t, 2, report.Calls)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.GaveUp)
	assert.Equal(t, 3, report.Attempts)
	assert.Equal(t, 1, report.Waits)
	assert.Equal(t, 1, report.Failures["auth"])

	h = newHarness(nil)
	require.NoError(t, h.run(t, "--config", cfgPath, "stats"))
	assert.Contains(t, h.stdout.String(), "Request statistics")
}

func TestStats_TelemetryDisabledRecordsNothing(t *testing.T) {
	cfgPath := isolate(t)
	t.Setenv("XION_TELEMETRY", "false")

	h := newHarness(&recorder{responses: []cloud.Response{chatReply("ok")}})
	require.NoError(t, h.run(t, "--config", cfgPath, "ask", "hello"))

	h = newHarness(nil)
	require.NoError(t, h.run(t, "--config", cfgPath, "stats", "--json"))
	var report statsReport
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &report))
	assert.Zero(t, report.Calls)
}

// =============================================================================
// EXIT CODES
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"usage", &UsageError{Command: "ask", Reason: "x"}, ExitUsageError},
		{"validation", config.ValidateErrors{{Field: "backend", Message: "x"}}, ExitConfigError},
		{"config", model.NewError(model.CategoryConfig, ""), ExitConfigError},
		{"auth", model.NewError(model.CategoryAuth, ""), ExitAuthError},
		{"not found", model.NewError(model.CategoryNotFound, ""), ExitNotFoundError},
		{"rate limited", model.NewError(model.CategoryRateLimited, ""), ExitNetworkError},
		{"transient", model.NewError(model.CategoryTransient, ""), ExitNetworkError},
		{"server", model.NewError(model.CategoryServerError, ""), ExitNetworkError},
		{"protocol", model.NewError(model.CategoryProtocol, ""), ExitGeneralError},
		{"canceled", model.NewError(model.CategoryCanceled, ""), ExitInterrupted},
		{"wrapped", fmt.Errorf("ask: %w", model.NewError(model.CategoryAuth, "")), ExitAuthError},
		{"other", errors.New("boom"), ExitGeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestApologize(t *testing.T) {
	err := model.NewError(model.CategoryNotFound, "Model not found. Please check the model name.")
	assert.Equal(t, "Sorry, I encountered an error: Model not found. Please check the model name.", apologize(err))
}
