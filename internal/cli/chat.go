// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	ucli "github.com/urfave/cli/v3"

	"github.com/jeranaias/xion/internal/chat"
	"github.com/jeranaias/xion/internal/config"
	"github.com/jeranaias/xion/internal/telemetry"
)

// historyPreviewWidth bounds each line of /history output.
const historyPreviewWidth = 72

// =============================================================================
// INPUT
// =============================================================================

// lineReader is the part of liner the REPL uses.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// linerReader adds a persistent input history file to liner.
// USABILITY: Supports arrow keys for history navigation and line editing.
type linerReader struct {
	*liner.State
	historyFile string
}

func newLinerReader() (lineReader, error) {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	r := &linerReader{State: line, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(r.historyFile); err == nil {
		r.ReadHistory(f)
		f.Close()
	}
	return r, nil
}

// Close saves the input history and restores the terminal.
// SECURITY: The history file is created 0600, it holds typed prompts.
func (r *linerReader) Close() error {
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			r.WriteHistory(f)
			f.Close()
		}
	}
	return r.State.Close()
}

// =============================================================================
// CHAT COMMAND
// =============================================================================

func (a *App) chatCommand() *ucli.Command {
	return &ucli.Command{
		Name:  "chat",
		Usage: "start an interactive chat session",
		Description: "Type a message and press Enter. Ctrl+C cancels a pending reply, " +
			"Ctrl+D or /exit leaves. Edits to the config file apply to the next message.",
		Flags: []ucli.Flag{
			&ucli.BoolFlag{
				Name:  "no-watch",
				Usage: "do not reload the config file when it changes",
			},
		},
		Action: a.runChat,
	}
}

func (a *App) runChat(ctx context.Context, cmd *ucli.Command) error {
	if err := a.ready(); err != nil {
		return err
	}
	client, observer, err := a.newClient(ctx)
	if err != nil {
		return err
	}

	if !cmd.Bool("no-watch") {
		if w := a.watchConfig(client, observer); w != nil {
			defer w.Close()
		}
	}

	in, err := a.newReader()
	if err != nil {
		return err
	}
	defer in.Close()

	s := &session{app: a, client: client, in: in}
	return s.run(ctx)
}

// watchConfig reconfigures client whenever the config file changes.
func (a *App) watchConfig(client *chat.Client, observer telemetry.Observer) *config.Watcher {
	if _, err := os.Stat(a.cfgPath); err != nil {
		return nil
	}

	w, err := config.Watch(a.cfgPath, a.watchDebounce, func(cfg *config.Config, err error) {
		if err != nil {
			fmt.Fprintln(a.stderr, WarningStyle.Render("[Config]"), "reload failed:", err)
			return
		}
		a.applyFlags(cfg)
		opts, err := chatOptions(cfg, nil, observer)
		if err == nil {
			err = client.Reconfigure(opts)
		}
		if err != nil {
			fmt.Fprintln(a.stderr, WarningStyle.Render("[Config]"), "reload rejected:", err)
			return
		}
		a.logger.Info("config reloaded", slog.String("path", a.cfgPath))
	})
	if err != nil {
		a.logger.Warn("config watch unavailable", slog.String("error", err.Error()))
		return nil
	}
	return w
}

// =============================================================================
// SESSION
// =============================================================================

// session is one REPL run.
type session struct {
	app    *App
	client *chat.Client
	in     lineReader
	turns  int
}

func (s *session) run(ctx context.Context) error {
	s.printWelcome()

	for {
		input, err := s.in.Prompt(PromptStyle.Render("xion> "))
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D, or end of piped input
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				s.printGoodbye()
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		s.in.AppendHistory(input)

		if strings.HasPrefix(input, "/") || strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			if !s.handleCommand(input) {
				s.printGoodbye()
				return nil
			}
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.send(ctx, input)
	}
}

// send runs one prompt. Ctrl+C cancels only this request.
func (s *session) send(ctx context.Context, prompt string) {
	reqCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	reply, err := s.client.SendPrompt(reqCtx, prompt)
	out := s.app.stdout
	if err != nil {
		fmt.Fprintln(out, ErrorStyle.Render(apologize(err)))
		return
	}
	s.turns++
	s.app.display(out, reply)
}

// handleCommand runs a slash command and reports whether to keep going.
func (s *session) handleCommand(input string) bool {
	out := s.app.stdout
	fields := strings.Fields(input)
	switch strings.ToLower(strings.TrimPrefix(fields[0], "/")) {
	case "exit", "quit", "q":
		return false

	case "clear", "c":
		s.client.ClearHistory()
		fmt.Fprintln(out, SuccessStyle.Render("[Conversation cleared]"))

	case "history", "h":
		msgs := s.client.History()
		if len(msgs) == 0 {
			fmt.Fprintln(out, DimStyle.Render("(empty)"))
		}
		for _, m := range msgs {
			fmt.Fprintf(out, "%s %s\n", RenderLabel(m.Role.DisplayName()+":", 11), m.Preview(historyPreviewWidth))
		}

	case "model":
		sp := s.client.Sampling()
		fmt.Fprintf(out, "%s %s\n", RenderLabel("Model:", 11), ValueStyle.Render(sp.Model))
		fmt.Fprintf(out, "%s %g\n", RenderLabel("Temperature:", 11), sp.Temperature)
		fmt.Fprintf(out, "%s %d\n", RenderLabel("Max tokens:", 11), sp.MaxTokens)

	case "help", "?":
		printChatHelp(out)

	default:
		fmt.Fprintf(out, "%s unknown command %s, try /help\n", WarningStyle.Render("[Warning]"), fields[0])
	}
	return true
}

func printChatHelp(out io.Writer) {
	cmds := []struct{ cmd, desc string }{
		{"/clear", "Forget the conversation (keeps the system prompt)"},
		{"/history", "Show the messages sent with the next prompt"},
		{"/model", "Show the model and sampling settings"},
		{"/help", "Show this help"},
		{"/exit", "Leave the chat"},
	}
	fmt.Fprintln(out, TitleStyle.Render("Commands"))
	for _, c := range cmds {
		fmt.Fprintf(out, "  %s %s\n", RenderLabel(c.cmd, 10), c.desc)
	}
	fmt.Fprintln(out, DimStyle.Render("Ctrl+C cancels a pending reply, Ctrl+D exits"))
}

func (s *session) printWelcome() {
	out := s.app.stdout
	backend, _ := s.app.cfg.Active()
	fmt.Fprintln(out, TitleStyle.Render("xion interactive chat"))
	fmt.Fprintln(out, RenderSeparator(30))
	fmt.Fprintf(out, "%s %s\n", RenderLabel("Backend:", 9), ValueStyle.Render(s.app.cfg.Backend))
	fmt.Fprintf(out, "%s %s\n", RenderLabel("Model:", 9), ValueStyle.Render(s.client.Sampling().Model))
	if backend != nil {
		fmt.Fprintf(out, "%s %d turns\n", RenderLabel("Memory:", 9), backend.MaxTurns)
	}
	fmt.Fprintln(out, DimStyle.Render("Type your message and press Enter. Commands: /help, /exit"))
	fmt.Fprintln(out)
}

func (s *session) printGoodbye() {
	fmt.Fprintln(s.app.stdout)
	fmt.Fprintf(s.app.stdout, "%s %d replies this session\n", DimStyle.Render("Goodbye."), s.turns)
}

// display writes a reply, rendered as markdown on a color terminal.
func (a *App) display(w io.Writer, reply string) {
	if a.markdown {
		fmt.Fprint(w, renderMarkdown(reply))
		return
	}
	fmt.Fprintln(w, reply)
}
