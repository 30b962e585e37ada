// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	ucli "github.com/urfave/cli/v3"

	"github.com/jeranaias/xion/internal/chat"
	"github.com/jeranaias/xion/internal/cloud"
	"github.com/jeranaias/xion/internal/config"
	"github.com/jeranaias/xion/internal/history"
	"github.com/jeranaias/xion/internal/telemetry"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// =============================================================================
// APP
// =============================================================================

// App holds the state shared by every command for one process run.
type App struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// markdown renders replies with glamour
	markdown bool

	cfg     *config.Config
	cfgPath string
	cfgErr  error
	logger  *slog.Logger

	// --backend and --model, empty when not given
	backendFlag string
	modelFlag   string

	// watchDebounce of zero uses config.DefaultDebounce
	watchDebounce time.Duration

	store     *telemetry.Store
	transport cloud.Transport
	newReader func() (lineReader, error)
}

// New creates an App bound to the process's standard streams.
func New() *App {
	return &App{
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		markdown:  IsStdoutTTY() && ColorsEnabled(),
		newReader: newLinerReader,
	}
}

// Run parses args and executes the selected command.
func (a *App) Run(ctx context.Context, args []string) error {
	defer a.close()
	return a.Command().Run(ctx, args)
}

func (a *App) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil && a.logger != nil {
			a.logger.Warn("close telemetry store", slog.String("error", err.Error()))
		}
		a.store = nil
	}
}

// Command builds the command tree.
func (a *App) Command() *ucli.Command {
	return &ucli.Command{
		Name:      "xion",
		Usage:     "chat with hosted language models from the terminal",
		Version:   fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		Writer:    a.stdout,
		ErrWriter: a.stderr,
		Flags: []ucli.Flag{
			&ucli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file (default ~/.xion/config.toml)",
				Sources: ucli.EnvVars("XION_CONFIG"),
			},
			&ucli.StringFlag{
				Name:    "backend",
				Aliases: []string{"b"},
				Usage:   "backend profile: openai or huggingface",
			},
			&ucli.StringFlag{
				Name:    "model",
				Aliases: []string{"m"},
				Usage:   "model name for the selected backend",
			},
			&ucli.StringFlag{
				Name:  "env-file",
				Usage: "load variables from this .env file instead of ./.env and ~/.xion/.env",
			},
			&ucli.BoolFlag{
				Name:  "verbose",
				Usage: "log every attempt and wait to stderr",
			},
		},
		Before: a.before,
		// Errors are reported by main so the exit code follows the category
		ExitErrHandler: func(context.Context, *ucli.Command, error) {},
		Commands: []*ucli.Command{
			a.chatCommand(),
			a.askCommand(),
			a.configCommand(),
			a.statsCommand(),
		},
	}
}

// before loads .env files and configuration, then applies flag overrides.
func (a *App) before(ctx context.Context, cmd *ucli.Command) (context.Context, error) {
	var envFiles []string
	if f := cmd.String("env-file"); f != "" {
		envFiles = append(envFiles, f)
	}
	if err := config.LoadEnvFiles(envFiles...); err != nil {
		return ctx, configErr(err)
	}

	path, err := resolveConfigPath(cmd.String("config"))
	if err != nil {
		return ctx, configErr(err)
	}
	a.cfgPath = path

	// A missing file means defaults; `config init` creates it
	cfg, err := config.ReadFile(path)
	if err != nil {
		return ctx, configErr(err)
	}
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()

	a.backendFlag = strings.ToLower(cmd.String("backend"))
	a.modelFlag = cmd.String("model")
	a.applyFlags(cfg)
	// Config commands must still run so a broken file can be fixed
	a.cfg = cfg
	a.cfgErr = configErr(cfg.Validate())

	level := cfg.Telemetry.LogLevel
	if cmd.Bool("verbose") {
		level = "debug"
	}
	a.logger = telemetry.NewLogger(level, cfg.Telemetry.LogFormat, a.stderr)
	return ctx, nil
}

// applyFlags lays the command line's backend and model over cfg. Values
// from the file are kept when the flags were not given.
func (a *App) applyFlags(cfg *config.Config) {
	if a.backendFlag != "" {
		cfg.Backend = a.backendFlag
	}
	if a.modelFlag != "" {
		if active, err := cfg.Active(); err == nil {
			active.Sampling.Model = a.modelFlag
		}
	}
}

// resolveConfigPath returns the flag value, or the default TOML path
// unless only a JSON config exists.
func resolveConfigPath(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	path, err := config.ConfigPathTOML()
	if err != nil {
		return "", err
	}
	if _, statErr := os.Stat(path); statErr != nil {
		if jsonPath, err := config.ConfigPathJSON(); err == nil {
			if _, err := os.Stat(jsonPath); err == nil {
				return jsonPath, nil
			}
		}
	}
	return path, nil
}

// ready returns the validation error of the loaded config, if any.
func (a *App) ready() error {
	return a.cfgErr
}

// =============================================================================
// CLIENT WIRING
// =============================================================================

// chatOptions converts the active backend profile into client options.
func chatOptions(cfg *config.Config, transport cloud.Transport, observer telemetry.Observer) (chat.Options, error) {
	backend, err := cfg.Active()
	if err != nil {
		return chat.Options{}, configErr(err)
	}
	format, err := backend.RequestFormat()
	if err != nil {
		return chat.Options{}, configErr(err)
	}
	policy, err := backend.RetryPolicy()
	if err != nil {
		return chat.Options{}, configErr(err)
	}

	return chat.Options{
		Endpoint: backend.Endpoint(),
		APIKey:   backend.APIKey,
		Format:   format,
		Sampling: backend.Sampling.Clone(),
		History: history.Options{
			MaxTurns:     backend.MaxTurns,
			SystemPrompt: cfg.SystemPrompt,
		},
		Policy:            policy,
		ResponsePath:      backend.ResponsePath,
		RetryServerErrors: backend.Retry.RetryServerErrors,
		Transport:         transport,
		Observer:          observer,
	}, nil
}

// newClient builds a chat client from the loaded config, with the
// telemetry store attached when enabled.
func (a *App) newClient(ctx context.Context) (*chat.Client, telemetry.Observer, error) {
	observer := a.observer(ctx)

	transport := a.transport
	if transport == nil {
		transport = cloud.NewClient().
			WithTimeout(a.cfg.Transport.Timeout.Duration).
			WithMaxResponseSize(a.cfg.Transport.MaxResponseBytes).
			WithRateLimit(a.cfg.Transport.RequestsPerSecond, a.cfg.Transport.Burst).
			WithUserAgent("xion/" + Version).
			WithLogger(a.logger)
	}

	opts, err := chatOptions(a.cfg, transport, observer)
	if err != nil {
		return nil, nil, err
	}
	if opts.APIKey == "" {
		a.logger.Warn("no API key configured", slog.String("backend", a.cfg.Backend))
	}

	client, err := chat.New(opts)
	if err != nil {
		return nil, nil, configErr(err)
	}
	return client, observer, nil
}

// observer fans events out to the log and, when enabled, the store.
func (a *App) observer(ctx context.Context) telemetry.Observer {
	logObs := telemetry.NewLogObserver(a.logger)
	if !a.cfg.Telemetry.Enabled {
		return logObs
	}
	store, err := a.openStore(ctx)
	if err != nil {
		a.logger.Warn("telemetry store unavailable", slog.String("error", err.Error()))
		return logObs
	}
	return telemetry.Multi(logObs, store)
}

// openStore opens the attempt store once per run and prunes old events.
func (a *App) openStore(ctx context.Context) (*telemetry.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	path, err := a.cfg.DatabasePath()
	if err != nil {
		return nil, err
	}
	store, err := telemetry.OpenStore(path)
	if err != nil {
		return nil, err
	}
	store.WithLogger(a.logger)

	if days := a.cfg.Telemetry.RetentionDays; days > 0 {
		if _, err := store.Prune(ctx, retention(days)); err != nil {
			a.logger.Warn("prune telemetry", slog.String("error", err.Error()))
		}
	}
	a.store = store
	return store, nil
}
