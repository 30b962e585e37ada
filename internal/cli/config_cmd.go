// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	ucli "github.com/urfave/cli/v3"

	"github.com/jeranaias/xion/internal/cloud"
	"github.com/jeranaias/xion/internal/config"
)

func (a *App) configCommand() *ucli.Command {
	return &ucli.Command{
		Name:  "config",
		Usage: "inspect and edit the configuration file",
		Commands: []*ucli.Command{
			{
				Name:   "show",
				Usage:  "print the effective configuration (API keys redacted)",
				Action: a.configShow,
			},
			{
				Name:   "path",
				Usage:  "print the config file path",
				Action: a.configPath,
			},
			{
				Name:  "init",
				Usage: "write a config file with the defaults",
				Flags: []ucli.Flag{
					&ucli.BoolFlag{Name: "force", Usage: "overwrite an existing file"},
				},
				Action: a.configInit,
			},
			{
				Name:      "get",
				Usage:     "print one value",
				ArgsUsage: "<key>",
				Action:    a.configGet,
			},
			{
				Name:      "set",
				Usage:     "change one value in the config file",
				ArgsUsage: "<key> <value>",
				Action:    a.configSet,
			},
			{
				Name:   "keys",
				Usage:  "list every key",
				Action: a.configKeys,
			},
		},
	}
}

func (a *App) configShow(ctx context.Context, cmd *ucli.Command) error {
	if err := a.ready(); err != nil {
		return err
	}
	fmt.Fprint(a.stdout, a.cfg.String())

	for _, name := range []string{config.BackendOpenAI, config.BackendHuggingFace} {
		b := &a.cfg.OpenAI
		if name == config.BackendHuggingFace {
			b = &a.cfg.HuggingFace
		}
		fmt.Fprintf(a.stdout, "\n# %s endpoint: %s\n# %s api key: %s\n",
			name, b.Endpoint(), name, cloud.MaskKey(b.APIKey))
	}
	return nil
}

func (a *App) configPath(ctx context.Context, cmd *ucli.Command) error {
	fmt.Fprintln(a.stdout, a.cfgPath)
	return nil
}

func (a *App) configInit(ctx context.Context, cmd *ucli.Command) error {
	if _, err := os.Stat(a.cfgPath); err == nil && !cmd.Bool("force") {
		return &UsageError{Command: "config init", Reason: a.cfgPath + " already exists (use --force to overwrite)"}
	}
	if err := a.save(config.Default()); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, SuccessStyle.Render("[OK]"), "wrote", a.cfgPath)
	return nil
}

func (a *App) configGet(ctx context.Context, cmd *ucli.Command) error {
	if cmd.NArg() != 1 {
		return &UsageError{Command: "config get", Reason: "expected exactly one key"}
	}
	key := cmd.Args().First()
	v, err := a.cfg.Get(key)
	if err != nil {
		return &UsageError{Command: "config get", Reason: err.Error()}
	}

	switch {
	case v == nil:
		fmt.Fprintln(a.stdout, DimStyle.Render("(unset)"))
	case strings.HasSuffix(key, "api_key"):
		fmt.Fprintln(a.stdout, cloud.MaskKey(fmt.Sprint(v)))
	default:
		fmt.Fprintln(a.stdout, v)
	}
	return nil
}

// configSet edits the file itself, so environment overrides are never
// written back.
func (a *App) configSet(ctx context.Context, cmd *ucli.Command) error {
	if cmd.NArg() != 2 {
		return &UsageError{Command: "config set", Reason: "expected <key> <value>"}
	}
	key, value := cmd.Args().Get(0), cmd.Args().Get(1)

	cfg, err := config.ReadFile(a.cfgPath)
	if err != nil {
		return configErr(err)
	}
	if err := cfg.Set(key, value); err != nil {
		return &UsageError{Command: "config set", Reason: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return configErr(err)
	}
	if err := a.save(cfg); err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, SuccessStyle.Render("[OK]"), key, "updated")
	return nil
}

func (a *App) configKeys(ctx context.Context, cmd *ucli.Command) error {
	for _, k := range config.AllKeys() {
		fmt.Fprintln(a.stdout, k)
	}
	return nil
}

func (a *App) save(cfg *config.Config) error {
	var err error
	if strings.HasSuffix(a.cfgPath, ".json") {
		err = config.SaveJSON(cfg, a.cfgPath)
	} else {
		err = config.SaveTOML(cfg, a.cfgPath)
	}
	if err != nil {
		return fmt.Errorf("save %s: %w", a.cfgPath, err)
	}
	return nil
}
