// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	ucli "github.com/urfave/cli/v3"
)

// maxStdinPrompt caps a prompt piped on stdin.
// SECURITY: Bounded read prevents memory exhaustion from unbounded input.
const maxStdinPrompt = 1 << 20

func (a *App) askCommand() *ucli.Command {
	return &ucli.Command{
		Name:      "ask",
		Usage:     "send one prompt and print the reply",
		ArgsUsage: "<prompt...>",
		Description: "With no arguments the prompt is read from stdin, so\n" +
			"  git diff | xion ask\n" +
			"works. Retries follow the backend's retry settings.",
		Flags: []ucli.Flag{
			&ucli.BoolFlag{
				Name:  "raw",
				Usage: "print the reply without markdown rendering",
			},
		},
		Action: a.runAsk,
	}
}

func (a *App) runAsk(ctx context.Context, cmd *ucli.Command) error {
	if err := a.ready(); err != nil {
		return err
	}

	prompt := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(prompt) == "" && a.stdin != nil && !(a.stdin == os.Stdin && IsTTY()) {
		data, err := io.ReadAll(io.LimitReader(a.stdin, maxStdinPrompt))
		if err != nil {
			return fmt.Errorf("read prompt from stdin: %w", err)
		}
		prompt = string(data)
	}
	if strings.TrimSpace(prompt) == "" {
		return &UsageError{Command: "ask", Reason: "no prompt given"}
	}

	client, _, err := a.newClient(ctx)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	reply, err := client.SendPrompt(ctx, prompt)
	if err != nil {
		return err
	}

	if cmd.Bool("raw") {
		fmt.Fprintln(a.stdout, reply)
		return nil
	}
	a.display(a.stdout, reply)
	return nil
}
