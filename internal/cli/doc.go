// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the xion command line.
//
// # Commands
//
//   - chat: Interactive session with line editing and slash commands
//   - ask: One prompt, one reply (prompt from args or stdin)
//   - config: show, path, init, get, set, keys
//   - stats: Attempt and failure summary from the telemetry store
//
// # Exit Codes
//
// Failures map to exit codes by category: config 3, auth 4, network and
// rate limiting 5, not found 7, interrupted 130, anything else 1.
//
// # Usage
//
//	app := cli.New()
//	if err := app.Run(ctx, os.Args); err != nil {
//	    os.Exit(cli.ExitCode(err))
//	}
package cli
