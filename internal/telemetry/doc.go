// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package telemetry provides the side-channel observers for chat calls:
// structured logging and a local SQLite record of attempts.
//
// Nothing in this package affects control flow. The classifier and the
// retry scheduler emit Events; observers only watch.
//
// # Key Types
//
//   - Observer: Receives Events (classified, attempt, wait, succeeded, gave_up)
//   - LogObserver: Writes events to a log/slog Logger
//   - Store: Persists events to SQLite for `xion stats`
//   - Multi: Fans an event out to several observers
//
// # Usage
//
//	logger := telemetry.NewLogger("info", "text", os.Stderr)
//	store, err := telemetry.OpenStore(path)
//	obs := telemetry.Multi(telemetry.NewLogObserver(logger), store)
package telemetry
