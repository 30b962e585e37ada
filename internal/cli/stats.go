// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	ucli "github.com/urfave/cli/v3"

	"github.com/jeranaias/xion/internal/model"
	"github.com/jeranaias/xion/internal/telemetry"
)

// retention converts telemetry.retention_days.
func retention(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

func (a *App) statsCommand() *ucli.Command {
	return &ucli.Command{
		Name:  "stats",
		Usage: "summarize recorded attempts, waits and failures",
		Flags: []ucli.Flag{
			&ucli.StringFlag{
				Name:  "call",
				Usage: "list the events of one call ID",
			},
			&ucli.DurationFlag{
				Name:  "prune",
				Usage: "delete events older than this (e.g. 72h) before summarizing",
			},
			&ucli.BoolFlag{
				Name:  "json",
				Usage: "print JSON",
			},
		},
		Action: a.runStats,
	}
}

// statsReport is the --json shape.
type statsReport struct {
	Calls        int            `json:"calls"`
	Succeeded    int            `json:"succeeded"`
	GaveUp       int            `json:"gave_up"`
	Attempts     int            `json:"attempts"`
	Waits        int            `json:"waits"`
	TotalWaitSec float64        `json:"total_wait_seconds"`
	Failures     map[string]int `json:"failures_by_category"`
	Pruned       int64          `json:"pruned,omitempty"`
}

func (a *App) runStats(ctx context.Context, cmd *ucli.Command) error {
	if err := a.ready(); err != nil {
		return err
	}
	store, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("open telemetry store: %w", err)
	}

	if id := cmd.String("call"); id != "" {
		return a.printCall(ctx, store, id, cmd.Bool("json"))
	}

	var pruned int64
	if age := cmd.Duration("prune"); age > 0 {
		if pruned, err = store.Prune(ctx, age); err != nil {
			return err
		}
	}

	sum, err := store.Summary(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		report := statsReport{
			Calls:        sum.Calls,
			Succeeded:    sum.Succeeded,
			GaveUp:       sum.GaveUp,
			Attempts:     sum.Attempts,
			Waits:        sum.Waits,
			TotalWaitSec: sum.TotalWait.Seconds(),
			Failures:     make(map[string]int, len(sum.ByCategory)),
			Pruned:       pruned,
		}
		for c, n := range sum.ByCategory {
			report.Failures[string(c)] = n
		}
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	out := a.stdout
	fmt.Fprintln(out, TitleStyle.Render("Request statistics"))
	fmt.Fprintln(out, RenderSeparator(30))
	if pruned > 0 {
		fmt.Fprintf(out, "%s %d\n", RenderLabel("Pruned events:", 16), pruned)
	}
	fmt.Fprintf(out, "%s %d\n", RenderLabel("Calls:", 16), sum.Calls)
	fmt.Fprintf(out, "%s %d\n", RenderLabel("Succeeded:", 16), sum.Succeeded)
	fmt.Fprintf(out, "%s %d\n", RenderLabel("Gave up:", 16), sum.GaveUp)
	fmt.Fprintf(out, "%s %d\n", RenderLabel("Attempts:", 16), sum.Attempts)
	fmt.Fprintf(out, "%s %d (%s total)\n", RenderLabel("Waits:", 16), sum.Waits, sum.TotalWait.Round(time.Millisecond))

	if len(sum.ByCategory) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, TitleStyle.Render("Failures by category"))
		cats := make([]model.Category, 0, len(sum.ByCategory))
		for c := range sum.ByCategory {
			cats = append(cats, c)
		}
		sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
		for _, c := range cats {
			fmt.Fprintf(out, "  %s %d\n", RenderLabel(string(c)+":", 14), sum.ByCategory[c])
		}
	}
	return nil
}

func (a *App) printCall(ctx context.Context, store *telemetry.Store, id string, asJSON bool) error {
	events, err := store.Events(ctx, id)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return &UsageError{Command: "stats", Reason: "no events for call " + id}
	}

	if asJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}

	for _, e := range events {
		line := fmt.Sprintf("%s %-10s attempt=%d", e.Time.Format(time.RFC3339), e.Kind, e.Attempt)
		if e.Status != 0 {
			line += fmt.Sprintf(" status=%d", e.Status)
		}
		if e.Category != "" {
			line += " category=" + string(e.Category)
		}
		if e.Delay > 0 {
			line += " delay=" + e.Delay.String()
		}
		fmt.Fprintln(a.stdout, line)
	}
	return nil
}
