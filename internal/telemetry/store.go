// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/xion/internal/model"
)

// Schema is the attempt store layout. Times are unix nanoseconds.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	call_id     TEXT    NOT NULL,
	kind        TEXT    NOT NULL,
	attempt     INTEGER NOT NULL DEFAULT 0,
	status      INTEGER NOT NULL DEFAULT 0,
	outcome     TEXT    NOT NULL DEFAULT '',
	category    TEXT    NOT NULL DEFAULT '',
	delay_ms    INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	message     TEXT    NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_call ON events(call_id);
CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
`

// ErrStoreClosed is returned after Close.
var ErrStoreClosed = errors.New("telemetry store is closed")

// =============================================================================
// STORE
// =============================================================================

// Store records chat events in a local SQLite database. It implements
// Observer; write failures are logged and never reach the chat call.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenStore opens (or creates) the database at path.
func OpenStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path cannot be empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps :memory:
	// databases alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, logger: slog.Default()}, nil
}

// WithLogger sets the logger used for write failures.
func (s *Store) WithLogger(logger *slog.Logger) *Store {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Observe implements Observer.
func (s *Store) Observe(ctx context.Context, e Event) {
	// Classified events duplicate attempt events.
	if e.Kind == EventClassified {
		return
	}
	// RELIABILITY: a canceled call context must not drop its own gave_up row.
	if err := s.Record(context.WithoutCancel(ctx), e); err != nil {
		s.logger.Warn("telemetry write failed", slog.String("error", err.Error()))
	}
}

// Record inserts one event.
func (s *Store) Record(ctx context.Context, e Event) error {
	if s.db == nil {
		return ErrStoreClosed
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (call_id, kind, attempt, status, outcome, category, delay_ms, duration_ms, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.CallID, string(e.Kind), e.Attempt, e.Status, e.Outcome, string(e.Category),
		e.Delay.Milliseconds(), e.Duration.Milliseconds(), e.Message, e.Time.UnixNano())
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Events returns every event of one call in insertion order.
func (s *Store) Events(ctx context.Context, callID string) ([]Event, error) {
	if s.db == nil {
		return nil, ErrStoreClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT call_id, kind, attempt, status, outcome, category, delay_ms, duration_ms, message, created_at
		 FROM events WHERE call_id = ? ORDER BY id`, callID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e                 Event
			kind, category    string
			delayMS, durMS    int64
			createdAtUnixNano int64
		)
		if err := rows.Scan(&e.CallID, &kind, &e.Attempt, &e.Status, &e.Outcome, &category,
			&delayMS, &durMS, &e.Message, &createdAtUnixNano); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = EventKind(kind)
		e.Category = model.Category(category)
		e.Delay = time.Duration(delayMS) * time.Millisecond
		e.Duration = time.Duration(durMS) * time.Millisecond
		e.Time = time.Unix(0, createdAtUnixNano)
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// SUMMARY
// =============================================================================

// Summary aggregates the store for `xion stats`.
type Summary struct {
	Calls      int
	Succeeded  int
	GaveUp     int
	Attempts   int
	Waits      int
	TotalWait  time.Duration
	ByCategory map[model.Category]int
}

// Summary computes totals over every recorded call.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	sum := Summary{ByCategory: make(map[model.Category]int)}
	if s.db == nil {
		return sum, ErrStoreClosed
	}

	var waitMS sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(DISTINCT call_id),
			COALESCE(SUM(kind = 'succeeded'), 0),
			COALESCE(SUM(kind = 'gave_up'), 0),
			COALESCE(SUM(kind = 'attempt'), 0),
			COALESCE(SUM(kind = 'wait'), 0),
			SUM(CASE WHEN kind = 'wait' THEN delay_ms END)
		FROM events`).Scan(&sum.Calls, &sum.Succeeded, &sum.GaveUp, &sum.Attempts, &sum.Waits, &waitMS)
	if err != nil {
		return sum, fmt.Errorf("summarize events: %w", err)
	}
	if waitMS.Valid {
		sum.TotalWait = time.Duration(waitMS.Int64) * time.Millisecond
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT category, COUNT(*) FROM events WHERE kind = 'gave_up' GROUP BY category`)
	if err != nil {
		return sum, fmt.Errorf("summarize categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			category string
			n        int
		)
		if err := rows.Scan(&category, &n); err != nil {
			return sum, fmt.Errorf("scan category: %w", err)
		}
		sum.ByCategory[model.Category(category)] = n
	}
	return sum, rows.Err()
}

// Prune deletes events older than maxAge and returns how many were removed.
func (s *Store) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	if s.db == nil {
		return 0, ErrStoreClosed
	}
	cutoff := time.Now().Add(-maxAge).UnixNano()
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return res.RowsAffected()
}
