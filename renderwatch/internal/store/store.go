// Package store persists render events to SQLite so a profiling session can
// be inspected after the test that produced it has finished.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hazyhaar/renderwatch/dbopen"
	"github.com/hazyhaar/renderwatch/renderwatch/render"
)

// Schema for the render_events table. Applied by Init or dbopen.WithSchema.
const Schema = `
CREATE TABLE IF NOT EXISTS render_events (
	session_id   TEXT NOT NULL,
	count        INTEGER NOT NULL,
	render_id    TEXT NOT NULL DEFAULT '',
	phase        TEXT NOT NULL DEFAULT '',
	actual_us    INTEGER NOT NULL DEFAULT 0,
	base_us      INTEGER NOT NULL DEFAULT 0,
	start_time   INTEGER NOT NULL DEFAULT 0,
	commit_time  INTEGER NOT NULL DEFAULT 0,
	interactions TEXT NOT NULL DEFAULT '[]',
	dom          TEXT NOT NULL DEFAULT '',
	dom_hash     TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	timestamp    INTEGER NOT NULL,
	PRIMARY KEY (session_id, count)
);
CREATE INDEX IF NOT EXISTS idx_render_events_ts ON render_events(timestamp);
`

// ErrNotFound is returned when a session or render does not exist.
var ErrNotFound = errors.New("store: not found")

// Session summarises one profiling session.
type Session struct {
	ID      string `json:"id"`
	Renders int    `json:"renders"`
	Errors  int    `json:"errors"`
	First   int64  `json:"first"` // epoch milliseconds
	Last    int64  `json:"last"`  // epoch milliseconds
}

// Store reads and writes render events. It implements the sink interface.
type Store struct {
	db *sql.DB
}

// New creates a store on db. The caller owns db and closes it.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Init creates the render_events table if it doesn't exist.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, Schema)
	return err
}

// Send inserts an event. Re-sending the same (session, count) replaces it.
func (s *Store) Send(ctx context.Context, ev render.Event) error {
	interactions, err := json.Marshal(ev.Interactions)
	if err != nil {
		return fmt.Errorf("store: marshal interactions: %w", err)
	}
	if ev.Interactions == nil {
		interactions = []byte("[]")
	}
	_, err = dbopen.Exec(ctx, s.db, `
		INSERT OR REPLACE INTO render_events (
			session_id, count, render_id, phase, actual_us, base_us,
			start_time, commit_time, interactions, dom, dom_hash, error, timestamp
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		ev.Session, ev.Count, ev.ID, string(ev.Phase), ev.ActualUs, ev.BaseUs,
		ev.StartTime, ev.CommitTime, string(interactions), ev.DOM, ev.DOMHash, ev.Error, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("store: insert event %s#%d: %w", ev.Session, ev.Count, err)
	}
	return nil
}

// Close is a no-op; the database belongs to the caller.
func (s *Store) Close() error { return nil }

// Sessions lists sessions, most recent first.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id,
		       COUNT(*),
		       SUM(CASE WHEN error != '' THEN 1 ELSE 0 END),
		       MIN(timestamp), MAX(timestamp)
		FROM render_events
		GROUP BY session_id
		ORDER BY MAX(timestamp) DESC, session_id`)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var ss Session
		if err := rows.Scan(&ss.ID, &ss.Renders, &ss.Errors, &ss.First, &ss.Last); err != nil {
			return nil, fmt.Errorf("store: scan session: %w", err)
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}

// Events returns the events of a session in log order.
func (s *Store) Events(ctx context.Context, session string) ([]render.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM render_events WHERE session_id = ? ORDER BY count`, session)
	if err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	defer rows.Close()

	var out []render.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: session %s", ErrNotFound, session)
	}
	return out, nil
}

// Event returns one event by session and 1-based count.
func (s *Store) Event(ctx context.Context, session string, count int) (*render.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM render_events WHERE session_id = ? AND count = ?`, session, count)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: render %s#%d", ErrNotFound, session, count)
	}
	return ev, err
}

const eventColumns = `session_id, count, render_id, phase, actual_us, base_us,
	start_time, commit_time, interactions, dom, dom_hash, error, timestamp`

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(sc scanner) (*render.Event, error) {
	var (
		ev           render.Event
		phase        string
		interactions string
	)
	err := sc.Scan(&ev.Session, &ev.Count, &ev.ID, &phase, &ev.ActualUs, &ev.BaseUs,
		&ev.StartTime, &ev.CommitTime, &interactions, &ev.DOM, &ev.DOMHash, &ev.Error, &ev.Timestamp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan event: %w", err)
	}
	ev.Phase = render.Phase(phase)
	if interactions != "" && interactions != "[]" {
		if err := json.Unmarshal([]byte(interactions), &ev.Interactions); err != nil {
			return nil, fmt.Errorf("store: decode interactions: %w", err)
		}
	}
	return &ev, nil
}
