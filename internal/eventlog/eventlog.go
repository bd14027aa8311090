// Package eventlog implements the event-log sink: an append-only SQLite
// store for telemetry events (context snapshots, approved intents, FSM
// transitions). It is not authoritative for any in-memory decision — the
// gate and FSM ledgers live only in process memory — this package exists
// purely so a restart or a debug session can inspect recent history.
package eventlog

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register the sqlite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id          INTEGER PRIMARY KEY,
	event_type  TEXT    NOT NULL,
	timestamp   TEXT    NOT NULL,
	app_name    TEXT    NOT NULL DEFAULT '',
	window_title TEXT   NOT NULL DEFAULT '',
	idle_seconds INTEGER NOT NULL DEFAULT 0,
	file_changes INTEGER NOT NULL DEFAULT 0,
	error_count  INTEGER NOT NULL DEFAULT 0,
	data        TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_events_ts ON events(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_events_type_ts ON events(event_type, timestamp DESC);
`

const maxQueryLimit = 500

// EventType classifies a single logged event.
type EventType string

const (
	EventContextSnapshot EventType = "context_snapshot"
	EventIntentApproved  EventType = "intent_approved"
	EventIntentRejected  EventType = "intent_rejected"
	EventFSMTransition   EventType = "fsm_transition"
)

// Event is one append-only log row.
type Event struct {
	ID          int64
	Type        EventType
	Timestamp   time.Time
	AppName     string
	WindowTitle string
	IdleSeconds int
	FileChanges int
	ErrorCount  int64
	Data        string // free-form JSON payload, event-type-specific
}

// Filter narrows Query results.
type Filter struct {
	Types  []EventType
	After  time.Time
	Before time.Time
	Limit  int
}

// Log is a SQLite-backed append-only event sink.
type Log struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at path and ensures the schema
// exists. Use ":memory:" for an ephemeral in-process database (tests).
func Open(path string) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite event log: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run event log schema: %w", err)
	}

	return &Log{db: db}, nil
}

// Insert appends an event. If e.Timestamp is zero, it is set to time.Now().
func (l *Log) Insert(e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	const q = `
		INSERT INTO events
			(event_type, timestamp, app_name, window_title, idle_seconds,
			 file_changes, error_count, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := l.db.Exec(q,
		string(e.Type),
		formatTime(e.Timestamp),
		e.AppName,
		e.WindowTitle,
		e.IdleSeconds,
		e.FileChanges,
		e.ErrorCount,
		e.Data,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Query returns events matching f, newest first, capped at 500.
func (l *Log) Query(f Filter) ([]Event, error) {
	limit := f.Limit
	if limit <= 0 || limit > maxQueryLimit {
		limit = maxQueryLimit
	}

	var conditions []string
	var args []any

	if len(f.Types) > 0 {
		placeholders := make([]string, len(f.Types))
		for i, t := range f.Types {
			placeholders[i] = "?"
			args = append(args, string(t))
		}
		conditions = append(conditions, "event_type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if !f.After.IsZero() {
		conditions = append(conditions, "timestamp > ?")
		args = append(args, formatTime(f.After))
	}
	if !f.Before.IsZero() {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, formatTime(f.Before))
	}

	q := `
		SELECT id, event_type, timestamp, app_name, window_title, idle_seconds,
		       file_changes, error_count, data
		FROM events
	`
	if len(conditions) > 0 {
		q += " WHERE " + strings.Join(conditions, " AND ")
	}
	q += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT %d", limit)

	rows, err := l.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var ts string
		if err := rows.Scan(
			&e.ID, (*string)(&e.Type), &ts, &e.AppName, &e.WindowTitle,
			&e.IdleSeconds, &e.FileChanges, &e.ErrorCount, &e.Data,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Timestamp = parseTime(ts)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// CleanupOlderThan deletes every event older than the given number of
// days and returns how many rows were removed.
func (l *Log) CleanupOlderThan(days int) (int64, error) {
	cutoff := formatTime(time.Now().AddDate(0, 0, -days))
	res, err := l.db.Exec(`DELETE FROM events WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup old events: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the underlying database connection.
func (l *Log) Close() error {
	return l.db.Close()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
