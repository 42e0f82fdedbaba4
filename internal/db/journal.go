package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lancer-robotics/minibot/internal/events"
)

// DefaultRecentLimit caps Recent when no limit is given.
const DefaultRecentLimit = 50

// Journal appends robot events to SQLite for post-match review. It is
// write-only from the robot's point of view: nothing is ever loaded back
// into control state.
type Journal struct {
	db      *Database
	session string
}

// Entry is one journaled event.
type Entry struct {
	ID        int64           `json:"id"`
	Session   string          `json:"session"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// OpenJournal opens the journal database and tags every new row with
// session.
func OpenJournal(path, session string) (*Journal, error) {
	database, err := NewDatabase(path)
	if err != nil {
		return nil, err
	}

	j := &Journal{db: database, session: session}
	if err := j.migrate(context.Background()); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}
	return j, nil
}

func (j *Journal) migrate(ctx context.Context) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			session    TEXT    NOT NULL,
			type       TEXT    NOT NULL,
			source     TEXT    NOT NULL DEFAULT '',
			payload    TEXT,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON events(type)`,
	}

	return j.db.Transaction(ctx, func(tx *sql.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

// Record appends one event.
func (j *Journal) Record(ctx context.Context, e events.Event) error {
	var payload []byte
	if e.Payload != nil {
		var err error
		if payload, err = json.Marshal(e.Payload); err != nil {
			return fmt.Errorf("failed to encode %s payload: %w", e.Type, err)
		}
	}

	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events (session, type, source, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		j.session, string(e.Type), e.Source, nullableText(payload), ts.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to journal %s: %w", e.Type, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. An empty eventType
// matches every type.
func (j *Journal) Recent(ctx context.Context, limit int, eventType string) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	query := `SELECT id, session, type, source, payload, created_at FROM events`
	args := []interface{}{}
	if eventType != "" {
		query += ` WHERE type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e       Entry
			payload sql.NullString
			created int64
		)
		if err := rows.Scan(&e.ID, &e.Session, &e.Type, &e.Source, &payload, &created); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		e.Timestamp = time.Unix(0, created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Count returns the number of journaled events across all sessions.
func (j *Journal) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count journal: %w", err)
	}
	return n, nil
}

// Prune deletes entries recorded before the cutoff and returns how many
// were removed.
func (j *Journal) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM events WHERE created_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune journal: %w", err)
	}
	return res.RowsAffected()
}

// Attach subscribes the journal to every event type on the bus.
func (j *Journal) Attach(bus *events.EventBus) {
	bus.SubscribeAll("journal", func(ctx context.Context, e events.Event) error {
		return j.Record(ctx, e)
	})
	log.Info().Str("session", j.session).Msg("event journal attached")
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func nullableText(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return string(b)
}
