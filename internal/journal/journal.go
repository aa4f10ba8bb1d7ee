// Package journal keeps a SQLite log of session lifecycle events.
package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sudoapty-afk/glowing-barnacle/internal/session"
)

//go:embed schema.sql
var schema string

const pruneEvery = 100

// Entry is one recorded event.
type Entry struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Cause     string    `json:"cause,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Message   string    `json:"message,omitempty"`
	Heartbeat bool      `json:"heartbeat,omitempty"`
	Attempt   uint64    `json:"attempt"`
	CreatedAt time.Time `json:"createdAt"`
	Host      string    `json:"-"` // unmasked; callers mask Reason with it before serving
}

// Store persists events in SQLite.
type Store struct {
	sqlDB      *sql.DB
	maxEntries int
	inserts    atomic.Int64
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens (creating if needed) the journal at path. maxEntries bounds the
// table size; zero keeps everything.
func Open(path string, maxEntries int) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("journal path is required")
	}
	dsn := path
	if path != ":memory:" {
		cleanPath := filepath.Clean(path)
		if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
		dsn = cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := addHostColumn(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return &Store{sqlDB: sqlDB, maxEntries: maxEntries}, nil
}

// addHostColumn upgrades journals created before rows carried their host.
func addHostColumn(sqlDB *sql.DB) error {
	var n int
	err := sqlDB.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('session_events') WHERE name = 'host'`).Scan(&n)
	if err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := sqlDB.Exec(`ALTER TABLE session_events ADD COLUMN host TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("add host column: %w", err)
	}
	return nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Record appends ev.
func (s *Store) Record(ctx context.Context, ev session.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO session_events (type, status, cause, reason, message, heartbeat, attempt, created_at, host)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Type.String(),
		ev.Status.String(),
		string(ev.Cause),
		ev.Reason,
		ev.Message,
		ev.Heartbeat,
		int64(ev.Attempt),
		toMillis(at),
		ev.Host,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	if n := s.inserts.Add(1); s.maxEntries > 0 && n%pruneEvery == 0 {
		if err := s.Prune(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Prune deletes all but the newest maxEntries rows.
func (s *Store) Prune(ctx context.Context) error {
	if s.maxEntries <= 0 {
		return nil
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM session_events WHERE id <= (
		   SELECT id FROM session_events ORDER BY id DESC LIMIT 1 OFFSET ?
		 )`, s.maxEntries)
	if err != nil {
		return fmt.Errorf("prune events: %w", err)
	}
	return nil
}

// Filter narrows Recent. Zero values match everything.
type Filter struct {
	Type   string
	Limit  int
	Before int64 // only rows with a smaller id
}

// Recent returns matching entries, newest first.
func (s *Store) Recent(ctx context.Context, f Filter) ([]Entry, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 50
	}
	query := `SELECT id, type, status, cause, reason, message, heartbeat, attempt, created_at, host
	          FROM session_events WHERE 1=1`
	var args []any
	if f.Type != "" {
		query += ` AND type = ?`
		args = append(args, f.Type)
	}
	if f.Before > 0 {
		query += ` AND id < ?`
		args = append(args, f.Before)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, f.Limit)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			attempt int64
			created int64
		)
		if err := rows.Scan(&e.ID, &e.Type, &e.Status, &e.Cause, &e.Reason, &e.Message, &e.Heartbeat, &attempt, &created, &e.Host); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Attempt = uint64(attempt)
		e.CreatedAt = fromMillis(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of stored rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.sqlDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_events`).Scan(&n)
	return n, err
}

// Consume records every event from events until ctx is done or the channel
// closes. Write failures are logged and skipped.
func (s *Store) Consume(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := s.Record(ctx, ev); err != nil && ctx.Err() == nil {
				log.Printf("journal: %v", err)
			}
		}
	}
}
