// Package eventlog archives captured tracking events in SQLite, so beacon
// traffic from a test run can be inspected after the browser session is
// gone. The archive is an optional sink; the in-memory store stays the
// source of truth for validation.
package eventlog

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // CGO-free SQLite

	tracking "github.com/mrt1847-test/user-tracking-automation"
)

// Archive persists captured events to a SQLite database. It implements
// tracking.EventSink.
type Archive struct {
	db *sql.DB
}

// Open opens (or creates) the archive database at path.
func Open(path string) (*Archive, error) {
	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Archive{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS events(
	  id           TEXT    PRIMARY KEY,
	  captured_at  INTEGER NOT NULL,
	  kind         TEXT    NOT NULL,
	  url          TEXT    NOT NULL,
	  method       TEXT    NOT NULL,
	  page_id      TEXT,
	  raw_body     TEXT    NOT NULL,
	  payload_json TEXT    NOT NULL CHECK (json_valid(payload_json))
	);
	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
	CREATE INDEX IF NOT EXISTS idx_events_ts   ON events(captured_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to create archive tables: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Archive stores one captured event.
func (a *Archive) Archive(event *tracking.CapturedEvent) error {
	if event == nil {
		return fmt.Errorf("cannot archive nil event")
	}
	if event.ID == "" {
		return fmt.Errorf("cannot archive event without id")
	}

	payload, err := json.Marshal(event.Decoded)
	if err != nil {
		return fmt.Errorf("failed to marshal decoded payload: %w", err)
	}

	_, err = a.db.Exec(
		`INSERT INTO events(id, captured_at, kind, url, method, page_id, raw_body, payload_json)
		 VALUES(?,?,?,?,?,?,?,json(?))`,
		event.ID,
		event.CapturedAt.UnixMilli(),
		string(event.Kind),
		event.URL,
		event.Method,
		event.PageID,
		event.RawBody,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// CountByKind returns the number of archived events per kind.
func (a *Archive) CountByKind() (map[string]int, error) {
	rows, err := a.db.Query(`SELECT kind, COUNT(*) FROM events GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to query counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		counts[kind] = count
	}
	return counts, rows.Err()
}

// URLsByKind returns the archived request URLs for one kind, in capture
// order.
func (a *Archive) URLsByKind(kind string) ([]string, error) {
	rows, err := a.db.Query(
		`SELECT url FROM events WHERE kind = ? ORDER BY captured_at`, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to query urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("failed to scan url row: %w", err)
		}
		urls = append(urls, url)
	}
	return urls, rows.Err()
}
