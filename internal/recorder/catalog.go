package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// CatalogEntry is one row of the recording catalog: the additive
// feature from spec expansion §4.8 that gives operators a queryable
// history of past recordings without scanning the filesystem.
type CatalogEntry struct {
	SessionID     string
	FileName      string
	StartedAt     time.Time
	StoppedAt     time.Time
	EventsBytes   int64
	WaveformsBytes int64
	RawBytes      int64
}

// Catalog is a SQLite-backed append log of recording sessions.
type Catalog struct {
	db *sql.DB
}

// OpenCatalog opens (creating if needed) the catalog database at
// dbPath.
func OpenCatalog(dbPath string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("recorder: open catalog: %w", err)
	}
	c := &Catalog{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("recorder: migrate catalog schema: %w", err)
	}
	return c, nil
}

// Close closes the catalog's database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS recording_sessions (
		session_id      TEXT PRIMARY KEY,
		file_name       TEXT NOT NULL,
		started_at      TEXT NOT NULL,
		stopped_at      TEXT NOT NULL,
		events_bytes    INTEGER NOT NULL,
		waveforms_bytes INTEGER NOT NULL,
		raw_bytes       INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_recording_sessions_started ON recording_sessions(started_at);
	`
	_, err := c.db.Exec(schema)
	return err
}

// Record appends one completed recording session to the catalog. If
// entry.SessionID is empty, a UUIDv7 is generated.
func (c *Catalog) Record(ctx context.Context, entry CatalogEntry) error {
	if entry.SessionID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("recorder: generate session id: %w", err)
		}
		entry.SessionID = id.String()
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO recording_sessions
			(session_id, file_name, started_at, stopped_at, events_bytes, waveforms_bytes, raw_bytes)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.SessionID,
		entry.FileName,
		entry.StartedAt.UTC().Format(time.RFC3339),
		entry.StoppedAt.UTC().Format(time.RFC3339),
		entry.EventsBytes,
		entry.WaveformsBytes,
		entry.RawBytes,
	)
	if err != nil {
		return fmt.Errorf("recorder: insert catalog entry: %w", err)
	}
	return nil
}

// Sessions returns every catalog entry whose started_at falls in
// [from, to), ordered by started_at ascending.
func (c *Catalog) Sessions(from, to time.Time) ([]CatalogEntry, error) {
	rows, err := c.db.Query(
		`SELECT session_id, file_name, started_at, stopped_at, events_bytes, waveforms_bytes, raw_bytes
		 FROM recording_sessions
		 WHERE started_at >= ? AND started_at < ?
		 ORDER BY started_at ASC`,
		from.UTC().Format(time.RFC3339),
		to.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("recorder: query catalog: %w", err)
	}
	defer rows.Close()

	var entries []CatalogEntry
	for rows.Next() {
		var e CatalogEntry
		var started, stopped string
		if err := rows.Scan(&e.SessionID, &e.FileName, &started, &stopped, &e.EventsBytes, &e.WaveformsBytes, &e.RawBytes); err != nil {
			return nil, fmt.Errorf("recorder: scan catalog row: %w", err)
		}
		e.StartedAt, err = time.Parse(time.RFC3339, started)
		if err != nil {
			return nil, fmt.Errorf("recorder: parse started_at: %w", err)
		}
		e.StoppedAt, err = time.Parse(time.RFC3339, stopped)
		if err != nil {
			return nil, fmt.Errorf("recorder: parse stopped_at: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
