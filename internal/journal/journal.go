// Package journal records command dispatches and broadcast events in an
// embedded SQLite database for later inspection.
package journal

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Journal is the command/event audit log. It implements domain.Hook so the
// registry reports every invocation's lifecycle into it.
// It uses modernc.org/sqlite which is pure Go (no CGO).
type Journal struct {
	db        *sql.DB
	mu        sync.Mutex // serializes writes (SQLite is single-writer)
	retention time.Duration
	closeCh   chan struct{}
	closeOnce sync.Once
}

// Entry is one journal row.
type Entry struct {
	Seq       int64     `json:"seq"`
	At        time.Time `json:"at"`
	Kind      string    `json:"kind"` // dispatched | resolved | rejected | event
	RequestID uint32    `json:"requestId"`
	Domain    string    `json:"domain"`
	Name      string    `json:"name"`
	Detail    string    `json:"detail,omitempty"`
}

// Open opens or creates the journal database at dataDir/journal.db and runs
// schema migrations. Entries older than retention are swept periodically;
// a zero retention keeps everything.
func Open(dataDir string, retention time.Duration) (*Journal, error) {
	dbPath := filepath.Join(dataDir, "journal.db")
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}

	// Single connection for writes to avoid SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	j := &Journal{
		db:        db,
		retention: retention,
		closeCh:   make(chan struct{}),
	}

	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating sqlite: %w", err)
	}

	if retention > 0 {
		go j.cleanupLoop()
	}

	return j, nil
}

func (j *Journal) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			at DATETIME NOT NULL,
			kind TEXT NOT NULL,
			request_id INTEGER NOT NULL DEFAULT 0,
			domain TEXT NOT NULL,
			name TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_at ON entries(at)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_request ON entries(request_id)`,
	}
	for _, m := range migrations {
		if _, err := j.db.Exec(m); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}
	return nil
}

// cleanupLoop periodically removes entries older than the retention window.
func (j *Journal) cleanupLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-j.closeCh:
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-j.retention)
			j.mu.Lock()
			j.db.Exec("DELETE FROM entries WHERE at < ?", cutoff)
			j.mu.Unlock()
		}
	}
}

func (j *Journal) record(kind string, requestID uint32, domain, name, detail string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	// Journal writes are best-effort; a failed insert never disturbs
	// command execution.
	j.db.Exec(
		"INSERT INTO entries (at, kind, request_id, domain, name, detail) VALUES (?, ?, ?, ?, ?, ?)",
		time.Now().UTC(), kind, requestID, domain, name, detail,
	)
}

// Dispatched implements domain.Hook.
func (j *Journal) Dispatched(id uint32, domain, command string) {
	j.record("dispatched", id, domain, command, "")
}

// Resolved implements domain.Hook.
func (j *Journal) Resolved(id uint32, domain, command string) {
	j.record("resolved", id, domain, command, "")
}

// Rejected implements domain.Hook.
func (j *Journal) Rejected(id uint32, domain, command, message string) {
	j.record("rejected", id, domain, command, message)
}

// RecordEvent logs a broadcast event.
func (j *Journal) RecordEvent(id uint32, domain, event string) {
	j.record("event", id, domain, event, "")
}

// Recent returns the newest n entries, newest first.
func (j *Journal) Recent(n int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		"SELECT seq, at, kind, request_id, domain, name, detail FROM entries ORDER BY seq DESC LIMIT ?", n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Seq, &e.At, &e.Kind, &e.RequestID, &e.Domain, &e.Name, &e.Detail); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close shuts down the cleanup goroutine and closes the database.
func (j *Journal) Close() error {
	j.closeOnce.Do(func() { close(j.closeCh) })
	return j.db.Close()
}
