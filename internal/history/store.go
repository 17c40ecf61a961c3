// Package history persists pipeline run records in SQLite. The store serves
// two purposes: it is the baseline for change-based notification policies
// (the previous run's final status per branch), and it keeps an append-only
// event log per run for diagnostics.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// RunRecord is a finalized pipeline run across all matrix entries.
type RunRecord struct {
	ID         string
	Branch     string
	Commit     string
	Verdict    string
	StartedAt  time.Time
	FinishedAt time.Time
	Entries    []EntryRecord
}

// EntryRecord is one matrix entry's outcome within a run.
type EntryRecord struct {
	Channel      string
	AllowFailure bool
	Verdict      string
}

// Store is a SQLite-backed run history store.
// Use ":memory:" for an in-memory database, or a file path for persistence.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore opens (and if needed initializes) the history database.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		branch TEXT NOT NULL,
		commit_sha TEXT NOT NULL,
		verdict TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_branch ON runs(branch, finished_at);
	CREATE TABLE IF NOT EXISTS run_entries (
		run_id TEXT NOT NULL,
		channel TEXT NOT NULL,
		allow_failure INTEGER NOT NULL,
		verdict TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_run_entries_run ON run_entries(run_id);
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		payload BLOB NOT NULL,
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordRun persists a finalized run with its entry verdicts.
func (s *Store) RecordRun(ctx context.Context, rec RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO runs (id, branch, commit_sha, verdict, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?)",
		rec.ID, rec.Branch, rec.Commit, rec.Verdict, rec.StartedAt.Unix(), rec.FinishedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, e := range rec.Entries {
		allowFailure := 0
		if e.AllowFailure {
			allowFailure = 1
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO run_entries (run_id, channel, allow_failure, verdict) VALUES (?, ?, ?, ?)",
			rec.ID, e.Channel, allowFailure, e.Verdict,
		)
		if err != nil {
			return fmt.Errorf("insert run entry: %w", err)
		}
	}

	return tx.Commit()
}

// LastFinalVerdict returns the most recent finalized verdict for a branch.
// The second return value is false when the branch has never run; the first
// run on a branch counts as a change for notification purposes.
func (s *Store) LastFinalVerdict(ctx context.Context, branch string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var verdict string
	err := s.db.QueryRowContext(ctx,
		"SELECT verdict FROM runs WHERE branch = ? ORDER BY finished_at DESC, id DESC LIMIT 1",
		branch,
	).Scan(&verdict)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query last verdict: %w", err)
	}
	return verdict, true, nil
}

// Append adds a diagnostic event to a run's event log. This satisfies the
// pipeline bus's event store interface.
func (s *Store) Append(ctx context.Context, runID, eventType string, payload []byte, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var metadataJSON []byte
	if metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO events (run_id, event_type, timestamp, payload, metadata) VALUES (?, ?, ?, ?, ?)",
		runID, eventType, time.Now().Unix(), payload, metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit finalized runs, newest first, entries included.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, branch, commit_sha, verdict, started_at, finished_at FROM runs ORDER BY finished_at DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var rec RunRecord
		var started, finished int64
		if err := rows.Scan(&rec.ID, &rec.Branch, &rec.Commit, &rec.Verdict, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.StartedAt = time.Unix(started, 0)
		rec.FinishedAt = time.Unix(finished, 0)
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	for i := range runs {
		entries, err := s.entriesForRun(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Entries = entries
	}

	return runs, nil
}

func (s *Store) entriesForRun(ctx context.Context, runID string) ([]EntryRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT channel, allow_failure, verdict FROM run_entries WHERE run_id = ?",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query run entries: %w", err)
	}
	defer rows.Close()

	var entries []EntryRecord
	for rows.Next() {
		var e EntryRecord
		var allowFailure int
		if err := rows.Scan(&e.Channel, &allowFailure, &e.Verdict); err != nil {
			return nil, fmt.Errorf("scan run entry: %w", err)
		}
		e.AllowFailure = allowFailure != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
