// Package store provides SQLite-backed persistence for vigil: the append-only
// event log, the persisted schedule state, and search findings.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/voslund/vigil/internal/models"
	_ "modernc.org/sqlite"
)

// Store provides access to the vigil SQLite database. A single writer (the
// scheduler) appends while dashboard readers query concurrently; WAL mode
// keeps readers from blocking the writer.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations. Timestamps are stored as unix
// nanoseconds so that since-queries stay exact even when many entries share a
// timestamp at second resolution.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS log_entries (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		message TEXT NOT NULL,
		ts_ns INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS schedule_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		last_action_ns INTEGER NOT NULL DEFAULT 0,
		last_reflection_ns INTEGER NOT NULL DEFAULT 0,
		last_fine_tune_ns INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS findings (
		id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		content TEXT NOT NULL,
		discovered_ns INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_log_entries_ts ON log_entries(ts_ns);
	CREATE INDEX IF NOT EXISTS idx_log_entries_type ON log_entries(type, ts_ns);
	CREATE INDEX IF NOT EXISTS idx_findings_ts ON findings(discovered_ns);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Log Operations ---

// Append writes a new immutable log entry stamped with the current time.
func (s *Store) Append(logType models.LogType, message string) (*models.LogEntry, error) {
	return s.AppendAt(logType, message, time.Now().UTC())
}

// AppendAt writes a new immutable log entry with an explicit timestamp.
func (s *Store) AppendAt(logType models.LogType, message string, ts time.Time) (*models.LogEntry, error) {
	entry := &models.LogEntry{
		ID:        uuid.New().String(),
		Type:      logType,
		Message:   message,
		Timestamp: ts.UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO log_entries (id, type, message, ts_ns) VALUES (?, ?, ?, ?)`,
		entry.ID, string(entry.Type), entry.Message, entry.Timestamp.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert log entry: %w", err)
	}
	return entry, nil
}

// QueryOpts filters a log query. A zero value returns everything.
type QueryOpts struct {
	// Since excludes entries at or before the given time (strict greater-than),
	// so incremental polling never duplicates and never drops entries.
	Since time.Time
	// Type restricts results to one entry type when non-empty.
	Type models.LogType
	// Limit caps the number of returned entries when > 0. With Since unset the
	// most recent entries are kept; with Since set the oldest matching entries
	// are kept so pollers can page forward.
	Limit int
}

// Query returns log entries in timestamp order.
func (s *Store) Query(opts QueryOpts) ([]models.LogEntry, error) {
	query := `SELECT id, type, message, ts_ns FROM log_entries`
	var conds []string
	var args []interface{}

	if !opts.Since.IsZero() {
		conds = append(conds, `ts_ns > ?`)
		args = append(args, opts.Since.UnixNano())
	}
	if opts.Type != "" {
		conds = append(conds, `type = ?`)
		args = append(args, string(opts.Type))
	}
	for i, c := range conds {
		if i == 0 {
			query += ` WHERE ` + c
		} else {
			query += ` AND ` + c
		}
	}

	tail := false
	if opts.Limit > 0 && opts.Since.IsZero() {
		// Keep the newest entries: fetch in reverse and flip afterwards.
		query += ` ORDER BY ts_ns DESC, rowid DESC LIMIT ?`
		args = append(args, opts.Limit)
		tail = true
	} else {
		query += ` ORDER BY ts_ns ASC, rowid ASC`
		if opts.Limit > 0 {
			query += ` LIMIT ?`
			args = append(args, opts.Limit)
		}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query log entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LogEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if tail {
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (models.LogEntry, error) {
	var entry models.LogEntry
	var typ string
	var tsNS int64
	if err := rows.Scan(&entry.ID, &typ, &entry.Message, &tsNS); err != nil {
		return entry, fmt.Errorf("scan log entry: %w", err)
	}
	entry.Type = models.LogType(typ)
	entry.Timestamp = time.Unix(0, tsNS).UTC()
	return entry, nil
}

// Interactions reconstructs prompt/response pairs by scanning the log in
// timestamp order and pairing each prompt entry with the next response entry.
// A trailing prompt with no response yet is omitted. The newest `limit` pairs
// are returned when limit > 0.
func (s *Store) Interactions(limit int) ([]models.Interaction, error) {
	rows, err := s.db.Query(
		`SELECT id, type, message, ts_ns FROM log_entries WHERE type IN (?, ?) ORDER BY ts_ns ASC, rowid ASC`,
		string(models.LogTypePrompt), string(models.LogTypeResponse),
	)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	var interactions []models.Interaction
	var pending *models.Message
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		switch entry.Type {
		case models.LogTypePrompt:
			pending = &models.Message{Content: entry.Message, Timestamp: entry.Timestamp}
		case models.LogTypeResponse:
			if pending != nil {
				interactions = append(interactions, models.Interaction{
					Prompt:   *pending,
					Response: models.Message{Content: entry.Message, Timestamp: entry.Timestamp},
				})
				pending = nil
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if limit > 0 && len(interactions) > limit {
		interactions = interactions[len(interactions)-limit:]
	}
	return interactions, nil
}

// LatestInteraction returns the most recent completed prompt/response pair, or
// nil if no response has followed a prompt yet.
func (s *Store) LatestInteraction() (*models.Interaction, error) {
	interactions, err := s.Interactions(1)
	if err != nil {
		return nil, err
	}
	if len(interactions) == 0 {
		return nil, nil
	}
	return &interactions[0], nil
}

// --- Schedule State Operations ---

// LoadScheduleState returns the persisted schedule state, or a zero state if
// none has been saved yet.
func (s *Store) LoadScheduleState() (models.ScheduleState, error) {
	var st models.ScheduleState
	var actionNS, reflectionNS, fineTuneNS int64

	err := s.db.QueryRow(
		`SELECT last_action_ns, last_reflection_ns, last_fine_tune_ns FROM schedule_state WHERE id = 1`,
	).Scan(&actionNS, &reflectionNS, &fineTuneNS)

	if err == sql.ErrNoRows {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("query schedule state: %w", err)
	}

	st.LastActionTime = nsTime(actionNS)
	st.LastReflectionTime = nsTime(reflectionNS)
	st.LastFineTuneTime = nsTime(fineTuneNS)
	return st, nil
}

// SaveScheduleState durably replaces the schedule state. The scheduler calls
// this only after the cycle's log entries have been appended.
func (s *Store) SaveScheduleState(st models.ScheduleState) error {
	_, err := s.db.Exec(
		`INSERT INTO schedule_state (id, last_action_ns, last_reflection_ns, last_fine_tune_ns)
		 VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			last_action_ns = excluded.last_action_ns,
			last_reflection_ns = excluded.last_reflection_ns,
			last_fine_tune_ns = excluded.last_fine_tune_ns`,
		timeNS(st.LastActionTime), timeNS(st.LastReflectionTime), timeNS(st.LastFineTuneTime),
	)
	if err != nil {
		return fmt.Errorf("save schedule state: %w", err)
	}
	return nil
}

func nsTime(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

func timeNS(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

// --- Finding Operations ---

// AddFinding stores raw search findings for a query.
func (s *Store) AddFinding(query, content string) (*models.Finding, error) {
	f := &models.Finding{
		ID:           uuid.New().String(),
		Query:        query,
		Content:      content,
		DiscoveredAt: time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO findings (id, query, content, discovered_ns) VALUES (?, ?, ?, ?)`,
		f.ID, f.Query, f.Content, f.DiscoveredAt.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert finding: %w", err)
	}
	return f, nil
}

// RecentFindings returns the newest findings, most recent first.
func (s *Store) RecentFindings(limit int) ([]models.Finding, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(
		`SELECT id, query, content, discovered_ns FROM findings ORDER BY discovered_ns DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}
	defer rows.Close()

	var findings []models.Finding
	for rows.Next() {
		var f models.Finding
		var ns int64
		if err := rows.Scan(&f.ID, &f.Query, &f.Content, &ns); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		f.DiscoveredAt = time.Unix(0, ns).UTC()
		findings = append(findings, f)
	}
	return findings, rows.Err()
}
