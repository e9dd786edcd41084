package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"saferm/internal/engine"
)

// DB manages the SQLite database for deletion history
type DB struct {
	db    *sql.DB
	runID int64
}

// Run represents one invocation of the engine
type Run struct {
	ID        int64
	StartedAt time.Time
	Target    string
	DryRun    bool
}

// Record represents a single per-path outcome
type Record struct {
	ID           int64
	RunID        int64
	Timestamp    time.Time
	Action       string
	Path         string
	Outcome      string
	ErrorMessage string
}

// Open creates a database connection and initializes the schema
func Open(dbPath string) (*DB, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	// file: prefix with _loc=auto enables automatic DATETIME parsing
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_loc=auto")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	// Exercise the connection so the file is created if it doesn't exist
	if _, err = db.Exec("SELECT 1"); err != nil {
		return nil, fmt.Errorf("failed to initialize database (check permissions on %s): %w", dbPath, err)
	}

	// WAL mode: multiple readers, one writer
	if _, err = db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err = db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	h := &DB{db: db}
	if err = h.initSchema(); err != nil {
		return nil, err
	}

	err = nil
	return h, nil
}

func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at DATETIME NOT NULL,
		target TEXT NOT NULL,
		dry_run INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id),
		timestamp DATETIME NOT NULL,
		action TEXT NOT NULL,
		path TEXT NOT NULL,
		outcome TEXT NOT NULL,
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_outcomes_run ON outcomes(run_id);
	CREATE INDEX IF NOT EXISTS idx_outcomes_outcome ON outcomes(outcome);
	CREATE INDEX IF NOT EXISTS idx_outcomes_timestamp ON outcomes(timestamp);
	`
	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// BeginRun opens a new run row; subsequent Record calls attach to it.
func (d *DB) BeginRun(target string, dryRun bool) error {
	res, err := d.db.Exec(
		"INSERT INTO runs (started_at, target, dry_run) VALUES (?, ?, ?)",
		time.Now().UTC(), target, boolToInt(dryRun),
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read run id: %w", err)
	}
	d.runID = id
	return nil
}

// Record persists a single engine result. Implements engine.Recorder.
func (d *DB) Record(r engine.Result) error {
	errMsg := ""
	if r.Err != nil {
		errMsg = r.Err.Error()
	}
	_, err := d.db.Exec(
		"INSERT INTO outcomes (run_id, timestamp, action, path, outcome, error_message) VALUES (?, ?, ?, ?, ?, ?)",
		d.runID, time.Now().UTC(), r.Outcome.Action(), r.Path, r.Outcome.Reason(), errMsg,
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return nil
}

// Recent returns the most recent outcome records, newest first, optionally
// filtered by outcome label.
func (d *DB) Recent(limit int, outcome string) ([]Record, error) {
	query := "SELECT id, run_id, timestamp, action, path, outcome, error_message FROM outcomes"
	args := []interface{}{}
	if outcome != "" {
		query += " WHERE outcome = ?"
		args = append(args, outcome)
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.RunID, &r.Timestamp, &r.Action, &r.Path, &r.Outcome, &r.ErrorMessage); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Runs returns the most recent runs, newest first.
func (d *DB) Runs(limit int) ([]Run, error) {
	rows, err := d.db.Query(
		"SELECT id, started_at, target, dry_run FROM runs ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var dry int
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.Target, &dry); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.DryRun = dry != 0
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
