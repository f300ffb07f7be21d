// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package batch

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const ledgerFile = "batch.db"

// Job states recorded in the ledger.
const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// JobRecord is one row of the ledger.
type JobRecord struct {
	ID       int64
	Command  string
	Output   string
	Status   string
	ExitCode int
	Started  time.Time
	Finished time.Time
	Message  string
}

// ledger records every job of a batch in a SQLite database.
type ledger struct {
	mu sync.Mutex
	db *sql.DB
}

func openLedger(dir string) (*ledger, error) {
	path := filepath.Join(dir, ledgerFile)
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		command TEXT NOT NULL,
		output TEXT,
		status TEXT NOT NULL,
		exit_code INTEGER NOT NULL DEFAULT 0,
		started TEXT,
		finished TEXT,
		message TEXT
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger schema: %w", err)
	}
	return &ledger{db: db}, nil
}

func (l *ledger) close() error {
	return l.db.Close()
}

func (l *ledger) add(cmd Command) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, err := l.db.Exec(`INSERT INTO jobs (command, output, status) VALUES (?, ?, ?)`,
		cmd.String(), cmd.Output, StatusQueued)
	if err != nil {
		return 0, fmt.Errorf("recording job: %w", err)
	}
	return res.LastInsertId()
}

func (l *ledger) start(id int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.db.Exec(`UPDATE jobs SET status = ?, started = ? WHERE id = ?`,
		StatusRunning, time.Now().UTC().Format(time.RFC3339Nano), id)
	return err
}

func (l *ledger) finish(id int64, status string, exitCode int, msg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.db.Exec(`UPDATE jobs SET status = ?, exit_code = ?, finished = ?, message = ? WHERE id = ?`,
		status, exitCode, time.Now().UTC().Format(time.RFC3339Nano), msg, id)
	return err
}

// counts returns the number of jobs per status among the jobs with an id of
// at least fromID. Earlier runs of a reused batch directory are excluded.
func (l *ledger) counts(fromID int64) (map[string]int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rows, err := l.db.Query(`SELECT status, COUNT(*) FROM jobs WHERE id >= ? GROUP BY status`, fromID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func (l *ledger) jobs() ([]JobRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rows, err := l.db.Query(`SELECT id, command, COALESCE(output, ''), status, exit_code,
		COALESCE(started, ''), COALESCE(finished, ''), COALESCE(message, '') FROM jobs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []JobRecord
	for rows.Next() {
		var j JobRecord
		var started, finished string
		if err := rows.Scan(&j.ID, &j.Command, &j.Output, &j.Status, &j.ExitCode, &started, &finished, &j.Message); err != nil {
			return nil, err
		}
		j.Started, _ = time.Parse(time.RFC3339Nano, started)
		j.Finished, _ = time.Parse(time.RFC3339Nano, finished)
		out = append(out, j)
	}
	return out, rows.Err()
}
