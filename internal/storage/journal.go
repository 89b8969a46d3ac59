// Package storage keeps the fetch journal: run history and the last detail
// fetch outcome per receipt key.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunPartial   = "partial"
	RunFailed    = "failed"
)

// Detail statuses.
const (
	DetailOK     = "ok"
	DetailFailed = "failed"
)

const timeLayout = time.RFC3339Nano

// Run is one fetch run as recorded in the journal.
type Run struct {
	ID             string
	Sender         string
	Status         string
	StartedAt      time.Time
	FinishedAt     time.Time
	Receipts       int
	DetailsFetched int
	DetailsSkipped int
	Failures       int
	Error          string
}

// DetailStatus is the last recorded outcome for one receipt key.
type DetailStatus struct {
	Key       string
	Sender    string
	RunID     string
	Status    string
	Attempts  int
	LastError string
	UpdatedAt time.Time
}

type Journal struct {
	db      *sql.DB
	now     func() time.Time
	version uint
}

// Open creates or opens the journal database and applies migrations.
func Open(dbPath string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// Detail workers record concurrently; serialize writers on one connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := migrateJournal(dbPath)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db, now: time.Now, version: version}, nil
}

// SchemaVersion is the migration version the journal was opened at.
func (j *Journal) SchemaVersion() uint {
	return j.version
}

func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// StartRun records a new running fetch.
func (j *Journal) StartRun(ctx context.Context, runID, sender string) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO fetch_runs (id, sender, status, started_at) VALUES (?, ?, ?, ?)`,
		runID, sender, RunRunning, j.now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("start run %s: %w", runID, err)
	}
	return nil
}

// FinishRun stores the outcome of a run started with StartRun.
func (j *Journal) FinishRun(ctx context.Context, run Run) error {
	res, err := j.db.ExecContext(ctx, `
		UPDATE fetch_runs
		SET status = ?, finished_at = ?, receipts = ?, details_fetched = ?,
		    details_skipped = ?, failures = ?, error = ?
		WHERE id = ?`,
		run.Status, j.now().UTC().Format(timeLayout), run.Receipts, run.DetailsFetched,
		run.DetailsSkipped, run.Failures, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: unknown run", run.ID)
	}
	return nil
}

// RecordDetail upserts the outcome of one detail fetch. A nil fetchErr
// marks the key as fetched.
func (j *Journal) RecordDetail(ctx context.Context, runID, sender, key string, fetchErr error) error {
	status, msg := DetailOK, ""
	if fetchErr != nil {
		status, msg = DetailFailed, fetchErr.Error()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO receipt_fetches (receipt_key, sender, run_id, status, attempts, last_error, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(receipt_key) DO UPDATE SET
			sender = excluded.sender,
			run_id = excluded.run_id,
			status = excluded.status,
			attempts = receipt_fetches.attempts + 1,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`,
		key, sender, runID, status, msg, j.now().UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("record detail %s: %w", key, err)
	}
	return nil
}

// FailedKeys returns the keys of sender whose last detail fetch failed.
func (j *Journal) FailedKeys(ctx context.Context, sender string) ([]string, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT receipt_key FROM receipt_fetches WHERE sender = ? AND status = ? ORDER BY receipt_key`,
		sender, DetailFailed)
	if err != nil {
		return nil, fmt.Errorf("query failed keys: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan failed key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Detail returns the recorded status of one key.
func (j *Journal) Detail(ctx context.Context, key string) (DetailStatus, error) {
	var (
		d       DetailStatus
		updated string
	)
	err := j.db.QueryRowContext(ctx, `
		SELECT receipt_key, sender, run_id, status, attempts, last_error, updated_at
		FROM receipt_fetches WHERE receipt_key = ?`, key).
		Scan(&d.Key, &d.Sender, &d.RunID, &d.Status, &d.Attempts, &d.LastError, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return DetailStatus{}, fmt.Errorf("detail %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return DetailStatus{}, fmt.Errorf("query detail %s: %w", key, err)
	}
	d.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return d, nil
}

// RecentRuns returns up to limit runs, newest first.
func (j *Journal) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, sender, status, started_at, COALESCE(finished_at, ''), receipts,
		       details_fetched, details_skipped, failures, error
		FROM fetch_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			r                 Run
			started, finished string
		)
		if err := rows.Scan(&r.ID, &r.Sender, &r.Status, &started, &finished, &r.Receipts,
			&r.DetailsFetched, &r.DetailsSkipped, &r.Failures, &r.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(timeLayout, started)
		if finished != "" {
			r.FinishedAt, _ = time.Parse(timeLayout, finished)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ErrNotFound is returned when a journal lookup has no row.
var ErrNotFound = errors.New("journal entry not found")
