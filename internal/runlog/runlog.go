// Package runlog records every training attempt in a small sqlite ledger, so
// failed runs stay visible even though they never publish a bundle.
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/hejijunhao/hierclass/internal/model"

	_ "modernc.org/sqlite"
)

// Kind distinguishes a base training run from a retrain.
type Kind string

const (
	KindTrain   Kind = "train"
	KindRetrain Kind = "retrain"
)

// Status is a run's outcome.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Run is one row of the ledger.
type Run struct {
	ID          string
	Kind        Kind
	Status      Status
	BaseVersion string
	Version     string // published bundle, empty unless succeeded
	StartedAt   time.Time
	FinishedAt  time.Time // zero while running
	Records     int
	Metrics     *model.Metrics
	Error       string
}

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Ledger is the sqlite-backed run log.
type Ledger struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS training_runs (
	run_id       TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	status       TEXT NOT NULL,
	base_version TEXT NOT NULL DEFAULT '',
	version      TEXT NOT NULL DEFAULT '',
	started_at   TEXT NOT NULL,
	finished_at  TEXT NOT NULL DEFAULT '',
	records      INTEGER NOT NULL,
	metrics_json TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_training_runs_started ON training_runs(started_at);
`

// Open creates or opens the ledger database at path.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eris.Wrapf(err, "runlog: create dir for %s", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: open sqlite db")
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, eris.Wrapf(execErr, "runlog: apply pragma %q", pragma)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "runlog: init schema")
	}
	return &Ledger{db: db, path: path, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Path returns the database file location.
func (l *Ledger) Path() string { return l.path }

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Start inserts a running row and returns its id.
func (l *Ledger) Start(ctx context.Context, kind Kind, records int, baseVersion string) (string, error) {
	id := uuid.NewString()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO training_runs (run_id, kind, status, base_version, started_at, records) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(kind), string(StatusRunning), baseVersion, formatTime(l.now()), records)
	if err != nil {
		return "", eris.Wrap(err, "runlog: insert run")
	}
	return id, nil
}

// Finish marks a run succeeded with the version it published.
func (l *Ledger) Finish(ctx context.Context, id, version string, metrics model.Metrics) error {
	raw, err := json.Marshal(metrics)
	if err != nil {
		return eris.Wrap(err, "runlog: encode metrics")
	}
	return l.update(ctx, id,
		`UPDATE training_runs SET status = ?, version = ?, finished_at = ?, metrics_json = ? WHERE run_id = ? AND status = ?`,
		string(StatusSucceeded), version, formatTime(l.now()), string(raw), id, string(StatusRunning))
}

// Fail marks a run failed with cause's message.
func (l *Ledger) Fail(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return l.update(ctx, id,
		`UPDATE training_runs SET status = ?, finished_at = ?, error = ? WHERE run_id = ? AND status = ?`,
		string(StatusFailed), formatTime(l.now()), msg, id, string(StatusRunning))
}

func (l *Ledger) update(ctx context.Context, id, query string, args ...any) error {
	res, err := l.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "runlog: update run %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "runlog: update run %s", id)
	}
	if n == 0 {
		return eris.Wrapf(ErrRunNotFound, "runlog: no running run %s", id)
	}
	return nil
}

const selectRuns = `SELECT run_id, kind, status, base_version, version, started_at, finished_at, records, metrics_json, error FROM training_runs`

// Get returns one run.
func (l *Ledger) Get(ctx context.Context, id string) (Run, error) {
	row := l.db.QueryRowContext(ctx, selectRuns+` WHERE run_id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, eris.Wrapf(ErrRunNotFound, "runlog: run %s", id)
	}
	return r, err
}

// List returns up to limit runs, newest first. limit <= 0 returns all runs.
func (l *Ledger) List(ctx context.Context, limit int) ([]Run, error) {
	query := selectRuns + ` ORDER BY started_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "runlog: list runs")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r                     Run
		kind, status          string
		started, finished     string
		metricsJSON, errorMsg string
	)
	if err := s.Scan(&r.ID, &kind, &status, &r.BaseVersion, &r.Version, &started, &finished, &r.Records, &metricsJSON, &errorMsg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, eris.Wrap(err, "runlog: scan run")
	}
	r.Kind, r.Status, r.Error = Kind(kind), Status(status), errorMsg

	var err error
	if r.StartedAt, err = parseTime(started); err != nil {
		return Run{}, err
	}
	if r.FinishedAt, err = parseTime(finished); err != nil {
		return Run{}, err
	}
	if metricsJSON != "" {
		r.Metrics = new(model.Metrics)
		if err := json.Unmarshal([]byte(metricsJSON), r.Metrics); err != nil {
			return Run{}, eris.Wrapf(err, "runlog: decode metrics of %s", r.ID)
		}
	}
	return r, nil
}

// timeLayout is fixed-width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "runlog: parse time %q", s)
	}
	return t, nil
}
