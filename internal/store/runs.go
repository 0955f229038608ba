package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RunStore provides CRUD operations for runs.
type RunStore struct {
	db *DB
}

// NewRunStore creates a new run store.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

const runColumns = `id, config_file, config_text, dataset, num_trials, output_dir,
	world_size, git_rev, status, error, map, map_std, cmc_json, started_at, finished_at`

// Create inserts a run in the running state. An empty ID gets a fresh UUID.
func (s *RunStore) Create(run *Run) error {
	if run == nil {
		return fmt.Errorf("run is nil")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.WorldSize == 0 {
		run.WorldSize = 1
	}
	run.Status = StatusRunning

	_, err := s.db.sqlDB.Exec(`
		INSERT INTO runs (id, config_file, config_text, dataset, num_trials, output_dir,
			world_size, git_rev, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ConfigFile, run.ConfigText, run.Dataset, run.NumTrials, run.OutputDir,
		run.WorldSize, run.GitRev, run.Status, formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// Finish marks a run as succeeded with its summary, or failed with runErr.
func (s *RunStore) Finish(id string, summary *Summary, runErr error) error {
	status := StatusSucceeded
	var (
		errText string
		mAP     any
		mAPStd  any
		cmc     any
	)
	if runErr != nil {
		status = StatusFailed
		errText = runErr.Error()
	} else if summary != nil {
		mAP, mAPStd = summary.MAP, summary.MAPStd
		var err error
		if cmc, err = encodeCurve(summary.CMC); err != nil {
			return err
		}
	}

	res, err := s.db.sqlDB.Exec(`
		UPDATE runs SET status = ?, error = ?, map = ?, map_std = ?, cmc_json = ?, finished_at = ?
		WHERE id = ?`,
		status, errText, mAP, mAPStd, cmc, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrNotFound)
	}
	return nil
}

// Get returns a run by ID or by a unique ID prefix.
func (s *RunStore) Get(id string) (*Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}
	run, err := scanRun(s.db.sqlDB.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	rows, err := s.db.sqlDB.Query("SELECT "+runColumns+" FROM runs WHERE id LIKE ? ESCAPE '\\' LIMIT 2",
		escapeLike(id)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	defer rows.Close()

	var found []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	switch len(found) {
	case 0:
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	case 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("run id prefix %q is ambiguous", id)
	}
}

// List returns the most recent runs first. limit <= 0 returns all of them.
func (s *RunStore) List(limit int) ([]Run, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, id"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.sqlDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		r          Run
		mAP        sql.NullFloat64
		mAPStd     sql.NullFloat64
		cmc        sql.NullString
		startedAt  any
		finishedAt any
	)
	if err := row.Scan(
		&r.ID, &r.ConfigFile, &r.ConfigText, &r.Dataset, &r.NumTrials, &r.OutputDir,
		&r.WorldSize, &r.GitRev, &r.Status, &r.Error, &mAP, &mAPStd, &cmc, &startedAt, &finishedAt,
	); err != nil {
		return nil, err
	}
	r.MAP = nullFloat(mAP)
	r.MAPStd = nullFloat(mAPStd)

	var err error
	if r.CMC, err = decodeCurve(cmc); err != nil {
		return nil, err
	}
	if r.StartedAt, err = parseTimeValue(startedAt); err != nil {
		return nil, fmt.Errorf("failed to parse started_at: %w", err)
	}
	ts, err := parseTimeValue(finishedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse finished_at: %w", err)
	}
	if !ts.IsZero() {
		r.FinishedAt = &ts
	}
	return &r, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
