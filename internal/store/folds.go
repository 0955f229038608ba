package store

import (
	"database/sql"
	"fmt"
	"time"
)

// FoldStore records per-fold outcomes.
type FoldStore struct {
	db *DB
}

// NewFoldStore creates a new fold store.
func NewFoldStore(db *DB) *FoldStore {
	return &FoldStore{db: db}
}

// Record inserts or replaces the outcome of a fold.
func (s *FoldStore) Record(f *Fold) error {
	if f == nil {
		return fmt.Errorf("fold is nil")
	}
	if f.RecordedAt.IsZero() {
		f.RecordedAt = time.Now().UTC()
	}
	cmc, err := encodeCurve(f.CMC)
	if err != nil {
		return err
	}
	var mAP any
	if f.MAP != nil {
		mAP = *f.MAP
	}

	_, err = s.db.sqlDB.Exec(`
		INSERT INTO folds (run_id, fold, output_dir, test, checkpoint, map, cmc_json, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, fold) DO UPDATE SET
			output_dir = excluded.output_dir,
			test = excluded.test,
			checkpoint = excluded.checkpoint,
			map = excluded.map,
			cmc_json = excluded.cmc_json,
			error = excluded.error,
			recorded_at = excluded.recorded_at`,
		f.RunID, f.Fold, f.OutputDir, boolToInt(f.Test), f.Checkpoint, mAP, cmc, f.Error, formatTime(f.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record fold: %w", err)
	}
	return nil
}

// ListByRun returns a run's folds in order.
func (s *FoldStore) ListByRun(runID string) ([]Fold, error) {
	rows, err := s.db.sqlDB.Query(`
		SELECT run_id, fold, output_dir, test, checkpoint, map, cmc_json, error, recorded_at
		FROM folds WHERE run_id = ? ORDER BY fold`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list folds: %w", err)
	}
	defer rows.Close()

	var folds []Fold
	for rows.Next() {
		var (
			f          Fold
			test       int
			mAP        sql.NullFloat64
			cmc        sql.NullString
			recordedAt any
		)
		if err := rows.Scan(&f.RunID, &f.Fold, &f.OutputDir, &test, &f.Checkpoint, &mAP, &cmc, &f.Error, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fold: %w", err)
		}
		f.Test = test != 0
		f.MAP = nullFloat(mAP)
		if f.CMC, err = decodeCurve(cmc); err != nil {
			return nil, err
		}
		if f.RecordedAt, err = parseTimeValue(recordedAt); err != nil {
			return nil, fmt.Errorf("failed to parse recorded_at: %w", err)
		}
		folds = append(folds, f)
	}
	return folds, rows.Err()
}
