package store

import (
	"fmt"
	"time"
)

// ScalarStore keeps training curves.
type ScalarStore struct {
	db *DB
}

// NewScalarStore creates a new scalar store.
func NewScalarStore(db *DB) *ScalarStore {
	return &ScalarStore{db: db}
}

// Append stores one curve value.
func (s *ScalarStore) Append(p ScalarPoint) error {
	_, err := s.db.sqlDB.Exec(
		"INSERT INTO scalars (run_id, fold, tag, step, value, recorded_at) VALUES (?, ?, ?, ?, ?, ?)",
		p.RunID, p.Fold, p.Tag, p.Step, p.Value, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to append scalar: %w", err)
	}
	return nil
}

// ListByRun returns a run's curve values ordered by fold and step.
// An empty tag returns every curve.
func (s *ScalarStore) ListByRun(runID, tag string) ([]ScalarPoint, error) {
	query := "SELECT run_id, fold, tag, step, value FROM scalars WHERE run_id = ?"
	args := []any{runID}
	if tag != "" {
		query += " AND tag = ?"
		args = append(args, tag)
	}
	query += " ORDER BY fold, tag, step, id"

	rows, err := s.db.sqlDB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scalars: %w", err)
	}
	defer rows.Close()

	var points []ScalarPoint
	for rows.Next() {
		var p ScalarPoint
		if err := rows.Scan(&p.RunID, &p.Fold, &p.Tag, &p.Step, &p.Value); err != nil {
			return nil, fmt.Errorf("failed to scan scalar: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
