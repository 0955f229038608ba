package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, NewRunStore(db).Create(&Run{Dataset: "mars", NumTrials: 1, OutputDir: "./logs"}))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	version, err := db.getSchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.RunCount)
	assert.Positive(t, stats.SizeBytes)
}

func TestOpenRejectsNewerSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	db, err := Open(path)
	require.NoError(t, err)
	_, err = db.sqlDB.Exec("INSERT INTO schema_version (version, applied_at) VALUES (?, ?)", CurrentSchemaVersion+1, formatTime(time.Now()))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than this binary")
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)
	runs := NewRunStore(db)

	run := &Run{
		ConfigFile: "configs/ilids/vit_base.yml",
		ConfigText: "DATASETS:\n  NAMES: ilids\n",
		Dataset:    "ilids",
		NumTrials:  10,
		OutputDir:  "/tmp/logs/ilids",
		GitRev:     "abc1234",
	}
	require.NoError(t, runs.Create(run))
	assert.Len(t, run.ID, 36)
	assert.Equal(t, StatusRunning, run.Status)
	assert.Equal(t, 1, run.WorldSize)

	got, err := runs.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Nil(t, got.MAP)
	assert.Nil(t, got.FinishedAt)
	assert.Equal(t, run.ConfigText, got.ConfigText)
	assert.WithinDuration(t, run.StartedAt, got.StartedAt, time.Millisecond)

	require.NoError(t, runs.Finish(run.ID, &Summary{MAP: 0.82, MAPStd: 0.03, CMC: []float64{0.9, 0.95}}, nil))
	got, err = runs.Get(run.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
	require.NotNil(t, got.MAP)
	assert.Equal(t, 0.82, *got.MAP)
	assert.Equal(t, 0.03, *got.MAPStd)
	assert.Equal(t, []float64{0.9, 0.95}, got.CMC)
	assert.NotNil(t, got.FinishedAt)
}

func TestRunFailed(t *testing.T) {
	runs := NewRunStore(openTestDB(t))
	run := &Run{Dataset: "mars", NumTrials: 1, OutputDir: "./logs"}
	require.NoError(t, runs.Create(run))
	require.NoError(t, runs.Finish(run.ID, nil, errors.New("fold 1: trainer failed: CUDA out of memory")))

	got, err := runs.Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Contains(t, got.Error, "CUDA out of memory")
	assert.Nil(t, got.MAP)

	err = runs.Finish("missing", nil, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunGetErrors(t *testing.T) {
	runs := NewRunStore(openTestDB(t))
	require.NoError(t, runs.Create(&Run{ID: "aaaa-1", Dataset: "mars", NumTrials: 1, OutputDir: "a"}))
	require.NoError(t, runs.Create(&Run{ID: "aaaa-2", Dataset: "mars", NumTrials: 1, OutputDir: "b"}))

	_, err := runs.Get("zzz")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = runs.Get("aaaa")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")

	_, err = runs.Get("aaa%")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := runs.Get("aaaa-2")
	require.NoError(t, err)
	assert.Equal(t, "b", got.OutputDir)
}

func TestRunList(t *testing.T) {
	runs := NewRunStore(openTestDB(t))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, ds := range []string{"mars", "ilids", "polarbearvidid"} {
		require.NoError(t, runs.Create(&Run{
			Dataset:   ds,
			NumTrials: 1,
			OutputDir: ds,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	all, err := runs.List(0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "polarbearvidid", all[0].Dataset)
	assert.Equal(t, "mars", all[2].Dataset)

	recent, err := runs.List(2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestFoldsAndScalars(t *testing.T) {
	db := openTestDB(t)
	runs := NewRunStore(db)
	folds := NewFoldStore(db)
	scalars := NewScalarStore(db)

	run := &Run{Dataset: "polarbearvidid", NumTrials: 5, OutputDir: "./logs"}
	require.NoError(t, runs.Create(run))

	mAP := 0.61
	require.NoError(t, folds.Record(&Fold{RunID: run.ID, Fold: 1, OutputDir: "./logs/2", MAP: &mAP, CMC: []float64{0.7}}))
	require.NoError(t, folds.Record(&Fold{RunID: run.ID, Fold: 0, OutputDir: "./logs/1", Test: true, Checkpoint: "w/1/transformer_120.pth", Error: "boom"}))
	// re-recording replaces
	require.NoError(t, folds.Record(&Fold{RunID: run.ID, Fold: 0, OutputDir: "./logs/1", Test: true, Checkpoint: "w/1/transformer_120.pth", MAP: &mAP}))

	got, err := folds.ListByRun(run.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].Fold)
	assert.True(t, got[0].Test)
	assert.Empty(t, got[0].Error)
	assert.Nil(t, got[0].CMC)
	assert.Equal(t, []float64{0.7}, got[1].CMC)
	assert.Equal(t, 0.61, *got[1].MAP)

	for step := 3; step > 0; step-- {
		require.NoError(t, scalars.Append(ScalarPoint{RunID: run.ID, Fold: 0, Tag: "train/loss", Step: step, Value: float64(step)}))
	}
	require.NoError(t, scalars.Append(ScalarPoint{RunID: run.ID, Fold: 0, Tag: "eval/mAP", Step: 1, Value: 0.4}))

	loss, err := scalars.ListByRun(run.ID, "train/loss")
	require.NoError(t, err)
	require.Len(t, loss, 3)
	assert.Equal(t, 1, loss[0].Step)
	assert.Equal(t, 3, loss[2].Step)

	all, err := scalars.ListByRun(run.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	err = scalars.Append(ScalarPoint{RunID: "no-such-run", Tag: "train/loss"})
	assert.Error(t, err)
}
