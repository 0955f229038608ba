package main

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/DreamCats/reidtrain/cmd/reidtrain/internal"
	"github.com/DreamCats/reidtrain/internal/metrics"
	"github.com/DreamCats/reidtrain/internal/runindex"
	"github.com/DreamCats/reidtrain/internal/store"
	"github.com/DreamCats/reidtrain/internal/trainer"
)

// history records runs in the sqlite store and keeps the search index in step.
// The index is opened only while a document is written so concurrent runs
// and searches do not wait on its file lock for the length of a run.
type history struct {
	db       *store.DB
	runs     *store.RunStore
	folds    *store.FoldStore
	scalars  *store.ScalarStore
	indexDir string
	gitRev   string
	logger   *zap.Logger
}

func openHistory(stateDir string, logger *zap.Logger) (*history, error) {
	db, err := store.Open(internal.DBPath(stateDir))
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	wd, _ := os.Getwd()
	return &history{
		db:       db,
		runs:     store.NewRunStore(db),
		folds:    store.NewFoldStore(db),
		scalars:  store.NewScalarStore(db),
		indexDir: internal.IndexDir(stateDir),
		gitRev:   internal.GitRev(wd),
		logger:   logger,
	}, nil
}

func (h *history) Close() error {
	return h.db.Close()
}

func (h *history) StartRun(info trainer.RunInfo) (string, error) {
	configFile := info.ConfigFile
	if configFile != "" {
		if abs, err := filepath.Abs(configFile); err == nil {
			configFile = abs
		}
	}
	run := &store.Run{
		ConfigFile: configFile,
		ConfigText: info.ConfigText,
		Dataset:    info.Dataset,
		NumTrials:  info.NumTrials,
		OutputDir:  info.OutputDir,
		WorldSize:  info.WorldSize,
		GitRev:     h.gitRev,
	}
	if err := h.runs.Create(run); err != nil {
		return "", err
	}
	h.reindex(run)
	return run.ID, nil
}

func (h *history) RecordFold(runID string, rec trainer.FoldRecord) error {
	f := &store.Fold{
		RunID:      runID,
		Fold:       rec.Fold,
		OutputDir:  rec.OutputDir,
		Test:       rec.Test,
		Checkpoint: rec.Checkpoint,
	}
	if rec.Result != nil {
		mAP := rec.Result.MAP
		f.MAP = &mAP
		f.CMC = rec.Result.CMC
	}
	if rec.Err != nil {
		f.Error = rec.Err.Error()
	}
	return h.folds.Record(f)
}

func (h *history) FinishRun(runID string, summary *metrics.Summary, runErr error) error {
	var s *store.Summary
	if summary != nil {
		s = &store.Summary{MAP: summary.MAP, MAPStd: summary.MAPStd, CMC: summary.CMC}
	}
	if err := h.runs.Finish(runID, s, runErr); err != nil {
		return err
	}
	run, err := h.runs.Get(runID)
	if err != nil {
		return err
	}
	h.reindex(run)
	return nil
}

func (h *history) RecordScalar(runID string, fold int, tag string, step int, value float64) error {
	return h.scalars.Append(store.ScalarPoint{RunID: runID, Fold: fold, Tag: tag, Step: step, Value: value})
}

// reindex logs index errors instead of returning them.
func (h *history) reindex(run *store.Run) {
	if err := indexRun(h.indexDir, run); err != nil {
		h.logger.Warn("failed to index run", zap.String("run", run.ID), zap.Error(err))
	}
}

func indexRun(indexDir string, run *store.Run) error {
	idx, err := runindex.Open(indexDir)
	if err != nil {
		return err
	}
	defer idx.Close()
	return idx.Index(runDoc(run))
}

func runDoc(run *store.Run) runindex.Doc {
	return runindex.Doc{
		ID:         run.ID,
		Dataset:    run.Dataset,
		Status:     run.Status,
		ConfigFile: run.ConfigFile,
		OutputDir:  run.OutputDir,
		Content:    run.ConfigText,
		StartedAt:  run.StartedAt,
	}
}

var _ trainer.Recorder = (*history)(nil)
