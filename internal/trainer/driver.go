package trainer

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/DreamCats/reidtrain/internal/config"
	"github.com/DreamCats/reidtrain/internal/data"
	"github.com/DreamCats/reidtrain/internal/dist"
	"github.com/DreamCats/reidtrain/internal/loss"
	"github.com/DreamCats/reidtrain/internal/metrics"
	"github.com/DreamCats/reidtrain/internal/model"
	"github.com/DreamCats/reidtrain/internal/solver"
)

// RunInfo describes a run when it starts.
type RunInfo struct {
	ConfigFile string
	ConfigText string
	Dataset    string
	NumTrials  int
	OutputDir  string
	WorldSize  int
}

// FoldRecord is what gets remembered about one finished or failed fold.
type FoldRecord struct {
	Fold       int
	OutputDir  string
	Test       bool
	Checkpoint string
	Result     *metrics.FoldResult
	Err        error
}

// Recorder keeps the run history. Calls never overlap, but RecordScalar
// runs on the backend's event goroutine rather than the driver's.
type Recorder interface {
	ScalarSink
	StartRun(info RunInfo) (string, error)
	RecordFold(runID string, rec FoldRecord) error
	FinishRun(runID string, summary *metrics.Summary, runErr error) error
}

// Options configures a Driver.
type Options struct {
	ConfigFile string
	Recorder   Recorder // nil keeps no history
	Progress   bool
	// ProgressOut receives the progress bars, stderr when nil.
	ProgressOut io.Writer
}

// Driver runs the trial folds of a training run.
type Driver struct {
	cfg      *config.Config
	backend  Backend
	dist     *dist.Context
	seeder   *Seeder
	logger   *zap.Logger
	recorder Recorder
	opts     Options
}

// NewDriver wires a driver. cfg must be frozen.
func NewDriver(cfg *config.Config, backend Backend, dctx *dist.Context, seeder *Seeder, logger *zap.Logger, opts Options) (*Driver, error) {
	if !cfg.Frozen() {
		return nil, fmt.Errorf("driver needs a frozen config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if dctx == nil {
		dctx = &dist.Context{WorldSize: 1, DeviceIDs: cfg.Model.DeviceID}
	}
	if seeder == nil {
		seeder = NewSeeder(cfg.Solver.Seed)
	}
	rec := opts.Recorder
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Driver{
		cfg:      cfg,
		backend:  backend,
		dist:     dctx,
		seeder:   seeder,
		logger:   logger,
		recorder: rec,
		opts:     opts,
	}, nil
}

// Run prepares the dataset, trains every fold in order and returns the
// aggregated metrics. The first failing fold aborts the run.
func (d *Driver) Run(ctx context.Context) (*metrics.Summary, error) {
	plan, err := data.Prepare(ctx, d.backend, d.cfg)
	if err != nil {
		return nil, err
	}
	d.logger.Info("dataset ready",
		zap.String("dataset", plan.Loaders.Dataset),
		zap.Int("num_classes", plan.Info.NumClasses),
		zap.Int("camera_num", plan.Info.CameraNum),
		zap.Int("view_num", plan.Info.ViewNum),
		zap.Int("num_trials", plan.NumTrials),
	)

	runID, err := d.recorder.StartRun(RunInfo{
		ConfigFile: d.opts.ConfigFile,
		ConfigText: d.cfg.Dump(),
		Dataset:    plan.Loaders.Dataset,
		NumTrials:  plan.NumTrials,
		OutputDir:  d.cfg.OutputDir,
		WorldSize:  d.dist.WorldSize,
	})
	if err != nil {
		d.logger.Warn("failed to record run, continuing without history", zap.Error(err))
		d.recorder, runID = nopRecorder{}, ""
	}

	results := make([]metrics.FoldResult, 0, plan.NumTrials)
	for i := 0; i < plan.NumTrials; i++ {
		res, err := d.runFold(ctx, plan, runID, i)
		if err != nil {
			d.finish(runID, nil, err)
			return nil, err
		}
		results = append(results, *res)
	}

	summary, err := metrics.Aggregate(results)
	if err != nil {
		d.finish(runID, nil, err)
		return nil, err
	}
	for _, line := range metrics.ReportLines(summary) {
		d.logger.Info(line)
	}
	d.finish(runID, &summary, nil)
	return &summary, nil
}

func (d *Driver) finish(runID string, summary *metrics.Summary, runErr error) {
	if err := d.recorder.FinishRun(runID, summary, runErr); err != nil {
		d.logger.Warn("failed to record run result", zap.String("run", runID), zap.Error(err))
	}
}

func (d *Driver) runFold(ctx context.Context, plan *data.Plan, runID string, fold int) (*metrics.FoldResult, error) {
	req, saver, err := d.prepareFold(plan, runID, fold)
	if err != nil {
		return nil, fmt.Errorf("fold %d: %w", fold+1, err)
	}
	defer saver.Close()

	log := d.logger.With(zap.Int("fold", fold+1))
	if req.Test {
		log.Info("Loading pretrained model from " + req.Checkpoint)
	}

	progress := NewEpochProgress(d.opts.Progress, d.opts.ProgressOut, fold, plan.NumTrials)
	res, err := d.backend.Train(ctx, req, func(ev Event) {
		if err := saver.Observe(ev); err != nil {
			log.Warn("failed to save scalars", zap.Error(err))
		}
		if progress != nil {
			progress.Observe(ev)
		}
		switch ev.Type {
		case EventEval:
			log.Info("Validation Results",
				zap.Int("epoch", ev.Epoch),
				zap.String("mAP", metrics.Percent(ev.MAP)),
				zap.String("rank1", rank(ev.CMC, 1)),
			)
		case EventCheckpoint:
			log.Info("checkpoint saved", zap.Int("epoch", ev.Epoch), zap.String("path", ev.Path))
		}
	})
	if progress != nil {
		progress.Finish()
	}

	record := FoldRecord{
		Fold:       fold,
		OutputDir:  req.OutputDir,
		Test:       req.Test,
		Checkpoint: req.Checkpoint,
		Result:     res,
		Err:        err,
	}
	if recErr := d.recorder.RecordFold(runID, record); recErr != nil {
		log.Warn("failed to record fold", zap.Error(recErr))
	}
	if err != nil {
		return nil, fmt.Errorf("fold %d: %w", fold+1, err)
	}

	res.Fold = fold
	log.Info("fold finished",
		zap.String("mAP", metrics.Percent(res.MAP)),
		zap.String("rank1", rank(res.CMC, 1)),
	)
	return res, nil
}

// prepareFold builds the collaborators of one fold: saver, model, loss,
// optimizer and schedule.
func (d *Driver) prepareFold(plan *data.Plan, runID string, fold int) (FoldRequest, *Saver, error) {
	cfg := d.cfg
	outputDir := filepath.Join(cfg.OutputDir, strconv.Itoa(fold+1))

	modelSpec, err := model.Build(cfg, plan.Info.NumClasses, plan.Info.CameraNum, plan.Info.ViewNum)
	if err != nil {
		return FoldRequest{}, nil, err
	}
	ck, err := model.ResolveTestWeight(cfg, fold)
	if err != nil {
		return FoldRequest{}, nil, err
	}
	lossSpec, err := loss.Build(cfg, plan.Info.NumClasses, modelSpec.FeatureDim)
	if err != nil {
		return FoldRequest{}, nil, err
	}
	optSpec := solver.BuildOptimizer(cfg, lossSpec.UsesCenter())
	sched, err := solver.BuildScheduler(cfg)
	if err != nil {
		return FoldRequest{}, nil, err
	}

	saver, err := NewSaver(outputDir, "tensorboard", d.recorder, runID, fold)
	if err != nil {
		return FoldRequest{}, nil, err
	}

	req := FoldRequest{
		Op:         OpTrain,
		Fold:       fold,
		NumTrials:  plan.NumTrials,
		OutputDir:  outputDir,
		SaverDir:   saver.Dir(),
		LocalRank:  d.dist.LocalRank,
		NumQuery:   plan.NumQuery(fold),
		Test:       ck.Test,
		Checkpoint: ck.Path,
		Loaders:    plan.Loaders,
		Model:      modelSpec,
		Loss:       lossSpec,
		Optimizer:  optSpec,
		Schedule:   solver.Table(sched, cfg.Solver.MaxEpochs),
		Periods: Periods{
			Log:        cfg.Solver.LogPeriod,
			Eval:       cfg.Solver.EvalPeriod,
			Checkpoint: cfg.Solver.CheckpointPeriod,
		},
		Eval: EvalSpec{
			ReRanking: cfg.Test.ReRanking,
			FeatNorm:  cfg.Test.FeatNorm,
			DistMat:   cfg.Test.DistMat,
		},
		Determinism: d.seeder.Determinism(fold),
		Distributed: d.dist.Enabled,
	}
	return req, saver, nil
}

func rank(cmc []float64, r int) string {
	if r > len(cmc) {
		return "n/a"
	}
	return metrics.Percent(cmc[r-1])
}

type nopRecorder struct{}

func (nopRecorder) StartRun(RunInfo) (string, error) { return "", nil }
func (nopRecorder) RecordFold(string, FoldRecord) error { return nil }
func (nopRecorder) FinishRun(string, *metrics.Summary, error) error { return nil }
func (nopRecorder) RecordScalar(string, int, string, int, float64) error { return nil }
