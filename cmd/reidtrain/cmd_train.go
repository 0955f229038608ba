package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DreamCats/reidtrain/cmd/reidtrain/internal"
	"github.com/DreamCats/reidtrain/internal/dist"
	"github.com/DreamCats/reidtrain/internal/trainer"
)

type trainOptions struct {
	configFile string
	localRank  int
	opts       []string
	noHistory  bool
	progress   bool
}

func newTrainCmd(a *app) *cobra.Command {
	var o trainOptions
	cmd := &cobra.Command{
		Use:   "train [--config_file PATH] [--local_rank N] [KEY VALUE]...",
		Short: "Train and evaluate over every trial fold",
		Long: `Train a ReID model.

The default config is overlaid with --config_file and then with the KEY VALUE
pairs that follow the flags, e.g.

    reidtrain train --config_file configs/mars/vit_pit.yml MODEL.DEVICE_ID "('0')" SOLVER.BASE_LR 0.004

Everything after the first positional argument is read as an override.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			o.opts = args
			return runTrain(cmd.Context(), a, o)
		},
	}
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVar(&o.configFile, "config_file", "", "path to config file")
	cmd.Flags().IntVar(&o.localRank, "local_rank", 0, "local rank set by the distributed launcher")
	cmd.Flags().BoolVar(&o.noHistory, "no_history", false, "do not record the run under the state dir")
	cmd.Flags().BoolVar(&o.progress, "progress", trainer.DefaultProgressEnabled(), "draw per-epoch progress bars on stderr")
	return cmd
}

func runTrain(ctx context.Context, a *app, o trainOptions) error {
	cfg, err := internal.LoadConfig(o.configFile, o.opts)
	if err != nil {
		return err
	}

	env, err := dist.ReadEnv()
	if err != nil {
		return err
	}
	dctx, err := dist.Setup(cfg, o.localRank, env)
	if err != nil {
		return err
	}

	if cfg.OutputDir != "" {
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output dir: %w", err)
		}
	}

	logger, closeLog, err := internal.SetupTrainLogger("reidtrain", cfg.OutputDir, a.verbose)
	if err != nil {
		return err
	}
	defer closeLog()
	if dctx.Enabled {
		logger = logger.With(zap.Int("rank", dctx.Rank))
	}

	logger.Info("Saving model in the path :" + cfg.OutputDir)
	logger.Info("args",
		zap.String("config_file", o.configFile),
		zap.Int("local_rank", o.localRank),
		zap.Strings("opts", o.opts),
	)
	if o.configFile != "" {
		logger.Info("Loaded configuration file " + o.configFile)
		raw, err := os.ReadFile(o.configFile)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		logger.Info("\n" + strings.TrimRight(string(raw), "\n"))
	}
	logger.Info("Running with config:\n" + strings.TrimRight(cfg.Dump(), "\n"))
	if dctx.Enabled {
		logger.Info("distributed training",
			zap.String("backend", dctx.Backend),
			zap.String("init_method", dctx.InitMethod),
			zap.Int("world_size", dctx.WorldSize),
			zap.Int("device", dctx.Device),
		)
	}

	seeder := trainer.NewSeeder(cfg.Solver.Seed)
	backend, err := trainer.NewProcessBackend(cfg, dctx.TrainerEnv(), seeder.Determinism(0), logger)
	if err != nil {
		return err
	}

	opts := trainer.Options{ConfigFile: o.configFile, Progress: o.progress}
	if dctx.IsMain() && !o.noHistory {
		h, err := openHistory(a.stateDir, logger)
		if err != nil {
			logger.Warn("run history disabled", zap.Error(err))
		} else {
			defer h.Close()
			opts.Recorder = h
		}
	}

	driver, err := trainer.NewDriver(cfg, backend, dctx, seeder, logger, opts)
	if err != nil {
		return err
	}
	if _, err := driver.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("training interrupted")
		} else {
			logger.Error("training failed", zap.Error(err))
		}
		return err
	}
	return nil
}
