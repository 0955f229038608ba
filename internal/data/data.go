// Package data plans the dataset side of a run: how many trial folds the
// dataset defines, the loader settings, and the dataset statistics the
// trainer reports back.
package data

import (
	"context"
	"fmt"
	"strings"

	"github.com/DreamCats/reidtrain/internal/config"
)

// foldCounts lists datasets evaluated over repeated random splits.
var foldCounts = map[string]int{
	"ilids":          10,
	"polarbearvidid": 5,
}

// NumTrials returns how many folds a dataset is evaluated over.
func NumTrials(datasetNames string) int {
	if n, ok := foldCounts[strings.ToLower(strings.TrimSpace(datasetNames))]; ok {
		return n
	}
	return 1
}

// DatasetInfo is what the trainer reports after building its loaders.
type DatasetInfo struct {
	NumClasses  int   `json:"num_classes"`
	CameraNum   int   `json:"camera_num"`
	ViewNum     int   `json:"view_num"`
	QueryCounts []int `json:"query_counts"` // len(val_loader[i].dataset) per fold
}

// LoaderSpec holds the loader settings sent to the trainer.
type LoaderSpec struct {
	Dataset            string    `json:"dataset"`
	RootDir            string    `json:"root_dir"`
	Sampler            string    `json:"sampler"`
	TrainBatch         int       `json:"train_batch"`
	TestBatch          int       `json:"test_batch"`
	NumInstance        int       `json:"num_instance"`
	NumWorkers         int       `json:"num_workers"`
	SizeTrain          []int     `json:"size_train"`
	SizeTest           []int     `json:"size_test"`
	FlipProb           float64   `json:"flip_prob"`
	EraseProb          float64   `json:"erase_prob"`
	Padding            int       `json:"padding"`
	PixelMean          []float64 `json:"pixel_mean"`
	PixelStd           []float64 `json:"pixel_std"`
	NumTrials          int       `json:"num_trials"`
	Distributed        bool      `json:"distributed"`
	IdentitiesPerBatch int       `json:"identities_per_batch"`
}

// Loaders builds the loader settings from the configuration.
func Loaders(cfg *config.Config) LoaderSpec {
	spec := LoaderSpec{
		Dataset:     cfg.Datasets.Names,
		RootDir:     cfg.Datasets.RootDir,
		Sampler:     cfg.DataLoader.Sampler,
		TrainBatch:  cfg.Solver.ImsPerBatch,
		TestBatch:   cfg.Test.ImsPerBatch,
		NumInstance: cfg.DataLoader.NumInstance,
		NumWorkers:  cfg.DataLoader.NumWorkers,
		SizeTrain:   cfg.Input.SizeTrain,
		SizeTest:    cfg.Input.SizeTest,
		FlipProb:    cfg.Input.Prob,
		EraseProb:   cfg.Input.REProb,
		Padding:     cfg.Input.Padding,
		PixelMean:   cfg.Input.PixelMean,
		PixelStd:    cfg.Input.PixelStd,
		NumTrials:   NumTrials(cfg.Datasets.Names),
		Distributed: cfg.Model.DistTrain,
	}
	if spec.Sampler == "softmax_triplet" && spec.NumInstance > 0 {
		spec.IdentitiesPerBatch = spec.TrainBatch / spec.NumInstance
	}
	return spec
}

// Describer asks the trainer to build its loaders and report the dataset.
type Describer interface {
	Describe(ctx context.Context, loaders LoaderSpec) (*DatasetInfo, error)
}

// Plan is the dataset side of a run.
type Plan struct {
	Loaders   LoaderSpec
	Info      DatasetInfo
	NumTrials int
}

// NumQuery returns the query count of a fold.
func (p *Plan) NumQuery(fold int) int {
	return p.Info.QueryCounts[fold]
}

// Prepare builds the loader settings and checks the trainer's dataset
// report covers every fold.
func Prepare(ctx context.Context, d Describer, cfg *config.Config) (*Plan, error) {
	loaders := Loaders(cfg)
	info, err := d.Describe(ctx, loaders)
	if err != nil {
		return nil, fmt.Errorf("describe dataset %s: %w", loaders.Dataset, err)
	}
	if info == nil {
		return nil, fmt.Errorf("describe dataset %s: empty report", loaders.Dataset)
	}
	if info.NumClasses <= 0 {
		return nil, fmt.Errorf("dataset %s reports %d classes", loaders.Dataset, info.NumClasses)
	}
	if len(info.QueryCounts) < loaders.NumTrials {
		return nil, fmt.Errorf("dataset %s needs %d folds but the trainer built %d validation loaders",
			loaders.Dataset, loaders.NumTrials, len(info.QueryCounts))
	}
	for i, n := range info.QueryCounts[:loaders.NumTrials] {
		if n <= 0 {
			return nil, fmt.Errorf("dataset %s fold %d has no query samples", loaders.Dataset, i+1)
		}
	}
	return &Plan{Loaders: loaders, Info: *info, NumTrials: loaders.NumTrials}, nil
}
