package trainer

import (
	"github.com/DreamCats/reidtrain/internal/data"
	"github.com/DreamCats/reidtrain/internal/loss"
	"github.com/DreamCats/reidtrain/internal/model"
	"github.com/DreamCats/reidtrain/internal/solver"
)

// Request operations understood by the trainer process.
const (
	OpDescribe = "describe"
	OpTrain    = "train"
)

// Event types written by the trainer process, one JSON object per line.
const (
	EventProgress   = "progress"
	EventEval       = "eval"
	EventCheckpoint = "checkpoint"
	EventLog        = "log"
	EventDescribe   = "describe"
	EventResult     = "result"
	EventError      = "error"
)

// Determinism carries the reproducibility switches applied by the trainer.
type Determinism struct {
	Seed               int64 `json:"seed"`
	CudnnDeterministic bool  `json:"cudnn_deterministic"`
	CudnnBenchmark     bool  `json:"cudnn_benchmark"`
}

// DescribeRequest asks the trainer to build its loaders and report the dataset.
type DescribeRequest struct {
	Op          string          `json:"op"`
	Loaders     data.LoaderSpec `json:"loaders"`
	Determinism Determinism     `json:"determinism"`
}

// Periods controls how often the trainer logs, evaluates and checkpoints.
type Periods struct {
	Log        int `json:"log"`
	Eval       int `json:"eval"`
	Checkpoint int `json:"checkpoint"`
}

// EvalSpec holds the evaluation switches.
type EvalSpec struct {
	ReRanking bool   `json:"re_ranking"`
	FeatNorm  string `json:"feat_norm"`
	DistMat   string `json:"dist_mat,omitempty"`
}

// FoldRequest is everything the trainer needs for one train+evaluate fold.
type FoldRequest struct {
	Op          string               `json:"op"`
	Fold        int                  `json:"fold"`
	NumTrials   int                  `json:"num_trials"`
	OutputDir   string               `json:"output_dir"`
	SaverDir    string               `json:"saver_dir"`
	LocalRank   int                  `json:"local_rank"`
	NumQuery    int                  `json:"num_query"`
	Test        bool                 `json:"test"`
	Checkpoint  string               `json:"checkpoint,omitempty"`
	Loaders     data.LoaderSpec      `json:"loaders"`
	Model       model.Spec           `json:"model"`
	Loss        loss.Spec            `json:"loss"`
	Optimizer   solver.OptimizerSpec `json:"optimizer"`
	Schedule    solver.ScheduleSpec  `json:"schedule"`
	Periods     Periods              `json:"periods"`
	Eval        EvalSpec             `json:"eval"`
	Determinism Determinism          `json:"determinism"`
	Distributed bool                 `json:"distributed"`
}

// Event is one line of trainer output.
type Event struct {
	Type    string            `json:"type"`
	Epoch   int               `json:"epoch,omitempty"`
	Iter    int               `json:"iter,omitempty"`
	Iters   int               `json:"iters,omitempty"`
	Loss    float64           `json:"loss,omitempty"`
	Acc     float64           `json:"acc,omitempty"`
	LR      float64           `json:"lr,omitempty"`
	MAP     float64           `json:"mAP,omitempty"`
	CMC     []float64         `json:"cmc,omitempty"`
	Path    string            `json:"path,omitempty"`
	Level   string            `json:"level,omitempty"`
	Message string            `json:"message,omitempty"`
	Dataset *data.DatasetInfo `json:"dataset,omitempty"`
}
