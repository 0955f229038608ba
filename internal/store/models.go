package store

import "time"

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Run is one invocation of `reidtrain train`.
type Run struct {
	ID         string `json:"id"`
	ConfigFile string `json:"config_file"`
	ConfigText string `json:"config_text,omitempty"`
	Dataset    string `json:"dataset"`
	NumTrials  int    `json:"num_trials"`
	OutputDir  string `json:"output_dir"`
	WorldSize  int    `json:"world_size"`
	GitRev     string `json:"git_rev,omitempty"`

	Status string `json:"status"` // running | succeeded | failed
	Error  string `json:"error,omitempty"`

	// Aggregated results, set once the run succeeds
	MAP    *float64  `json:"mAP,omitempty"`
	MAPStd *float64  `json:"mAP_std,omitempty"`
	CMC    []float64 `json:"cmc,omitempty"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Fold is the outcome of one trial fold.
type Fold struct {
	RunID      string    `json:"run_id"`
	Fold       int       `json:"fold"`
	OutputDir  string    `json:"output_dir"`
	Test       bool      `json:"test"`
	Checkpoint string    `json:"checkpoint,omitempty"`
	MAP        *float64  `json:"mAP,omitempty"`
	CMC        []float64 `json:"cmc,omitempty"`
	Error      string    `json:"error,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ScalarPoint is one value of a training curve.
type ScalarPoint struct {
	RunID string  `json:"run_id"`
	Fold  int     `json:"fold"`
	Tag   string  `json:"tag"`
	Step  int     `json:"step"`
	Value float64 `json:"value"`
}

// Summary is the aggregate written when a run finishes.
type Summary struct {
	MAP    float64
	MAPStd float64
	CMC    []float64
}
