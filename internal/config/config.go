package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrFrozen is returned by every mutating call after Freeze.
	ErrFrozen = errors.New("config is frozen")
	// ErrUnknownKey is returned when an override names a key the tree does not have.
	ErrUnknownKey = errors.New("unknown config key")
)

// Config holds the training configuration tree.
// Keys mirror the YAML files the trainer already understands, so they stay upper case.
type Config struct {
	Model      ModelConfig      `yaml:"MODEL"`
	Input      InputConfig      `yaml:"INPUT"`
	Datasets   DatasetsConfig   `yaml:"DATASETS"`
	DataLoader DataLoaderConfig `yaml:"DATALOADER"`
	Solver     SolverConfig     `yaml:"SOLVER"`
	Test       TestConfig       `yaml:"TEST"`
	Trainer    TrainerConfig    `yaml:"TRAINER"`
	OutputDir  string           `yaml:"OUTPUT_DIR"`

	frozen bool
}

// ModelConfig describes the network and its training losses
type ModelConfig struct {
	Device            string  `yaml:"DEVICE"`
	DeviceID          string  `yaml:"DEVICE_ID"` // exported as CUDA_VISIBLE_DEVICES
	Name              string  `yaml:"NAME"`
	LastStride        int     `yaml:"LAST_STRIDE"`
	PretrainPath      string  `yaml:"PRETRAIN_PATH"`
	PretrainChoice    string  `yaml:"PRETRAIN_CHOICE"` // "imagenet" | "self" | "finetune"
	Neck              string  `yaml:"NECK"`
	IfWithCenter      string  `yaml:"IF_WITH_CENTER"`
	IDLossType        string  `yaml:"ID_LOSS_TYPE"`
	IDLossWeight      float64 `yaml:"ID_LOSS_WEIGHT"`
	TripletLossWeight float64 `yaml:"TRIPLET_LOSS_WEIGHT"`
	MetricLossType    string  `yaml:"METRIC_LOSS_TYPE"`
	DistTrain         bool    `yaml:"DIST_TRAIN"`
	NoMargin          bool    `yaml:"NO_MARGIN"`
	IfLabelSmooth     string  `yaml:"IF_LABELSMOOTH"` // "on" | "off"
	CosLayer          bool    `yaml:"COS_LAYER"`
	DropPath          float64 `yaml:"DROP_PATH"`
	DropOut           float64 `yaml:"DROP_OUT"`
	AttDropRate       float64 `yaml:"ATT_DROP_RATE"`
	TransformerType   string  `yaml:"TRANSFORMER_TYPE"`
	StrideSize        []int   `yaml:"STRIDE_SIZE"`
	SIECamera         bool    `yaml:"SIE_CAMERA"`
	SIEView           bool    `yaml:"SIE_VIEW"`
	SIECoe            float64 `yaml:"SIE_COE"`
}

// InputConfig holds image size and augmentation settings
type InputConfig struct {
	SizeTrain []int     `yaml:"SIZE_TRAIN"`
	SizeTest  []int     `yaml:"SIZE_TEST"`
	Prob      float64   `yaml:"PROB"`
	REProb    float64   `yaml:"RE_PROB"`
	PixelMean []float64 `yaml:"PIXEL_MEAN"`
	PixelStd  []float64 `yaml:"PIXEL_STD"`
	Padding   int       `yaml:"PADDING"`
}

// DatasetsConfig names the dataset and where it lives
type DatasetsConfig struct {
	Names   string `yaml:"NAMES"`
	RootDir string `yaml:"ROOT_DIR"`
}

// DataLoaderConfig holds sampler settings
type DataLoaderConfig struct {
	NumWorkers  int    `yaml:"NUM_WORKERS"`
	Sampler     string `yaml:"SAMPLER"` // "softmax" | "softmax_triplet"
	NumInstance int    `yaml:"NUM_INSTANCE"`
}

// SolverConfig holds optimizer and schedule settings
type SolverConfig struct {
	OptimizerName    string  `yaml:"OPTIMIZER_NAME"`
	Scheduler        string  `yaml:"SCHEDULER"` // "cosine" | "warmup_multistep"
	MaxEpochs        int     `yaml:"MAX_EPOCHS"`
	BaseLR           float64 `yaml:"BASE_LR"`
	LargeFCLR        bool    `yaml:"LARGE_FC_LR"`
	BiasLRFactor     float64 `yaml:"BIAS_LR_FACTOR"`
	Seed             int64   `yaml:"SEED"`
	Momentum         float64 `yaml:"MOMENTUM"`
	Margin           float64 `yaml:"MARGIN"`
	CenterLR         float64 `yaml:"CENTER_LR"`
	CenterLossWeight float64 `yaml:"CENTER_LOSS_WEIGHT"`
	WeightDecay      float64 `yaml:"WEIGHT_DECAY"`
	WeightDecayBias  float64 `yaml:"WEIGHT_DECAY_BIAS"`
	Gamma            float64 `yaml:"GAMMA"`
	Steps            []int   `yaml:"STEPS"`
	WarmupFactor     float64 `yaml:"WARMUP_FACTOR"`
	WarmupEpochs     int     `yaml:"WARMUP_EPOCHS"`
	WarmupMethod     string  `yaml:"WARMUP_METHOD"` // "linear" | "constant"
	CosineMargin     float64 `yaml:"COSINE_MARGIN"`
	CosineScale      float64 `yaml:"COSINE_SCALE"`
	CheckpointPeriod int     `yaml:"CHECKPOINT_PERIOD"`
	LogPeriod        int     `yaml:"LOG_PERIOD"`
	EvalPeriod       int     `yaml:"EVAL_PERIOD"`
	ImsPerBatch      int     `yaml:"IMS_PER_BATCH"`
}

// TestConfig holds evaluation settings
type TestConfig struct {
	ImsPerBatch int    `yaml:"IMS_PER_BATCH"`
	ReRanking   bool   `yaml:"RE_RANKING"`
	Weight      string `yaml:"WEIGHT"`      // per-fold checkpoint root, <WEIGHT>/<fold>
	WeightFile  string `yaml:"WEIGHT_FILE"` // file name or doublestar pattern inside the fold dir
	NeckFeat    string `yaml:"NECK_FEAT"`
	FeatNorm    string `yaml:"FEAT_NORM"`
	DistMat     string `yaml:"DIST_MAT"`
	Eval        bool   `yaml:"EVAL"`
}

// TrainerConfig describes how to launch the external training process
type TrainerConfig struct {
	Command []string `yaml:"COMMAND"`
	WorkDir string   `yaml:"WORKDIR"`
}

// Default returns the default configuration tree.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Device:            "cuda",
			DeviceID:          "0",
			Name:              "transformer",
			LastStride:        1,
			PretrainChoice:    "imagenet",
			Neck:              "bnneck",
			IfWithCenter:      "no",
			IDLossType:        "softmax",
			IDLossWeight:      1.0,
			TripletLossWeight: 1.0,
			MetricLossType:    "triplet",
			IfLabelSmooth:     "on",
			DropPath:          0.1,
			TransformerType:   "vit_base_patch16_224_TransReID",
			StrideSize:        []int{16, 16},
			SIECoe:            3.0,
		},
		Input: InputConfig{
			SizeTrain: []int{256, 128},
			SizeTest:  []int{256, 128},
			Prob:      0.5,
			REProb:    0.5,
			PixelMean: []float64{0.485, 0.456, 0.406},
			PixelStd:  []float64{0.229, 0.224, 0.225},
			Padding:   10,
		},
		Datasets: DatasetsConfig{
			Names:   "mars",
			RootDir: "../data",
		},
		DataLoader: DataLoaderConfig{
			NumWorkers:  8,
			Sampler:     "softmax_triplet",
			NumInstance: 4,
		},
		Solver: SolverConfig{
			OptimizerName:    "SGD",
			Scheduler:        "cosine",
			MaxEpochs:        120,
			BaseLR:           0.008,
			BiasLRFactor:     2,
			Seed:             1234,
			Momentum:         0.9,
			Margin:           0.3,
			CenterLR:         0.5,
			CenterLossWeight: 0.0005,
			WeightDecay:      1e-4,
			WeightDecayBias:  1e-4,
			Gamma:            0.1,
			Steps:            []int{40, 70},
			WarmupFactor:     0.01,
			WarmupEpochs:     5,
			WarmupMethod:     "linear",
			CosineMargin:     0.5,
			CosineScale:      30,
			CheckpointPeriod: 10,
			LogPeriod:        100,
			EvalPeriod:       10,
			ImsPerBatch:      64,
		},
		Test: TestConfig{
			ImsPerBatch: 128,
			WeightFile:  "transformer_120.pth",
			NeckFeat:    "after",
			FeatNorm:    "yes",
			Eval:        true,
		},
		Trainer: TrainerConfig{
			Command: []string{"python3", "-m", "processor.worker"},
		},
		OutputDir: "./logs",
	}
}

// LoadFile returns the default tree merged with the YAML file at path.
// An empty path returns the defaults unchanged.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if err := cfg.MergeFromFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MergeFromFile overlays the keys present in a YAML file.
// Keys that do not exist in the tree are rejected.
func (c *Config) MergeFromFile(path string) error {
	if c.frozen {
		return ErrFrozen
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ConfigNotFoundError{RequestedPath: path}
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// MergeFromList applies KEY VALUE override pairs, e.g. SOLVER.BASE_LR 0.01.
func (c *Config) MergeFromList(opts []string) error {
	if c.frozen {
		return ErrFrozen
	}
	if len(opts)%2 != 0 {
		return fmt.Errorf("override list must hold KEY VALUE pairs, got %d items: %v", len(opts), opts)
	}
	for i := 0; i < len(opts); i += 2 {
		key, raw := opts[i], opts[i+1]
		field, err := c.lookup(key)
		if err != nil {
			return err
		}
		if err := setLiteral(field, raw); err != nil {
			return fmt.Errorf("override %s=%q: %w", key, raw, err)
		}
	}
	return nil
}

// Freeze expands home-relative paths and locks the tree against further merges.
func (c *Config) Freeze() {
	if c.frozen {
		return
	}
	c.OutputDir = expandPath(c.OutputDir)
	c.Test.Weight = expandPath(c.Test.Weight)
	c.Model.PretrainPath = expandPath(c.Model.PretrainPath)
	c.Datasets.RootDir = expandPath(c.Datasets.RootDir)
	c.Trainer.WorkDir = expandPath(c.Trainer.WorkDir)
	c.frozen = true
}

// Frozen reports whether Freeze has been called.
func (c *Config) Frozen() bool {
	return c.frozen
}

// Dump renders the tree as YAML.
func (c *Config) Dump() string {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("<unrenderable config: %v>", err)
	}
	return string(data)
}

// ConfigNotFoundError is returned when config file is not found
type ConfigNotFoundError struct {
	RequestedPath string
}

func (e *ConfigNotFoundError) Error() string {
	return fmt.Sprintf("config file not found at: %s\n\nYou can:\n"+
		"  1. Pass an existing file with --config_file\n"+
		"  2. Run 'reidtrain config init %s' to write a template",
		e.RequestedPath, e.RequestedPath)
}

// IsConfigNotFound checks if error is config not found
func IsConfigNotFound(err error) bool {
	var target *ConfigNotFoundError
	return errors.As(err, &target)
}

// expandPath expands ~ and $HOME to the user's home directory
// Supports both:
//
//	~/data/mars
//	$HOME/data/mars
func expandPath(path string) string {
	if strings.HasPrefix(path, "$HOME/") || path == "$HOME" {
		homeDir := os.Getenv("HOME")
		if homeDir == "" {
			var err error
			homeDir, err = os.UserHomeDir()
			if err != nil {
				return path
			}
		}
		if path == "$HOME" {
			return homeDir
		}
		return filepath.Join(homeDir, path[6:])
	}

	if strings.HasPrefix(path, "~/") || path == "~" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return homeDir
		}
		return filepath.Join(homeDir, path[2:])
	}

	return path
}
