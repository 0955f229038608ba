package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const defaultConfigTemplate = `# reidtrain configuration
#
# Only keys listed here are overridden; everything else keeps its default.
# Any key can also be overridden on the command line:
#   reidtrain train --config_file this.yml SOLVER.BASE_LR 0.004

MODEL:
  NAME: transformer
  TRANSFORMER_TYPE: vit_base_patch16_224_TransReID
  PRETRAIN_CHOICE: imagenet
  PRETRAIN_PATH: ~/pretrained/jx_vit_base_p16_224-80ecf9dd.pth
  METRIC_LOSS_TYPE: triplet
  IF_LABELSMOOTH: "on"
  DEVICE_ID: "0"
  DIST_TRAIN: false

INPUT:
  SIZE_TRAIN: [256, 128]
  SIZE_TEST: [256, 128]

DATASETS:
  # ilids runs 10 folds, polarbearvidid runs 5, everything else 1
  NAMES: mars
  ROOT_DIR: ~/data

DATALOADER:
  SAMPLER: softmax_triplet
  NUM_INSTANCE: 4
  NUM_WORKERS: 8

SOLVER:
  OPTIMIZER_NAME: SGD
  SCHEDULER: cosine
  MAX_EPOCHS: 120
  BASE_LR: 0.008
  WARMUP_EPOCHS: 5
  IMS_PER_BATCH: 64
  SEED: 1234

TEST:
  IMS_PER_BATCH: 128
  # per-fold checkpoints are looked up under <WEIGHT>/<fold>/<WEIGHT_FILE>
  WEIGHT: ""
  WEIGHT_FILE: transformer_120.pth

TRAINER:
  COMMAND: ["python3", "-m", "processor.worker"]
  WORKDIR: ""

OUTPUT_DIR: ./logs/mars_pit
`

// WriteDefaultTemplate creates a default configuration file if it does not exist.
// It returns true if a file was created, false if it already existed.
func WriteDefaultTemplate(path string) (bool, error) {
	if path == "" {
		return false, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat config file: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return false, fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(defaultConfigTemplate), 0644); err != nil {
		return false, fmt.Errorf("failed to write config template: %w", err)
	}

	return true, nil
}
