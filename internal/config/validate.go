package config

import (
	"fmt"
	"strings"
)

// Validate checks the option combinations the trainer cannot recover from.
func (c *Config) Validate() error {
	switch c.DataLoader.Sampler {
	case "softmax", "softmax_triplet":
	default:
		return fmt.Errorf("unsupported sampler: %s", c.DataLoader.Sampler)
	}

	switch c.Model.MetricLossType {
	case "triplet", "triplet_center", "center":
	default:
		return fmt.Errorf("unsupported metric loss type: %s", c.Model.MetricLossType)
	}

	switch c.Solver.Scheduler {
	case "cosine", "warmup_multistep":
	default:
		return fmt.Errorf("unsupported scheduler: %s", c.Solver.Scheduler)
	}

	switch c.Solver.WarmupMethod {
	case "linear", "constant":
	default:
		return fmt.Errorf("warmup method must be linear or constant, got: %s", c.Solver.WarmupMethod)
	}

	if strings.TrimSpace(c.Solver.OptimizerName) == "" {
		return fmt.Errorf("optimizer name is required")
	}
	if c.Solver.MaxEpochs <= 0 {
		return fmt.Errorf("max_epochs must be positive, got: %d", c.Solver.MaxEpochs)
	}
	if c.Solver.BaseLR <= 0 {
		return fmt.Errorf("base_lr must be positive, got: %g", c.Solver.BaseLR)
	}
	if c.Solver.WarmupEpochs < 0 {
		return fmt.Errorf("warmup_epochs must not be negative, got: %d", c.Solver.WarmupEpochs)
	}
	if c.Solver.ImsPerBatch <= 0 || c.Test.ImsPerBatch <= 0 {
		return fmt.Errorf("batch sizes must be positive, got train=%d test=%d", c.Solver.ImsPerBatch, c.Test.ImsPerBatch)
	}
	if c.DataLoader.Sampler == "softmax_triplet" {
		if c.DataLoader.NumInstance <= 0 || c.Solver.ImsPerBatch%c.DataLoader.NumInstance != 0 {
			return fmt.Errorf("ims_per_batch (%d) must be a multiple of num_instance (%d)",
				c.Solver.ImsPerBatch, c.DataLoader.NumInstance)
		}
	}
	if len(c.Input.SizeTrain) != 2 || len(c.Input.SizeTest) != 2 {
		return fmt.Errorf("input sizes must be [height, width]")
	}
	if strings.TrimSpace(c.Datasets.Names) == "" {
		return fmt.Errorf("dataset name is required")
	}
	if len(c.Trainer.Command) == 0 || strings.TrimSpace(c.Trainer.Command[0]) == "" {
		return fmt.Errorf("trainer command is required")
	}
	return nil
}
