// Package solver describes the optimizers and computes the learning-rate
// schedule handed to the trainer.
package solver

import (
	"strings"

	"github.com/DreamCats/reidtrain/internal/config"
)

// OptimizerSpec describes the main optimizer and its parameter-group policy.
type OptimizerSpec struct {
	Name            string        `json:"name"`
	BaseLR          float64       `json:"base_lr"`
	WeightDecay     float64       `json:"weight_decay"`
	Momentum        float64       `json:"momentum,omitempty"`
	BiasLR          float64       `json:"bias_lr"`
	BiasWeightDecay float64       `json:"bias_weight_decay"`
	FCLR            float64       `json:"fc_lr,omitempty"` // 0 keeps classifier heads on the normal lr
	Center          *CenterSolver `json:"center,omitempty"`
}

// CenterSolver is the plain SGD optimizer stepping the center-loss centers.
type CenterSolver struct {
	Name string  `json:"name"`
	LR   float64 `json:"lr"`
}

// BuildOptimizer describes the optimizers. withCenter adds the
// center-loss optimizer.
func BuildOptimizer(cfg *config.Config, withCenter bool) OptimizerSpec {
	s := cfg.Solver
	spec := OptimizerSpec{
		Name:            s.OptimizerName,
		BaseLR:          s.BaseLR,
		WeightDecay:     s.WeightDecay,
		BiasLR:          s.BaseLR * s.BiasLRFactor,
		BiasWeightDecay: s.WeightDecayBias,
	}
	if s.OptimizerName == "SGD" {
		spec.Momentum = s.Momentum
	}
	if s.LargeFCLR {
		spec.FCLR = s.BaseLR * 2
	}
	if withCenter {
		spec.Center = &CenterSolver{Name: "SGD", LR: s.CenterLR}
	}
	return spec
}

// ParamGroup returns the lr and weight decay for a named parameter.
// Bias terms get the bias settings; classifier heads get the large fc lr
// on top of that when it is enabled.
func (o OptimizerSpec) ParamGroup(name string) (lr, weightDecay float64) {
	lr, weightDecay = o.BaseLR, o.WeightDecay
	if strings.Contains(name, "bias") {
		lr, weightDecay = o.BiasLR, o.BiasWeightDecay
	}
	if o.FCLR > 0 && (strings.Contains(name, "classifier") || strings.Contains(name, "arcface")) {
		lr = o.FCLR
	}
	return lr, weightDecay
}
