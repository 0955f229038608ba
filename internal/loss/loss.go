// Package loss describes the training objective: an identity
// classification loss, an optional triplet loss and an optional center loss.
package loss

import (
	"fmt"
	"strings"

	"github.com/DreamCats/reidtrain/internal/config"
)

// LabelSmoothEpsilon is the smoothing used when IF_LABELSMOOTH is on.
const LabelSmoothEpsilon = 0.1

// Spec is the loss description sent to the trainer.
type Spec struct {
	NumClasses int `json:"num_classes"`

	IDLoss       string  `json:"id_loss"`
	IDWeight     float64 `json:"id_weight"`
	LabelSmooth  float64 `json:"label_smooth"` // 0 disables smoothing
	CosineMargin float64 `json:"cosine_margin,omitempty"`
	CosineScale  float64 `json:"cosine_scale,omitempty"`

	Triplet       bool    `json:"triplet"`
	TripletWeight float64 `json:"triplet_weight,omitempty"`
	Margin        float64 `json:"margin,omitempty"`
	SoftMargin    bool    `json:"soft_margin,omitempty"`

	Center       *CenterSpec `json:"center,omitempty"`
	FeatureDim   int         `json:"feature_dim"`
	MetricLoss   string      `json:"metric_loss"`
	SamplerStyle string      `json:"sampler"`
}

// CenterSpec describes the center loss and its dedicated optimizer.
type CenterSpec struct {
	Weight     float64 `json:"weight"`
	FeatureDim int     `json:"feature_dim"`
}

// UsesCenter reports whether a center criterion is part of the objective.
func (s Spec) UsesCenter() bool {
	return s.Center != nil
}

// Build describes the loss for a dataset with numClasses identities.
func Build(cfg *config.Config, numClasses int, featureDim int) (Spec, error) {
	if numClasses <= 0 {
		return Spec{}, fmt.Errorf("loss needs a positive class count, got %d", numClasses)
	}
	m := cfg.Model
	spec := Spec{
		NumClasses:   numClasses,
		IDLoss:       m.IDLossType,
		IDWeight:     m.IDLossWeight,
		FeatureDim:   featureDim,
		MetricLoss:   m.MetricLossType,
		SamplerStyle: cfg.DataLoader.Sampler,
	}
	if m.IfLabelSmooth == "on" {
		spec.LabelSmooth = LabelSmoothEpsilon
	}
	switch m.IDLossType {
	case "softmax":
	case "arcface", "cosface", "amsoftmax", "circle":
		spec.CosineMargin = cfg.Solver.CosineMargin
		spec.CosineScale = cfg.Solver.CosineScale
	default:
		return Spec{}, fmt.Errorf("unsupported id loss type: %s", m.IDLossType)
	}

	switch cfg.DataLoader.Sampler {
	case "softmax":
		// identity loss only
	case "softmax_triplet":
		if !strings.Contains(m.MetricLossType, "triplet") {
			return Spec{}, fmt.Errorf("sampler softmax_triplet expects a triplet metric loss, got %s", m.MetricLossType)
		}
		spec.Triplet = true
		spec.TripletWeight = m.TripletLossWeight
		if m.NoMargin {
			spec.SoftMargin = true
		} else {
			spec.Margin = cfg.Solver.Margin
		}
	default:
		return Spec{}, fmt.Errorf("unsupported sampler: %s", cfg.DataLoader.Sampler)
	}

	if strings.Contains(m.MetricLossType, "center") {
		spec.Center = &CenterSpec{
			Weight:     cfg.Solver.CenterLossWeight,
			FeatureDim: featureDim,
		}
	}
	return spec, nil
}
