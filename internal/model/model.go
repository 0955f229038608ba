// Package model describes the network the trainer should build and
// resolves the per-fold checkpoints used for evaluation-only folds.
package model

import (
	"fmt"
	"strings"

	"github.com/DreamCats/reidtrain/internal/config"
)

// Spec is the model description sent to the trainer.
type Spec struct {
	Name            string  `json:"name"`
	TransformerType string  `json:"transformer_type,omitempty"`
	NumClasses      int     `json:"num_classes"`
	CameraNum       int     `json:"camera_num"`
	ViewNum         int     `json:"view_num"`
	FeatureDim      int     `json:"feature_dim"`
	Neck            string  `json:"neck"`
	NeckFeat        string  `json:"neck_feat"`
	LastStride      int     `json:"last_stride"`
	StrideSize      []int   `json:"stride_size,omitempty"`
	PretrainChoice  string  `json:"pretrain_choice"`
	PretrainPath    string  `json:"pretrain_path,omitempty"`
	DropPath        float64 `json:"drop_path"`
	DropOut         float64 `json:"drop_out"`
	AttDropRate     float64 `json:"att_drop_rate"`
	SIECoe          float64 `json:"sie_coe"`
	CosLayer        bool    `json:"cos_layer"`
}

// Build describes the model. Camera and view embeddings are only requested
// when side information embedding is switched on for them.
func Build(cfg *config.Config, numClasses, cameraNum, viewNum int) (Spec, error) {
	m := cfg.Model
	switch m.PretrainChoice {
	case "imagenet", "self", "finetune":
	default:
		return Spec{}, fmt.Errorf("unsupported pretrain choice: %s", m.PretrainChoice)
	}
	if numClasses <= 0 {
		return Spec{}, fmt.Errorf("model needs a positive class count, got %d", numClasses)
	}

	spec := Spec{
		Name:           m.Name,
		NumClasses:     numClasses,
		FeatureDim:     featureDim(m.Name, m.TransformerType),
		Neck:           m.Neck,
		NeckFeat:       cfg.Test.NeckFeat,
		LastStride:     m.LastStride,
		PretrainChoice: m.PretrainChoice,
		PretrainPath:   m.PretrainPath,
		DropPath:       m.DropPath,
		DropOut:        m.DropOut,
		AttDropRate:    m.AttDropRate,
		CosLayer:       m.CosLayer,
	}
	if m.Name == "transformer" {
		spec.TransformerType = m.TransformerType
		spec.StrideSize = m.StrideSize
		spec.SIECoe = m.SIECoe
		if m.SIECamera {
			spec.CameraNum = cameraNum
		}
		if m.SIEView {
			spec.ViewNum = viewNum
		}
	}
	return spec, nil
}

func featureDim(name, transformerType string) int {
	if name != "transformer" {
		return 2048
	}
	if strings.Contains(transformerType, "small") {
		return 384
	}
	return 768
}
