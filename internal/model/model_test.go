package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DreamCats/reidtrain/internal/config"
)

func TestBuild(t *testing.T) {
	cfg := config.Default()
	cfg.Model.SIECamera = true

	spec, err := Build(cfg, 625, 6, 1)
	require.NoError(t, err)
	assert.Equal(t, 625, spec.NumClasses)
	assert.Equal(t, 768, spec.FeatureDim)
	assert.Equal(t, 6, spec.CameraNum)
	assert.Zero(t, spec.ViewNum)
	assert.Equal(t, cfg.Model.TransformerType, spec.TransformerType)

	cfg.Model.Name = "resnet50"
	spec, err = Build(cfg, 625, 6, 1)
	require.NoError(t, err)
	assert.Equal(t, 2048, spec.FeatureDim)
	assert.Zero(t, spec.CameraNum)
	assert.Empty(t, spec.TransformerType)

	cfg.Model.PretrainChoice = "scratch"
	_, err = Build(cfg, 625, 6, 1)
	require.Error(t, err)

	cfg.Model.PretrainChoice = "imagenet"
	_, err = Build(cfg, 0, 6, 1)
	require.Error(t, err)
}

func TestEpochOf(t *testing.T) {
	assert.Equal(t, 120, epochOf("transformer_120.pth"))
	assert.Equal(t, 5, epochOf("sub/transformer_5.pth"))
	assert.Equal(t, -1, epochOf("best.pth"))
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("w"), 0o644))
}

func TestResolveTestWeight(t *testing.T) {
	root := t.TempDir()
	cfg := config.Default()
	cfg.Test.Weight = root

	// no directory for the fold: train normally
	ck, err := ResolveTestWeight(cfg, 0)
	require.NoError(t, err)
	assert.False(t, ck.Test)
	assert.Equal(t, filepath.Join(root, "1"), ck.Dir)

	// fixed name
	touch(t, filepath.Join(root, "1", "transformer_120.pth"))
	ck, err = ResolveTestWeight(cfg, 0)
	require.NoError(t, err)
	assert.True(t, ck.Test)
	assert.Equal(t, filepath.Join(root, "1", "transformer_120.pth"), ck.Path)

	// directory exists but the checkpoint does not
	require.NoError(t, os.MkdirAll(filepath.Join(root, "2"), 0o755))
	_, err = ResolveTestWeight(cfg, 1)
	require.Error(t, err)

	// pattern picks the highest epoch, not the lexicographic last
	touch(t, filepath.Join(root, "3", "transformer_90.pth"))
	touch(t, filepath.Join(root, "3", "transformer_120.pth"))
	touch(t, filepath.Join(root, "3", "nested", "transformer_100.pth"))
	cfg.Test.WeightFile = "**/transformer_*.pth"
	ck, err = ResolveTestWeight(cfg, 2)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "3", "transformer_120.pth"), ck.Path)

	cfg.Test.WeightFile = "*.ckpt"
	_, err = ResolveTestWeight(cfg, 2)
	require.Error(t, err)
}

func TestResolveTestWeightDisabled(t *testing.T) {
	cfg := config.Default()
	ck, err := ResolveTestWeight(cfg, 0)
	require.NoError(t, err)
	assert.Equal(t, Checkpoint{}, ck)
}
