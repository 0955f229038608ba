package data

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DreamCats/reidtrain/internal/config"
)

func TestNumTrials(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"ilids", 10},
		{"iLIDS", 10},
		{" polarbearvidid ", 5},
		{"mars", 1},
		{"prid", 1},
		{"", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NumTrials(tt.name))
		})
	}
}

func TestLoaders(t *testing.T) {
	cfg := config.Default()
	cfg.Datasets.Names = "ilids"
	spec := Loaders(cfg)
	assert.Equal(t, 10, spec.NumTrials)
	assert.Equal(t, 16, spec.IdentitiesPerBatch)
	assert.Equal(t, cfg.Test.ImsPerBatch, spec.TestBatch)

	cfg.DataLoader.Sampler = "softmax"
	assert.Zero(t, Loaders(cfg).IdentitiesPerBatch)
}

type describeFunc func(ctx context.Context, loaders LoaderSpec) (*DatasetInfo, error)

func (f describeFunc) Describe(ctx context.Context, loaders LoaderSpec) (*DatasetInfo, error) {
	return f(ctx, loaders)
}

func TestPrepare(t *testing.T) {
	cfg := config.Default()
	cfg.Datasets.Names = "polarbearvidid"

	var seen LoaderSpec
	plan, err := Prepare(context.Background(), describeFunc(func(_ context.Context, l LoaderSpec) (*DatasetInfo, error) {
		seen = l
		return &DatasetInfo{NumClasses: 70, CameraNum: 1, ViewNum: 1, QueryCounts: []int{10, 11, 12, 13, 14}}, nil
	}), cfg)
	require.NoError(t, err)

	assert.Equal(t, "polarbearvidid", seen.Dataset)
	assert.Equal(t, 5, plan.NumTrials)
	assert.Equal(t, 70, plan.Info.NumClasses)
	assert.Equal(t, 12, plan.NumQuery(2))
}

func TestPrepareErrors(t *testing.T) {
	cfg := config.Default()
	cfg.Datasets.Names = "ilids"

	tests := []struct {
		name string
		info *DatasetInfo
		err  error
	}{
		{name: "trainer error", err: errors.New("boom")},
		{name: "nil report"},
		{name: "no classes", info: &DatasetInfo{QueryCounts: make([]int, 10)}},
		{name: "too few folds", info: &DatasetInfo{NumClasses: 150, QueryCounts: []int{1, 2}}},
		{name: "empty fold", info: &DatasetInfo{NumClasses: 150, QueryCounts: []int{1, 1, 1, 0, 1, 1, 1, 1, 1, 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Prepare(context.Background(), describeFunc(func(context.Context, LoaderSpec) (*DatasetInfo, error) {
				return tt.info, tt.err
			}), cfg)
			require.Error(t, err)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}
