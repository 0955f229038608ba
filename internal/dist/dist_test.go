package dist

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DreamCats/reidtrain/internal/config"
)

func TestReadEnvFrom(t *testing.T) {
	e, err := ReadEnvFrom(map[string]string{
		"WORLD_SIZE":  "4",
		"RANK":        "2",
		"LOCAL_RANK":  "2",
		"MASTER_ADDR": "10.0.0.1",
		"MASTER_PORT": "29500",
	})
	require.NoError(t, err)
	assert.Equal(t, Env{WorldSize: 4, Rank: 2, LocalRank: 2, MasterAddr: "10.0.0.1", MasterPort: 29500}, e)

	e, err = ReadEnvFrom(map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, 1, e.WorldSize)
	assert.Equal(t, -1, e.LocalRank)

	_, err = ReadEnvFrom(map[string]string{"WORLD_SIZE": "two"})
	require.Error(t, err)
}

func TestSetupSingleProcess(t *testing.T) {
	cfg := config.Default()
	cfg.Model.DeviceID = "3"

	ctx, err := Setup(cfg, 5, Env{WorldSize: 8, Rank: 7})
	require.NoError(t, err)
	assert.False(t, ctx.Enabled)
	assert.True(t, ctx.IsMain())
	assert.Equal(t, 0, ctx.Device)
	assert.Equal(t, []string{"CUDA_VISIBLE_DEVICES=3"}, ctx.TrainerEnv())
}

func TestSetupDistributed(t *testing.T) {
	cfg := config.Default()
	cfg.Model.DistTrain = true
	cfg.Model.DeviceID = "0,1"

	ctx, err := Setup(cfg, 1, Env{WorldSize: 2, Rank: 1, LocalRank: -1, MasterAddr: "127.0.0.1", MasterPort: 29500})
	require.NoError(t, err)
	assert.True(t, ctx.Enabled)
	assert.False(t, ctx.IsMain())
	assert.Equal(t, 1, ctx.Device)
	assert.Equal(t, "env://", ctx.InitMethod)
	assert.Equal(t, []string{
		"CUDA_VISIBLE_DEVICES=0,1",
		"LOCAL_RANK=1",
		"RANK=1",
		"WORLD_SIZE=2",
		"MASTER_ADDR=127.0.0.1",
		"MASTER_PORT=29500",
	}, ctx.TrainerEnv())
}

func TestSetupLocalRankFromEnv(t *testing.T) {
	cfg := config.Default()
	cfg.Model.DistTrain = true

	ctx, err := Setup(cfg, 0, Env{WorldSize: 4, Rank: 3, LocalRank: 3, MasterAddr: "h", MasterPort: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, ctx.Device)
}

func TestSetupErrors(t *testing.T) {
	cfg := config.Default()
	cfg.Model.DistTrain = true

	tests := []struct {
		name      string
		localRank int
		env       Env
	}{
		{name: "missing master", env: Env{WorldSize: 2, Rank: 0}},
		{name: "rank out of range", env: Env{WorldSize: 2, Rank: 2, MasterAddr: "h", MasterPort: 1}},
		{name: "zero world", env: Env{WorldSize: 0}},
		{name: "negative local rank", localRank: -2, env: Env{WorldSize: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Setup(cfg, tt.localRank, tt.env)
			require.Error(t, err)
		})
	}
}
