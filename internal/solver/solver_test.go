package solver

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DreamCats/reidtrain/internal/config"
)

func TestParamGroup(t *testing.T) {
	cfg := config.Default()
	cfg.Solver.BaseLR = 0.01
	cfg.Solver.BiasLRFactor = 2
	cfg.Solver.WeightDecay = 1e-4
	cfg.Solver.WeightDecayBias = 0

	opt := BuildOptimizer(cfg, false)
	assert.Nil(t, opt.Center)
	assert.Equal(t, 0.9, opt.Momentum)

	tests := []struct {
		name   string
		large  bool
		lr, wd float64
	}{
		{name: "base.blocks.0.attn.qkv.weight", lr: 0.01, wd: 1e-4},
		{name: "base.blocks.0.attn.qkv.bias", lr: 0.02, wd: 0},
		{name: "classifier.weight", lr: 0.01, wd: 1e-4},
		{name: "classifier.weight", large: true, lr: 0.02, wd: 1e-4},
		{name: "arcface.bias", large: true, lr: 0.02, wd: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := config.Default()
			c.Solver = cfg.Solver
			c.Solver.LargeFCLR = tt.large
			lr, wd := BuildOptimizer(c, false).ParamGroup(tt.name)
			assert.InDelta(t, tt.lr, lr, 1e-12)
			assert.InDelta(t, tt.wd, wd, 1e-12)
		})
	}
}

func TestBuildOptimizerCenter(t *testing.T) {
	cfg := config.Default()
	cfg.Solver.OptimizerName = "AdamW"
	opt := BuildOptimizer(cfg, true)
	require.NotNil(t, opt.Center)
	assert.Equal(t, "SGD", opt.Center.Name)
	assert.Equal(t, cfg.Solver.CenterLR, opt.Center.LR)
	assert.Zero(t, opt.Momentum)
}

func TestCosine(t *testing.T) {
	c := NewCosine(0.008, 120, 5)

	assert.InDelta(t, 0.00008, c.LR(0), 1e-12)
	// linear warmup
	assert.InDelta(t, 0.00008+2*(0.008-0.00008)/5, c.LR(2), 1e-12)
	// cosine phase is not shifted by warmup
	want := 0.000016 + 0.5*(0.008-0.000016)*(1+math.Cos(math.Pi*5/120))
	assert.InDelta(t, want, c.LR(5), 1e-12)
	// halfway down
	assert.InDelta(t, 0.000016+0.5*(0.008-0.000016), c.LR(60), 1e-12)
	// floor after the cycle
	assert.InDelta(t, 0.000016, c.LR(120), 1e-15)
	assert.InDelta(t, 0.000016, c.LR(500), 1e-15)

	for e := 6; e < 120; e++ {
		assert.LessOrEqual(t, c.LR(e), c.LR(e-1), "epoch %d", e)
	}
}

func TestCosineWithoutWarmup(t *testing.T) {
	c := NewCosine(0.1, 10, 0)
	assert.InDelta(t, 0.1, c.LR(0), 1e-12)
}

func TestWarmupMultiStep(t *testing.T) {
	w, err := NewWarmupMultiStep(0.1, []int{40, 70}, 0.1, 0.01, 10, "linear")
	require.NoError(t, err)

	assert.InDelta(t, 0.001, w.LR(0), 1e-12)
	assert.InDelta(t, 0.1*(0.01*0.5+0.5), w.LR(5), 1e-12)
	assert.InDelta(t, 0.1, w.LR(10), 1e-12)
	assert.InDelta(t, 0.1, w.LR(39), 1e-12)
	assert.InDelta(t, 0.01, w.LR(40), 1e-12)
	assert.InDelta(t, 0.001, w.LR(70), 1e-12)

	c, err := NewWarmupMultiStep(0.1, nil, 0.1, 0.5, 3, "constant")
	require.NoError(t, err)
	assert.InDelta(t, 0.05, c.LR(2), 1e-12)
	assert.InDelta(t, 0.1, c.LR(3), 1e-12)

	_, err = NewWarmupMultiStep(0.1, []int{70, 40}, 0.1, 0.01, 10, "linear")
	require.Error(t, err)
	_, err = NewWarmupMultiStep(0.1, []int{40, 40}, 0.1, 0.01, 10, "linear")
	require.Error(t, err)
	_, err = NewWarmupMultiStep(0.1, []int{40}, 0.1, 0.01, 10, "exp")
	require.Error(t, err)
}

func TestBuildSchedulerAndTable(t *testing.T) {
	cfg := config.Default()
	cfg.Solver.MaxEpochs = 20

	s, err := BuildScheduler(cfg)
	require.NoError(t, err)
	table := Table(s, cfg.Solver.MaxEpochs)
	assert.Equal(t, "cosine", table.Name)
	assert.Len(t, table.LR, 20)
	assert.Equal(t, s.LR(7), table.LR[7])

	cfg.Solver.Scheduler = "warmup_multistep"
	s, err = BuildScheduler(cfg)
	require.NoError(t, err)
	assert.Equal(t, "warmup_multistep", s.Name())

	cfg.Solver.Scheduler = "poly"
	_, err = BuildScheduler(cfg)
	require.Error(t, err)
}
