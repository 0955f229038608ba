// Package dist resolves the per-process distributed training context.
//
// The driver never joins a process group itself. It reads the env://
// rendezvous variables the launcher exported, validates them, picks the
// device for this process and forwards everything to the trainer.
package dist

import (
	"fmt"
	"strconv"

	"github.com/caarlos0/env/v11"

	"github.com/DreamCats/reidtrain/internal/config"
)

// Env holds the rendezvous variables exported by the launcher.
type Env struct {
	WorldSize  int    `env:"WORLD_SIZE" envDefault:"1"`
	Rank       int    `env:"RANK" envDefault:"0"`
	LocalRank  int    `env:"LOCAL_RANK" envDefault:"-1"`
	MasterAddr string `env:"MASTER_ADDR"`
	MasterPort int    `env:"MASTER_PORT"`
}

// ReadEnv parses Env from the process environment.
func ReadEnv() (Env, error) {
	return parseEnv(env.Options{})
}

// ReadEnvFrom parses Env from an explicit variable map.
func ReadEnvFrom(vars map[string]string) (Env, error) {
	return parseEnv(env.Options{Environment: vars})
}

func parseEnv(opts env.Options) (Env, error) {
	var e Env
	if err := env.ParseWithOptions(&e, opts); err != nil {
		return Env{}, fmt.Errorf("parse distributed environment: %w", err)
	}
	return e, nil
}

// Context is the resolved placement of this process.
type Context struct {
	Enabled    bool
	Backend    string
	InitMethod string
	Rank       int
	LocalRank  int
	WorldSize  int
	Device     int
	DeviceIDs  string
	MasterAddr string
	MasterPort int
}

// Setup resolves the distributed context for this process.
// localRank comes from --local_rank and wins over LOCAL_RANK when non-zero.
func Setup(cfg *config.Config, localRank int, e Env) (*Context, error) {
	ctx := &Context{
		WorldSize: 1,
		DeviceIDs: cfg.Model.DeviceID,
	}
	if !cfg.Model.DistTrain {
		return ctx, nil
	}

	if localRank == 0 && e.LocalRank > 0 {
		localRank = e.LocalRank
	}
	if localRank < 0 {
		return nil, fmt.Errorf("local rank must not be negative, got %d", localRank)
	}
	if e.WorldSize < 1 {
		return nil, fmt.Errorf("WORLD_SIZE must be at least 1, got %d", e.WorldSize)
	}
	if e.Rank < 0 || e.Rank >= e.WorldSize {
		return nil, fmt.Errorf("RANK %d out of range for WORLD_SIZE %d", e.Rank, e.WorldSize)
	}
	if e.WorldSize > 1 && (e.MasterAddr == "" || e.MasterPort == 0) {
		return nil, fmt.Errorf("env:// init needs MASTER_ADDR and MASTER_PORT when WORLD_SIZE=%d", e.WorldSize)
	}

	ctx.Enabled = true
	ctx.Backend = "nccl"
	ctx.InitMethod = "env://"
	ctx.Rank = e.Rank
	ctx.LocalRank = localRank
	ctx.WorldSize = e.WorldSize
	ctx.Device = localRank
	ctx.MasterAddr = e.MasterAddr
	ctx.MasterPort = e.MasterPort
	return ctx, nil
}

// IsMain reports whether this process owns shared side effects such as the run store.
func (c *Context) IsMain() bool {
	return c.Rank == 0
}

// TrainerEnv returns the variables handed to the trainer process.
func (c *Context) TrainerEnv() []string {
	vars := []string{"CUDA_VISIBLE_DEVICES=" + c.DeviceIDs}
	if !c.Enabled {
		return vars
	}
	vars = append(vars,
		"LOCAL_RANK="+strconv.Itoa(c.LocalRank),
		"RANK="+strconv.Itoa(c.Rank),
		"WORLD_SIZE="+strconv.Itoa(c.WorldSize),
	)
	if c.MasterAddr != "" {
		vars = append(vars, "MASTER_ADDR="+c.MasterAddr)
	}
	if c.MasterPort != 0 {
		vars = append(vars, "MASTER_PORT="+strconv.Itoa(c.MasterPort))
	}
	return vars
}
