package trainer

import (
	"math/rand/v2"
)

// Seeder hands out reproducible seeds for the trainer processes.
// The first fold gets SOLVER.SEED itself; later folds draw from a PCG
// stream keyed by it, so a rerun with the same seed sees the same sequence.
type Seeder struct {
	base  int64
	rng   *rand.Rand
	drawn []int64
}

// NewSeeder seeds the driver's random stream.
func NewSeeder(seed int64) *Seeder {
	return &Seeder{
		base:  seed,
		rng:   rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)),
		drawn: []int64{seed},
	}
}

// Base returns the configured seed.
func (s *Seeder) Base() int64 {
	return s.base
}

// Fold returns the seed for a fold.
func (s *Seeder) Fold(fold int) int64 {
	for len(s.drawn) <= fold {
		s.drawn = append(s.drawn, s.rng.Int64N(1<<31))
	}
	return s.drawn[fold]
}

// Determinism returns the switches for a fold seed.
func (s *Seeder) Determinism(fold int) Determinism {
	return Determinism{
		Seed:               s.Fold(fold),
		CudnnDeterministic: true,
		CudnnBenchmark:     true,
	}
}
