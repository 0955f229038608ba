package trainer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeederReproducible(t *testing.T) {
	a := NewSeeder(1234)
	b := NewSeeder(1234)

	assert.Equal(t, int64(1234), a.Base())
	assert.Equal(t, int64(1234), a.Fold(0))

	// out-of-order draws see the same stream
	third := a.Fold(3)
	for i := 0; i <= 3; i++ {
		b.Fold(i)
	}
	assert.Equal(t, third, b.Fold(3))
	assert.Equal(t, a.Fold(1), b.Fold(1))

	seen := map[int64]bool{}
	for i := 0; i < 10; i++ {
		s := a.Fold(i)
		assert.GreaterOrEqual(t, s, int64(0))
		assert.Less(t, s, int64(1)<<31)
		seen[s] = true
	}
	assert.Len(t, seen, 10)

	assert.NotEqual(t, a.Fold(1), NewSeeder(99).Fold(1))
}

func TestSeederDeterminism(t *testing.T) {
	d := NewSeeder(5).Determinism(0)
	assert.Equal(t, Determinism{Seed: 5, CudnnDeterministic: true, CudnnBenchmark: true}, d)
}
