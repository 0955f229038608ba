package metrics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func curve(n int, base float64) []float64 {
	c := make([]float64, n)
	for i := range c {
		c[i] = math.Min(1, base+float64(i)*0.01)
	}
	return c
}

func TestAggregateSingleFold(t *testing.T) {
	r := FoldResult{Fold: 0, CMC: curve(20, 0.8), MAP: 0.71}
	s, err := Aggregate([]FoldResult{r})
	require.NoError(t, err)
	assert.Equal(t, 1, s.NumTrials)
	assert.Equal(t, 0.71, s.MAP)
	assert.Zero(t, s.MAPStd)
	assert.Equal(t, r.CMC, s.CMC)

	// the summary does not alias the fold's curve
	s.CMC[0] = -1
	assert.Equal(t, 0.8, r.CMC[0])
}

func TestAggregateMultipleFolds(t *testing.T) {
	results := []FoldResult{
		{Fold: 0, CMC: []float64{0.5, 0.7, 0.9}, MAP: 0.4},
		{Fold: 1, CMC: []float64{0.7, 0.9, 1.0}, MAP: 0.6},
		{Fold: 2, CMC: []float64{0.6, 0.8, 0.95}, MAP: 0.8},
	}
	s, err := Aggregate(results)
	require.NoError(t, err)

	assert.Equal(t, 3, s.NumTrials)
	assert.InDelta(t, 0.6, s.MAP, 1e-12)
	// population std of {0.4, 0.6, 0.8}
	assert.InDelta(t, math.Sqrt(0.08/3), s.MAPStd, 1e-12)
	require.Len(t, s.CMC, 3)
	assert.InDelta(t, 0.6, s.CMC[0], 1e-12)
	assert.InDelta(t, 0.8, s.CMC[1], 1e-12)
	assert.InDelta(t, 0.95, s.CMC[2], 1e-12)
}

func TestAggregateErrors(t *testing.T) {
	_, err := Aggregate(nil)
	assert.ErrorIs(t, err, ErrNoResults)

	_, err = Aggregate([]FoldResult{
		{Fold: 0, CMC: []float64{0.5, 0.6}},
		{Fold: 1, CMC: []float64{0.5}},
	})
	require.Error(t, err)
}

func TestMeanStd(t *testing.T) {
	mean, std := MeanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.Equal(t, 5.0, mean)
	assert.Equal(t, 2.0, std)

	mean, std = MeanStd(nil)
	assert.Zero(t, mean)
	assert.Zero(t, std)
}

func TestReportLines(t *testing.T) {
	s := Summary{NumTrials: 10, MAP: 0.8765, MAPStd: 0.0123, CMC: curve(20, 0.9)}
	lines := ReportLines(s)
	assert.Equal(t, []string{
		"10 folds average:",
		"mAP: 87.650%, Standard deviation: 1.230%",
		"CMC curve, Rank-1  :90.000%",
		"CMC curve, Rank-5  :94.000%",
		"CMC curve, Rank-10 :99.000%",
		"CMC curve, Rank-20 :100.000%",
	}, lines)

	single := ReportLines(Summary{NumTrials: 1, MAP: 0.5, CMC: []float64{0.6, 0.7, 0.8, 0.9, 0.95}})
	assert.Equal(t, []string{
		"1 folds average:",
		"mAP: 50.000%",
		"CMC curve, Rank-1  :60.000%",
		"CMC curve, Rank-5  :95.000%",
	}, single)
}
