// Package metrics aggregates per-fold retrieval results.
package metrics

import (
	"errors"
	"fmt"
	"math"
)

// ErrNoResults is returned when there is nothing to aggregate.
var ErrNoResults = errors.New("no fold results")

// ReportRanks are the CMC ranks logged after training.
var ReportRanks = []int{1, 5, 10, 20}

// FoldResult is what one train+evaluate run produced.
// CMC[k] is the fraction of queries with a correct match within the top k+1.
type FoldResult struct {
	Fold int       `json:"fold"`
	CMC  []float64 `json:"cmc"`
	MAP  float64   `json:"mAP"`
}

// Summary is the cross-fold aggregate.
type Summary struct {
	NumTrials int       `json:"num_trials"`
	MAP       float64   `json:"mAP"`
	MAPStd    float64   `json:"mAP_std"`
	CMC       []float64 `json:"cmc"`
}

// Aggregate averages fold results. A single fold is returned as is;
// with more folds CMC is averaged elementwise and mAP gets its mean and
// population standard deviation.
func Aggregate(results []FoldResult) (Summary, error) {
	if len(results) == 0 {
		return Summary{}, ErrNoResults
	}
	if len(results) == 1 {
		r := results[0]
		return Summary{
			NumTrials: 1,
			MAP:       r.MAP,
			CMC:       append([]float64(nil), r.CMC...),
		}, nil
	}

	width := len(results[0].CMC)
	maps := make([]float64, len(results))
	cmc := make([]float64, width)
	for i, r := range results {
		if len(r.CMC) != width {
			return Summary{}, fmt.Errorf("fold %d has a CMC curve of length %d, fold %d has %d",
				r.Fold, len(r.CMC), results[0].Fold, width)
		}
		maps[i] = r.MAP
		for k, v := range r.CMC {
			cmc[k] += v
		}
	}
	n := float64(len(results))
	for k := range cmc {
		cmc[k] /= n
	}

	mean, std := MeanStd(maps)
	return Summary{
		NumTrials: len(results),
		MAP:       mean,
		MAPStd:    std,
		CMC:       cmc,
	}, nil
}

// MeanStd returns the mean and the population (ddof=0) standard deviation.
func MeanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}

// ReportLines renders the summary the way it is written to the train log.
// Ranks past the end of the curve are skipped.
func ReportLines(s Summary) []string {
	lines := []string{fmt.Sprintf("%d folds average:", s.NumTrials)}
	if s.NumTrials > 1 {
		lines = append(lines, fmt.Sprintf("mAP: %s, Standard deviation: %s", Percent(s.MAP), Percent(s.MAPStd)))
	} else {
		lines = append(lines, fmt.Sprintf("mAP: %s", Percent(s.MAP)))
	}
	for _, r := range ReportRanks {
		if r > len(s.CMC) {
			continue
		}
		lines = append(lines, fmt.Sprintf("CMC curve, Rank-%-3d:%s", r, Percent(s.CMC[r-1])))
	}
	return lines
}

// Percent formats a fraction as a percentage with three decimals.
func Percent(v float64) string {
	return fmt.Sprintf("%.3f%%", v*100)
}
