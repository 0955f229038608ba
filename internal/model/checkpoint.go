package model

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/DreamCats/reidtrain/internal/config"
)

// Checkpoint is the evaluation weight of one fold.
// Test is true when the fold's weight directory exists; the fold then
// loads Path before training starts.
type Checkpoint struct {
	Dir  string
	Path string
	Test bool
}

// ResolveTestWeight locates <TEST.WEIGHT>/<fold+1>/<TEST.WEIGHT_FILE>.
// WEIGHT_FILE may be a doublestar pattern; the match with the highest
// trailing epoch number wins.
func ResolveTestWeight(cfg *config.Config, fold int) (Checkpoint, error) {
	if cfg.Test.Weight == "" {
		return Checkpoint{}, nil
	}
	dir := filepath.Join(cfg.Test.Weight, strconv.Itoa(fold+1))
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return Checkpoint{Dir: dir}, nil
	}

	pattern := cfg.Test.WeightFile
	if pattern == "" {
		return Checkpoint{}, fmt.Errorf("fold %d: TEST.WEIGHT_FILE is empty", fold+1)
	}
	if !strings.ContainsAny(pattern, "*?[{") {
		path := filepath.Join(dir, pattern)
		if _, err := os.Stat(path); err != nil {
			return Checkpoint{}, fmt.Errorf("fold %d: checkpoint %s: %w", fold+1, path, err)
		}
		return Checkpoint{Dir: dir, Path: path, Test: true}, nil
	}

	matches, err := doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return Checkpoint{}, fmt.Errorf("fold %d: bad weight pattern %q: %w", fold+1, pattern, err)
	}
	if len(matches) == 0 {
		return Checkpoint{}, fmt.Errorf("fold %d: no checkpoint matches %q in %s", fold+1, pattern, dir)
	}
	sort.Slice(matches, func(i, j int) bool {
		ei, ej := epochOf(matches[i]), epochOf(matches[j])
		if ei != ej {
			return ei < ej
		}
		return matches[i] < matches[j]
	})
	best := matches[len(matches)-1]
	return Checkpoint{Dir: dir, Path: filepath.Join(dir, filepath.FromSlash(best)), Test: true}, nil
}

// epochOf returns the trailing number of a checkpoint name, e.g. 120 for
// transformer_120.pth, or -1 when there is none.
func epochOf(name string) int {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	end := len(base)
	start := end
	for start > 0 && base[start-1] >= '0' && base[start-1] <= '9' {
		start--
	}
	if start == end {
		return -1
	}
	n, err := strconv.Atoi(base[start:end])
	if err != nil {
		return -1
	}
	return n
}
