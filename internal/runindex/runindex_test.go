package runindex

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, x *Index) {
	t.Helper()
	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	docs := []Doc{
		{ID: "run-a", Dataset: "ilids", Status: "succeeded", ConfigFile: "configs/ilids/vit_transreid.yml",
			OutputDir: "logs/ilids_vit", Content: "DATASETS:\n  NAMES: ilids\nSOLVER:\n  OPTIMIZER_NAME: SGD\n", StartedAt: base},
		{ID: "run-b", Dataset: "mars", Status: "failed", ConfigFile: "configs/mars/resnet50.yml",
			OutputDir: "logs/mars_resnet", Content: "MODEL:\n  NAME: resnet50\nSOLVER:\n  SCHEDULER: warmup_multistep\n", StartedAt: base.Add(time.Hour)},
		{ID: "run-c", Dataset: "polarbearvidid", Status: "running", ConfigFile: "configs/bears/vit.yml",
			OutputDir: "logs/bears", Content: "MODEL:\n  TRANSFORMER_TYPE: vit_small_patch16_224_TransReID\n", StartedAt: base.Add(2 * time.Hour)},
	}
	for _, d := range docs {
		require.NoError(t, x.Index(d))
	}
}

func TestSearch(t *testing.T) {
	x, err := Open(filepath.Join(t.TempDir(), "index", "runs"))
	require.NoError(t, err)
	defer x.Close()
	seed(t, x)

	n, err := x.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	hits, err := x.Search("mars", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "run-b", hits[0].ID)
	assert.Equal(t, "mars", hits[0].Dataset)
	assert.Equal(t, "failed", hits[0].Status)
	assert.Equal(t, "logs/mars_resnet", hits[0].OutputDir)

	hits, err = x.Search("resnet50", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "run-b", hits[0].ID)

	hits, err = x.Search("failed", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "run-b", hits[0].ID)

	hits, err = x.Search("no-such-thing-anywhere", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestReindexAndReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "runs")
	x, err := Open(dir)
	require.NoError(t, err)
	seed(t, x)

	require.NoError(t, x.Index(Doc{ID: "run-c", Dataset: "polarbearvidid", Status: "succeeded", ConfigFile: "configs/bears/vit.yml", OutputDir: "logs/bears"}))
	require.NoError(t, x.Delete("run-a"))
	require.Error(t, x.Index(Doc{}))
	require.NoError(t, x.Close())

	x, err = Open(dir)
	require.NoError(t, err)
	defer x.Close()

	n, err := x.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	ids, err := x.IDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"run-b", "run-c"}, ids)

	hits, err := x.Search("succeeded", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "run-c", hits[0].ID)

	hits, err = x.Search("ilids", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
