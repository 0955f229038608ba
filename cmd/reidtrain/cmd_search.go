package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/DreamCats/reidtrain/cmd/reidtrain/internal"
	"github.com/DreamCats/reidtrain/internal/runindex"
	"github.com/DreamCats/reidtrain/internal/store"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
		reindex    bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search recorded runs",
		Long: `Search recorded runs by dataset, status, config path, output dir or
any word of the merged config, e.g.

    reidtrain search ilids
    reidtrain search "vit_small failed"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			indexDir := internal.IndexDir(a.stateDir)
			if reindex {
				n, stale, err := rebuildIndex(a.stateDir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Indexed %d runs", n)
				if stale > 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), ", dropped %d stale", stale)
				}
				fmt.Fprintln(cmd.ErrOrStderr())
			}

			idx, err := runindex.Open(indexDir)
			if err != nil {
				return err
			}
			defer idx.Close()

			hits, err := idx.Search(strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				return writeJSON(out, hits)
			}
			if len(hits) == 0 {
				fmt.Fprintln(out, "No matching runs.")
				return nil
			}
			fmt.Fprintln(out, renderHits(hits))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of results")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&reindex, "reindex", false, "rebuild the index from the run store first")
	return cmd
}

// rebuildIndex writes every stored run into the search index and drops
// entries whose run is gone from the store. It returns the resulting
// index size and the number of dropped entries.
func rebuildIndex(stateDir string) (uint64, int, error) {
	db, err := store.Open(internal.DBPath(stateDir))
	if err != nil {
		return 0, 0, err
	}
	defer db.Close()

	runs, err := store.NewRunStore(db).List(0)
	if err != nil {
		return 0, 0, err
	}

	idx, err := runindex.Open(internal.IndexDir(stateDir))
	if err != nil {
		return 0, 0, err
	}
	defer idx.Close()

	known := make(map[string]bool, len(runs))
	for i := range runs {
		known[runs[i].ID] = true
		if err := idx.Index(runDoc(&runs[i])); err != nil {
			return 0, 0, err
		}
	}
	ids, err := idx.IDs()
	if err != nil {
		return 0, 0, err
	}
	stale := 0
	for _, id := range ids {
		if known[id] {
			continue
		}
		if err := idx.Delete(id); err != nil {
			return 0, 0, fmt.Errorf("drop stale run %s: %w", id, err)
		}
		stale++
	}
	n, err := idx.Count()
	if err != nil {
		return 0, 0, err
	}
	return n, stale, nil
}
