package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/DreamCats/reidtrain/cmd/reidtrain/internal"
	"github.com/DreamCats/reidtrain/internal/store"
)

func newRunsCmd(a *app) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded training runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.Open(internal.DBPath(a.stateDir))
			if err != nil {
				return err
			}
			defer db.Close()

			runs, err := store.NewRunStore(db).List(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				for i := range runs {
					runs[i].ConfigText = ""
				}
				return writeJSON(out, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded yet.")
				return nil
			}
			fmt.Fprintln(out, renderRuns(runs, time.Now()))
			if stats, err := db.Stats(); err == nil {
				fmt.Fprintln(out, renderStats(stats))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "show at most N runs (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.AddCommand(newRunsShowCmd(a))
	return cmd
}

type runDetail struct {
	*store.Run
	Folds []store.Fold        `json:"folds"`
	Curve []store.ScalarPoint `json:"curve,omitempty"`
}

func newRunsShowCmd(a *app) *cobra.Command {
	var (
		jsonOutput bool
		showConfig bool
		curve      string
	)
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its folds",
		Long: `Show one run with its folds. The run id may be shortened to any
unique prefix. --curve prints a recorded training curve, e.g. train/loss,
train/lr or eval/mAP.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.Open(internal.DBPath(a.stateDir))
			if err != nil {
				return err
			}
			defer db.Close()

			run, err := store.NewRunStore(db).Get(args[0])
			if err != nil {
				return err
			}
			folds, err := store.NewFoldStore(db).ListByRun(run.ID)
			if err != nil {
				return err
			}
			var points []store.ScalarPoint
			if curve != "" {
				if points, err = store.NewScalarStore(db).ListByRun(run.ID, curve); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				if !showConfig {
					run.ConfigText = ""
				}
				return writeJSON(out, runDetail{Run: run, Folds: folds, Curve: points})
			}

			fmt.Fprint(out, renderRun(run))
			if len(folds) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderFolds(folds))
			}
			if lines := summaryLines(run); len(lines) > 0 {
				fmt.Fprintln(out)
				for _, l := range lines {
					fmt.Fprintln(out, l)
				}
			}
			if curve != "" {
				fmt.Fprintln(out)
				writeCurve(out, curve, points)
			}
			if showConfig && run.ConfigText != "" {
				fmt.Fprintln(out)
				fmt.Fprint(out, run.ConfigText)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&showConfig, "config", false, "include the merged config")
	cmd.Flags().StringVar(&curve, "curve", "", "print the values of one recorded curve")
	return cmd
}

func writeCurve(w io.Writer, tag string, points []store.ScalarPoint) {
	if len(points) == 0 {
		fmt.Fprintf(w, "No values recorded for %s.\n", tag)
		return
	}
	fmt.Fprintf(w, "%s\n", tag)
	for _, p := range points {
		fmt.Fprintf(w, "  fold %-3d step %-8d %.6g\n", p.Fold+1, p.Step, p.Value)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
