package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/DreamCats/reidtrain/cmd/reidtrain/internal"
)

// app holds the global flags shared by every subcommand.
type app struct {
	stateDir string
	verbose  bool
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "reidtrain",
		Short: "ReID training driver",
		Long: `reidtrain trains person re-identification models.

It loads a YAML config with KEY VALUE overrides, runs the trainer once per
trial fold (10 for ilids, 5 for polarbearvidid, 1 otherwise), averages the
evaluation results and records every run under ~/.reidtrain.`,
		Version:       internal.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.stateDir != "" {
				return nil
			}
			dir, err := internal.DefaultStateDir()
			if err != nil {
				return err
			}
			a.stateDir = dir
			return nil
		},
	}
	root.SetGlobalNormalizationFunc(underscoreFlags)
	root.PersistentFlags().StringVar(&a.stateDir, "state_dir", "", "directory holding runs.db and the search index (default ~/.reidtrain)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		newTrainCmd(a),
		newRunsCmd(a),
		newSearchCmd(a),
		newConfigCmd(),
	)
	return root
}

// underscoreFlags lets --config-file and --config_file name the same flag.
func underscoreFlags(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "-", "_"))
}
