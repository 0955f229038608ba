package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DreamCats/reidtrain/cmd/reidtrain/internal"
	"github.com/DreamCats/reidtrain/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write or inspect training configs",
	}
	cmd.AddCommand(newConfigInitCmd(), newConfigShowCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Write a commented config template",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "configs/reidtrain.yml"
			if len(args) == 1 {
				path = args[0]
			}
			created, err := config.WriteDefaultTemplate(path)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Created config template at %s\n", path)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Config already exists at %s, left unchanged\n", path)
			}
			return nil
		},
	}
}

func newConfigShowCmd() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "show [--config_file PATH] [KEY VALUE]...",
		Short: "Print the merged, validated config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := internal.LoadConfig(configFile, args)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), cfg.Dump())
			return nil
		},
	}
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVar(&configFile, "config_file", "", "path to config file")
	return cmd
}
