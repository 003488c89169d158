package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string

	cctx := newCommandContext(&configFlag)

	rootCmd := &cobra.Command{
		Use:           "rgbdtum <vocabulary> <settings> <sequence_dir> <association_file>",
		Short:         "Replay TUM RGB-D sequences through a tracking engine",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 4 {
				_ = cmd.Usage()
				return fmt.Errorf("expected 4 arguments (vocabulary, settings, sequence directory, association file), got %d", len(args))
			}
			return runReplay(cmd, cctx, args)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newRunCommand(cctx))
	rootCmd.AddCommand(newSessionsCommand(cctx))
	rootCmd.AddCommand(newTraceCommand())
	rootCmd.AddCommand(newConfigCommand(cctx))

	return rootCmd
}
