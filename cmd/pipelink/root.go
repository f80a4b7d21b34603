package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var runtimeDirFlag string

	ctx := newCommandContext(&configFlag, &runtimeDirFlag)

	rootCmd := &cobra.Command{
		Use:           "pipelink",
		Short:         "Local message channels between cooperating processes",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&runtimeDirFlag, "runtime-dir", "", "Directory holding channel sockets (overrides paths.runtime_dir)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newDaemonCommands(ctx)...)
	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newGetCommand(ctx))
	rootCmd.AddCommand(newSetCommand(ctx))
	rootCmd.AddCommand(newLogsCommand(ctx))
	rootCmd.AddCommand(newJournalCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
