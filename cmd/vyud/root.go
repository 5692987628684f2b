package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var secretsFlag string

	ctx := newCommandContext(&secretsFlag)

	rootCmd := &cobra.Command{
		Use:           "vyud",
		Short:         "VYUD credit and quiz store",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&secretsFlag, "secrets", "s", "", "TOML secrets file (default .streamlit/secrets.toml)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newSchemaCommand())
	rootCmd.AddCommand(newAccountCommand(ctx))
	rootCmd.AddCommand(newQuizCommand(ctx))
	rootCmd.AddCommand(newStatsCommand(ctx))
	rootCmd.AddCommand(newProductsCommand())
	rootCmd.AddCommand(newBackupCommand(ctx))
	rootCmd.AddCommand(newExpireCommand(ctx))

	return rootCmd
}
