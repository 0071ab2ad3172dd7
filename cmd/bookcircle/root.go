package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "bookcircle",
		Short: "Lend books within circles of friends",
		Long: `Bookcircle keeps a shared catalog of the books people own and tracks
loans between members of the same circle.

Configuration comes from an optional YAML file, a .env file and the
environment, in that order of precedence.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")

	cmd.AddCommand(
		newServeCmd(&configPath),
		newMigrateCmd(&configPath),
		newImportCmd(&configPath),
	)
	return cmd
}
