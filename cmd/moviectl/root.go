package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var backendFlag string
	var jsonFlag bool

	ctx := newCommandContext(&backendFlag, &jsonFlag)

	rootCmd := &cobra.Command{
		Use:           "moviectl",
		Short:         "Manage the movie catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "Catalog API base URL (defaults to BACKEND_URL)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print JSON instead of tables")

	rootCmd.AddCommand(newMoviesCommand(ctx))
	rootCmd.AddCommand(newActorsCommand(ctx))
	rootCmd.AddCommand(newSeedCommand(ctx))

	return rootCmd
}
