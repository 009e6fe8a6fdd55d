package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mark-c-hall/movie-catalog/internal/client"
	"github.com/mark-c-hall/movie-catalog/internal/models"
)

func newActorsCommand(ctx *commandContext) *cobra.Command {
	actorsCmd := &cobra.Command{
		Use:   "actors",
		Short: "List and add actors",
	}

	actorsCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every actor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(api *client.Client) error {
				actors, err := api.ListActors(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, actors)
				}
				if len(actors) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No actors yet")
					return nil
				}
				rows := make([][]string, 0, len(actors))
				for _, a := range actors {
					rows = append(rows, []string{strconv.FormatInt(a.ID, 10), a.Name})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(cmd.OutOrStdout(),
					[]string{"ID", "Name"}, rows, []columnAlignment{alignRight, alignLeft}))
				return nil
			})
		},
	})

	actorsCmd.AddCommand(&cobra.Command{
		Use:   "add <name>...",
		Short: "Add actors by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(api *client.Client) error {
				created := make([]models.Actor, 0, len(args))
				for _, name := range args {
					actor, err := api.CreateActor(cmd.Context(), name)
					if err != nil {
						return err
					}
					created = append(created, *actor)
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, created)
				}
				for _, a := range created {
					fmt.Fprintf(cmd.OutOrStdout(), "Added actor %d: %s\n", a.ID, a.Name)
				}
				return nil
			})
		},
	})

	return actorsCmd
}
