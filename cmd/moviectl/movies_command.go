package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mark-c-hall/movie-catalog/internal/client"
	"github.com/mark-c-hall/movie-catalog/internal/models"
)

func newMoviesCommand(ctx *commandContext) *cobra.Command {
	moviesCmd := &cobra.Command{
		Use:   "movies",
		Short: "List and edit movies",
	}

	moviesCmd.AddCommand(newMoviesListCommand(ctx))
	moviesCmd.AddCommand(newMoviesShowCommand(ctx))
	moviesCmd.AddCommand(newMoviesAddCommand(ctx))
	moviesCmd.AddCommand(newMoviesEditCommand(ctx))
	moviesCmd.AddCommand(newMoviesRemoveCommand(ctx))
	moviesCmd.AddCommand(newMoviesPurgeCommand(ctx))

	return moviesCmd
}

func newMoviesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every movie",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(api *client.Client) error {
				movies, err := api.ListMovies(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, movies)
				}
				if len(movies) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No movies yet")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(cmd.OutOrStdout(),
					[]string{"ID", "Title", "Year", "Director", "Actors"},
					movieRows(movies),
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func newMoviesShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one movie",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(api *client.Client) error {
				movie, err := api.GetMovie(cmd.Context(), id)
				if err != nil {
					return notFound(err, id)
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, movie)
				}
				printMovie(cmd, movie)
				return nil
			})
		},
	}
}

type movieFlags struct {
	title       string
	year        string
	director    string
	description string
	actors      []int64
}

func (f *movieFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.title, "title", "", "Movie title")
	cmd.Flags().StringVar(&f.year, "year", "", "Release year")
	cmd.Flags().StringVar(&f.director, "director", "", "Director")
	cmd.Flags().StringVar(&f.description, "description", "", "Short description")
	cmd.Flags().Int64SliceVar(&f.actors, "actor", nil, "Actor id (repeatable)")
}

// apply copies the flags the user set onto in.
func (f *movieFlags) apply(cmd *cobra.Command, in *models.MovieInput) {
	flags := cmd.Flags()
	if flags.Changed("title") {
		in.Title = f.title
	}
	if flags.Changed("year") {
		in.Year = f.year
	}
	if flags.Changed("director") {
		in.Director = f.director
	}
	if flags.Changed("description") {
		in.Description = f.description
	}
	if flags.Changed("actor") {
		in.ActorIDs = f.actors
	}
}

func newMoviesAddCommand(ctx *commandContext) *cobra.Command {
	var flags movieFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a movie",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var in models.MovieInput
			flags.apply(cmd, &in)
			if err := in.Validate(); err != nil {
				return err
			}
			return ctx.withClient(func(api *client.Client) error {
				movie, err := api.CreateMovie(cmd.Context(), in)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, movie)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added movie %d: %s\n", movie.ID, movie.Title)
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newMoviesEditCommand(ctx *commandContext) *cobra.Command {
	var flags movieFlags
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of a movie; unset flags keep their value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(api *client.Client) error {
				current, err := api.GetMovie(cmd.Context(), id)
				if err != nil {
					return notFound(err, id)
				}
				in := current.Input()
				flags.apply(cmd, &in)
				if err := in.Validate(); err != nil {
					return err
				}

				movie, err := api.UpdateMovie(cmd.Context(), id, in)
				if err != nil {
					return notFound(err, id)
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, movie)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated movie %d: %s\n", movie.ID, movie.Title)
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func newMoviesRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>...",
		Short: "Delete movies by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := parseID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return ctx.withClient(func(api *client.Client) error {
				for _, id := range ids {
					if err := api.DeleteMovie(cmd.Context(), id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted movie %d\n", id)
				}
				return nil
			})
		},
	}
}

func newMoviesPurgeCommand(ctx *commandContext) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete every movie",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("purge deletes every movie; pass --yes to confirm")
			}
			return ctx.withClient(func(api *client.Client) error {
				if err := api.DeleteAllMovies(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "All movies deleted")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deleting every movie")
	return cmd
}

func movieRows(movies []models.Movie) [][]string {
	rows := make([][]string, 0, len(movies))
	for _, m := range movies {
		rows = append(rows, []string{
			strconv.FormatInt(m.ID, 10),
			m.Title,
			m.Year,
			m.Director,
			models.ActorNames(m.Actors),
		})
	}
	return rows
}

func printMovie(cmd *cobra.Command, m *models.Movie) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:          %d\n", m.ID)
	fmt.Fprintf(out, "Title:       %s\n", m.Title)
	fmt.Fprintf(out, "Year:        %s\n", m.Year)
	fmt.Fprintf(out, "Director:    %s\n", m.Director)
	fmt.Fprintf(out, "Description: %s\n", m.Description)
	if len(m.Actors) > 0 {
		fmt.Fprintf(out, "Actors:      %s\n", models.ActorNames(m.Actors))
	}
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid movie id %q", arg)
	}
	return id, nil
}

func notFound(err error, id int64) error {
	var statusErr *client.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == 404 {
		return fmt.Errorf("movie %d not found", id)
	}
	return err
}
