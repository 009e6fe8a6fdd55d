package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/mark-c-hall/movie-catalog/internal/client"
	"github.com/mark-c-hall/movie-catalog/internal/models"
)

// seedFile is the TOML layout read by "moviectl seed":
//
//	actors = ["Brad Pitt"]
//
//	[[movies]]
//	title = "Fight Club"
//	year = "1999"
//	cast = ["Brad Pitt", "Edward Norton"]
type seedFile struct {
	Actors []string    `toml:"actors"`
	Movies []seedMovie `toml:"movies"`
}

type seedMovie struct {
	models.MovieInput
	Cast []string `toml:"cast"`
}

type seedResult struct {
	ActorsCreated int `json:"actors_created"`
	MoviesCreated int `json:"movies_created"`
	MoviesSkipped int `json:"movies_skipped"`
}

func newSeedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.toml>",
		Short: "Create actors and movies listed in a TOML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, err := readSeedFile(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(api *client.Client) error {
				result, err := runSeed(cmd.Context(), api, seed, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, result)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Seed complete: %d actors created, %d movies created, %d skipped\n",
					result.ActorsCreated, result.MoviesCreated, result.MoviesSkipped)
				return nil
			})
		},
	}
}

func readSeedFile(path string) (*seedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	var seed seedFile
	if err := toml.NewDecoder(f).DisallowUnknownFields().Decode(&seed); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	return &seed, nil
}

// runSeed creates the seed's actors and movies. Cast names are matched
// against the existing roster and created when missing. A movie that fails
// is reported on progress and skipped.
func runSeed(ctx context.Context, api *client.Client, seed *seedFile, progress io.Writer) (seedResult, error) {
	var result seedResult

	roster, err := api.ListActors(ctx)
	if err != nil {
		return result, err
	}
	byName := make(map[string]int64, len(roster))
	for _, a := range roster {
		byName[a.Name] = a.ID
	}

	actorID := func(name string) (int64, error) {
		name = strings.TrimSpace(name)
		if id, ok := byName[name]; ok {
			return id, nil
		}
		actor, err := api.CreateActor(ctx, name)
		if err != nil {
			return 0, err
		}
		byName[actor.Name] = actor.ID
		result.ActorsCreated++
		return actor.ID, nil
	}

	for _, name := range seed.Actors {
		if _, err := actorID(name); err != nil {
			return result, fmt.Errorf("create actor %q: %w", name, err)
		}
	}

	for i, m := range seed.Movies {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		fmt.Fprintf(progress, "Movie %d/%d: %q\n", i+1, len(seed.Movies), m.Title)

		in := m.MovieInput
		for _, name := range m.Cast {
			id, err := actorID(name)
			if err != nil {
				return result, fmt.Errorf("create actor %q: %w", name, err)
			}
			in.ActorIDs = append(in.ActorIDs, id)
		}

		if err := in.Validate(); err != nil {
			fmt.Fprintf(progress, "  skipping movie %d: %v\n", i+1, err)
			result.MoviesSkipped++
			continue
		}
		if _, err := api.CreateMovie(ctx, in); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			fmt.Fprintf(progress, "  skipping %q: %v\n", m.Title, err)
			result.MoviesSkipped++
			continue
		}
		result.MoviesCreated++
	}

	return result, nil
}
