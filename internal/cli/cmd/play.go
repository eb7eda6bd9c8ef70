package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mediaq/internal/model"
	"mediaq/internal/program"
	"mediaq/internal/task"
)

func newPlayCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play [query...]",
		Short: "Play listings without the browser",
		Example: `  mediaq play ~/Videos/talk.mkv
  mediaq play -p youtube --all lofi mix
  mediaq play --player vlc --helper streamlink https://www.twitch.tv/somechannel`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd, g, args)
		},
	}
	f := cmd.Flags()
	f.Int("index", 0, "Listing to play")
	f.Bool("all", false, "Play every listing in order")
	f.String("player", "", "Player to use")
	f.String("helper", "", "Helper to feed the player")
	f.String("resolution", "", "Preferred resolution (e.g. 720p, best)")
	f.Duration("start", 0, "Start offset")
	return cmd
}

func runPlay(cmd *cobra.Command, g *globals, args []string) error {
	ctx := cmd.Context()
	rep := newTextReporter(os.Stderr)
	a, err := g.app(ctx, rep)
	if err != nil {
		return err
	}
	defer a.Close()

	listings, err := a.Listings(ctx, strings.Join(args, " "))
	if err != nil {
		return exitError(err)
	}
	selected, err := pickListings(cmd, listings)
	if err != nil {
		return err
	}

	player, _ := cmd.Flags().GetString("player")
	helper, _ := cmd.Flags().GetString("helper")
	resolution, _ := cmd.Flags().GetString("resolution")
	start, _ := cmd.Flags().GetDuration("start")

	var tasks []*task.Task
	for _, l := range selected {
		opts := a.PlayOptions(l.Provider)
		if player != "" {
			opts.Player = program.Spec{Name: player}
		}
		if helper != "" {
			opts.Helper = helper
		}
		if resolution != "" {
			opts.Options.Resolution = resolution
		}
		opts.Options.Offset = start
		t, err := a.PlayWith(l, opts)
		if err != nil {
			return exitError(fmt.Errorf("%s: %w", l.Title, err))
		}
		rep.Name(t.ID, l.Title)
		tasks = append(tasks, t)
	}

	var errs []error
	for _, t := range tasks {
		res, err := t.Wait(ctx)
		if err != nil {
			return err
		}
		if err := taskExit(t, res); err != nil {
			errs = append(errs, err)
		}
	}
	return firstExit(errs)
}

// pickListings applies --index and --all.
func pickListings(cmd *cobra.Command, listings []*model.Listing) ([]*model.Listing, error) {
	if len(listings) == 0 {
		return nil, &ExitError{Code: ExitCLIError, Err: errors.New("no listings found")}
	}
	if all, _ := cmd.Flags().GetBool("all"); all {
		return listings, nil
	}
	i, _ := cmd.Flags().GetInt("index")
	if i < 0 || i >= len(listings) {
		return nil, &ExitError{Code: ExitCLIError, Err: fmt.Errorf("--index %d out of range (%d listings)", i, len(listings))}
	}
	return listings[i : i+1], nil
}

// firstExit joins errs, keeping the exit code of the first.
func firstExit(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	code := ExitTaskError
	var ee *ExitError
	if errors.As(errs[0], &ee) {
		code = ee.Code
	}
	return &ExitError{Code: code, Err: errors.Join(errs...)}
}
