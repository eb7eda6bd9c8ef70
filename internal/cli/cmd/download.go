package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mediaq/internal/task"
	"mediaq/internal/util"
	"mediaq/internal/util/format"
)

func newDownloadCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download [query...]",
		Short: "Download listings with progress bars",
		Example: `  mediaq download https://example.com/a.mp4 https://example.com/b.mp4
  mediaq download -p youtube --index 2 --postprocess small some talk
  mediaq download -p page --all https://example.com/gallery`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd, g, args)
		},
	}
	f := cmd.Flags()
	f.Int("index", 0, "Listing to download")
	f.Bool("all", false, "Download every listing")
	f.Int("source", -1, "Only the source at this index of each listing (-1: all)")
	f.String("helper", "", "Helper to download with")
	f.StringSlice("downloader", nil, "Downloader preference order")
	f.StringSlice("postprocess", nil, "Postprocessors to run on each file, in order")
	f.String("template", "", "Filename template (text/template over listing fields)")
	f.String("format", "", "Format selector passed to yt-dlp style downloaders")
	f.Bool("no-progress", false, "Print one line per stage instead of progress bars")
	return cmd
}

func runDownload(cmd *cobra.Command, g *globals, args []string) error {
	ctx := cmd.Context()
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	var rep namedReporter
	if isTerminal() && !noProgress {
		rep = newBarReporter(ctx, os.Stderr)
	} else {
		rep = newTextReporter(os.Stderr)
	}
	a, err := g.app(ctx, rep)
	if err != nil {
		return err
	}
	defer a.Close()

	listings, err := a.Listings(ctx, strings.Join(args, " "))
	if err != nil {
		return exitError(err)
	}
	// every URL given to the urls provider is meant to be fetched
	if a.Provider() == "urls" && !cmd.Flags().Changed("index") {
		_ = cmd.Flags().Set("all", "true")
	}
	selected, err := pickListings(cmd, listings)
	if err != nil {
		return err
	}

	source, _ := cmd.Flags().GetInt("source")
	helper, _ := cmd.Flags().GetString("helper")
	downloaders, _ := cmd.Flags().GetStringSlice("downloader")
	post, _ := cmd.Flags().GetStringSlice("postprocess")
	tmpl, _ := cmd.Flags().GetString("template")
	formatSel, _ := cmd.Flags().GetString("format")

	var (
		tasks []*task.Task
		errs  []error
	)
	for _, l := range selected {
		opts := a.DownloadOptions(l.Provider)
		if helper != "" {
			opts.Helper = helper
		}
		if len(downloaders) > 0 {
			opts.Downloaders = downloaders
		}
		if len(post) > 0 {
			opts.Postprocessors = post
		}
		if tmpl != "" {
			opts.Template = tmpl
		}
		if formatSel != "" {
			opts.Options.Format = formatSel
		}
		if opts.OutputDir == "" {
			opts.OutputDir = "."
		}
		if err := util.EnsureDir(opts.OutputDir); err != nil {
			return &ExitError{Code: ExitCLIError, Err: fmt.Errorf("failed to create output dir: %w", err)}
		}
		ts, err := a.DownloadWith(l, source, opts)
		if err != nil {
			errs = append(errs, exitError(fmt.Errorf("%s: %w", l.Title, err)))
		}
		for _, t := range ts {
			rep.Name(t.ID, t.Title)
		}
		tasks = append(tasks, ts...)
	}

	var saved []task.Result
	for _, t := range tasks {
		res, err := t.Wait(ctx)
		if err != nil {
			return err
		}
		if err := taskExit(t, res); err != nil {
			errs = append(errs, err)
			continue
		}
		saved = append(saved, res)
	}
	rep.Wait()

	if _, bars := rep.(*barReporter); bars {
		for _, res := range saved {
			fmt.Fprintf(cmd.OutOrStdout(), "Saved: %s (%s)\n", res.Dest, format.HumanizeBytes(util.FileSize(res.Dest)))
		}
	}
	return firstExit(errs)
}
