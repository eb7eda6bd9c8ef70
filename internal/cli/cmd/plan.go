package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mediaq/internal/pipeline"
	"mediaq/internal/task"
)

func newPlanCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "plan [query...]",
		Short:         "Show the commands play and download would run, without running them",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := g.app(ctx, nil)
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

			composer := pipeline.NewComposer(a.Programs)
			out := cmd.OutOrStdout()
			for _, l := range selected {
				fmt.Fprintf(out, "%s\n", l.Title)
				fmt.Fprintf(out, "- Provider:  %s\n", l.Provider)
				fmt.Fprintf(out, "- Sources:   %s\n", strings.Join(l.Locators(), " "))

				if t, err := task.NewPlayTask(l, a.PlayOptions(l.Provider)); err != nil {
					fmt.Fprintf(out, "- Play:      error: %v\n", err)
				} else if p, err := composer.Play(t); err != nil {
					fmt.Fprintf(out, "- Play:      error: %v\n", err)
				} else {
					fmt.Fprintf(out, "- Play:      %s\n", p.Pipeline())
				}

				ts, errs := task.NewDownloadTasks(l, -1, a.DownloadOptions(l.Provider))
				for _, err := range errs {
					fmt.Fprintf(out, "- Download:  error: %v\n", err)
				}
				for _, t := range ts {
					p, err := composer.Download(t)
					if err != nil {
						fmt.Fprintf(out, "- Download:  error: %v\n", err)
						continue
					}
					fmt.Fprintf(out, "- Download:  %s\n", p.Pipeline())
					for _, s := range t.Postprocessors {
						fmt.Fprintf(out, "  then:      %s\n", s.Name())
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().Int("index", 0, "Listing to plan")
	cmd.Flags().Bool("all", false, "Plan every listing")
	return cmd
}
