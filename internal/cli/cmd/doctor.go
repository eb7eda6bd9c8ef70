package cmd

import (
	"errors"
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"mediaq/internal/config"
	"mediaq/internal/dirs"
	"mediaq/internal/util/deps"
)

func newDoctorCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:           "doctor",
		Short:         "Diagnose external programs and configuration",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if f := g.v.ConfigFileUsed(); f != "" {
				fmt.Fprintf(out, "Config:      %s\n", f)
			} else if dir, err := dirs.ConfigDir(); err == nil {
				fmt.Fprintf(out, "Config:      none (looked in %s)\n", dir)
			}
			if profiles := config.Profiles(g.v); len(profiles) > 0 {
				fmt.Fprintf(out, "Profiles:    %v\n", profiles)
			}
			fmt.Fprintf(out, "Log file:    %s\n", g.cfg.LogFile)
			fmt.Fprintf(out, "Output dir:  %s\n", g.cfg.OutputDir)

			for _, tool := range []struct {
				label string
				names []string
			}{
				{"Downloader:", []string{"yt-dlp", "youtube-dl"}},
				{"FFmpeg:", []string{"ffmpeg"}},
				{"FFprobe:", []string{"ffprobe"}},
				{"Streamlink:", []string{"streamlink"}},
			} {
				if p, err := deps.Find(exec.LookPath, tool.names...); err == nil {
					fmt.Fprintf(out, "%-12s %s\n", tool.label, p)
				} else {
					fmt.Fprintf(out, "%-12s not found\n", tool.label)
				}
			}

			a, err := g.app(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.Close()
			if a.Warnings != nil {
				fmt.Fprintf(out, "Warnings:\n%v\n", a.Warnings)
			}
			if missing := a.Missing(); len(missing) > 0 {
				for _, m := range missing {
					fmt.Fprintf(out, "Missing:     %s\n", m)
				}
				return &ExitError{Code: ExitMissingDep, Err: errors.New("some program roles have no usable program; see `mediaq programs`")}
			}
			fmt.Fprintln(out, "All program roles are covered.")
			return nil
		},
	}
}
