package cmd

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"mediaq/internal/cli"
	"mediaq/internal/program"
	"mediaq/internal/ui"
)

func newBrowseCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:           "browse [query...]",
		Short:         "Open the interactive browser",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBrowse(cmd, g, args)
		},
	}
}

func runBrowse(cmd *cobra.Command, g *globals, args []string) error {
	if !isTerminal() {
		return &ExitError{Code: ExitCLIError, Err: errors.New("browse needs a terminal; use play or download instead")}
	}
	ctx := cmd.Context()
	rep := ui.NewReporter(256)
	term := program.DefaultTerminal()
	a, err := g.app(ctx, rep, cli.WithTerminal(term))
	if err != nil {
		return err
	}
	defer a.Close()

	err = ui.Run(ctx, a, rep, term, ui.Options{
		Provider: a.Provider(),
		Query:    strings.Join(args, " "),
	})
	if err != nil {
		return &ExitError{Code: ExitTaskError, Err: err}
	}
	return nil
}
