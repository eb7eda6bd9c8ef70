package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mediaq/internal/program"
)

func newProgramsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "programs [player|helper|downloader]",
		Short:         "List the players, helpers and downloaders mediaq found",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		ValidArgs:     []string{string(program.RolePlayer), string(program.RoleHelper), string(program.RoleDownloader)},
		RunE: func(cmd *cobra.Command, args []string) error {
			roles := program.Roles
			if len(args) == 1 {
				r, err := program.ParseRole(args[0])
				if err != nil {
					return &ExitError{Code: ExitCLIError, Err: err}
				}
				roles = []program.Role{r}
			}

			a, err := g.app(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.Close()

			asYAML, _ := cmd.Flags().GetBool("yaml")
			if asYAML {
				out := map[program.Role][]program.Entry{}
				for _, role := range roles {
					for _, d := range a.Programs.Definitions(role) {
						out[role] = append(out[role], program.Entry{
							Name:        d.Name,
							Kind:        d.Kind.Name,
							Path:        d.Path,
							Args:        d.Args,
							MediaTypes:  d.MediaTypes,
							URLPatterns: d.Patterns,
						})
					}
				}
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(out); err != nil {
					return err
				}
				return enc.Close()
			}

			cell := lipgloss.NewStyle().Padding(0, 1)
			t := table.New().
				Border(lipgloss.NormalBorder()).
				StyleFunc(func(int, int) lipgloss.Style { return cell }).
				Headers("ROLE", "NAME", "PATH", "MEDIA", "FLAGS", "URLS")
			for _, role := range roles {
				for _, d := range a.Programs.Definitions(role) {
					t.Row(string(role), d.Name, d.Path, orDash(strings.Join(d.MediaTypes, ",")), orDash(flags(d)), orDash(strings.Join(d.Patterns, " ")))
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), t.String())
			if a.Warnings != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", a.Warnings)
			}
			return nil
		},
	}
	cmd.Flags().Bool("yaml", false, "Print as a programs: config section")
	return cmd
}

func flags(d *program.Definition) string {
	var f []string
	if d.Integrated() {
		f = append(f, "integrated")
	}
	if d.Foreground() {
		f = append(f, "foreground")
	}
	return strings.Join(f, ",")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
