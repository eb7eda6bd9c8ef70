package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"mediaq/internal/config"
	"mediaq/internal/dirs"
	"mediaq/internal/util"
)

func newConfigCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	initCmd := &cobra.Command{
		Use:           "init",
		Short:         "Write an example config file",
		SilenceUsage:  true,
		SilenceErrors: true,
		// the file --config names may not exist yet
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := g.cfgFile
			if path == "" {
				dir, err := dirs.ConfigDir()
				if err != nil {
					return &ExitError{Code: ExitCLIError, Err: err}
				}
				path = filepath.Join(dir, "config.yaml")
			}
			force, _ := cmd.Flags().GetBool("force")
			if util.FileExists(path) && !force {
				return &ExitError{Code: ExitCLIError, Err: fmt.Errorf("%s exists (use --force to overwrite)", path)}
			}
			b, err := config.Starter()
			if err != nil {
				return err
			}
			if err := util.EnsureDir(filepath.Dir(path)); err != nil {
				return err
			}
			if err := os.WriteFile(path, b, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().Bool("force", false, "Overwrite an existing file")

	showCmd := &cobra.Command{
		Use:           "show",
		Short:         "Print the effective configuration (file, profile, env and flags merged)",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(g.cfg); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	profilesCmd := &cobra.Command{
		Use:           "profiles",
		Short:         "List the profiles defined in the config file",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			profiles := config.Profiles(g.v)
			if len(profiles) == 0 {
				return &ExitError{Code: ExitCLIError, Err: errors.New("no profiles defined")}
			}
			for _, p := range profiles {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	cmd.AddCommand(initCmd, showCmd, profilesCmd)
	return cmd
}
