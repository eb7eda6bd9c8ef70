package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"mediaq/internal/cli"
	"mediaq/internal/config"
	"mediaq/internal/logging"
	"mediaq/internal/program"
	"mediaq/internal/progress"
	"mediaq/internal/provider"
	"mediaq/internal/task"
)

const (
	ExitOK         = 0
	ExitCLIError   = 1
	ExitMissingDep = 2
	ExitTaskError  = 3
)

// ExitError wraps an error with a process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }

// exitError classifies err: missing programs and providers are dependency
// problems, everything else a usage error.
func exitError(err error) error {
	if err == nil {
		return nil
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return err
	}
	if errors.Is(err, program.ErrNotFound) {
		return &ExitError{Code: ExitMissingDep, Err: err}
	}
	return &ExitError{Code: ExitCLIError, Err: err}
}

// globals is the state shared by every command of one invocation.
type globals struct {
	v       *viper.Viper
	cfgFile string
	profile string

	cfg      config.Config
	closeLog func() error
}

func newRootCmd() *cobra.Command {
	g := &globals{v: viper.New()}

	root := &cobra.Command{
		Use:   "mediaq [query...]",
		Short: "Browse, play and download media from the terminal",
		Long: `mediaq lists media from a provider (plain URLs, YouTube searches, web pages),
lets you filter and sort the listings, and hands playback or downloads to the
programs you already use: mpv, vlc, yt-dlp, streamlink, curl and friends.

Without a subcommand it opens the interactive browser.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return g.load(cmd.Root())
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if g.closeLog != nil {
				return g.closeLog()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBrowse(cmd, g, args)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.cfgFile, "config", "", "Config file (default: <config dir>/config.yaml)")
	pf.StringVar(&g.profile, "profile", "", "Configuration profile to merge over profiles.default")
	pf.StringP("output-dir", "o", "", "Download directory")
	pf.BoolP("verbose", "v", false, "Debug logging")
	pf.StringP("provider", "p", "", fmt.Sprintf("Listing provider %v", provider.Names()))
	pf.String("log-file", "", `Log file ("-" for stderr)`)
	pf.Int("jobs", 0, "Concurrent downloads")
	root.SetGlobalNormalizationFunc(normalizeFlag)

	root.AddCommand(newBrowseCmd(g))
	root.AddCommand(newPlayCmd(g))
	root.AddCommand(newDownloadCmd(g))
	root.AddCommand(newPlanCmd(g))
	root.AddCommand(newProgramsCmd(g))
	root.AddCommand(newDoctorCmd(g))
	root.AddCommand(newConfigCmd(g))
	root.AddCommand(newCompletionCmd())

	return root
}

// normalizeFlag accepts config-style spellings such as --output_dir.
func normalizeFlag(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func (g *globals) load(root *cobra.Command) error {
	if err := config.Init(g.v, root, g.cfgFile); err != nil {
		return &ExitError{Code: ExitCLIError, Err: err}
	}
	cfg, err := config.Load(g.v, g.profile)
	if err != nil {
		return &ExitError{Code: ExitCLIError, Err: err}
	}
	g.cfg = cfg
	closeLog, err := logging.Setup(logging.Options{Path: cfg.LogFile, Verbose: cfg.Verbose})
	if err != nil {
		return &ExitError{Code: ExitCLIError, Err: fmt.Errorf("open log: %w", err)}
	}
	g.closeLog = closeLog
	return nil
}

// app builds and starts the application. The caller must Close it.
func (g *globals) app(ctx context.Context, r progress.Reporter, opts ...cli.Option) (*cli.App, error) {
	if r != nil {
		opts = append(opts, cli.WithReporter(r))
	}
	a, err := cli.New(g.cfg, opts...)
	if err != nil {
		return nil, exitError(err)
	}
	if err := a.Start(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// Execute runs the CLI with the provided context.
func Execute(ctx context.Context) error {
	root := newRootCmd()
	return root.ExecuteContext(ctx)
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// taskExit maps a finished task to the command's error.
func taskExit(t *task.Task, res task.Result) error {
	switch res.State {
	case task.StateSucceeded:
		return nil
	case task.StateCancelled:
		return &ExitError{Code: ExitTaskError, Err: fmt.Errorf("%s: %w", t.Title, task.ErrCancelled)}
	default:
		if errors.Is(res.Err, program.ErrNotFound) {
			return &ExitError{Code: ExitMissingDep, Err: res.Err}
		}
		return &ExitError{Code: ExitTaskError, Err: fmt.Errorf("%s: %w", t.Title, res.Err)}
	}
}
