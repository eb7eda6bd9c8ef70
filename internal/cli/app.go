// Package cli wires configuration, program registry, providers and the task
// manager into the application the commands drive.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"mediaq/internal/config"
	"mediaq/internal/model"
	"mediaq/internal/pipeline"
	"mediaq/internal/postprocess"
	"mediaq/internal/program"
	"mediaq/internal/progress"
	"mediaq/internal/provider"
	"mediaq/internal/task"
	"mediaq/internal/util"
	"mediaq/internal/util/deps"
)

// DefaultLimit caps listings per query when neither flag nor provider sets one.
const DefaultLimit = 50

// App is the assembled application. Create it with New, call Start before
// submitting tasks and Close when done.
type App struct {
	Config    config.Config
	Logger    *slog.Logger
	Programs  *program.Registry
	Steps     *postprocess.Registry
	Providers *provider.Registry
	Manager   *task.Manager
	Terminal  *program.TerminalLock

	// Warnings collects non-fatal load problems (missing configured programs,
	// broken postprocessor entries).
	Warnings error

	provider string
}

// Option configures New.
type Option func(*options)

type options struct {
	reporter progress.Reporter
	look     deps.LookPathFunc
	runner   util.CmdRunner
	logger   *slog.Logger
	terminal *program.TerminalLock
	limits   task.Limits
}

func WithReporter(r progress.Reporter) Option { return func(o *options) { o.reporter = r } }

func WithLookPath(f deps.LookPathFunc) Option { return func(o *options) { o.look = f } }

func WithRunner(r util.CmdRunner) Option { return func(o *options) { o.runner = r } }

func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

func WithTerminal(t *program.TerminalLock) Option { return func(o *options) { o.terminal = t } }

// WithLimits overrides the configured per-category concurrency.
func WithLimits(l task.Limits) Option { return func(o *options) { o.limits = l } }

// New builds every component from cfg. It fails only on problems that make
// the selected provider unusable; the rest is reported through Warnings.
func New(cfg config.Config, opts ...Option) (*App, error) {
	o := options{
		reporter: progress.Nop{},
		look:     exec.LookPath,
		logger:   slog.Default(),
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.runner == nil {
		o.runner = util.NewDefaultRunner()
	}
	if o.terminal == nil {
		o.terminal = program.DefaultTerminal()
	}
	if o.limits == nil {
		o.limits = cfg.Limits()
	}

	a := &App{
		Config:   cfg,
		Logger:   o.logger,
		Terminal: o.terminal,
		provider: cfg.Provider,
	}
	if a.provider == "" {
		a.provider = "urls"
	}

	var warnings []error
	a.Programs = program.NewRegistry()
	if err := a.Programs.Load(cfg.Programs, o.look); err != nil {
		warnings = append(warnings, err)
	}
	a.Steps = postprocess.NewRegistry()
	if err := a.Steps.Load(cfg.Postprocessors, postprocess.Deps{Runner: o.runner, Look: o.look, Logger: o.logger}); err != nil {
		warnings = append(warnings, err)
	}
	a.Warnings = errors.Join(warnings...)
	if a.Warnings != nil {
		o.logger.Warn("configuration problems", "err", a.Warnings)
	}

	a.Providers = provider.NewRegistry(cfg.Providers, provider.Deps{Runner: o.runner, Look: o.look, Logger: o.logger})
	if _, _, err := a.Providers.Get(a.provider); err != nil {
		return nil, err
	}

	svc := pipeline.NewService(
		pipeline.WithComposer(pipeline.NewComposer(a.Programs)),
		pipeline.WithReporter(o.reporter),
		pipeline.WithLogger(o.logger),
		pipeline.WithTerminal(o.terminal),
		pipeline.WithGracePeriod(cfg.GracePeriod),
	)
	a.Manager = task.NewManager(svc,
		task.WithLimits(o.limits),
		task.WithReporter(o.reporter),
		task.WithLogger(o.logger),
	)
	return a, nil
}

// Provider returns the name of the provider listings come from.
func (a *App) Provider() string { return a.provider }

func (a *App) Start(ctx context.Context) error { return a.Manager.Start(ctx) }

// Close stops the manager, cancelling everything still queued or running.
func (a *App) Close() { a.Manager.Stop() }

// Listings queries the selected provider.
func (a *App) Listings(ctx context.Context, query string) ([]*model.Listing, error) {
	return a.ListingsN(ctx, query, 0)
}

// ListingsN is Listings with an explicit limit; 0 uses the provider's.
func (a *App) ListingsN(ctx context.Context, query string, limit int) ([]*model.Listing, error) {
	p, cfg, err := a.Providers.Get(a.provider)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = cfg.Limit
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	a.Logger.Debug("listing", "provider", a.provider, "query", query, "limit", limit)
	return p.Listings(ctx, query, limit)
}

// PlayOptions are the task options for playing listings of provider name.
func (a *App) PlayOptions(name string) task.PlayOptions {
	p, cfg, err := a.Providers.Get(name)
	opts := task.PlayOptions{
		Helper:      cfg.Helper,
		HelperRules: cfg.Helpers,
		Options:     programOptions(cfg),
		Programs:    a.Programs,
	}
	if err == nil {
		opts.DefaultHelperRules = provider.DefaultHelperRules(p)
	}
	if cfg.Player != "" {
		opts.Player = program.Spec{Name: cfg.Player}
	}
	return opts
}

// DownloadOptions are the task options for downloading listings of provider name.
func (a *App) DownloadOptions(name string) task.DownloadOptions {
	_, cfg, _ := a.Providers.Get(name)
	out := a.Config.OutputDir
	if cfg.Output.Path != "" {
		out = cfg.Output.Path
	}
	tmpl := a.Config.Template
	if cfg.Output.Template != "" {
		tmpl = cfg.Output.Template
	}
	return task.DownloadOptions{
		OutputDir:      expandHome(out),
		Template:       tmpl,
		Helper:         cfg.Helper,
		Downloaders:    cfg.Downloaders,
		Options:        programOptions(cfg),
		Postprocessors: cfg.Postprocessors,
		Steps:          a.Steps,
		Programs:       a.Programs,
		Logger:         a.Logger,
	}
}

func programOptions(cfg provider.Config) program.Options {
	return program.Options{
		Resolution: cfg.Resolution,
		Headers:    cfg.Headers,
		Cookies:    cfg.Cookies,
		Format:     cfg.Output.Format,
	}
}

// Play creates a play task for l and queues it.
func (a *App) Play(l *model.Listing) (*task.Task, error) {
	return a.PlayWith(l, a.PlayOptions(l.Provider))
}

// PlayWith is Play with explicit options.
func (a *App) PlayWith(l *model.Listing, opts task.PlayOptions) (*task.Task, error) {
	t, err := task.NewPlayTask(l, opts)
	if err != nil {
		return nil, err
	}
	if err := a.Manager.Play(t); err != nil {
		return nil, err
	}
	a.logTask("queued", t)
	return t, nil
}

// Preview creates a preview task for l on behalf of owner, replacing the
// owner's previous preview.
func (a *App) Preview(l *model.Listing, owner string) (*task.Task, error) {
	t, err := task.NewPreviewTask(l, owner, a.PlayOptions(l.Provider))
	if err != nil {
		return nil, err
	}
	if err := a.Manager.Preview(t, owner); err != nil {
		return nil, err
	}
	a.logTask("queued", t)
	return t, nil
}

// Download queues one task per source of l.
func (a *App) Download(l *model.Listing) ([]*task.Task, error) {
	return a.DownloadWith(l, -1, a.DownloadOptions(l.Provider))
}

// DownloadWith queues download tasks for the source at index of l (every
// source when index < 0). Sources that could not be turned into tasks are
// reported in the returned error next to the queued tasks.
func (a *App) DownloadWith(l *model.Listing, index int, opts task.DownloadOptions) ([]*task.Task, error) {
	tasks, errs := task.NewDownloadTasks(l, index, opts)
	queued := tasks[:0]
	for _, t := range tasks {
		if err := a.Manager.Download(t); err != nil {
			errs = append(errs, err)
			continue
		}
		a.logTask("queued", t)
		queued = append(queued, t)
	}
	return queued, errors.Join(errs...)
}

// Cancel cancels the task with id.
func (a *App) Cancel(id string) error { return a.Manager.Cancel(id) }

func (a *App) logTask(msg string, t *task.Task) {
	a.Logger.Info(msg, "task", t.ID, "kind", t.Kind, "provider", t.Provider, "title", t.Title)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// Missing reports the executables no registered program could cover.
func (a *App) Missing() []string {
	var out []string
	for _, role := range program.Roles {
		if len(a.Programs.Definitions(role)) == 0 {
			out = append(out, fmt.Sprintf("no %s found", role))
		}
	}
	return out
}
