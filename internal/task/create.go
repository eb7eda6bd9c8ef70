package task

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"

	"mediaq/internal/model"
	"mediaq/internal/postprocess"
	"mediaq/internal/program"
)

// ProgramLookup resolves program specs. *program.Registry implements it.
type ProgramLookup interface {
	Resolve(role program.Role, spec program.Spec, mediaType string) ([]*program.Program, error)
}

// StepLookup resolves postprocessor names. *postprocess.Registry implements it.
type StepLookup interface {
	Resolve(names []string) ([]postprocess.Step, error)
}

// PlayOptions configure NewPlayTask and NewPreviewTask.
type PlayOptions struct {
	// Player selects a player explicitly. When zero, a capability filter over
	// the listing's media types is used.
	Player program.Spec
	// Helper forces a helper ("" keeps the rule-based choice).
	Helper string
	// HelperRules come from the provider's configuration and win over
	// per-source rules; DefaultHelperRules are the provider's built-in fallback.
	HelperRules        model.HelperRules
	DefaultHelperRules model.HelperRules
	Options            program.Options
	// Programs, when set, is used to fail fast on unknown players and helpers.
	Programs ProgramLookup
}

// NewPlayTask builds a play task over every source of l.
func NewPlayTask(l *model.Listing, opts PlayOptions) (*Task, error) {
	args, err := playArgs(l, opts)
	if err != nil {
		return nil, err
	}
	return New(KindPlay, l, l.Sources, args), nil
}

// NewPreviewTask builds a preview task owned by owner. A manager keeps at most
// one outstanding preview per owner.
func NewPreviewTask(l *model.Listing, owner string, opts PlayOptions) (*Task, error) {
	args, err := playArgs(l, opts)
	if err != nil {
		return nil, err
	}
	args.Owner = owner
	return New(KindPreview, l, l.Sources, args), nil
}

func playArgs(l *model.Listing, opts PlayOptions) (Args, error) {
	if l == nil || len(l.Sources) == 0 {
		return Args{}, errors.New("listing has no sources")
	}
	args := Args{
		Player:  opts.Player,
		Helper:  opts.Helper,
		Options: opts.Options,
	}
	if args.Player.IsZero() {
		args.Player = program.Spec{Filter: &program.Capabilities{MediaTypes: l.MediaTypes()}}
	}

	// provider configuration > per-source default > provider default
	switch {
	case len(opts.HelperRules) > 0:
		args.HelperRules = opts.HelperRules
	case len(l.Sources[0].Helper) > 0:
		args.HelperRules = l.Sources[0].Helper
	default:
		args.HelperRules = opts.DefaultHelperRules
	}

	if opts.Programs != nil {
		players, err := opts.Programs.Resolve(program.RolePlayer, args.Player, "")
		if err != nil {
			return Args{}, err
		}
		if len(players) == 0 {
			return Args{}, &program.NotFoundError{Role: program.RolePlayer, Spec: args.Player.String()}
		}
		if args.Helper != "" {
			if _, err := opts.Programs.Resolve(program.RoleHelper, program.Spec{Name: args.Helper}, ""); err != nil {
				return Args{}, err
			}
		}
	}
	return args, nil
}

// DownloadOptions configure NewDownloadTasks.
type DownloadOptions struct {
	OutputDir string
	// Template overrides sources that carry no filename template.
	Template string
	// Vars extend the listing's template variables.
	Vars        map[string]any
	Helper      string
	Downloaders []string
	Options     program.Options

	Postprocessors []string
	Steps          StepLookup
	Programs       ProgramLookup
	Logger         *slog.Logger
}

// NewDownloadTasks builds one download task per source of l, or only for the
// source at index when index >= 0. A source whose filename template cannot be
// rendered is logged and skipped; its error is returned alongside the tasks
// of its siblings. Unknown postprocessors or helpers fail the whole call with
// no tasks.
func NewDownloadTasks(l *model.Listing, index int, opts DownloadOptions) ([]*Task, []error) {
	if l == nil || len(l.Sources) == 0 {
		return nil, []error{errors.New("listing has no sources")}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sources := l.Sources
	first := 0
	if index >= 0 {
		if index >= len(l.Sources) {
			return nil, []error{fmt.Errorf("source index %d out of range (listing has %d)", index, len(l.Sources))}
		}
		sources = l.Sources[index : index+1]
		first = index
	}

	var steps []postprocess.Step
	if len(opts.Postprocessors) > 0 {
		if opts.Steps == nil {
			return nil, []error{&postprocess.NotFoundError{Name: opts.Postprocessors[0]}}
		}
		var err error
		if steps, err = opts.Steps.Resolve(opts.Postprocessors); err != nil {
			return nil, []error{err}
		}
	}
	if opts.Helper != "" && opts.Programs != nil {
		if _, err := opts.Programs.Resolve(program.RoleHelper, program.Spec{Name: opts.Helper}, ""); err != nil {
			return nil, []error{err}
		}
	}

	vars := l.Vars()
	maps.Copy(vars, opts.Vars)

	var tasks []*Task
	var errs []error
	for i, src := range sources {
		if src.FilenameTemplate == "" && opts.Template != "" {
			src.FilenameTemplate = opts.Template
		}
		v := maps.Clone(vars)
		v["source_index"] = first + i
		name, err := src.DownloadFilename(v)
		if err != nil {
			logger.Warn("skipping source",
				"provider", l.Provider, "title", l.Title, "locator", src.Locator, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", src.Locator, err))
			continue
		}
		dest := name
		if opts.OutputDir != "" {
			dest = filepath.Join(opts.OutputDir, filepath.FromSlash(name))
		}
		t := New(KindDownload, l, []model.Source{src}, Args{
			Helper:      opts.Helper,
			Downloaders: opts.Downloaders,
			Options:     opts.Options,
			Dest:        dest,
		})
		t.Postprocessors = steps
		tasks = append(tasks, t)
	}
	return tasks, errs
}
