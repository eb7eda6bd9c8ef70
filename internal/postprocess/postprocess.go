// Package postprocess runs named steps over a finished download: transcoding,
// external hooks and moving the result into place. Steps chain; each one
// receives the previous step's output path.
package postprocess

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"mediaq/internal/progress"
	"mediaq/internal/util"
	"mediaq/internal/util/deps"
)

// ErrNotFound matches every *NotFoundError.
var ErrNotFound = errors.New("postprocessor not found")

// NotFoundError names a postprocessor reference that matched nothing.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("no postprocessor named %q", e.Name) }
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Step is one postprocessing stage.
type Step interface {
	Name() string
	// Run transforms the file at in and returns the path of its result.
	Run(ctx context.Context, in string, report func(progress.Update)) (string, error)
}

// Config declares one named step.
type Config struct {
	Name string `mapstructure:"name" yaml:"name"`
	Type string `mapstructure:"type" yaml:"type"` // ffmpeg | exec | move

	// ffmpeg
	MaxSizeMB int    `mapstructure:"max_size_mb" yaml:"max_size_mb,omitempty"`
	LongSide  int    `mapstructure:"long_side" yaml:"long_side,omitempty"`
	AudioOnly bool   `mapstructure:"audio_only" yaml:"audio_only,omitempty"`
	Quality   string `mapstructure:"quality" yaml:"quality,omitempty"`
	Keep      bool   `mapstructure:"keep" yaml:"keep,omitempty"` // keep the input file

	// exec
	Command string   `mapstructure:"command" yaml:"command,omitempty"`
	Args    []string `mapstructure:"args" yaml:"args,omitempty"`
	Output  string   `mapstructure:"output" yaml:"output,omitempty"` // result path template; input when empty

	// move
	Dir string `mapstructure:"dir" yaml:"dir,omitempty"`
}

// Deps are the collaborators steps are built with.
type Deps struct {
	Runner     util.CmdRunner
	Look       deps.LookPathFunc
	FFmpegPath string // empty: looked up on first use of an ffmpeg step
	Logger     *slog.Logger
}

// Registry maps step names to steps.
type Registry struct {
	mu    sync.RWMutex
	steps map[string]Step
}

func NewRegistry() *Registry {
	return &Registry{steps: map[string]Step{}}
}

// Register adds s, replacing any step of the same name.
func (r *Registry) Register(s Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[s.Name()] = s
}

// Load builds and registers a step for every config entry.
func (r *Registry) Load(cfgs []Config, d Deps) error {
	var errs []error
	for _, c := range cfgs {
		s, err := New(c, d)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r.Register(s)
	}
	return errors.Join(errs...)
}

// New builds the step described by c.
func New(c Config, d Deps) (Step, error) {
	if c.Name == "" {
		return nil, errors.New("postprocessor without a name")
	}
	if d.Runner == nil {
		d.Runner = util.NewDefaultRunner()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	switch c.Type {
	case "ffmpeg", "transcode":
		return &transcodeStep{cfg: c, deps: d}, nil
	case "exec":
		if c.Command == "" {
			return nil, fmt.Errorf("postprocessor %s: exec needs a command", c.Name)
		}
		return &execStep{cfg: c, deps: d}, nil
	case "move":
		if c.Dir == "" {
			return nil, fmt.Errorf("postprocessor %s: move needs a dir", c.Name)
		}
		return &moveStep{cfg: c}, nil
	default:
		return nil, fmt.Errorf("postprocessor %s: unknown type %q", c.Name, c.Type)
	}
}

// Resolve returns the steps named, in order.
func (r *Registry) Resolve(names []string) ([]Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Step, 0, len(names))
	for _, n := range names {
		s, ok := r.steps[n]
		if !ok {
			return nil, &NotFoundError{Name: n}
		}
		out = append(out, s)
	}
	return out, nil
}

// Names lists registered step names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.steps))
	for n := range r.steps {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Chain runs steps in order starting from in and returns the last output.
// The first failure stops the chain.
func Chain(ctx context.Context, steps []Step, in string, report func(progress.Update)) (string, error) {
	if report == nil {
		report = func(progress.Update) {}
	}
	cur := in
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return cur, err
		}
		out, err := s.Run(ctx, cur, report)
		if err != nil {
			return cur, fmt.Errorf("postprocess %s: %w", s.Name(), err)
		}
		cur = out
	}
	return cur, nil
}
