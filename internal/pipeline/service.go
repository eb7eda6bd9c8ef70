// Package pipeline composes program pipelines for tasks and runs them to
// completion on behalf of the task manager.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"mediaq/internal/downloader"
	"mediaq/internal/postprocess"
	"mediaq/internal/program"
	"mediaq/internal/progress"
	"mediaq/internal/task"
	"mediaq/internal/util"
)

// DefaultTick is how often changed progress is published.
const DefaultTick = time.Second

// Service executes tasks: compose, launch, sample progress, then run the
// task's postprocessors. It implements task.Executor.
type Service struct {
	composer *Composer
	reporter progress.Reporter
	logger   *slog.Logger
	terminal program.Terminal
	tick     time.Duration
	grace    time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithComposer sets the composer (required).
func WithComposer(c *Composer) Option {
	return func(s *Service) {
		s.composer = c
	}
}

// WithReporter attaches a progress reporter (used by the TUI and progress bars).
func WithReporter(rp progress.Reporter) Option {
	return func(s *Service) {
		s.reporter = rp
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithTerminal sets the lock foreground players take. Defaults to the
// process-wide lock.
func WithTerminal(t program.Terminal) Option {
	return func(s *Service) {
		s.terminal = t
	}
}

// WithTick overrides the progress sampling interval.
func WithTick(d time.Duration) Option {
	return func(s *Service) {
		s.tick = d
	}
}

// WithGracePeriod sets how long a cancelled process may take to exit before
// it is killed.
func WithGracePeriod(d time.Duration) Option {
	return func(s *Service) {
		s.grace = d
	}
}

// NewService constructs a new Service with the provided options.
func NewService(opts ...Option) *Service {
	s := &Service{}
	for _, o := range opts {
		o(s)
	}
	if s.reporter == nil {
		s.reporter = progress.Nop{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tick <= 0 {
		s.tick = DefaultTick
	}
	return s
}

var _ task.Executor = (*Service)(nil)

// Execute runs t and returns its output path (empty for playback).
// A non-zero exit or spawn failure is returned as is; cancellation of ctx
// terminates the pipeline and returns once every stage has exited.
func (s *Service) Execute(ctx context.Context, t *task.Task) (string, error) {
	if s.composer == nil {
		return "", errors.New("pipeline: no composer configured")
	}
	var (
		p   *program.Program
		err error
	)
	stage := progress.StagePlaying
	if t.Kind == task.KindDownload {
		stage = progress.StageDownloading
		p, err = s.composer.Download(t)
	} else {
		p, err = s.composer.Play(t)
	}
	if err != nil {
		return "", err
	}
	logger := s.logger.With("task", t.ID, "provider", t.Provider, "title", t.Title, "program", p.Name())

	if t.Kind == task.KindDownload {
		if err := util.EnsureDir(filepath.Dir(t.Args.Dest)); err != nil {
			return "", fmt.Errorf("create output directory: %w", err)
		}
	}

	s.apply(t, progress.Update{Stage: progress.StageStarting, Percent: -1, Message: p.Name()})
	if err := s.run(ctx, t, p, stage, logger); err != nil {
		return "", err
	}
	if t.Kind != task.KindDownload {
		return "", nil
	}

	out := s.output(t)
	if len(t.Postprocessors) == 0 {
		return out, nil
	}
	s.apply(t, progress.Update{Stage: progress.StagePostprocess, Percent: -1, Message: "Postprocessing"})
	out, err = postprocess.Chain(ctx, t.Postprocessors, out, func(u progress.Update) {
		u.TaskID = t.ID
		if t.UpdateProgress(u) {
			s.publish(t)
		}
	})
	if err != nil {
		return "", err
	}
	logger.Info("postprocessing finished", "dest", out)
	return out, nil
}

// run launches p and blocks until it exits, feeding parsed output lines into
// t's progress record and publishing it at most once per tick.
func (s *Service) run(ctx context.Context, t *task.Task, p *program.Program, stage progress.Stage, logger *slog.Logger) error {
	parse := p.ProgressParser()
	var dirty atomic.Bool

	proc, err := p.Start(ctx, program.StartOptions{
		Terminal:    s.terminal,
		GracePeriod: s.grace,
		Logger:      logger,
		OnLine: func(l program.Line) {
			s.reporter.Log(progress.Log{TaskID: t.ID, Stream: l.Stream, Line: l.Text})
			if parse == nil {
				return
			}
			if u, ok := parse(l.Text, t.ID); ok && t.UpdateProgress(u) {
				dirty.Store(true)
			}
		},
	})
	if err != nil {
		return err
	}
	logger.Debug("pipeline started", "pids", proc.Pids())
	s.apply(t, progress.Update{Stage: stage, Percent: -1})

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	stop := ctx.Done()
	for {
		select {
		case <-proc.Done():
			if dirty.Swap(false) {
				s.publish(t)
			}
			return proc.Wait()
		case <-stop:
			proc.Terminate()
			stop = nil
		case <-ticker.C:
			if dirty.Swap(false) {
				s.publish(t)
			}
		}
	}
}

// output is the file a finished download produced: the path the helper
// announced, else the requested destination or a sibling with another
// extension. Helpers that write nothing recognizable keep the requested path.
func (s *Service) output(t *task.Task) string {
	if d := t.Progress().Dest; d != "" && util.FileExists(d) {
		return d
	}
	if f, err := downloader.SelectDownloadedFile(t.Args.Dest); err == nil {
		return f
	}
	return t.Args.Dest
}

func (s *Service) apply(t *task.Task, u progress.Update) {
	u.TaskID = t.ID
	if t.UpdateProgress(u) {
		s.publish(t)
	}
}

func (s *Service) publish(t *task.Task) {
	s.reporter.Update(t.Update())
}
