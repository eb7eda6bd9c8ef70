// Package task defines queued units of play, download and preview work and
// the Manager that schedules them.
package task

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"mediaq/internal/model"
	"mediaq/internal/postprocess"
	"mediaq/internal/program"
	"mediaq/internal/progress"
)

var (
	// ErrCancelled is the Result error of a task stopped by the user or by shutdown.
	ErrCancelled = errors.New("task cancelled")
	// ErrTaskNotFound is returned by Manager.Cancel for unknown or finished ids.
	ErrTaskNotFound = errors.New("task not found")
	// ErrManagerStopped is returned when submitting to a manager that is not started.
	ErrManagerStopped = errors.New("task manager is not running")
)

// Kind is the queue category a task belongs to.
type Kind string

const (
	KindPlay     Kind = "play"
	KindDownload Kind = "download"
	KindPreview  Kind = "preview"
)

// Kinds lists every queue category.
var Kinds = []Kind{KindPlay, KindDownload, KindPreview}

// State is a task's lifecycle position. Succeeded, Failed and Cancelled are
// terminal: a task reaches exactly one of them exactly once.
type State int

const (
	StateQueued State = iota
	StateRunning
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsFinished reports whether s is terminal.
func (s State) IsFinished() bool {
	return s >= StateSucceeded
}

// Args are the inputs handed to the pipeline composer.
type Args struct {
	Player      program.Spec
	Helper      string            // explicit helper; takes precedence over HelperRules
	HelperRules model.HelperRules // helper per chosen player
	Downloaders []string          // downloader preference order
	Options     program.Options
	Dest        string // download destination
	Owner       string // preview owner
}

// Progress is the live, display-oriented view of a running task.
type Progress struct {
	Stage   progress.Stage
	Percent float64 // negative when unknown
	Rate    string
	ETA     time.Duration
	Size    int64
	Dest    string
	Message string
}

// Result is what a finished task resolved to.
type Result struct {
	State    State
	Dest     string
	ExitCode int
	Err      error
}

// Task is one queued unit of work. Exported fields are set at creation and
// not modified afterwards; everything else is guarded by mu.
type Task struct {
	ID             string
	Kind           Kind
	Provider       string
	Title          string
	Sources        []model.Source
	Args           Args
	Postprocessors []postprocess.Step
	CreatedAt      time.Time

	mu         sync.Mutex
	state      State
	progress   Progress
	result     Result
	startedAt  time.Time
	finishedAt time.Time
	cancel     context.CancelCauseFunc
	done       chan struct{}
}

// New returns a queued task with a fresh time-ordered id.
func New(kind Kind, l *model.Listing, sources []model.Source, args Args) *Task {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	t := &Task{
		ID:        id.String(),
		Kind:      kind,
		Sources:   sources,
		Args:      args,
		CreatedAt: time.Now(),
		progress:  Progress{Stage: progress.StageQueued, Percent: -1},
		done:      make(chan struct{}),
	}
	if l != nil {
		t.Provider = l.Provider
		t.Title = l.Title
	}
	return t
}

// Locators returns the locators of the task's sources.
func (t *Task) Locators() []string {
	out := make([]string, 0, len(t.Sources))
	for _, s := range t.Sources {
		out = append(out, s.Locator)
	}
	return out
}

// MediaType is the first source's declared media type.
func (t *Task) MediaType() string {
	for _, s := range t.Sources {
		if s.MediaType != "" {
			return s.MediaType
		}
	}
	return ""
}

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Task) Progress() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// Done is closed once the task reached a terminal state.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Result returns the final result and whether the task has finished.
func (t *Task) Result() (Result, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.state.IsFinished()
}

// UpdateProgress folds u into the progress record and reports whether the
// displayed values changed. Updates after the task finished are ignored.
func (t *Task) UpdateProgress(u progress.Update) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.IsFinished() {
		return false
	}
	p := t.progress
	if u.Stage != "" {
		p.Stage = u.Stage
	}
	if u.Percent >= 0 {
		p.Percent = u.Percent
	}
	if u.Speed != nil {
		p.Rate = *u.Speed
	}
	if u.ETA != nil {
		p.ETA = *u.ETA
	}
	if u.Bytes != nil {
		p.Size = *u.Bytes
	}
	if u.Dest != "" {
		p.Dest = u.Dest
	}
	if u.Message != "" {
		p.Message = u.Message
	}
	changed := p != t.progress
	t.progress = p
	return changed
}

// Update renders the current progress record as a reporter event.
func (t *Task) Update() progress.Update {
	p := t.Progress()
	u := progress.Update{
		TaskID:  t.ID,
		Stage:   p.Stage,
		Percent: p.Percent,
		Dest:    p.Dest,
		Message: p.Message,
	}
	if p.Rate != "" {
		u.Speed = &p.Rate
	}
	if p.ETA > 0 {
		u.ETA = &p.ETA
	}
	if p.Size > 0 {
		u.Bytes = &p.Size
	}
	return u
}

// Info is an immutable snapshot for observers.
type Info struct {
	ID         string
	Kind       Kind
	Provider   string
	Title      string
	Owner      string
	State      State
	Progress   Progress
	Result     Result
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

func (t *Task) Info() Info {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Info{
		ID:         t.ID,
		Kind:       t.Kind,
		Provider:   t.Provider,
		Title:      t.Title,
		Owner:      t.Args.Owner,
		State:      t.state,
		Progress:   t.progress,
		Result:     t.result,
		CreatedAt:  t.CreatedAt,
		StartedAt:  t.startedAt,
		FinishedAt: t.finishedAt,
	}
}

// markRunning moves a queued task to running. It fails when the task was
// already finished (cancelled while queued).
func (t *Task) markRunning(cancel context.CancelCauseFunc) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateQueued {
		return false
	}
	t.state = StateRunning
	t.cancel = cancel
	t.startedAt = time.Now()
	t.progress.Stage = progress.StageStarting
	return true
}

// finish is the single terminal transition. It reports false, changing
// nothing, when the task already finished.
func (t *Task) finish(r Result) bool {
	t.mu.Lock()
	if t.state.IsFinished() {
		t.mu.Unlock()
		return false
	}
	t.state = r.State
	t.result = r
	t.finishedAt = time.Now()
	switch r.State {
	case StateSucceeded:
		t.progress.Stage = progress.StageCompleted
		t.progress.Percent = 100
		if r.Dest != "" {
			t.progress.Dest = r.Dest
		}
	case StateCancelled:
		t.progress.Stage = progress.StageCancelled
	default:
		t.progress.Stage = progress.StageError
	}
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel(nil)
	}
	close(t.done)
	return true
}

// requestCancel cancels a running task's context. It reports false when the
// task is not running.
func (t *Task) requestCancel(cause error) bool {
	t.mu.Lock()
	cancel := t.cancel
	running := t.state == StateRunning
	t.mu.Unlock()
	if !running || cancel == nil {
		return false
	}
	cancel(cause)
	return true
}
