package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"mediaq/internal/program"
	"mediaq/internal/progress"
	"mediaq/internal/util"
)

// Executor runs one task to completion and returns its output path. It must
// return promptly once ctx is cancelled.
type Executor interface {
	Execute(ctx context.Context, t *Task) (string, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, t *Task) (string, error)

func (f ExecutorFunc) Execute(ctx context.Context, t *Task) (string, error) {
	return f(ctx, t)
}

// Limits is the number of concurrently running tasks per category.
type Limits map[Kind]int

// DefaultLimits serialize playback and previews and run two downloads at once.
func DefaultLimits() Limits {
	return Limits{KindPlay: 1, KindDownload: 2, KindPreview: 1}
}

// ManagerState is the lifecycle position of a Manager.
type ManagerState int

const (
	ManagerStopped ManagerState = iota
	ManagerStarted
	ManagerStopping
)

func (s ManagerState) String() string {
	switch s {
	case ManagerStarted:
		return "started"
	case ManagerStopping:
		return "stopping"
	default:
		return "stopped"
	}
}

type queue struct {
	kind    Kind
	pending []*Task // guarded by Manager.mu
	signal  chan struct{}
	sem     *semaphore.Weighted
}

// Manager owns one FIFO queue per category. A dispatcher per queue starts
// tasks in submission order, up to the category's limit; each started task
// runs in its own goroutine. Task failures never stop a dispatcher.
type Manager struct {
	exec       Executor
	limits     Limits
	reporter   progress.Reporter
	logger     *slog.Logger
	historyLen int

	mu       sync.Mutex
	state    ManagerState
	queues   map[Kind]*queue
	running  map[string]*Task
	previews map[string]*Task // owner -> outstanding preview
	history  []*Task
	cancel   context.CancelCauseFunc
	group    *errgroup.Group
	stopped  chan struct{} // closed when the current run has shut down
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLimits overrides per-category concurrency. Non-positive values mean 1.
func WithLimits(l Limits) ManagerOption {
	return func(m *Manager) {
		for k, v := range l {
			m.limits[k] = v
		}
	}
}

// WithReporter attaches an observer for task progress and results.
func WithReporter(r progress.Reporter) ManagerOption {
	return func(m *Manager) {
		m.reporter = r
	}
}

func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithHistory keeps the last n finished tasks for Snapshot.
func WithHistory(n int) ManagerOption {
	return func(m *Manager) {
		m.historyLen = n
	}
}

// NewManager returns a stopped manager that runs tasks with exec.
func NewManager(exec Executor, opts ...ManagerOption) *Manager {
	m := &Manager{
		exec:       exec,
		limits:     DefaultLimits(),
		historyLen: 20,
		running:    map[string]*Task{},
		previews:   map[string]*Task{},
	}
	for _, o := range opts {
		o(m)
	}
	if m.reporter == nil {
		m.reporter = progress.Nop{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// State returns the manager's lifecycle state.
func (m *Manager) State() ManagerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start launches one dispatcher per category. Cancelling ctx stops the
// manager like Stop does: queued tasks are cancelled, running ones are
// cancelled and awaited, and later submissions fail with ErrManagerStopped.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != ManagerStopped {
		return fmt.Errorf("task manager is %s", m.state)
	}
	root, cancel := context.WithCancelCause(ctx)
	group := &errgroup.Group{}
	m.cancel = cancel
	m.group = group
	m.stopped = make(chan struct{})
	m.queues = make(map[Kind]*queue, len(Kinds))
	for _, k := range Kinds {
		q := &queue{
			kind:   k,
			signal: make(chan struct{}, 1),
			sem:    semaphore.NewWeighted(int64(max(m.limits[k], 1))),
		}
		m.queues[k] = q
		group.Go(func() error {
			m.dispatch(root, q)
			return nil
		})
	}
	context.AfterFunc(root, func() { m.shutdown(group) })
	m.state = ManagerStarted
	m.logger.Debug("task manager started", "limits", fmt.Sprint(m.limits))
	return nil
}

// Stop cancels every queued and running task and waits for them to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	group, stopped := m.group, m.stopped
	state := m.state
	m.mu.Unlock()
	if state == ManagerStopped {
		return
	}
	m.shutdown(group)
	<-stopped
}

// shutdown stops the run that owns group. Only the first call per run does
// anything; it returns once every dispatcher and task has exited.
func (m *Manager) shutdown(group *errgroup.Group) {
	m.mu.Lock()
	if m.state != ManagerStarted || m.group != group {
		m.mu.Unlock()
		return
	}
	m.state = ManagerStopping
	var queued []*Task
	for _, k := range Kinds {
		q := m.queues[k]
		queued = append(queued, q.pending...)
		q.pending = nil
	}
	clear(m.previews)
	cancel, stopped := m.cancel, m.stopped
	m.mu.Unlock()

	for _, t := range queued {
		m.finishTask(t, Result{State: StateCancelled, Err: ErrCancelled})
	}
	cancel(ErrCancelled)
	_ = group.Wait()

	m.mu.Lock()
	m.state = ManagerStopped
	m.mu.Unlock()
	close(stopped)
	m.logger.Debug("task manager stopped")
}

// Play enqueues t on the play queue.
func (m *Manager) Play(t *Task) error {
	return m.submit(KindPlay, t)
}

// Download enqueues t on the download queue.
func (m *Manager) Download(t *Task) error {
	return m.submit(KindDownload, t)
}

// Preview enqueues t as owner's preview, cancelling owner's previous preview
// whether it is still queued or already running.
func (m *Manager) Preview(t *Task, owner string) error {
	t.Args.Owner = owner
	m.mu.Lock()
	if m.state != ManagerStarted {
		m.mu.Unlock()
		return ErrManagerStopped
	}
	prev := m.previews[owner]
	prevQueued := prev != nil && m.removePendingLocked(prev.ID) != nil
	m.previews[owner] = t
	m.enqueueLocked(KindPreview, t)
	m.mu.Unlock()

	if prev != nil {
		m.cancelTask(prev, prevQueued)
	}
	m.reporter.Update(t.Update())
	return nil
}

// CancelPreview cancels owner's outstanding preview, if any.
func (m *Manager) CancelPreview(owner string) {
	m.mu.Lock()
	prev := m.previews[owner]
	delete(m.previews, owner)
	queued := prev != nil && m.removePendingLocked(prev.ID) != nil
	m.mu.Unlock()
	if prev != nil {
		m.cancelTask(prev, queued)
	}
}

// Cancel stops the task with id. A queued task is dropped without ever
// running; a running task's context is cancelled and it becomes cancelled
// once its executor returns.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	t := m.removePendingLocked(id)
	queued := t != nil
	if t == nil {
		t = m.running[id]
	}
	if t != nil && m.previews[t.Args.Owner] == t {
		delete(m.previews, t.Args.Owner)
	}
	m.mu.Unlock()
	if t == nil {
		return ErrTaskNotFound
	}
	m.cancelTask(t, queued)
	return nil
}

func (m *Manager) submit(kind Kind, t *Task) error {
	m.mu.Lock()
	if m.state != ManagerStarted {
		m.mu.Unlock()
		return ErrManagerStopped
	}
	m.enqueueLocked(kind, t)
	m.mu.Unlock()
	m.reporter.Update(t.Update())
	return nil
}

func (m *Manager) enqueueLocked(kind Kind, t *Task) {
	q := m.queues[kind]
	q.pending = append(q.pending, t)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	m.logger.Debug("task queued", "task", t.ID, "kind", kind, "provider", t.Provider, "title", t.Title)
}

func (m *Manager) removePendingLocked(id string) *Task {
	for _, q := range m.queues {
		for i, t := range q.pending {
			if t.ID == id {
				q.pending = slices.Delete(q.pending, i, i+1)
				return t
			}
		}
	}
	return nil
}

func (m *Manager) cancelTask(t *Task, queued bool) {
	if queued {
		m.finishTask(t, Result{State: StateCancelled, Err: ErrCancelled})
		return
	}
	if t.requestCancel(ErrCancelled) {
		m.logger.Info("cancelling task", "task", t.ID, "title", t.Title)
	}
}

// dispatch starts q's tasks in order until ctx is done. A slot is taken
// before the next task is popped, so a task never starts ahead of one
// submitted earlier.
func (m *Manager) dispatch(ctx context.Context, q *queue) {
	for {
		if err := q.sem.Acquire(ctx, 1); err != nil {
			return
		}
		t, tctx := m.next(ctx, q)
		if t == nil {
			q.sem.Release(1)
			return
		}
		m.group.Go(func() error {
			defer q.sem.Release(1)
			m.run(tctx, t)
			return nil
		})
	}
}

// next blocks until q has a task, then marks it running.
func (m *Manager) next(ctx context.Context, q *queue) (*Task, context.Context) {
	for {
		m.mu.Lock()
		for len(q.pending) > 0 && ctx.Err() == nil {
			t := q.pending[0]
			q.pending = q.pending[1:]
			tctx, cancel := context.WithCancelCause(ctx)
			if !t.markRunning(cancel) {
				cancel(nil)
				continue
			}
			m.running[t.ID] = t
			m.mu.Unlock()
			return t, tctx
		}
		m.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return nil, nil
		}
	}
}

func (m *Manager) run(ctx context.Context, t *Task) {
	m.logger.Info("task started", "task", t.ID, "kind", t.Kind, "provider", t.Provider, "title", t.Title)
	m.reporter.Update(t.Update())

	dest, err := m.execute(ctx, t)

	r := Result{Dest: dest}
	switch {
	case err == nil:
		r.State = StateSucceeded
	case ctx.Err() != nil:
		r.State = StateCancelled
		r.Err = ErrCancelled
	default:
		r.State = StateFailed
		r.Err = err
		var ee *program.ExitError
		if errors.As(err, &ee) {
			r.ExitCode = ee.Code
		}
	}

	m.mu.Lock()
	delete(m.running, t.ID)
	if m.previews[t.Args.Owner] == t {
		delete(m.previews, t.Args.Owner)
	}
	m.mu.Unlock()

	m.finishTask(t, r)
}

// execute shields the dispatcher from executor panics.
func (m *Manager) execute(ctx context.Context, t *Task) (dest string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("executor panic: %v", p)
		}
	}()
	return m.exec.Execute(ctx, t)
}

func (m *Manager) finishTask(t *Task, r Result) {
	if !t.finish(r) {
		return
	}
	m.mu.Lock()
	if m.historyLen > 0 {
		m.history = append(m.history, t)
		if len(m.history) > m.historyLen {
			m.history = slices.Delete(m.history, 0, len(m.history)-m.historyLen)
		}
	}
	m.mu.Unlock()

	attrs := []any{"task", t.ID, "kind", t.Kind, "provider", t.Provider, "title", t.Title, "state", r.State}
	switch r.State {
	case StateFailed:
		m.logger.Error("task failed", append(attrs, "err", r.Err)...)
	default:
		m.logger.Info("task finished", append(attrs, "dest", r.Dest)...)
	}

	m.reporter.Update(t.Update())
	res := progress.Result{
		TaskID:     t.ID,
		OutputPath: r.Dest,
		Cancelled:  r.State == StateCancelled,
	}
	if r.State == StateFailed {
		res.Err = r.Err
	}
	if r.State == StateSucceeded && r.Dest != "" {
		res.Bytes = util.FileSize(r.Dest)
	}
	m.reporter.Result(res)
}

// Snapshot is a consistent view of the manager's tasks.
type Snapshot struct {
	Running []Info
	Queued  []Info
	History []Info // oldest first
}

// Snapshot returns copies of the running, queued and recently finished tasks.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	running := make([]*Task, 0, len(m.running))
	for _, t := range m.running {
		running = append(running, t)
	}
	var queued []*Task
	for _, k := range Kinds {
		if q := m.queues[k]; q != nil {
			queued = append(queued, q.pending...)
		}
	}
	history := slices.Clone(m.history)
	m.mu.Unlock()

	var s Snapshot
	for _, t := range running {
		s.Running = append(s.Running, t.Info())
	}
	slices.SortFunc(s.Running, func(a, b Info) int { return a.StartedAt.Compare(b.StartedAt) })
	for _, t := range queued {
		s.Queued = append(s.Queued, t.Info())
	}
	for _, t := range history {
		s.History = append(s.History, t.Info())
	}
	return s
}

// Get returns the queued, running or recently finished task with id.
func (m *Manager) Get(id string) (*Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.running[id]; ok {
		return t, true
	}
	for _, q := range m.queues {
		for _, t := range q.pending {
			if t.ID == id {
				return t, true
			}
		}
	}
	for _, t := range m.history {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}
