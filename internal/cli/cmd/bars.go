package cmd

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"mediaq/internal/progress"
	"mediaq/internal/util/format"
)

// barReporter draws one progress bar per task. Bars are created on a task's
// first event; Name sets the label shown in front of it.
type barReporter struct {
	p *mpb.Progress

	mu    sync.Mutex
	tasks map[string]*barState
}

// barState is read by the decorators on mpb's render goroutine, so it has its
// own lock; r.mu must not be taken there.
type barState struct {
	mu     sync.Mutex
	name   string
	status string
	bar    *mpb.Bar
}

func (st *barState) set(name, status string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if name != "" {
		st.name = name
	}
	if status != "" {
		st.status = status
	}
}

func (st *barState) label() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	name := []rune(st.name)
	if len(name) > 30 {
		return string(name[:29]) + "…"
	}
	return st.name
}

func (st *barState) statusText() string {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.status
}

func newBarReporter(ctx context.Context, w io.Writer) *barReporter {
	return &barReporter{
		p:     mpb.NewWithContext(ctx, mpb.WithOutput(w), mpb.WithWidth(40)),
		tasks: map[string]*barState{},
	}
}

// Name labels the bar of task id.
func (r *barReporter) Name(id, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state(id).set(name, "")
}

func (r *barReporter) state(id string) *barState {
	st, ok := r.tasks[id]
	if ok {
		return st
	}
	st = &barState{name: id[:min(8, len(id))], status: string(progress.StageQueued)}
	st.bar = r.p.AddBar(100,
		mpb.PrependDecorators(
			decor.Any(func(decor.Statistics) string { return st.label() }, decor.WC{W: 32, C: decor.DindentRight}),
		),
		mpb.AppendDecorators(
			decor.Percentage(decor.WC{W: 6}),
			decor.Any(func(decor.Statistics) string { return st.statusText() }, decor.WCSyncSpace),
		),
	)
	r.tasks[id] = st
	return st
}

func (r *barReporter) Update(u progress.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state(u.TaskID)
	status := string(u.Stage)
	if u.Bytes != nil {
		status += " " + format.HumanizeBytes(*u.Bytes)
	}
	if u.Speed != nil {
		status += " " + *u.Speed
	}
	if u.ETA != nil {
		status += " ETA " + format.ETA(*u.ETA)
	}
	st.set("", status)
	if u.Percent >= 0 && !u.Stage.Final() {
		st.bar.SetCurrent(int64(min(u.Percent, 99)))
	}
}

func (r *barReporter) Log(progress.Log) {}

func (r *barReporter) Result(res progress.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.state(res.TaskID)
	switch {
	case res.Cancelled:
		st.set("", "cancelled")
		st.bar.Abort(false)
	case res.Err != nil:
		st.set("", "failed")
		st.bar.Abort(false)
	default:
		st.set("", "done")
		st.bar.SetCurrent(100)
	}
}

// Wait blocks until every bar has finished rendering.
func (r *barReporter) Wait() { r.p.Wait() }

// textReporter prints stage changes and results, one line each. It is used
// when stdout is not a terminal.
type textReporter struct {
	w io.Writer

	mu     sync.Mutex
	stages map[string]progress.Stage
	names  map[string]string
}

func newTextReporter(w io.Writer) *textReporter {
	return &textReporter{w: w, stages: map[string]progress.Stage{}, names: map[string]string{}}
}

func (r *textReporter) Name(id, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[id] = name
}

func (r *textReporter) nameOf(id string) string {
	if n := r.names[id]; n != "" {
		return n
	}
	return id
}

func (r *textReporter) Update(u progress.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stages[u.TaskID] == u.Stage || u.Stage.Final() {
		return
	}
	r.stages[u.TaskID] = u.Stage
	fmt.Fprintf(r.w, "%s: %s\n", r.nameOf(u.TaskID), u.Stage)
}

func (r *textReporter) Log(progress.Log) {}

func (r *textReporter) Result(res progress.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := r.nameOf(res.TaskID)
	switch {
	case res.Cancelled:
		fmt.Fprintf(r.w, "%s: cancelled\n", name)
	case res.Err != nil:
		fmt.Fprintf(r.w, "%s: failed: %v\n", name, res.Err)
	case res.OutputPath != "":
		fmt.Fprintf(r.w, "%s: saved %s (%s)\n", name, res.OutputPath, format.HumanizeBytes(res.Bytes))
	default:
		fmt.Fprintf(r.w, "%s: done\n", name)
	}
}

func (r *textReporter) Wait() {}

// namedReporter is a reporter that can label tasks and flush at the end.
type namedReporter interface {
	progress.Reporter
	Name(id, name string)
	Wait()
}
