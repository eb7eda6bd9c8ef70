package program

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"mediaq/internal/progress"
	"mediaq/internal/util"
)

// DefaultGracePeriod is how long a terminated process gets between SIGTERM and SIGKILL.
const DefaultGracePeriod = 3 * time.Second

// Line is one line of captured output.
type Line struct {
	Program string
	Stream  progress.LogStream
	Text    string
}

// StartOptions tune how a pipeline is launched.
type StartOptions struct {
	// OnLine receives captured output lines. It runs on exec's copy
	// goroutines and must not block.
	OnLine func(Line)
	// Terminal serializes foreground programs. Nil uses a process-wide lock.
	Terminal    Terminal
	GracePeriod time.Duration
	Logger      *slog.Logger
}

// Process is a running pipeline. Only the last stage is observed: its exit
// status is the pipeline's. Upstream stages are terminated once it exits.
type Process struct {
	name   string
	cmds   []*exec.Cmd
	cancel context.CancelFunc
	done   chan struct{}
	err    error

	mu         sync.Mutex
	terminated bool
	writers    []*lineWriter
	stderrTail *tailBuffer
	release    func()
}

// Start launches every stage of the pipeline ending at p. Launch failures
// return a *SpawnError after any already-started stage has been reaped.
func (p *Program) Start(ctx context.Context, opts StartOptions) (*Process, error) {
	grace := opts.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	stages := p.stages()
	last := len(stages) - 1
	foreground := stages[last].Foreground()

	proc := &Process{
		name:       p.Name(),
		done:       make(chan struct{}),
		stderrTail: newTailBuffer(5),
	}

	if foreground {
		term := opts.Terminal
		if term == nil {
			term = defaultTerminal
		}
		release, err := term.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire terminal for %s: %w", p.Name(), err)
		}
		proc.release = release
	}

	pctx, cancel := context.WithCancel(ctx)
	proc.cancel = cancel

	var pipes []*os.File
	closePipes := func() {
		for _, f := range pipes {
			_ = f.Close()
		}
		pipes = nil
	}

	for i, st := range stages {
		argv := st.Argv()
		cmd := exec.CommandContext(pctx, argv[0], argv[1:]...)
		cmd.Cancel = func() error { return signalGroup(cmd, syscall.SIGTERM) }
		cmd.WaitDelay = grace
		// a terminal-attached stage stays in the foreground group
		if i < last || !foreground {
			setGroup(cmd)
		}

		switch {
		case i < last:
			cmd.Stderr = proc.newWriter(st.Name(), progress.StreamStderr, opts.OnLine, false)
		case foreground:
			cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
		case last == 0:
			cmd.Stdout = proc.newWriter(st.Name(), progress.StreamStdout, opts.OnLine, false)
			cmd.Stderr = proc.newWriter(st.Name(), progress.StreamStderr, opts.OnLine, true)
		default:
			// Downstream of a pipe: nothing worth capturing; nil is the null device.
		}
		proc.cmds = append(proc.cmds, cmd)
	}

	for i := 0; i < last; i++ {
		r, w, err := os.Pipe()
		if err != nil {
			closePipes()
			proc.abort()
			return nil, &SpawnError{Program: stages[i].Name(), Path: stages[i].Path(), Err: err}
		}
		pipes = append(pipes, r, w)
		proc.cmds[i].Stdout = w
		proc.cmds[i+1].Stdin = r
	}

	for i, cmd := range proc.cmds {
		logger.Debug("spawn", "program", stages[i].Name(), "argv", util.ShellQuote(cmd.Path, cmd.Args[1:]))
		if err := cmd.Start(); err != nil {
			closePipes()
			proc.abort()
			return nil, &SpawnError{Program: stages[i].Name(), Path: stages[i].Path(), Err: err}
		}
	}
	// Children hold their own copies of the pipe ends.
	closePipes()

	go proc.wait(pctx)
	return proc, nil
}

func (proc *Process) newWriter(name string, stream progress.LogStream, fn func(Line), tail bool) *lineWriter {
	w := &lineWriter{fn: func(s string) {
		if tail {
			proc.stderrTail.add(s)
		}
		if fn != nil {
			fn(Line{Program: name, Stream: stream, Text: s})
		}
	}}
	proc.writers = append(proc.writers, w)
	return w
}

// abort reaps any started stage after a failed launch.
func (proc *Process) abort() {
	proc.cancel()
	for _, cmd := range proc.cmds {
		if cmd.Process != nil {
			_ = cmd.Wait()
		}
	}
	if proc.release != nil {
		proc.release()
	}
}

func (proc *Process) wait(ctx context.Context) {
	observed := proc.cmds[len(proc.cmds)-1]
	err := observed.Wait()
	// Checked before our own cancel below: non-nil means Terminate or a
	// cancelled parent context.
	stopped := ctx.Err() != nil
	proc.cancel()
	for _, cmd := range proc.cmds[:len(proc.cmds)-1] {
		_ = cmd.Wait()
	}
	if stopped {
		// descendants that outlived SIGTERM
		for _, cmd := range proc.cmds {
			_ = signalGroup(cmd, syscall.SIGKILL)
		}
	}
	for _, w := range proc.writers {
		w.Flush()
	}
	if proc.release != nil {
		proc.release()
	}

	proc.mu.Lock()
	terminated := proc.terminated
	proc.mu.Unlock()

	switch {
	case err == nil:
	case terminated || stopped:
		err = fmt.Errorf("%s: %w", proc.name, ErrTerminated)
	default:
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			err = &ExitError{Program: proc.name, Code: ee.ExitCode(), Stderr: proc.stderrTail.String()}
		} else {
			err = fmt.Errorf("%s: %w", proc.name, err)
		}
	}
	proc.err = err
	close(proc.done)
}

// Wait blocks until the observed stage exits and returns nil, *ExitError or
// an error wrapping ErrTerminated.
func (proc *Process) Wait() error {
	<-proc.done
	return proc.err
}

// Done is closed once Wait would return.
func (proc *Process) Done() <-chan struct{} {
	return proc.done
}

// Terminate sends SIGTERM to every stage (SIGKILL after the grace period).
// It is safe to call more than once; the signal is only sent once.
func (proc *Process) Terminate() {
	proc.mu.Lock()
	if proc.terminated {
		proc.mu.Unlock()
		return
	}
	proc.terminated = true
	proc.mu.Unlock()
	proc.cancel()
}

// Pid returns the OS process id of the observed stage.
func (proc *Process) Pid() int {
	if c := proc.cmds[len(proc.cmds)-1]; c.Process != nil {
		return c.Process.Pid
	}
	return 0
}

// Pids returns the OS process ids, upstream first.
func (proc *Process) Pids() []int {
	out := make([]int, 0, len(proc.cmds))
	for _, c := range proc.cmds {
		if c.Process != nil {
			out = append(out, c.Process.Pid)
		}
	}
	return out
}

// lineWriter splits written bytes into lines on \n or \r (progress meters
// redraw with carriage returns) and hands each non-empty line to fn.
type lineWriter struct {
	mu  sync.Mutex
	buf []byte
	fn  func(string)
}

const maxLineBytes = 64 * 1024

func (w *lineWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, c := range b {
		if c == '\n' || c == '\r' {
			w.emit()
			continue
		}
		if len(w.buf) < maxLineBytes {
			w.buf = append(w.buf, c)
		}
	}
	return len(b), nil
}

func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.emit()
}

func (w *lineWriter) emit() {
	if len(w.buf) == 0 {
		return
	}
	s := string(w.buf)
	w.buf = w.buf[:0]
	w.fn(s)
}

type tailBuffer struct {
	mu    sync.Mutex
	n     int
	lines []string
}

func newTailBuffer(n int) *tailBuffer {
	return &tailBuffer{n: n}
}

func (t *tailBuffer) add(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, s)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, " | ")
}
