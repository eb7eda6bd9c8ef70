package util

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// CmdSpec describes a short-lived helper subprocess (metadata queries, ffmpeg, custom hooks).
type CmdSpec struct {
	Path string
	Args []string
	Env  []string // KEY=VALUE appended to the inherited environment
	Dir  string

	StdoutLine    func(string) // called for each stdout line
	StderrLine    func(string) // called for each stderr line
	CaptureStdout bool         // buffer stdout even when StdoutLine is set

	Logger *slog.Logger // command line and failures are logged at debug level
}

// CmdResult contains captured output and exit status.
type CmdResult struct {
	Stdout []byte
	Stderr []byte
	Code   int
	Err    error
}

// CmdRunner runs a CmdSpec. Tests substitute fakes.
type CmdRunner interface {
	Run(ctx context.Context, spec CmdSpec) (CmdResult, error)
}

// CmdRunnerFunc adapts a function to CmdRunner.
type CmdRunnerFunc func(ctx context.Context, spec CmdSpec) (CmdResult, error)

func (f CmdRunnerFunc) Run(ctx context.Context, spec CmdSpec) (CmdResult, error) {
	return f(ctx, spec)
}

type defaultRunner struct{}

// NewDefaultRunner returns a CmdRunner backed by Run.
func NewDefaultRunner() CmdRunner {
	return defaultRunner{}
}

func (defaultRunner) Run(ctx context.Context, spec CmdSpec) (CmdResult, error) {
	return Run(ctx, spec)
}

// maxLine bounds a single scanned line; yt-dlp --dump-json lines easily exceed the
// scanner default.
const maxLine = 1024 * 1024

// Run executes the command and waits for it. Stderr is always captured; stdout is
// captured unless a StdoutLine callback is set without CaptureStdout.
// A non-zero exit returns an error carrying the exit code; CmdResult is filled either way.
func Run(ctx context.Context, spec CmdSpec) (CmdResult, error) {
	var stdoutBuf, stderrBuf bytes.Buffer

	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...)
	cmd.Dir = spec.Dir
	if spec.Env != nil {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	cmd.WaitDelay = 5 * time.Second

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return CmdResult{Code: -1, Err: err}, err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return CmdResult{Code: -1, Err: err}, err
	}

	if spec.Logger != nil {
		spec.Logger.Debug("exec", "cmd", ShellQuote(spec.Path, spec.Args))
	}
	if err := cmd.Start(); err != nil {
		return CmdResult{Code: -1, Err: err}, err
	}

	captureOut := spec.CaptureStdout || spec.StdoutLine == nil
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanLines(stdoutPipe, func(line string) {
			if spec.StdoutLine != nil {
				spec.StdoutLine(line)
			}
			if captureOut {
				stdoutBuf.WriteString(line)
				stdoutBuf.WriteByte('\n')
			}
		})
	}()
	go func() {
		defer wg.Done()
		scanLines(stderrPipe, func(line string) {
			if spec.StderrLine != nil {
				spec.StderrLine(line)
			}
			stderrBuf.WriteString(line)
			stderrBuf.WriteByte('\n')
		})
	}()

	// Pipes must be drained before Wait closes them.
	wg.Wait()
	waitErr := cmd.Wait()

	code := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	res := CmdResult{
		Stdout: stdoutBuf.Bytes(),
		Stderr: stderrBuf.Bytes(),
		Code:   code,
		Err:    waitErr,
	}
	if waitErr != nil {
		if spec.Logger != nil {
			spec.Logger.Debug("exec failed", "cmd", spec.Path, "code", code, "stderr", LastLines(res.Stderr, 5))
		}
		return res, fmt.Errorf("command failed (exit %d): %w", code, waitErr)
	}
	return res, nil
}

func scanLines(r io.Reader, fn func(string)) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)
	for sc.Scan() {
		fn(sc.Text())
	}
	// A scan error (line too long) leaves the rest unread; drain so the child never blocks.
	if sc.Err() != nil {
		_, _ = io.Copy(io.Discard, r)
	}
}

// LastLines returns up to n trailing non-empty lines of b joined by " | ".
func LastLines(b []byte, n int) string {
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	out := make([]string, 0, n)
	for i := len(lines) - 1; i >= 0 && len(out) < n; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			out = append(out, l)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return strings.Join(out, " | ")
}

// ShellQuote returns a printable shell-like command string for logs and
// for programs that take another command line as a single argument.
func ShellQuote(path string, args []string) string {
	b := &strings.Builder{}
	b.WriteString(quote(path))
	for _, a := range args {
		b.WriteByte(' ')
		b.WriteString(quote(a))
	}
	return b.String()
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.ContainsAny(s, " \t\n\"'\\$`(){}[]*&;|<>?!") {
		return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
	}
	return s
}
