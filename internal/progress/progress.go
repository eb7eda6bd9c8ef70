// Package progress carries task lifecycle and progress events from the task
// core to whoever renders them (TUI, plain progress bars, logs).
package progress

import "time"

// Stage identifies where a task currently is.
type Stage string

const (
	StageQueued      Stage = "queued"
	StageStarting    Stage = "starting"
	StagePlaying     Stage = "playing"
	StageDownloading Stage = "downloading"
	StagePostprocess Stage = "postprocessing"
	StageEncoding    Stage = "encoding"
	StageCompleted   Stage = "completed"
	StageCancelled   Stage = "cancelled"
	StageError       Stage = "error"
)

// Final reports whether no further updates follow this stage.
func (s Stage) Final() bool {
	return s == StageCompleted || s == StageCancelled || s == StageError
}

// LogStream indicates which stream produced a log line.
type LogStream int

const (
	StreamStdout LogStream = iota
	StreamStderr
)

// Update conveys progress or stage changes for a task.
// Percent is 0..100 when known and negative when unknown.
type Update struct {
	TaskID  string
	Stage   Stage
	Percent float64

	ETA     *time.Duration
	Bytes   *int64  // total size when known
	Speed   *string // e.g. "2.5MiB/s" or "1.2x"
	Dest    string  // destination path once the tool announces it
	Message string
}

// Log is a raw output line associated with a task.
type Log struct {
	TaskID string
	Stream LogStream
	Line   string
}

// Result is emitted exactly once per task when it reaches a terminal state.
type Result struct {
	TaskID     string
	OutputPath string
	Bytes      int64
	Cancelled  bool
	Err        error // nil on success and on cancellation
}

// Reporter is implemented by anything observing task progress.
// Update and Log may be dropped by slow observers; Result must not be.
type Reporter interface {
	Update(u Update)
	Log(l Log)
	Result(r Result)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Update(Update) {}
func (Nop) Log(Log)       {}
func (Nop) Result(Result) {}

// Multi fans events out to several reporters in order.
type Multi []Reporter

func (m Multi) Update(u Update) {
	for _, r := range m {
		r.Update(u)
	}
}

func (m Multi) Log(l Log) {
	for _, r := range m {
		r.Log(l)
	}
}

func (m Multi) Result(res Result) {
	for _, r := range m {
		r.Result(res)
	}
}
