package ui

import (
	"time"

	bubblesprogress "github.com/charmbracelet/bubbles/progress"

	"mediaq/internal/progress"
	"mediaq/internal/task"
)

const maxLogLines = 200

type taskRow struct {
	id    string
	title string
	kind  task.Kind

	stage     progress.Stage
	status    string
	percent   float64 // -1 means unknown
	rate      string
	eta       time.Duration
	bytes     int64
	dest      string
	err       error
	done      bool
	cancelled bool

	bar  bubblesprogress.Model
	logs []string
}

func newTaskRow(id string) *taskRow {
	return &taskRow{
		id:      id,
		stage:   progress.StageQueued,
		status:  "Queued",
		percent: -1,
		bar: bubblesprogress.New(
			bubblesprogress.WithDefaultGradient(),
			bubblesprogress.WithWidth(30),
		),
	}
}

func (r *taskRow) apply(u progress.Update) {
	if u.Stage != "" {
		r.stage = u.Stage
	}
	r.percent = u.Percent
	if u.Message != "" {
		r.status = u.Message
	}
	if u.Speed != nil {
		r.rate = *u.Speed
	}
	if u.ETA != nil {
		r.eta = *u.ETA
	}
	if u.Bytes != nil {
		r.bytes = *u.Bytes
	}
	if u.Dest != "" {
		r.dest = u.Dest
	}
}

func (r *taskRow) finish(res progress.Result) {
	r.done = true
	r.err = res.Err
	r.cancelled = res.Cancelled
	switch {
	case res.Cancelled:
		r.stage = progress.StageCancelled
		r.status = "Cancelled"
		r.percent = -1
	case res.Err != nil:
		r.stage = progress.StageError
		r.status = res.Err.Error()
		r.percent = -1
	default:
		r.stage = progress.StageCompleted
		r.status = "Completed"
		if res.OutputPath != "" {
			r.dest = res.OutputPath
			r.percent = 100
		}
		if res.Bytes > 0 {
			r.bytes = res.Bytes
		}
	}
}

func (r *taskRow) log(line string) {
	if len(r.logs) >= maxLogLines {
		r.logs = r.logs[1:]
	}
	r.logs = append(r.logs, line)
}

func (r *taskRow) lastLog() string {
	if len(r.logs) == 0 {
		return ""
	}
	return r.logs[len(r.logs)-1]
}
