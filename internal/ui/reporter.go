package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"mediaq/internal/progress"
)

// Reporter turns task events into tea messages. Final updates and results
// block until the UI takes them; progress and log lines are dropped when the
// UI falls behind. After Close every send is dropped.
type Reporter struct {
	ch   chan tea.Msg
	done chan struct{}
	once sync.Once
}

func NewReporter(buffer int) *Reporter {
	return &Reporter{ch: make(chan tea.Msg, buffer), done: make(chan struct{})}
}

func (r *Reporter) Update(u progress.Update) {
	if u.Stage.Final() {
		r.send(taskUpdateMsg{U: u})
		return
	}
	r.offer(taskUpdateMsg{U: u})
}

func (r *Reporter) Log(l progress.Log) {
	r.offer(taskLogMsg{L: l})
}

func (r *Reporter) Result(res progress.Result) {
	r.send(taskResultMsg{R: res})
}

// Close stops delivery; pending blocked senders return.
func (r *Reporter) Close() {
	r.once.Do(func() { close(r.done) })
}

func (r *Reporter) send(msg tea.Msg) {
	select {
	case r.ch <- msg:
	case <-r.done:
	}
}

func (r *Reporter) offer(msg tea.Msg) {
	select {
	case r.ch <- msg:
	default:
	}
}

// listen waits for the next event.
func (r *Reporter) listen() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-r.ch:
			return msg
		case <-r.done:
			return quitMsg{}
		}
	}
}
