package program

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Terminal hands out exclusive use of the controlling terminal.
type Terminal interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// TerminalLock is a Terminal that admits one holder at a time. Suspend runs
// after acquisition (e.g. to release a full-screen UI) and Resume before release.
type TerminalLock struct {
	sem *semaphore.Weighted

	mu      sync.Mutex
	suspend func() error
	resume  func() error
}

func NewTerminalLock() *TerminalLock {
	return &TerminalLock{sem: semaphore.NewWeighted(1)}
}

var defaultTerminal = NewTerminalLock()

// DefaultTerminal is the lock used when StartOptions.Terminal is nil.
func DefaultTerminal() *TerminalLock { return defaultTerminal }

// SetHooks installs the suspend/resume pair. Either may be nil.
func (t *TerminalLock) SetHooks(suspend, resume func() error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.suspend, t.resume = suspend, resume
}

func (t *TerminalLock) Acquire(ctx context.Context) (func(), error) {
	if err := t.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	t.mu.Lock()
	suspend, resume := t.suspend, t.resume
	t.mu.Unlock()

	if suspend != nil {
		if err := suspend(); err != nil {
			t.sem.Release(1)
			return nil, err
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			if resume != nil {
				_ = resume()
			}
			t.sem.Release(1)
		})
	}, nil
}
