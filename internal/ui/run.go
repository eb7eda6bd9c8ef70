package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"mediaq/internal/program"
)

// Run shows the browse view until the user quits. Foreground programs take
// the terminal through term, which suspends the view while they run. The
// reporter is closed on return.
func Run(ctx context.Context, b Backend, r *Reporter, term *program.TerminalLock, opts Options) error {
	defer r.Close()

	m := NewModel(ctx, b, r, opts)
	prog := tea.NewProgram(m, tea.WithContext(ctx), tea.WithAltScreen())
	if term != nil {
		term.SetHooks(prog.ReleaseTerminal, prog.RestoreTerminal)
		defer term.SetHooks(nil, nil)
	}

	final, err := prog.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	if fm, ok := final.(Model); ok {
		return fm.failures()
	}
	return nil
}

// failures summarizes the tasks that ended in error.
func (m Model) failures() error {
	var failed []string
	for _, id := range m.taskOrder {
		r := m.tasks[id]
		if r == nil || !r.done || r.err == nil {
			continue
		}
		name := r.title
		if name == "" {
			name = r.id
		}
		failed = append(failed, fmt.Sprintf("- %s: %s", name, r.err))
	}
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("%d task(s) failed:\n%s", len(failed), strings.Join(failed, "\n"))
}
