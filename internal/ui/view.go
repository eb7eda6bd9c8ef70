package ui

import (
	"fmt"
	"strings"

	"mediaq/internal/progress"
	"mediaq/internal/task"
	"mediaq/internal/util/format"
)

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.viewHeader())
	b.WriteString("\n")
	if m.focus == focusFilter || m.filter.Value() != "" {
		b.WriteString(m.filter.View())
		b.WriteString("\n")
	}
	if m.loading {
		b.WriteString(m.styles.Spinner.Render(m.spinner.View()) + " " + m.styles.Faint.Render("loading listings"))
		b.WriteString("\n")
	} else {
		b.WriteString(m.table.View())
		b.WriteString("\n")
	}
	b.WriteString(m.viewTasks())
	b.WriteString(m.viewStatus())
	b.WriteString("\n")
	b.WriteString(m.styles.Faint.Render("/ filter • s sort • enter play • d download • p preview • tab tasks • x cancel • q quit"))
	return b.String()
}

func (m Model) viewHeader() string {
	provider := m.opts.Provider
	if provider == "" {
		provider = "urls"
	}
	title := m.styles.Title.Render("mediaq") + " " + m.styles.Header.Render(provider)
	if m.opts.Query != "" {
		title += " " + m.styles.Faint.Render(truncate(m.opts.Query, 40))
	}
	sub := m.styles.Subtitle.Render(fmt.Sprintf("%d/%d shown • sort: %s", len(m.visible), len(m.listings), m.sort))
	return title + "\n" + sub
}

func (m Model) viewTasks() string {
	if len(m.taskOrder) == 0 {
		return ""
	}
	running := 0
	for _, r := range m.tasks {
		if !r.done && r.stage != progress.StageQueued {
			running++
		}
	}
	var b strings.Builder
	b.WriteString(m.styles.Header.Render(fmt.Sprintf("Tasks (%d running, %d total)", running, len(m.taskOrder))))
	b.WriteString("\n")

	// Show a window of rows that keeps the cursor visible.
	start := max(len(m.taskOrder)-maxTaskRows, 0)
	if m.focus == focusTasks && m.taskCursor < start {
		start = m.taskCursor
	}
	end := min(start+maxTaskRows, len(m.taskOrder))
	for i := start; i < end; i++ {
		selected := m.focus == focusTasks && i == m.taskCursor
		b.WriteString(m.viewTask(m.tasks[m.taskOrder[i]], selected))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) viewTask(r *taskRow, selected bool) string {
	stageStyle := m.styles.TaskInfo
	switch r.stage {
	case progress.StageQueued:
		stageStyle = m.styles.StageQueue
	case progress.StagePlaying:
		stageStyle = m.styles.StagePlay
	case progress.StageDownloading:
		stageStyle = m.styles.StageDL
	case progress.StagePostprocess, progress.StageEncoding:
		stageStyle = m.styles.StagePost
	case progress.StageCompleted:
		stageStyle = m.styles.Success
	case progress.StageCancelled:
		stageStyle = m.styles.Warning
	case progress.StageError:
		stageStyle = m.styles.Error
	}

	marker := "  "
	if selected {
		marker = m.styles.Cursor.Render("> ")
	}
	title := r.title
	if title == "" {
		title = r.id
	}
	left := m.styles.TaskTitle.Render(truncate(title, 40))
	kind := m.styles.Faint.Render(string(r.kind))
	stage := stageStyle.Render(string(r.stage))

	var right string
	switch {
	case r.done && r.cancelled:
		right = m.styles.Warning.Render("- cancelled")
	case r.done && r.err != nil:
		right = m.styles.Error.Render("✗ " + truncate(r.status, 60))
	case r.done:
		right = m.styles.Success.Render("✓ done")
		if r.dest != "" {
			right += " " + m.styles.Faint.Render(truncate(r.dest, 50))
		}
	case r.percent >= 0 && r.percent <= 100:
		right = fmt.Sprintf("%s %5.1f%%", r.bar.ViewAs(r.percent/100.0), r.percent)
		right += " " + m.styles.TaskInfo.Render(r.details())
	default:
		right = m.styles.Spinner.Render(m.spinner.View()) + " " + m.styles.Faint.Render(r.status)
		if d := r.details(); d != "" {
			right += " " + m.styles.TaskInfo.Render(d)
		}
	}

	line := fmt.Sprintf("%s%s %s  %s  %s", marker, left, kind, stage, right)
	if selected {
		if last := r.lastLog(); last != "" {
			line += "\n    " + m.styles.Faint.Render(truncate(last, max(m.width-6, 40)))
		}
	}
	return line
}

func (r *taskRow) details() string {
	var parts []string
	if r.bytes > 0 {
		parts = append(parts, format.HumanizeBytes(r.bytes))
	}
	if r.rate != "" {
		parts = append(parts, r.rate)
	}
	if r.eta > 0 && r.kind == task.KindDownload {
		parts = append(parts, "ETA "+format.ETA(r.eta))
	}
	return strings.Join(parts, " • ")
}

func (m Model) viewStatus() string {
	if m.status == "" {
		return ""
	}
	if m.statusErr {
		return m.styles.Error.Render(m.status)
	}
	return m.styles.Faint.Render(m.status)
}

func truncate(s string, n int) string {
	rs := []rune(s)
	if n <= 0 || len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}
