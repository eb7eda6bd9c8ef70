package ui

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"mediaq/internal/model"
	"mediaq/internal/task"
	"mediaq/internal/util/format"
)

// PreviewOwner is the owner id the browse view uses for its previews.
const PreviewOwner = "browse"

// Backend is what the browse view needs from the application.
type Backend interface {
	Listings(ctx context.Context, query string) ([]*model.Listing, error)
	Play(l *model.Listing) (*task.Task, error)
	Download(l *model.Listing) ([]*task.Task, error)
	Preview(l *model.Listing, owner string) (*task.Task, error)
	Cancel(id string) error
}

// Options configure the browse view.
type Options struct {
	Provider string
	Query    string
}

type sortMode int

const (
	sortIndex sortMode = iota
	sortTitle
	sortType
	sortModes
)

func (s sortMode) String() string {
	switch s {
	case sortTitle:
		return "title"
	case sortType:
		return "type"
	default:
		return "index"
	}
}

type focus int

const (
	focusTable focus = iota
	focusFilter
	focusTasks
)

const maxTaskRows = 6

type Model struct {
	ctx      context.Context
	backend  Backend
	reporter *Reporter
	opts     Options

	listings []*model.Listing
	visible  []*model.Listing
	sort     sortMode
	focus    focus
	loading  bool

	table   table.Model
	filter  textinput.Model
	spinner spinner.Model

	tasks      map[string]*taskRow
	taskOrder  []string
	taskCursor int

	status    string
	statusErr bool

	width, height int
	styles        Styles
}

func NewModel(ctx context.Context, b Backend, r *Reporter, opts Options) Model {
	sty := defaultStyles()

	tbl := table.New(
		table.WithColumns(columns(80)),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	ts := table.DefaultStyles()
	ts.Header = ts.Header.Bold(true)
	ts.Selected = sty.Selected
	tbl.SetStyles(ts)

	ti := textinput.New()
	ti.Prompt = "/"
	ti.Placeholder = "filter"
	ti.CharLimit = 128

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = sty.Spinner

	return Model{
		ctx:      ctx,
		backend:  b,
		reporter: r,
		opts:     opts,
		loading:  true,
		table:    tbl,
		filter:   ti,
		spinner:  sp,
		tasks:    map[string]*taskRow{},
		styles:   sty,
	}
}

func columns(width int) []table.Column {
	title := max(width-38, 20)
	return []table.Column{
		{Title: "#", Width: 4},
		{Title: "Title", Width: title},
		{Title: "Type", Width: 12},
		{Title: "Length", Width: 9},
		{Title: "Src", Width: 4},
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.load(), m.reporter.listen(), m.spinner.Tick)
}

func (m Model) load() tea.Cmd {
	ctx, b, query := m.ctx, m.backend, m.opts.Query
	return func() tea.Msg {
		ls, err := b.Listings(ctx, query)
		return listingsMsg{Listings: ls, Err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetColumns(columns(msg.Width))
		m.table.SetWidth(msg.Width)
		m.table.SetHeight(max(msg.Height-maxTaskRows*2-8, 5))
		barWidth := min(max(msg.Width-60, 10), 40)
		for _, r := range m.tasks {
			r.bar.Width = barWidth
		}
		return m, nil

	case listingsMsg:
		m.loading = false
		if msg.Err != nil {
			m.setError(msg.Err)
			return m, nil
		}
		m.listings = msg.Listings
		m.refresh()
		m.setStatus(fmt.Sprintf("%d listings", len(m.listings)))
		return m, nil

	case tasksSubmittedMsg:
		if msg.Err != nil {
			m.setError(fmt.Errorf("%s: %w", msg.Action, msg.Err))
		}
		for _, t := range msg.Tasks {
			r := m.row(t.ID)
			r.title, r.kind = t.Title, t.Kind
		}
		if n := len(msg.Tasks); n > 0 && msg.Err == nil {
			m.setStatus(fmt.Sprintf("queued %d %s task(s)", n, msg.Action))
		}
		return m, nil

	case taskUpdateMsg:
		m.row(msg.U.TaskID).apply(msg.U)
		return m, m.reporter.listen()

	case taskLogMsg:
		m.row(msg.L.TaskID).log(msg.L.Line)
		return m, m.reporter.listen()

	case taskResultMsg:
		m.row(msg.R.TaskID).finish(msg.R)
		return m, m.reporter.listen()

	case cancelledMsg:
		if msg.Err != nil {
			m.setError(fmt.Errorf("cancel: %w", msg.Err))
		}
		return m, nil

	case quitMsg:
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.focus == focusFilter {
		switch msg.String() {
		case "esc":
			m.filter.SetValue("")
			fallthrough
		case "enter":
			m.filter.Blur()
			m.focus = focusTable
			m.table.Focus()
			m.refresh()
			return m, nil
		case "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.refresh()
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "/":
		m.focus = focusFilter
		m.table.Blur()
		return m, m.filter.Focus()
	case "s":
		m.sort = (m.sort + 1) % sortModes
		m.refresh()
		m.setStatus("sort: " + m.sort.String())
		return m, nil
	case "tab":
		if m.focus == focusTasks {
			m.focus = focusTable
			m.table.Focus()
		} else {
			m.focus = focusTasks
			m.table.Blur()
		}
		return m, nil
	case "enter":
		return m, m.submit("play")
	case "d":
		return m, m.submit("download")
	case "p":
		return m, m.submit("preview")
	case "x":
		return m, m.cancelSelected()
	}

	if m.focus == focusTasks {
		switch msg.String() {
		case "up", "k":
			m.taskCursor = max(m.taskCursor-1, 0)
		case "down", "j":
			m.taskCursor = min(m.taskCursor+1, max(len(m.taskOrder)-1, 0))
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) submit(action string) tea.Cmd {
	l := m.selectedListing()
	if l == nil {
		return nil
	}
	b := m.backend
	return func() tea.Msg {
		var (
			tasks []*task.Task
			err   error
		)
		switch action {
		case "download":
			tasks, err = b.Download(l)
		default:
			var t *task.Task
			if action == "preview" {
				t, err = b.Preview(l, PreviewOwner)
			} else {
				t, err = b.Play(l)
			}
			if t != nil {
				tasks = append(tasks, t)
			}
		}
		return tasksSubmittedMsg{Action: action, Tasks: tasks, Err: err}
	}
}

func (m Model) cancelSelected() tea.Cmd {
	r := m.selectedTask()
	if r == nil || r.done {
		return nil
	}
	b, id := m.backend, r.id
	return func() tea.Msg {
		return cancelledMsg{ID: id, Err: b.Cancel(id)}
	}
}

func (m *Model) row(id string) *taskRow {
	if r, ok := m.tasks[id]; ok {
		return r
	}
	r := newTaskRow(id)
	if m.width > 0 {
		r.bar.Width = min(max(m.width-60, 10), 40)
	}
	m.tasks[id] = r
	m.taskOrder = append(m.taskOrder, id)
	return r
}

// selectedTask is the task under the cursor in the task pane, or the most
// recent one while the listing table has focus.
func (m Model) selectedTask() *taskRow {
	if len(m.taskOrder) == 0 {
		return nil
	}
	i := len(m.taskOrder) - 1
	if m.focus == focusTasks {
		i = min(m.taskCursor, i)
	}
	return m.tasks[m.taskOrder[i]]
}

func (m Model) selectedListing() *model.Listing {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.visible) {
		return nil
	}
	return m.visible[i]
}

// refresh recomputes the visible listings from filter and sort order and
// keeps the cursor on the previously selected listing when it is still shown.
func (m *Model) refresh() {
	prev := m.selectedListing()

	q := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	visible := make([]*model.Listing, 0, len(m.listings))
	for _, l := range m.listings {
		if matches(l, q) {
			visible = append(visible, l)
		}
	}
	m.visible = visible
	switch m.sort {
	case sortTitle:
		slices.SortStableFunc(m.visible, func(a, b *model.Listing) int {
			if c := cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title)); c != 0 {
				return c
			}
			return cmp.Compare(a.Index, b.Index)
		})
	case sortType:
		slices.SortStableFunc(m.visible, func(a, b *model.Listing) int {
			if c := cmp.Compare(typeLabel(a), typeLabel(b)); c != 0 {
				return c
			}
			return cmp.Compare(a.Index, b.Index)
		})
	default:
		slices.SortStableFunc(m.visible, func(a, b *model.Listing) int { return cmp.Compare(a.Index, b.Index) })
	}

	rows := make([]table.Row, 0, len(m.visible))
	cursor := 0
	for i, l := range m.visible {
		if l == prev {
			cursor = i
		}
		length := ""
		if l.Duration > 0 {
			length = format.Offset(l.Duration)
		}
		rows = append(rows, table.Row{
			strconv.Itoa(l.Index),
			l.Title,
			typeLabel(l),
			length,
			strconv.Itoa(len(l.Sources)),
		})
	}
	m.table.SetRows(rows)
	m.table.SetCursor(cursor)
}

func matches(l *model.Listing, q string) bool {
	if q == "" || strings.Contains(strings.ToLower(l.Title), q) {
		return true
	}
	for _, v := range l.Meta {
		if strings.Contains(strings.ToLower(v), q) {
			return true
		}
	}
	return false
}

func typeLabel(l *model.Listing) string {
	return strings.Join(l.MediaTypes(), ",")
}

func (m *Model) setStatus(s string) {
	m.status, m.statusErr = s, false
}

func (m *Model) setError(err error) {
	m.status, m.statusErr = err.Error(), true
}
