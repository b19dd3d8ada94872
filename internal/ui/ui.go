package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/bundlex/internal/host"
)

// logSize is the number of recent events kept on the dashboard.
const logSize = 8

// ViewState represents the current view in the TUI.
type ViewState int

const (
	DashboardView ViewState = iota
	DetailView
)

// Model represents the TUI application state.
type Model struct {
	ctx      context.Context
	cancel   context.CancelFunc
	view     ViewState
	events   <-chan host.Event
	order    []string
	rows     map[string]*taskRow
	selected string
	log      []string
	taskList list.Model
	width    int
	height   int
	stopped  bool
	help     help.Model
	keys     keyMap
}

// NewModel creates a dashboard for tasks fed by events. cancel, if set, is
// called when the user quits so watch mode shuts down with the UI.
func NewModel(ctx context.Context, cancel context.CancelFunc, tasks []string, events <-chan host.Event) *Model {
	m := &Model{
		ctx:    ctx,
		cancel: cancel,
		view:   DashboardView,
		events: events,
		order:  tasks,
		rows:   make(map[string]*taskRow, len(tasks)),
		help:   help.New(),
		keys:   newKeyMap(),
	}
	for _, name := range tasks {
		m.rows[name] = &taskRow{name: name}
	}

	m.taskList = list.New(m.items(), list.NewDefaultDelegate(), 0, 0)
	m.taskList.Title = "Tasks"
	m.taskList.SetShowHelp(false)
	return m
}

// Init starts listening for task events.
func (m *Model) Init() tea.Cmd {
	return m.waitForEvent()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.taskList.SetSize(msg.Width-4, max(msg.Height-logSize-8, 4))
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case DashboardView:
			return m.handleDashboardKeys(msg)
		case DetailView:
			return m.handleDetailKeys(msg)
		}

	case Msg:
		switch msg.kind {
		case MsgTaskEvent:
			ev := msg.data.(host.Event)
			cmd := m.apply(ev)
			return m, tea.Batch(cmd, m.waitForEvent())
		case MsgWatchStopped:
			m.stopped = true
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.taskList, cmd = m.taskList.Update(msg)
	return m, cmd
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case DetailView:
		return m.renderDetail()
	default:
		return m.renderDashboard()
	}
}

func (m *Model) apply(ev host.Event) tea.Cmd {
	row, ok := m.rows[ev.Task]
	if !ok {
		row = &taskRow{name: ev.Task}
		m.rows[ev.Task] = row
		m.order = append(m.order, ev.Task)
	}
	row.apply(ev)

	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	line := fmt.Sprintf("%s %s %s", ev.Time.Format(time.TimeOnly), ev.Task, styles.status(ev.Kind))
	if ev.Path != "" {
		line += " " + ev.Path
	}
	if ev.Err != nil {
		line += " " + styles.err.Render(firstLine(ev.Err.Error()))
	}
	m.log = append(m.log, line)
	if len(m.log) > logSize {
		m.log = m.log[len(m.log)-logSize:]
	}

	return m.taskList.SetItems(m.items())
}

func (m *Model) items() []list.Item {
	items := make([]list.Item, 0, len(m.order))
	for _, name := range m.order {
		items = append(items, taskItem{row: *m.rows[name]})
	}
	return items
}

func (m *Model) handleDashboardKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, m.quit()
	case key.Matches(msg, m.keys.clear):
		m.log = nil
		return m, nil
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.taskList.SelectedItem().(taskItem); ok {
			m.selected = item.row.name
			m.view = DetailView
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.taskList, cmd = m.taskList.Update(msg)
	return m, cmd
}

func (m *Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, m.quit()
	case key.Matches(msg, m.keys.back):
		m.view = DashboardView
		m.selected = ""
	}
	return m, nil
}

func (m *Model) quit() tea.Cmd {
	if m.cancel != nil {
		m.cancel()
	}
	return tea.Quit
}

// waitForEvent blocks on the next event; a closed channel means watch mode stopped.
func (m *Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		if m.events == nil {
			return watchStoppedMsg()
		}
		select {
		case ev, ok := <-m.events:
			if !ok {
				return watchStoppedMsg()
			}
			return taskEventMsg(ev)
		case <-m.ctx.Done():
			return watchStoppedMsg()
		}
	}
}

func (m *Model) renderDashboard() string {
	var b strings.Builder

	header := fmt.Sprintf("bundlex • watching %d tasks", len(m.order))
	if m.stopped {
		header = "bundlex • watch stopped"
	}
	b.WriteString(styles.title.Render(header))
	b.WriteString("\n")
	b.WriteString(m.taskList.View())
	b.WriteString("\n\n")

	b.WriteString(styles.help.Render("Recent events"))
	b.WriteString("\n")
	if len(m.log) == 0 {
		b.WriteString(styles.help.Render("  waiting for changes..."))
		b.WriteString("\n")
	}
	for _, line := range m.log {
		b.WriteString("  " + line + "\n")
	}

	helpKeys := []key.Binding{m.keys.up, m.keys.down, m.keys.enter, m.keys.clear, m.keys.quit}
	b.WriteString("\n" + m.help.ShortHelpView(helpKeys))
	return b.String()
}

func (m *Model) renderDetail() string {
	row, ok := m.rows[m.selected]
	if !ok {
		return styles.err.Render(fmt.Sprintf("Unknown task %q\n\nPress esc to go back", m.selected))
	}

	var b strings.Builder
	b.WriteString(styles.title.Render(row.name))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Status:    %s\n", styles.status(row.state))
	fmt.Fprintf(&b, "Runs:      %d (%d failed, %d coalesced)\n", row.runs, row.failures, row.coalesced)
	if row.duration > 0 {
		fmt.Fprintf(&b, "Last run:  %s\n", row.duration.Round(time.Millisecond))
	}
	if row.lastPath != "" {
		fmt.Fprintf(&b, "Trigger:   %s\n", row.lastPath)
	}

	if len(row.steps) > 0 {
		b.WriteString("\nSteps:\n")
		for i, step := range row.steps {
			fmt.Fprintf(&b, "  %d. %s\n", i+1, step)
		}
	}
	if row.lastErr != nil {
		b.WriteString("\n" + styles.err.Render("Last error:") + "\n")
		b.WriteString(row.lastErr.Error() + "\n")
	}

	helpKeys := []key.Binding{m.keys.back, m.keys.quit}
	b.WriteString("\n" + m.help.ShortHelpView(helpKeys))
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
