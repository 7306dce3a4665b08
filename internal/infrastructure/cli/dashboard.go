package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lokus-ai/lokus-plugins/internal/infrastructure/wiring"
	"github.com/lokus-ai/lokus-plugins/pkg/domain/events"
	"github.com/lokus-ai/lokus-plugins/pkg/infrastructure/dashboard"
)

// maxRows bounds the reload table.
const maxRows = 200

// runDashboard starts the watcher and shows reloads in an interactive table
// until the user quits or ctx is cancelled.
func runDashboard(ctx context.Context, services *wiring.AppServices) error {
	if os.Getenv("LOKUS_SKIP_DASHBOARD_RUN") == "true" {
		return nil
	}

	feed := make(chan *events.Event, 64)
	services.Workspace.Publisher.Subscribe(func(e *events.Event) error {
		// never block the reload pipeline on a slow terminal
		select {
		case feed <- e:
		default:
		}
		return nil
	})

	if err := services.Controller.Start(ctx); err != nil {
		return MapError(err)
	}

	p := tea.NewProgram(newDashboardModel(services, feed), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("dashboard run failed: %w", err)
	}
	return nil
}

// Styles
var baseStyle = lipgloss.NewStyle().
	BorderStyle(lipgloss.NormalBorder()).
	BorderForeground(lipgloss.Color("240"))

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("#FAFAFA")).
	Background(lipgloss.Color("#7D56F4")).
	PaddingLeft(1).
	PaddingRight(1)

var statusDone = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
var statusWIP = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
var statusErr = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

type snapshotter interface {
	Snapshot() (*dashboard.Snapshot, error)
}

type eventMsg struct{ event *events.Event }

type model struct {
	table    table.Model
	source   snapshotter
	feed     <-chan *events.Event
	snap     *dashboard.Snapshot
	reloaded int
	failed   int
	skipped  int
	err      error
}

func newDashboardModel(source snapshotter, feed <-chan *events.Event) model {
	columns := []table.Column{
		{Title: "Time", Width: 10},
		{Title: "Plugin", Width: 24},
		{Title: "Outcome", Width: 10},
		{Title: "Duration", Width: 10},
		{Title: "Error", Width: 48},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows([]table.Row{}),
		table.WithFocused(true),
		table.WithHeight(12),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240"))

	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229"))

	t.SetStyles(s)

	m := model{table: t, source: source, feed: feed}
	m.refresh()
	return m
}

func waitForEvent(feed <-chan *events.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-feed
		if !ok {
			return nil
		}
		return eventMsg{event: e}
	}
}

func (m *model) refresh() {
	if m.source == nil {
		return
	}
	m.snap, m.err = m.source.Snapshot()
}

func (m model) Init() tea.Cmd { return waitForEvent(m.feed) }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case eventMsg:
		m.record(msg.event)
		m.refresh()
		return m, waitForEvent(m.feed)
	}
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *model) record(e *events.Event) {
	if !e.IsReload() {
		return
	}

	outcome := ""
	switch e.Type {
	case events.EventTypeReloaded:
		m.reloaded++
		outcome = "reloaded"
	case events.EventTypeReloadFailed:
		m.failed++
		outcome = "failed"
	case events.EventTypeReloadSkipped:
		m.skipped++
		outcome = "skipped"
	}

	row := table.Row{
		e.Timestamp.Format("15:04:05"),
		e.Plugin,
		outcome,
		fmt.Sprintf("%dms", e.DurationMS),
		e.Error,
	}
	rows := append([]table.Row{row}, m.table.Rows()...)
	if len(rows) > maxRows {
		rows = rows[:maxRows]
	}
	m.table.SetRows(rows)
}

func (m model) View() string {
	root, state := "-", "unknown"
	var pending, inflight []string
	if m.snap != nil {
		root, state = m.snap.Root, m.snap.State
		pending, inflight = m.snap.Pending, m.snap.InFlight
	}

	header := headerStyle.Render(fmt.Sprintf("lokus-plugins %s", Version))

	stateView := statusWIP.Render(state)
	if state == "running" {
		stateView = statusDone.Render(state)
	}
	watchLine := fmt.Sprintf("Watching %s [%s]", root, stateView)

	counts := fmt.Sprintf("%s  %s  %s",
		statusDone.Render(fmt.Sprintf("%d reloaded", m.reloaded)),
		statusErr.Render(fmt.Sprintf("%d failed", m.failed)),
		statusWIP.Render(fmt.Sprintf("%d skipped", m.skipped)),
	)

	queue := ""
	if len(pending) > 0 {
		queue += "Pending: " + strings.Join(pending, ", ") + "\n"
	}
	if len(inflight) > 0 {
		queue += "Reloading: " + strings.Join(inflight, ", ") + "\n"
	}

	errView := ""
	if m.err != nil {
		errView = statusErr.Render(fmt.Sprintf("\n%v", m.err))
	}

	return baseStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			watchLine,
			counts,
			queue,
			m.table.View(),
			errView,
			"\n[q] Quit  [Up/Down] Navigate",
		),
	) + "\n"
}
