// Package tui provides the interactive terminal dashboard for pductl. It is
// built on the bubbletea/lipgloss stack and renders one table of the running
// container's endpoints, refreshed every 2 seconds. Unlike a fleet-wide
// dashboard polling a remote API, it observes the single in-process
// Container this pductl invocation itself started.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/strand-protocol/strand/pduendpoint/pkg/container"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("57")).
			Padding(0, 1)

	headerCellStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			PaddingRight(2)

	rowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			PaddingRight(2)

	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	stoppedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Italic(true)
)

type refreshMsg struct{}

type row struct {
	id      string
	running bool
}

// Model is the bubbletea model for the dashboard.
type Model struct {
	node string
	c    *container.Container
	rows []row
}

// New constructs a dashboard Model observing c under the given node label.
func New(node string, c *container.Container) Model {
	return Model{node: node, c: c}
}

func tick() tea.Cmd {
	return tea.Tick(2*time.Second, func(time.Time) tea.Msg { return refreshMsg{} })
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), m.refreshCmd())
}

func (m Model) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		var rows []row
		for _, id := range m.c.ListEndpointIds() {
			ep, ok := m.c.Ref(id)
			rows = append(rows, row{id: id, running: ok && ep.IsRunning()})
		}
		return rows
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.refreshCmd()
		}
	case refreshMsg:
		return m, tea.Batch(tick(), m.refreshCmd())
	case []row:
		m.rows = msg
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf(" pductl — node %s ", m.node)))
	b.WriteString("\n\n")
	if len(m.rows) == 0 {
		b.WriteString(dimStyle.Render("no endpoints"))
		b.WriteString("\n")
		return b.String()
	}
	b.WriteString(headerCellStyle.Render("ENDPOINT") + headerCellStyle.Render("STATE"))
	b.WriteString("\n")
	for _, r := range m.rows {
		state := stoppedStyle.Render("stopped")
		if r.running {
			state = runningStyle.Render("running")
		}
		b.WriteString(rowStyle.Render(r.id) + state)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("r refresh · q quit"))
	b.WriteString("\n")
	return b.String()
}
