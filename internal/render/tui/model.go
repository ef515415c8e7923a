package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/JakeFAU/modalprogress/internal/engine"
)

const (
	minWidth     = 30
	defaultWidth = 72
	barPadding   = 4
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E07A2F"))
	actionStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#333333", Dark: "#DDDDDD"})
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#D9534F")).Bold(true)
)

// snapshotMsg carries a frame from the engine into the program.
type snapshotMsg engine.Snapshot

// model is the bubbletea model behind Renderer.
type model struct {
	snap       engine.Snapshot
	lastAction string
	bar        progress.Model
	width      int

	cancel     func()
	cancelling bool
	finished   bool
}

func newModel(cancel func(), width int) model {
	if width <= 0 {
		width = defaultWidth
	}
	bar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	m := model{bar: bar, cancel: cancel}
	m.resize(width)
	return m
}

func (m *model) resize(width int) {
	m.width = max(width, minWidth)
	m.bar.Width = m.width - barPadding
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			if !m.cancelling {
				m.cancelling = true
				if m.cancel != nil {
					m.cancel()
				}
			}
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.resize(msg.Width)
		return m, nil

	case snapshotMsg:
		m.snap = engine.Snapshot(msg)
		if m.snap.Action != "" {
			m.lastAction = m.snap.Action
		}
		return m, nil

	case quitMsg:
		m.finished = true
		return m, tea.Quit
	}
	return m, nil
}

// quitMsg asks the program to draw its last frame and exit.
type quitMsg struct{}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.snap.Title))
	b.WriteByte('\n')
	if m.lastAction != "" {
		b.WriteString(actionStyle.Render(truncate(m.lastAction, m.width)))
	}
	b.WriteByte('\n')
	b.WriteString(m.bar.ViewAs(m.snap.Fraction))
	b.WriteByte('\n')

	var status []string
	if m.snap.Counts != "" {
		status = append(status, m.snap.Counts)
	}
	if m.snap.ETA != "" {
		status = append(status, m.snap.ETA)
	}
	b.WriteString(mutedStyle.Render(strings.Join(status, "   ")))
	b.WriteByte('\n')

	switch {
	case m.finished:
	case m.cancelling:
		b.WriteString(warnStyle.Render("Cancelling..."))
		b.WriteByte('\n')
	default:
		b.WriteString(mutedStyle.Render("esc to cancel"))
		b.WriteByte('\n')
	}
	return b.String()
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}
