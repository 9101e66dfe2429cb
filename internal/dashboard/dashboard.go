// Package dashboard implements the Live Dashboard (C12): a read-only
// bubbletea TUI that renders cycle-by-cycle training progress. It is
// purely a consumer of Row values pushed over a channel — killing
// it or never attaching one has zero effect on training correctness,
// mirroring the best-effort, never-backpressuring wiring of C11's
// websocket broadcaster.
package dashboard

import (
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

// Row is one rendered line of cycle history; the dashboard package does not
// import pipeline (to avoid a dependency from a pure UI consumer onto the
// pipeline's internals) so callers translate CycleResult into Row.
type Row struct {
	Cycle        int
	Games        int
	AvgLength    float64
	Loss         float64
	Epsilon      float64
	BufferSize   int
	BestPerf     float64
	IsBest       bool
}

// CycleMsg wraps a Row as a bubbletea message.
type CycleMsg Row

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Bold(true).
			Padding(0, 1)
	bestStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	rowStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA"))
	border    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#626262")).Padding(1)
)

// Model is the bubbletea model; Pipeline code never touches it directly,
// only ever sends Row values over the channel given to Run.
type Model struct {
	rows     []Row
	maxRows  int
	width    int
	height   int
	quitting bool
	updates  <-chan Row
	logger   *log.Logger
}

// NewModel constructs a Model that will render rows received from updates.
// logger may be nil (e.g. in tests), in which case debug logging is
// discarded; Run's caller supplies a file-backed logger since the dashboard
// owns the terminal and cannot share it with a console writer.
func NewModel(updates <-chan Row, logger *log.Logger) Model {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return Model{updates: updates, maxRows: 200, logger: logger}
}

func (m Model) Init() tea.Cmd {
	return waitForRow(m.updates)
}

func waitForRow(ch <-chan Row) tea.Cmd {
	return func() tea.Msg {
		r, ok := <-ch
		if !ok {
			return nil
		}
		return CycleMsg(r)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.logger.Debug("window resized", "width", m.width, "height", m.height)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case CycleMsg:
		m.rows = append(m.rows, Row(msg))
		if len(m.rows) > m.maxRows {
			m.rows = m.rows[len(m.rows)-m.maxRows:]
			m.logger.Debug("trimmed oldest row", "max_rows", m.maxRows)
		}
		return m, waitForRow(m.updates)
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-6s %-6s %-10s %-10s %-8s %-8s %-10s", "cycle", "games", "avglen", "loss", "eps", "buffer", "bestperf")))
	b.WriteString("\n")

	start := 0
	visible := m.height - 6
	if visible < 5 {
		visible = 20
	}
	if len(m.rows) > visible {
		start = len(m.rows) - visible
	}
	for _, r := range m.rows[start:] {
		line := fmt.Sprintf("%-6d %-6d %-10.2f %-10.4f %-8.3f %-8d %-10.4f", r.Cycle, r.Games, r.AvgLength, r.Loss, r.Epsilon, r.BufferSize, r.BestPerf)
		if r.IsBest {
			b.WriteString(bestStyle.Render(line + " *best*"))
		} else {
			b.WriteString(rowStyle.Render(line))
		}
		b.WriteString("\n")
	}
	return border.Render(b.String())
}

// Run constructs and runs a bubbletea.Program consuming rows from updates
// until the user quits or the channel is closed. It blocks; callers run it
// on a dedicated goroutine per §4.13. logger receives the dashboard's own
// debug events (resizes, row trimming) and must not write to the terminal
// bubbletea is driving; pass nil to discard them.
func Run(updates <-chan Row, logger *log.Logger) error {
	p := tea.NewProgram(NewModel(updates, logger))
	_, err := p.Run()
	return err
}
