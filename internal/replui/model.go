// Package replui implements cmd/candy's live fiber-status view: a
// Bubble Tea program driven by fiber.Step snapshots as the scheduler
// runs, grounded on vovakirdan-surge's internal/ui progress model
// (spinner plus one styled status row per tracked item, here one row
// per fiber instead of one row per file).
package replui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"candy/internal/fiber"
	"candy/internal/vm"
)

type stepMsg fiber.Step
type doneMsg struct{ final vm.Status }

// Model renders the fiber tree's status as the scheduler steps it,
// reading Steps off steps until it's closed and final arrives on
// result.
type Model struct {
	title   string
	steps   <-chan fiber.Step
	result  <-chan vm.Status
	spinner spinner.Model
	fibers  []fiber.FiberSnapshot
	ready   int
	done    bool
	final   vm.Status
}

// New returns a Bubble Tea model that renders title plus a live table
// of fiber statuses, reading turns from steps until result resolves.
func New(title string, steps <-chan fiber.Step, result <-chan vm.Status) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	return &Model{title: title, steps: steps, result: result, spinner: sp}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForStep(), m.listenForResult())
}

func (m *Model) listenForStep() tea.Cmd {
	return func() tea.Msg {
		step, ok := <-m.steps
		if !ok {
			return nil
		}
		return stepMsg(step)
	}
}

func (m *Model) listenForResult() tea.Cmd {
	return func() tea.Msg {
		final, ok := <-m.result
		if !ok {
			return nil
		}
		return doneMsg{final: final}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stepMsg:
		m.fibers = msg.Fibers
		m.ready = msg.ReadyCount
		return m, m.listenForStep()
	case doneMsg:
		m.done = true
		m.final = msg.final
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	var header string
	if m.done {
		header = fmt.Sprintf("done: %s (%s)", m.title, m.final)
	} else {
		header = fmt.Sprintf("%s %s (%d ready)", m.spinner.View(), m.title, m.ready)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	for _, f := range m.fibers {
		status := f.Status.String()
		row := fmt.Sprintf("  fiber %-4d parent %-4d %s", f.ID, f.Parent, status)
		b.WriteString(styleStatus(status).Render(row))
		b.WriteString("\n")
	}
	return b.String()
}

// Result reports the final Status once the run has completed. ok is
// false if the program quit before a result arrived (e.g. ctrl-c).
func (m *Model) Result() (status vm.Status, ok bool) {
	return m.final, m.done
}

func styleStatus(status string) lipgloss.Style {
	switch status {
	case "done":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case "panicked", "canceled":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case "running":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	}
}
