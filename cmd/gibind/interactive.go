package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/gibind/plan"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	stepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// pageSize bounds the number of rows rendered in the list view.
const pageSize = 20

type entry struct {
	unit *plan.Unit
	plan *plan.Plan
}

type modelState int

const (
	stateList modelState = iota
	stateFilter
	stateDetail
)

type interactiveModel struct {
	filename string
	entries  []entry
	visible  []entry
	filter   textinput.Model
	selected int
	state    modelState
}

func newInteractiveModel(filename string, units []*plan.Unit, filter string) *interactiveModel {
	ti := textinput.New()
	ti.Prompt = "filter: "
	ti.Placeholder = "name or symbol"
	ti.Width = 40
	ti.SetValue(filter)

	m := &interactiveModel{filename: filename, filter: ti, state: stateList}
	for _, u := range units {
		for _, p := range u.Plans {
			m.entries = append(m.entries, entry{unit: u, plan: p})
		}
	}
	m.applyFilter()
	return m
}

func (m *interactiveModel) applyFilter() {
	q := m.filter.Value()
	m.visible = m.visible[:0]
	for _, e := range m.entries {
		if q == "" || strings.Contains(e.plan.String(), q) || strings.Contains(e.plan.Symbol, q) {
			m.visible = append(m.visible, e)
		}
	}
	if m.selected >= len(m.visible) {
		m.selected = max(len(m.visible)-1, 0)
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return nil
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	if m.state == stateFilter {
		switch key.String() {
		case "enter", "esc":
			m.filter.Blur()
			m.state = stateList
			return m, nil
		case "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		m.applyFilter()
		return m, cmd
	}

	switch key.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "up", "k":
		if m.state == stateList && m.selected > 0 {
			m.selected--
		}

	case "down", "j":
		if m.state == stateList && m.selected < len(m.visible)-1 {
			m.selected++
		}

	case "/":
		if m.state == stateList {
			m.state = stateFilter
			return m, m.filter.Focus()
		}

	case "enter":
		switch m.state {
		case stateList:
			if len(m.visible) > 0 {
				m.state = stateDetail
			}
		case stateDetail:
			m.state = stateList
		}

	case "esc":
		if m.state == stateDetail {
			m.state = stateList
		}
	}
	return m, nil
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Call Plans"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	b.WriteString("\n\n")

	switch m.state {
	case stateList, stateFilter:
		b.WriteString(m.filter.View())
		b.WriteString("\n\n")
		if len(m.visible) == 0 {
			b.WriteString("No plans match.\n")
		}
		start := max(m.selected-pageSize/2, 0)
		end := min(start+pageSize, len(m.visible))
		for i := start; i < end; i++ {
			line := m.visible[i].unit.Namespace + "." + m.visible[i].plan.String()
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render(fmt.Sprintf("%d/%d • ↑/↓ select • / filter • enter details • q quit", len(m.visible), len(m.entries))))

	case stateDetail:
		e := m.visible[m.selected]
		p := e.plan
		b.WriteString(fmt.Sprintf("%s %s\n", funcStyle.Render(p.Symbol), typeStyle.Render(p.Signature())))
		b.WriteString(fmt.Sprintf("unit %s.%s (%s)\n\n", e.unit.Namespace, e.unit.Name, e.unit.Platforms))
		for _, param := range p.Params {
			b.WriteString(fmt.Sprintf("  %-16s %s %s %s transfer=%s release=%s\n",
				param.Name,
				typeStyle.Render(param.TypeName),
				param.Direction,
				param.Class,
				param.Ownership.Transfer,
				param.Ownership.Release,
			))
		}
		if !p.Return.Void {
			b.WriteString(fmt.Sprintf("  %-16s %s %s transfer=%s\n", "return", typeStyle.Render(p.Return.TypeName), p.Return.Class, p.Return.Ownership.Transfer))
		}
		b.WriteString("\n")
		for i, s := range p.Steps {
			b.WriteString(stepStyle.Render(fmt.Sprintf("%2d %s", i, s)))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("enter/esc back • q quit"))
	}

	return b.String()
}

func runInteractive(filename string, units []*plan.Unit, filter string) error {
	p := tea.NewProgram(newInteractiveModel(filename, units, filter), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
