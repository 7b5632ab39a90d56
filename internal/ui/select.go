package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// selectModel is the bubbletea model for the candidate selector.
type selectModel struct {
	title    string
	options  []string
	cursor   int
	selected int
	aborted  bool
	styles   selectStyles
}

type selectStyles struct {
	title      lipgloss.Style
	cursor     lipgloss.Style
	selected   lipgloss.Style
	unselected lipgloss.Style
	dim        lipgloss.Style
}

func newSelectModel(title string, options []string) selectModel {
	styles := selectStyles{
		title:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#e0e0e0")),
		cursor:     lipgloss.NewStyle().Foreground(lipgloss.Color("#6b8c6b")),
		selected:   lipgloss.NewStyle().Foreground(lipgloss.Color("#e0e0e0")).Bold(true),
		unselected: lipgloss.NewStyle().Foreground(lipgloss.Color("#808080")),
		dim:        lipgloss.NewStyle().Foreground(lipgloss.Color("#505050")),
	}
	if NoColor {
		styles = selectStyles{
			title:      lipgloss.NewStyle(),
			cursor:     lipgloss.NewStyle(),
			selected:   lipgloss.NewStyle().Bold(true),
			unselected: lipgloss.NewStyle(),
			dim:        lipgloss.NewStyle(),
		}
	}
	return selectModel{
		title:    title,
		options:  options,
		selected: -1,
		styles:   styles,
	}
}

// Init implements tea.Model.
func (m selectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m selectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.options)-1 {
				m.cursor++
			}
		case "enter", " ":
			m.selected = m.cursor
			return m, tea.Quit
		case "ctrl+c", "q", "esc":
			m.aborted = true
			return m, tea.Quit
		// Number keys for quick selection
		case "1", "2", "3", "4", "5", "6", "7", "8", "9":
			idx := int(msg.String()[0] - '1')
			if idx >= 0 && idx < len(m.options) {
				m.selected = idx
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m selectModel) View() string {
	var b strings.Builder

	if m.title != "" {
		b.WriteString(m.styles.title.Render(m.title))
		b.WriteString("\n")
	}

	hint := "↑/↓ navigate • enter select • q quit"
	if NoColor {
		hint = "up/down navigate, enter select, q quit"
	}
	b.WriteString(m.styles.dim.Render(hint))
	b.WriteString("\n\n")

	for i, opt := range m.options {
		cursor := "  "
		if i == m.cursor {
			if NoColor {
				cursor = "> "
			} else {
				cursor = m.styles.cursor.Render("› ")
			}
		}
		b.WriteString(cursor)

		style := m.styles.unselected
		if i == m.cursor {
			style = m.styles.selected
		}
		b.WriteString(style.Render(fmt.Sprintf("%d. %s", i+1, opt)))
		b.WriteString("\n")
	}

	return b.String()
}

// Select shows an interactive picker over options and returns the chosen
// index, or -1 when the user aborts. Callers must only invoke this on a
// terminal; see IsTerminal.
func Select(title string, options []string) (int, error) {
	if len(options) == 0 {
		return -1, fmt.Errorf("ui: nothing to select from")
	}
	if len(options) == 1 {
		return 0, nil
	}

	p := tea.NewProgram(newSelectModel(title, options))
	final, err := p.Run()
	if err != nil {
		return -1, fmt.Errorf("ui: selector failed: %w", err)
	}
	m := final.(selectModel)
	if m.aborted {
		return -1, nil
	}
	return m.selected, nil
}
