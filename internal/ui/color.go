// Package ui provides terminal output helpers: lipgloss styles, status
// lines and an interactive selector.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	// NoColor disables colored output when true.
	NoColor = false

	// Styles
	TitleStyle   lipgloss.Style
	SuccessStyle lipgloss.Style
	ErrorStyle   lipgloss.Style
	WarningStyle lipgloss.Style
	InfoStyle    lipgloss.Style
	DimStyle     lipgloss.Style
	BoldStyle    lipgloss.Style
	CodeStyle    lipgloss.Style
)

func init() {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		NoColor = true
	}
	if !IsTerminal() {
		NoColor = true
	}
	initStyles()
}

// IsTerminal reports whether stdout is attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func initStyles() {
	if NoColor {
		TitleStyle = lipgloss.NewStyle()
		SuccessStyle = lipgloss.NewStyle()
		ErrorStyle = lipgloss.NewStyle()
		WarningStyle = lipgloss.NewStyle()
		InfoStyle = lipgloss.NewStyle()
		DimStyle = lipgloss.NewStyle()
		BoldStyle = lipgloss.NewStyle().Bold(true)
		CodeStyle = lipgloss.NewStyle()
		return
	}

	TitleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#8a9fc9")) // Muted steel blue

	SuccessStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6b8c6b")) // Muted sage green

	ErrorStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#c87070")) // Muted coral red

	WarningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#c9a866")) // Muted gold

	InfoStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#9080a0")) // Muted purple

	DimStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#6a6a74")) // Dark grey

	BoldStyle = lipgloss.NewStyle().
		Bold(true)

	CodeStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("#2a2a30")).
		Foreground(lipgloss.Color("#c8c8d0")).
		Padding(0, 1)
}

// SetNoColor enables or disables colored output.
func SetNoColor(noColor bool) {
	NoColor = noColor
	initStyles()
}
