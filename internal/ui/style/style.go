// Package style holds the terminal color palette shared by status lines,
// progress bars and tables.
package style

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	// Colors
	colorGreen  = lipgloss.Color("#22c55e")
	colorRed    = lipgloss.Color("#ef4444")
	colorYellow = lipgloss.Color("#eab308")
	colorBlue   = lipgloss.Color("#3b82f6")
	colorDim    = lipgloss.Color("#6b7280")
	colorWhite  = lipgloss.Color("#f9fafb")

	// Styles
	Title   = lipgloss.NewStyle().Bold(true).Foreground(colorWhite)
	Section = lipgloss.NewStyle().Bold(true).Foreground(colorBlue)
	Success = lipgloss.NewStyle().Foreground(colorGreen)
	Failure = lipgloss.NewStyle().Foreground(colorRed)
	Warning = lipgloss.NewStyle().Foreground(colorYellow)
	Info    = lipgloss.NewStyle().Foreground(colorBlue)
	Dim     = lipgloss.NewStyle().Foreground(colorDim)

	BarFull  = lipgloss.NewStyle().Foreground(colorGreen)
	BarEmpty = lipgloss.NewStyle().Foreground(colorDim)
)

const (
	CheckMark = "[OK]"
	CrossMark = "[!!]"
	WarnMark  = "[??]"
	InfoMark  = "[..]"
)

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Render applies s only when color is enabled.
func Render(color bool, s lipgloss.Style, text string) string {
	if !color {
		return text
	}
	return s.Render(text)
}
