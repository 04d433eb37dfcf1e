// Package ui renders CLI output: status words, headings and record tables.
package ui

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
)

var (
	ColorAccent = lipgloss.AdaptiveColor{Light: "#B3541E", Dark: "#E8A33D"}
	ColorPass   = lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#66BB6A"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#B58900", Dark: "#FFCA28"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#EF5350"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9E9E9E"}
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	warnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	failStyle   = lipgloss.NewStyle().Foreground(ColorFail).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	headerStyle = lipgloss.NewStyle().Foreground(ColorAccent).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func init() {
	if termenv.EnvNoColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// DisableColor turns styling off, for --no-color and non-terminal output.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return termenv.NewOutput(f).Profile != termenv.Ascii
}

func RenderAccent(s string) string { return accentStyle.Render(s) }
func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }

// Table renders rows under headers with a rounded border.
func Table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.String()
}
