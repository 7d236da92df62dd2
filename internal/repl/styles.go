package repl

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

type styles struct {
	user      lipgloss.Style
	assistant lipgloss.Style
	info      lipgloss.Style
	role      lipgloss.Style
	faint     lipgloss.Style
}

// newStyles builds the loop palette for w. color overrides terminal
// detection when set.
func newStyles(w io.Writer, color *bool) styles {
	r := lipgloss.NewRenderer(w)
	if color != nil {
		if *color {
			r.SetColorProfile(termenv.ANSI256)
		} else {
			r.SetColorProfile(termenv.Ascii)
		}
	}
	return styles{
		user:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		assistant: r.NewStyle().Bold(true).Foreground(lipgloss.Color("213")),
		info:      r.NewStyle().Foreground(lipgloss.Color("245")),
		role:      r.NewStyle().Foreground(lipgloss.Color("178")),
		faint:     r.NewStyle().Faint(true),
	}
}
