// Package status renders the one-line status bar shared by both terminals.
package status

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lessoncast/lessoncast/internal/tui/theme"
)

// Model holds the status bar state.
type Model struct {
	// Glyph and Label describe the primary state, drawn in Color.
	Glyph    string
	Label    string
	Color    lipgloss.Color
	Segments []string
	Width    int
}

func New() Model {
	return Model{Glyph: "○", Label: "Idle", Color: theme.ColorDimmed}
}

// Set updates the primary state.
func (m *Model) Set(glyph, label string, color lipgloss.Color) {
	m.Glyph, m.Label, m.Color = glyph, label, color
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	state := lipgloss.NewStyle().Foreground(m.Color).Render(m.Glyph + " " + m.Label)
	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")

	parts := []string{state}
	for _, s := range m.Segments {
		if s != "" {
			parts = append(parts, s)
		}
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(strings.Join(parts, sep))
}
