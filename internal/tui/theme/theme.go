// Package theme provides the Lip Gloss palette and shared styles for the
// presenter and surface terminals. It is a leaf package with no internal
// imports to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Category colors.
var (
	ColorReading  = lipgloss.Color("#3b82f6")
	ColorSlide    = lipgloss.Color("#a855f7")
	ColorStudyAid = lipgloss.Color("#22c55e")
	ColorNotes    = lipgloss.Color("#d97706")
	ColorDefault  = lipgloss.Color("#9ca3af")
)

// Display state colors.
var (
	ColorAwaiting  = lipgloss.Color("#7c3aed")
	ColorResolved  = lipgloss.Color("#2563eb")
	ColorRendering = lipgloss.Color("#16a34a")
	ColorStale     = lipgloss.Color("#d97706")
	ColorEnded     = lipgloss.Color("#dc2626")
)

// Progress bar shades by position in the lesson.
var (
	ColorProgressStart = lipgloss.Color("#22c55e") // <50%
	ColorProgressMid   = lipgloss.Color("#06b6d4") // 50-90%
	ColorProgressEnd   = lipgloss.Color("#f59e0b") // last stretch
)

// UI chrome colors.
var (
	ColorBorder  = lipgloss.Color("#4b5563")
	ColorDimmed  = lipgloss.Color("#6b7280")
	ColorBright  = lipgloss.Color("#f9fafb")
	ColorBg      = lipgloss.Color("#111827")
	ColorHealthy = lipgloss.Color("#22c55e")
	ColorWarning = lipgloss.Color("#d97706")
	ColorDanger  = lipgloss.Color("#dc2626")
)

// CategoryColor returns the color for a category name.
func CategoryColor(category string) lipgloss.Color {
	switch category {
	case "reading":
		return ColorReading
	case "slide":
		return ColorSlide
	case "aids":
		return ColorStudyAid
	case "notes":
		return ColorNotes
	default:
		return ColorDefault
	}
}

// CategoryBadge returns a colored one-letter badge for a category.
func CategoryBadge(category string) string {
	letter := "?"
	switch category {
	case "reading":
		letter = "R"
	case "slide":
		letter = "S"
	case "aids":
		letter = "A"
	case "notes":
		letter = "N"
	}
	return lipgloss.NewStyle().Foreground(CategoryColor(category)).Render("[" + letter + "]")
}

// StateColor returns the color for a display state name.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "awaiting-input", "joined":
		return ColorAwaiting
	case "resolved":
		return ColorResolved
	case "rendering":
		return ColorRendering
	case "stale":
		return ColorStale
	case "ended":
		return ColorEnded
	default:
		return ColorDefault
	}
}

// StateGlyph returns a Unicode glyph for a display state.
func StateGlyph(state string) string {
	switch state {
	case "awaiting-input", "joined":
		return "◌"
	case "resolved":
		return "◎"
	case "rendering":
		return "●"
	case "stale":
		return "○"
	case "ended":
		return "✗"
	default:
		return "·"
	}
}

// ProgressColor returns the bar color for a fraction of the lesson shown.
func ProgressColor(pct float64) lipgloss.Color {
	switch {
	case pct > 0.9:
		return ColorProgressEnd
	case pct > 0.5:
		return ColorProgressMid
	default:
		return ColorProgressStart
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleBanner = lipgloss.NewStyle().
		Bold(true).
		Padding(0, 2).
		BorderStyle(lipgloss.DoubleBorder())
)
