// Package notices keeps the presenter's history of delivery problems, shared
// links and navigation, and renders it as an overlay.
package notices

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/lessoncast/lessoncast/internal/tui/theme"
)

const capacity = 200

// Kind classifies a notice for coloring.
type Kind int

const (
	KindInfo Kind = iota
	KindWarn
	KindLink
)

func (k Kind) tag() (string, lipgloss.Color) {
	switch k {
	case KindWarn:
		return "!", theme.ColorWarning
	case KindLink:
		return "⧉", theme.ColorSlide
	default:
		return "·", theme.ColorDimmed
	}
}

// Entry is one notice. Identical consecutive notices collapse into a single
// entry whose Repeats counts the extra occurrences.
type Entry struct {
	At      time.Time
	Kind    Kind
	Text    string
	Repeats int
}

// Model is the notice history, oldest first.
type Model struct {
	entries []Entry
	// back is how many entries the view is scrolled away from the newest.
	back int
}

func New() Model { return Model{} }

func (m Model) Len() int { return len(m.entries) }

// Add records text as happening now.
func (m *Model) Add(kind Kind, text string) {
	m.AddAt(time.Now(), kind, text)
}

// AddAt records text at the given time and snaps the view to the newest entry.
func (m *Model) AddAt(at time.Time, kind Kind, text string) {
	m.back = 0
	if n := len(m.entries); n > 0 {
		last := &m.entries[n-1]
		if last.Kind == kind && last.Text == text {
			last.Repeats++
			last.At = at
			return
		}
	}
	m.entries = append(m.entries, Entry{At: at, Kind: kind, Text: text})
	if over := len(m.entries) - capacity; over > 0 {
		m.entries = append([]Entry(nil), m.entries[over:]...)
	}
}

// Latest returns the newest entry.
func (m Model) Latest() (Entry, bool) {
	if len(m.entries) == 0 {
		return Entry{}, false
	}
	return m.entries[len(m.entries)-1], true
}

// ScrollUp moves the view n entries toward older notices.
func (m *Model) ScrollUp(n int) {
	m.back = min(m.back+n, max(len(m.entries)-1, 0))
}

// ScrollDown moves the view n entries toward the newest notice.
func (m *Model) ScrollDown(n int) {
	m.back = max(m.back-n, 0)
}

// window returns the [from, to) range of entries visible in rows lines.
func (m Model) window(rows int) (int, int) {
	to := len(m.entries) - m.back
	return max(to-rows, 0), max(to, 0)
}

// View renders the history as a bordered panel sized to width x height.
func (m Model) View(width, height int) string {
	inner := max(width-4, 20)
	rows := max(height-6, 3)

	var body []string
	body = append(body, theme.StyleHeader.Render(" NOTICES "))
	if len(m.entries) == 0 {
		body = append(body, "", theme.StyleDimmed.Render("  Nothing to report yet."), "")
	} else {
		from, to := m.window(rows)
		for _, e := range m.entries[from:to] {
			body = append(body, e.Line(inner))
		}
		if m.back > 0 {
			body = append(body, theme.StyleDimmed.Render(fmt.Sprintf(" %d newer below", m.back)))
		}
	}
	body = append(body, theme.StyleDimmed.Render(
		fmt.Sprintf("↑/↓ scroll · esc close · %d notices", len(m.entries))))

	return lipgloss.NewStyle().
		Width(inner).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(strings.Join(body, "\n"))
}

// Line renders e on a single line of at most width cells.
func (e Entry) Line(width int) string {
	glyph, color := e.Kind.tag()
	text := e.Text
	if e.Repeats > 0 {
		text = fmt.Sprintf("%s (×%d)", text, e.Repeats+1)
	}
	// "15:04:05 ! " takes 11 cells.
	if room := width - 11; room > 3 && lipgloss.Width(text) > room {
		text = truncate(text, room-1) + "…"
	}
	return theme.StyleDimmed.Render(e.At.Format("15:04:05")) + " " +
		lipgloss.NewStyle().Foreground(color).Render(glyph) + " " + text
}

func truncate(s string, cells int) string {
	var b strings.Builder
	for _, r := range s {
		if lipgloss.Width(b.String()+string(r)) > cells {
			break
		}
		b.WriteRune(r)
	}
	return b.String()
}
