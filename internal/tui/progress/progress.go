// Package progress draws the lesson position bar. Moves between fragments
// are animated with a critically damped spring.
package progress

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	"github.com/lessoncast/lessoncast/internal/tui/theme"
)

const (
	fps       = 60
	frequency = 7.0
	damping   = 1.0
	settled   = 0.001
)

// FrameMsg advances the animation by one frame.
type FrameMsg struct{}

// Model holds the animated bar state.
type Model struct {
	Width int

	spring    harmonica.Spring
	pos       float64
	vel       float64
	target    float64
	index     int
	total     int
	animating bool
}

func New() Model {
	return Model{spring: harmonica.NewSpring(harmonica.FPS(fps), frequency, damping)}
}

// Fraction maps a fragment index to [0, 1].
func Fraction(index, total int) float64 {
	if total <= 1 {
		return 1
	}
	f := float64(index) / float64(total-1)
	return math.Max(0, math.Min(1, f))
}

// SetPosition moves the bar towards index and returns the command driving
// the animation, or nil if it is already running or nothing moved.
func (m *Model) SetPosition(index, total int) tea.Cmd {
	m.index, m.total = index, total
	m.target = Fraction(index, total)
	if m.animating || m.done() {
		return nil
	}
	m.animating = true
	return frame()
}

// Jump places the bar without animating.
func (m *Model) Jump(index, total int) {
	m.index, m.total = index, total
	m.target = Fraction(index, total)
	m.pos, m.vel = m.target, 0
	m.animating = false
}

func (m Model) done() bool {
	return math.Abs(m.pos-m.target) < settled && math.Abs(m.vel) < settled
}

func frame() tea.Cmd {
	return tea.Tick(time.Second/fps, func(time.Time) tea.Msg { return FrameMsg{} })
}

// Update steps the spring on each frame.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if _, ok := msg.(FrameMsg); !ok || !m.animating {
		return m, nil
	}
	m.pos, m.vel = m.spring.Update(m.pos, m.vel, m.target)
	if m.done() {
		m.pos, m.vel = m.target, 0
		m.animating = false
		return m, nil
	}
	return m, frame()
}

// Position is the currently drawn fraction.
func (m Model) Position() float64 { return m.pos }

// Animating reports whether frames are still being requested.
func (m Model) Animating() bool { return m.animating }

// View renders the bar followed by "n/total".
func (m Model) View() string {
	label := ""
	if m.total > 0 {
		label = fmt.Sprintf(" %d/%d", m.index+1, m.total)
	}
	width := m.Width - len(label)
	if width < 10 {
		width = 10
	}

	head := int(math.Round(math.Max(0, math.Min(1, m.pos)) * float64(width-1)))
	fill := lipgloss.NewStyle().Foreground(theme.ProgressColor(m.pos))
	headStyle := fill.Bold(true)
	dim := lipgloss.NewStyle().Foreground(theme.ColorDimmed)

	var b strings.Builder
	for i := 0; i < width; i++ {
		switch {
		case i < head:
			b.WriteString(fill.Render("━"))
		case i == head:
			b.WriteString(headStyle.Render("●"))
		default:
			b.WriteString(dim.Render("·"))
		}
	}
	b.WriteString(theme.StyleDimmed.Render(label))
	return b.String()
}
