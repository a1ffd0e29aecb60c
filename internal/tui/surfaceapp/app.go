// Package surfaceapp is the display surface terminal. It only renders: all
// state comes from a surface.Surface through ViewMsg.
package surfaceapp

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/lessoncast/lessoncast/internal/surface"
	"github.com/lessoncast/lessoncast/internal/tui/progress"
	"github.com/lessoncast/lessoncast/internal/tui/status"
	"github.com/lessoncast/lessoncast/internal/tui/theme"
)

// ViewMsg carries a new surface snapshot. Feed it in with Program.Send from
// surface.Options.OnChange.
type ViewMsg surface.View

// chrome is the number of lines around the content viewport.
const chrome = 7

// Model is the root Bubble Tea model of a display surface.
type Model struct {
	keys   KeyMap
	width  int
	height int

	view     surface.View
	markdown string

	renderer      *glamour.TermRenderer
	rendererWidth int

	viewport  viewport.Model
	statusBar status.Model
	progress  progress.Model
}

// New starts from initial, usually the surface's view before the program runs.
func New(initial surface.View) Model {
	m := Model{
		keys:      DefaultKeyMap(),
		viewport:  viewport.New(0, 0),
		statusBar: status.New(),
		progress:  progress.New(),
	}
	m.apply(initial)
	m.progress.Jump(initial.FragmentIndex, initial.Total)
	return m
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.progress.Width = msg.Width - 4
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-chrome, 3)
		m.renderContent(true)
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Top):
			m.viewport.GotoTop()
			return m, nil
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case ViewMsg:
		moved := msg.FragmentIndex != m.view.FragmentIndex || msg.Total != m.view.Total
		m.apply(surface.View(msg))
		if moved {
			return m, m.progress.SetPosition(msg.FragmentIndex, msg.Total)
		}
		return m, nil

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) apply(v surface.View) {
	m.view = v
	m.statusBar.Set(theme.StateGlyph(v.State.String()), stateLabel(v), theme.StateColor(v.State.String()))

	var segments []string
	if v.LessonTitle != "" {
		segments = append(segments, theme.StyleHeader.Render(v.LessonTitle))
	}
	if v.Kind != "" {
		segments = append(segments, v.Kind)
	}
	var badges []string
	for _, c := range v.Categories {
		badges = append(badges, theme.CategoryBadge(string(c)))
	}
	if len(badges) > 0 {
		segments = append(segments, strings.Join(badges, ""))
	}
	if v.Name != "" {
		segments = append(segments, theme.StyleDimmed.Render(v.Name))
	}
	m.statusBar.Segments = segments

	md := v.Content.Markdown()
	if v.Content.Title != "" {
		md = "# " + v.Content.Title + "\n\n" + md
	}
	if md != m.markdown {
		m.markdown = md
		m.renderContent(false)
		m.viewport.GotoTop()
	}
}

func stateLabel(v surface.View) string {
	switch v.State {
	case surface.AwaitingInput:
		if v.Receiver {
			return "Waiting for a presenter"
		}
		return "Waiting for a link"
	case surface.Resolved:
		return "Loading"
	case surface.Rendering:
		return "Live"
	case surface.Stale:
		return "Stale"
	case surface.Ended:
		return "Ended"
	default:
		return v.State.String()
	}
}

// renderContent runs the markdown through glamour at the current width,
// rebuilding the renderer when the width changed.
func (m *Model) renderContent(resized bool) {
	if m.width == 0 {
		return
	}
	wrap := max(m.width-4, 20)
	if m.renderer == nil || m.rendererWidth != wrap {
		r, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(wrap),
		)
		if err != nil {
			m.viewport.SetContent(m.markdown)
			return
		}
		m.renderer, m.rendererWidth = r, wrap
	} else if resized {
		return
	}
	out, err := m.renderer.Render(m.markdown)
	if err != nil {
		out = m.markdown
	}
	m.viewport.SetContent(out)
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	sections := []string{m.statusBar.View()}
	if banner := m.banner(); banner != "" {
		sections = append(sections, banner)
	}
	switch {
	case m.view.State == surface.AwaitingInput:
		sections = append(sections, m.waiting())
	case m.markdown == "" || !m.view.Content.Shared():
		sections = append(sections, theme.StyleDimmed.Render("  Nothing shared for this section."))
	default:
		sections = append(sections, m.viewport.View())
	}
	if m.view.Total > 0 {
		sections = append(sections, "  "+m.progress.View())
	}
	sections = append(sections, theme.StyleDimmed.Render("  j/k:scroll  g:top  q:quit"))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) banner() string {
	var color lipgloss.Color
	var text string
	switch m.view.State {
	case surface.Stale:
		color = theme.ColorStale
		text = "WAITING: " + noteOr(m.view.Note, "no recent updates")
	case surface.Ended:
		color = theme.ColorEnded
		text = "ENDED: " + noteOr(m.view.Note, "presentation ended")
	default:
		return ""
	}
	return theme.StyleBanner.
		Foreground(color).
		BorderForeground(color).
		Width(max(m.width-2, 20)).
		Render(text)
}

func (m Model) waiting() string {
	lines := []string{"", theme.StyleHeader.Render("  Nothing to show yet.")}
	if m.view.Note != "" {
		lines = append(lines, theme.StyleDimmed.Render("  "+m.view.Note))
	}
	if !m.view.Receiver {
		lines = append(lines, theme.StyleDimmed.Render("  Open a display link: /display?session=<id> or /display?lesson=<id>&fragment=<n>"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func noteOr(note, fallback string) string {
	if note == "" {
		return fallback
	}
	return note
}
