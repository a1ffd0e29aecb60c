// Package presenterapp is the presenter's terminal: navigation, starting a
// push display, sharing a link, and the notices delivery produces.
package presenterapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lessoncast/lessoncast/internal/content"
	"github.com/lessoncast/lessoncast/internal/presenter"
	"github.com/lessoncast/lessoncast/internal/protocol"
	"github.com/lessoncast/lessoncast/internal/share"
	"github.com/lessoncast/lessoncast/internal/transport"
	"github.com/lessoncast/lessoncast/internal/tui/notices"
	"github.com/lessoncast/lessoncast/internal/tui/progress"
	"github.com/lessoncast/lessoncast/internal/tui/status"
	"github.com/lessoncast/lessoncast/internal/tui/theme"
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayShare
	OverlayNotices
)

const (
	actionTimeout = 30 * time.Second
	refreshEvery  = time.Second
)

// PhaseMsg reports a transport adapter phase change. Feed it in with
// Program.Send from the adapter's phase observer.
type PhaseMsg transport.Phase

type (
	noticeMsg    presenter.Notice
	navigatedMsg struct{ moved bool }
	startedMsg   struct{ err error }
	sharedMsg    struct {
		ref *share.Reference
		err error
	}
	endedMsg struct{ err error }
	tickMsg  time.Time
)

// Config wires the model to the presentation core.
type Config struct {
	Controller *presenter.Controller
	// Adapter connects push displays; nil disables presenting.
	Adapter *transport.Adapter
	// Share creates links; nil disables sharing.
	Share *share.Controller
	// Categories are shown on push displays and preselected for links.
	Categories content.CategorySet
}

// Model is the root Bubble Tea model of the presenter.
type Model struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	width  int
	height int

	index    int
	phase    transport.Phase
	kind     string
	surfaces []protocol.SurfaceStatus
	link     *share.Reference
	busy     bool
	ended    bool

	overlay  Overlay
	selected map[content.Category]bool
	shareErr string

	statusBar status.Model
	progress  progress.Model
	notices   notices.Model
}

func New(cfg Config) Model {
	ctx, cancel := context.WithCancel(context.Background())
	m := Model{
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		selected:  make(map[content.Category]bool),
		statusBar: status.New(),
		progress:  progress.New(),
		notices:   notices.New(),
	}
	for _, c := range cfg.Categories {
		m.selected[c] = true
	}
	m.refresh()
	m.progress.Jump(m.index, cfg.Controller.Lesson().Len())
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitNotice(), tick())
}

func (m Model) waitNotice() tea.Cmd {
	ch := m.cfg.Controller.Notices()
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return noticeMsg(n)
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.progress.Width = msg.Width - 4
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case PhaseMsg:
		m.phase = transport.Phase(msg)
		m.refresh()
		return m, nil

	case noticeMsg:
		kind := notices.KindInfo
		if msg.Level == presenter.Warning {
			kind = notices.KindWarn
		}
		m.notices.AddAt(msg.At, kind, msg.Text)
		m.refresh()
		return m, m.waitNotice()

	case navigatedMsg:
		m.refresh()
		if !msg.moved {
			return m, nil
		}
		return m, m.progress.SetPosition(m.index, m.cfg.Controller.Lesson().Len())

	case startedMsg:
		m.busy = false
		m.refresh()
		return m, nil

	case sharedMsg:
		m.busy = false
		if msg.err != nil {
			m.shareErr = shareError(msg.err)
			return m, nil
		}
		m.link = msg.ref
		m.shareErr = ""
		m.overlay = OverlayNone
		m.notices.Add(notices.KindLink, "shared "+msg.ref.Categories.String()+" at "+msg.ref.Link)
		m.refresh()
		return m, nil

	case endedMsg:
		m.busy = false
		m.ended = true
		if msg.err != nil {
			m.notices.Add(notices.KindWarn, msg.err.Error())
		} else {
			m.notices.Add(notices.KindInfo, "presentation ended")
		}
		m.refresh()
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tick()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}
	return m, nil
}

func shareError(err error) string {
	if errors.Is(err, share.ErrNoCategories) {
		return "Select at least one category to share."
	}
	return "Could not create link: " + err.Error()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) && !(m.overlay == OverlayShare && msg.String() == "q") {
		return m, tea.Sequence(m.endCmd(), m.quitCmd())
	}

	switch m.overlay {
	case OverlayShare:
		return m.handleShareKey(msg)
	case OverlayNotices:
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Notices):
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Up):
			m.notices.ScrollUp(1)
		case key.Matches(msg, m.keys.Down):
			m.notices.ScrollDown(1)
		}
		return m, nil
	}

	if m.ended {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Prev):
		return m, m.navCmd(func(ctx context.Context, c *presenter.Controller) bool { return c.Navigate(ctx, presenter.Prev) })
	case key.Matches(msg, m.keys.Next):
		return m, m.navCmd(func(ctx context.Context, c *presenter.Controller) bool { return c.Navigate(ctx, presenter.Next) })
	case key.Matches(msg, m.keys.First):
		return m, m.navCmd(func(ctx context.Context, c *presenter.Controller) bool { return c.GoTo(ctx, 0) })
	case key.Matches(msg, m.keys.Last):
		return m, m.navCmd(func(ctx context.Context, c *presenter.Controller) bool { return c.GoTo(ctx, c.Lesson().Len()-1) })

	case key.Matches(msg, m.keys.Present):
		if m.cfg.Adapter == nil {
			m.notices.Add(notices.KindWarn, "presenting needs a server; share a link instead")
			return m, nil
		}
		if m.busy || m.kind != "" {
			return m, nil
		}
		m.busy = true
		return m, m.startCmd()

	case key.Matches(msg, m.keys.Share):
		if m.cfg.Share == nil {
			m.notices.Add(notices.KindWarn, "sharing needs a server")
			return m, nil
		}
		m.overlay = OverlayShare
		m.shareErr = ""
		return m, nil

	case key.Matches(msg, m.keys.End):
		m.busy = true
		return m, m.endCmd()

	case key.Matches(msg, m.keys.Notices):
		m.overlay = OverlayNotices
		return m, nil
	}
	return m, nil
}

func (m Model) handleShareKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.overlay = OverlayNone
		return m, nil
	case key.Matches(msg, m.keys.Enter):
		if m.busy {
			return m, nil
		}
		m.busy = true
		return m, m.shareCmd(m.selection())
	}
	for i, b := range m.keys.Toggle {
		if key.Matches(msg, b) {
			c := content.AllCategories[i]
			m.selected[c] = !m.selected[c]
			m.shareErr = ""
		}
	}
	return m, nil
}

func (m Model) selection() content.CategorySet {
	var set content.CategorySet
	for _, c := range content.AllCategories {
		if m.selected[c] {
			set = append(set, c)
		}
	}
	return set
}

func (m Model) navCmd(move func(context.Context, *presenter.Controller) bool) tea.Cmd {
	ctrl, ctx := m.cfg.Controller, m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, actionTimeout)
		defer cancel()
		return navigatedMsg{moved: move(ctx, ctrl)}
	}
}

func (m Model) startCmd() tea.Cmd {
	ctrl, adapter, cats, ctx := m.cfg.Controller, m.cfg.Adapter, m.cfg.Categories, m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, actionTimeout)
		defer cancel()
		return startedMsg{err: ctrl.Start(ctx, adapter, cats)}
	}
}

func (m Model) shareCmd(cats content.CategorySet) tea.Cmd {
	ctrl, sharer, ctx := m.cfg.Controller, m.cfg.Share, m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, actionTimeout)
		defer cancel()
		ref, err := sharer.Share(ctx, ctrl, cats)
		return sharedMsg{ref: ref, err: err}
	}
}

func (m Model) endCmd() tea.Cmd {
	ctrl := m.cfg.Controller
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
		defer cancel()
		return endedMsg{err: ctrl.End(ctx)}
	}
}

func (m Model) quitCmd() tea.Cmd {
	cancel := m.cancel
	return func() tea.Msg {
		cancel()
		return tea.Quit()
	}
}

func (m *Model) refresh() {
	ctrl := m.cfg.Controller
	m.index = ctrl.Index()
	m.surfaces = ctrl.Surfaces()
	m.kind = ""
	if k, ok := ctrl.Presenting(); ok {
		m.kind = k.String()
	}

	switch {
	case m.ended:
		m.statusBar.Set("✗", "Ended", theme.ColorEnded)
	case m.kind != "":
		m.statusBar.Set("●", "Presenting", theme.ColorHealthy)
	case m.phase == transport.PhaseProbing:
		m.statusBar.Set("◎", "Connecting...", theme.ColorResolved)
	case m.phase == transport.PhaseDisconnected:
		m.statusBar.Set("○", "Reconnecting...", theme.ColorWarning)
	default:
		m.statusBar.Set("○", "Not presenting", theme.ColorDimmed)
	}

	lesson := ctrl.Lesson()
	segments := []string{theme.StyleHeader.Render(lesson.Title)}
	if m.kind != "" {
		segments = append(segments, m.kind, fmt.Sprintf("%d surfaces", len(m.surfaces)))
	}
	if m.link != nil && ctrl.SessionID() == m.link.SessionID {
		segments = append(segments, "link: "+m.link.Categories.String())
	}
	m.statusBar.Segments = segments
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var body string
	switch m.overlay {
	case OverlayShare:
		body = m.shareView()
	case OverlayNotices:
		body = m.notices.View(m.width, m.height-4)
	default:
		body = m.mainView()
	}

	sections := []string{m.statusBar.View(), body, m.helpLine()}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) mainView() string {
	lesson := m.cfg.Controller.Lesson()
	var lines []string

	if f, err := lesson.Fragment(m.index); err == nil {
		lines = append(lines, theme.StyleHeader.Render(fmt.Sprintf("%d. %s", m.index+1, f.Title)))
		slide := content.PrimarySlide(f)
		preview := slide.Body
		if slide.Title != "" {
			preview = slide.Title + "\n\n" + preview
		}
		lines = append(lines, theme.StyleBorder.Width(max(m.width-4, 20)).Padding(0, 1).Render(preview))
	} else {
		lines = append(lines, theme.StyleDimmed.Render("  This lesson has no fragments."))
	}
	lines = append(lines, "  "+m.progress.View())

	lines = append(lines, "", theme.StyleHeader.Render("Displays"))
	if len(m.surfaces) == 0 {
		lines = append(lines, theme.StyleDimmed.Render("  No push displays connected"))
	}
	for _, s := range m.surfaces {
		style := lipgloss.NewStyle().Foreground(theme.StateColor(s.State))
		name := s.Name
		if name == "" {
			name = s.SurfaceID
		}
		lines = append(lines, fmt.Sprintf("  %s %s  %s", style.Render(theme.StateGlyph(s.State)), name,
			theme.StyleDimmed.Render(fmt.Sprintf("%s at %d", s.State, s.FragmentIndex+1))))
	}

	if m.link != nil && m.cfg.Controller.SessionID() == m.link.SessionID {
		var badges []string
		for _, c := range m.link.Categories {
			badges = append(badges, theme.CategoryBadge(string(c)))
		}
		lines = append(lines, "", theme.StyleHeader.Render("Shared link ")+strings.Join(badges, ""), "  "+m.link.Link)
	}

	if e, ok := m.notices.Latest(); ok {
		lines = append(lines, "", e.Line(m.width-2))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) shareView() string {
	lines := []string{theme.StyleHeader.Render(" SHARE A LINK "), ""}
	for i, c := range content.AllCategories {
		box := "[ ]"
		if m.selected[c] {
			box = "[x]"
		}
		label := lipgloss.NewStyle().Foreground(theme.CategoryColor(string(c))).Render(string(c))
		lines = append(lines, fmt.Sprintf("  %d %s %s", i+1, box, label))
	}
	lines = append(lines, "")
	if m.shareErr != "" {
		lines = append(lines, lipgloss.NewStyle().Foreground(theme.ColorDanger).Render("  "+m.shareErr), "")
	}
	lines = append(lines, theme.StyleDimmed.Render("Categories cannot be changed later; share again for a new link."))
	return lipgloss.NewStyle().
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m Model) helpLine() string {
	switch m.overlay {
	case OverlayShare:
		return theme.StyleDimmed.Render("  1-4:toggle  enter:create link  esc:cancel")
	case OverlayNotices:
		return theme.StyleDimmed.Render("  j/k:scroll  esc:close")
	}
	if m.ended {
		return theme.StyleDimmed.Render("  n:notices  q:quit")
	}
	return theme.StyleDimmed.Render("  ←/→:navigate  g/G:first/last  p:present  s:share  e:end  n:notices  q:quit")
}
