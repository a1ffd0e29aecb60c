package presenterapp

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lessoncast/lessoncast/internal/content"
	"github.com/lessoncast/lessoncast/internal/presenter"
	"github.com/lessoncast/lessoncast/internal/session"
	"github.com/lessoncast/lessoncast/internal/share"
)

func testModel(t *testing.T, withShare bool) (Model, *session.MemoryStore) {
	t.Helper()
	lesson := &content.Lesson{ID: "L1", Title: "Cells"}
	for i := 0; i < 4; i++ {
		lesson.Fragments = append(lesson.Fragments, content.Fragment{
			Title:  fmt.Sprintf("Part %d", i+1),
			Slides: []content.SlideContent{{Body: fmt.Sprintf("slide body %d", i+1)}},
		})
	}
	store := session.NewMemoryStore()
	ctrl := presenter.New(lesson, 0, store, presenter.WithHeartbeat(time.Hour))
	t.Cleanup(func() { ctrl.End(context.Background()) })

	cfg := Config{Controller: ctrl, Categories: content.CategorySet{content.Slide}}
	if withShare {
		cfg.Share = share.New(store, "http://host")
	}
	m := New(cfg)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	return next.(Model), store
}

// press feeds a key through Update and runs the resulting command once.
func press(t *testing.T, m Model, k tea.KeyMsg) Model {
	t.Helper()
	next, cmd := m.Update(k)
	m = next.(Model)
	if cmd != nil {
		if msg := cmd(); msg != nil {
			next, _ = m.Update(msg)
			m = next.(Model)
		}
	}
	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNavigationKeys(t *testing.T) {
	m, _ := testModel(t, false)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyLeft})
	if m.index != 0 {
		t.Fatalf("prev at 0 moved to %d", m.index)
	}
	for i := 0; i < 2; i++ {
		m = press(t, m, tea.KeyMsg{Type: tea.KeyRight})
	}
	if m.index != 2 {
		t.Fatalf("index = %d, want 2", m.index)
	}
	if !strings.Contains(m.View(), "slide body 3") {
		t.Error("view should preview the current slide")
	}

	m = press(t, m, runes("G"))
	if m.index != 3 {
		t.Errorf("last = %d, want 3", m.index)
	}
}

func TestShareRejectsEmptySelection(t *testing.T) {
	m, store := testModel(t, true)

	m = press(t, m, runes("s"))
	if m.overlay != OverlayShare {
		t.Fatal("share overlay not open")
	}
	m = press(t, m, runes("2")) // deselect the preselected slide
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if m.overlay != OverlayShare {
		t.Error("overlay should stay open on a validation error")
	}
	if !strings.Contains(m.View(), "Select at least one category") {
		t.Error("validation message not shown")
	}
	if store.ActiveCount() != 0 {
		t.Error("no session should be created")
	}
}

func TestShareCreatesLink(t *testing.T) {
	m, store := testModel(t, true)

	m = press(t, m, runes("s"))
	m = press(t, m, runes("1"))
	m = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if m.overlay != OverlayNone {
		t.Fatal("overlay should close after sharing")
	}
	if m.link == nil {
		t.Fatal("no link recorded")
	}
	if got := m.link.Categories.String(); got != "reading,slide" {
		t.Errorf("categories = %q", got)
	}
	if !strings.Contains(m.View(), m.link.Link) {
		t.Error("view should show the link")
	}
	if store.ActiveCount() != 1 {
		t.Errorf("active sessions = %d, want 1", store.ActiveCount())
	}
}

func TestPresentWithoutServer(t *testing.T) {
	m, _ := testModel(t, false)
	m = press(t, m, runes("p"))
	last, ok := m.notices.Latest()
	if !ok || !strings.Contains(last.Text, "share a link") {
		t.Errorf("expected a notice pointing to sharing, got %+v", last)
	}
}

func TestEndStopsNavigation(t *testing.T) {
	m, _ := testModel(t, false)
	m = press(t, m, runes("e"))
	if !m.ended {
		t.Fatal("presentation not ended")
	}
	m = press(t, m, tea.KeyMsg{Type: tea.KeyRight})
	if m.index != 0 {
		t.Errorf("ended presentation moved to %d", m.index)
	}
	if !strings.Contains(m.View(), "Ended") {
		t.Error("status bar should say ended")
	}
}
