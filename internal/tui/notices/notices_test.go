package notices

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
)

func TestAddAndLatest(t *testing.T) {
	m := New()
	if _, ok := m.Latest(); ok {
		t.Fatal("empty history should have no latest entry")
	}
	m.Add(KindWarn, "display did not receive fragment 2")
	last, ok := m.Latest()
	if !ok || last.Text != "display did not receive fragment 2" || last.Kind != KindWarn {
		t.Errorf("Latest() = %+v, %v", last, ok)
	}
}

func TestRepeatsCollapse(t *testing.T) {
	m := New()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m.AddAt(t0, KindWarn, "projector unreachable")
	m.AddAt(t0.Add(time.Second), KindWarn, "projector unreachable")
	m.AddAt(t0.Add(2*time.Second), KindWarn, "projector unreachable")
	if m.Len() != 1 {
		t.Fatalf("expected repeats to collapse into 1 entry, got %d", m.Len())
	}
	last, _ := m.Latest()
	if last.Repeats != 2 || !last.At.Equal(t0.Add(2*time.Second)) {
		t.Errorf("unexpected collapsed entry %+v", last)
	}
	if !strings.Contains(last.Line(80), "(×3)") {
		t.Errorf("line should show the count: %q", last.Line(80))
	}

	m.AddAt(t0, KindInfo, "projector unreachable")
	if m.Len() != 2 {
		t.Error("a different kind should start a new entry")
	}
}

func TestCapacity(t *testing.T) {
	m := New()
	for i := 0; i < capacity+50; i++ {
		m.Add(KindInfo, strings.Repeat("x", i%7+1)+string(rune('a'+i%26)))
	}
	if m.Len() != capacity {
		t.Errorf("expected %d entries, got %d", capacity, m.Len())
	}
}

func TestScrollBounds(t *testing.T) {
	m := New()
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		m.Add(KindInfo, s)
	}
	m.ScrollUp(100)
	if m.back != 4 {
		t.Errorf("expected to stop at the oldest entry, back=%d", m.back)
	}
	if from, to := m.window(3); from != 0 || to != 1 {
		t.Errorf("window = [%d,%d), want [0,1)", from, to)
	}
	m.ScrollDown(10)
	if m.back != 0 {
		t.Errorf("expected back=0, got %d", m.back)
	}
	m.ScrollUp(2)
	m.Add(KindInfo, "f")
	if m.back != 0 {
		t.Error("a new notice should snap the view to the newest entry")
	}
}

func TestLineFitsWidth(t *testing.T) {
	e := Entry{At: time.Now(), Kind: KindLink, Text: strings.Repeat("link ", 40)}
	if w := lipgloss.Width(e.Line(40)); w > 40 {
		t.Errorf("line is %d cells wide, want <= 40", w)
	}
}

func TestView(t *testing.T) {
	m := New()
	if v := m.View(80, 20); !strings.Contains(v, "Nothing to report") {
		t.Error("empty view should say there is nothing to report")
	}
	m.Add(KindLink, "shared link created")
	m.Add(KindWarn, "projector left")
	v := m.View(80, 20)
	for _, want := range []string{"shared link created", "projector left", "2 notices"} {
		if !strings.Contains(v, want) {
			t.Errorf("view should contain %q", want)
		}
	}
}
