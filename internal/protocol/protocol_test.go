package protocol

import (
	"strings"
	"testing"
)

func TestUpdateSlideWireShape(t *testing.T) {
	data, err := Encode(UpdateSlide(NavigationEvent{
		Seq:           4,
		FragmentIndex: 2,
		LessonTitle:   "Cells",
		Slide:         "# Membrane",
	}))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	s := string(data)
	for _, want := range []string{`"type":"update-slide"`, `"fragmentIndex":2`, `"lessonTitle":"Cells"`, `"slide":"# Membrane"`, `"seq":4`} {
		if !strings.Contains(s, want) {
			t.Errorf("encoded message %s missing %s", s, want)
		}
	}
	for _, absent := range []string{`"route"`, `"status"`, `"reason"`} {
		if strings.Contains(s, absent) {
			t.Errorf("encoded message %s should omit %s", s, absent)
		}
	}
}

func TestEventRoundTrip(t *testing.T) {
	ev := NavigationEvent{Seq: 9, LessonID: "L1", FragmentIndex: 3, LessonTitle: "Intro", Slide: "x"}
	data, _ := Encode(UpdateSlide(ev))
	m, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got, ok := m.Event()
	if !ok {
		t.Fatal("Event() ok = false for update-slide")
	}
	if got != ev {
		t.Errorf("Event() = %+v, want %+v", got, ev)
	}
}

func TestEventOnOtherTypes(t *testing.T) {
	if _, ok := Terminate(ReasonPresenterEnded).Event(); ok {
		t.Error("terminate message should not yield an event")
	}
}
