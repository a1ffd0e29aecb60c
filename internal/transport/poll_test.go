package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lessoncast/lessoncast/internal/content"
	"github.com/lessoncast/lessoncast/internal/protocol"
	"github.com/lessoncast/lessoncast/internal/session"
)

func collect(conn Connection) (<-chan protocol.Message, func()) {
	ch := make(chan protocol.Message, 64)
	conn.OnMessage(func(m protocol.Message) { ch <- m })
	return ch, func() { conn.Close() }
}

func next(t *testing.T, ch <-chan protocol.Message) protocol.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return protocol.Message{}
	}
}

func TestPollerReportsSessionState(t *testing.T) {
	store := session.NewMemoryStore()
	ctx := context.Background()
	sess, err := store.Create(ctx, "l1", 2, content.CategorySet{content.Slide, content.Reading})
	if err != nil {
		t.Fatal(err)
	}

	p := NewPoller(store, sess.ID, 5*time.Millisecond)
	ch, stop := collect(p)
	defer stop()

	m := next(t, ch)
	if m.Type != protocol.MsgUpdateSlide || m.FragmentIndex != 2 || m.LessonID != "l1" {
		t.Fatalf("first poll = %+v", m)
	}
	if m.Seq != sess.Revision || m.UpdatedAt.IsZero() {
		t.Fatalf("seq = %d updatedAt = %v", m.Seq, m.UpdatedAt)
	}
	if len(m.Categories) != 2 {
		t.Fatalf("categories = %v", m.Categories)
	}
	if p.State() != Connected {
		t.Fatalf("state = %s", p.State())
	}

	if err := store.UpdateFragmentIndex(ctx, sess.ID, 3); err != nil {
		t.Fatal(err)
	}
	for m = next(t, ch); m.FragmentIndex != 3; m = next(t, ch) {
	}
	if m.Seq <= sess.Revision {
		t.Fatalf("seq did not advance: %d", m.Seq)
	}

	if err := store.Deactivate(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}
	for m = next(t, ch); m.Type != protocol.MsgTerminate; m = next(t, ch) {
	}
	select {
	case <-p.Done():
	case <-time.After(time.Second):
		t.Fatal("poller kept running after termination")
	}
	if p.State() != Terminated {
		t.Fatalf("state = %s", p.State())
	}
}

func TestPollerUnknownSessionTerminates(t *testing.T) {
	p := NewPoller(session.NewMemoryStore(), "missing", time.Millisecond)
	ch, stop := collect(p)
	defer stop()

	m := next(t, ch)
	if m.Type != protocol.MsgTerminate || m.Reason != protocol.ReasonSessionEnded {
		t.Fatalf("message = %+v", m)
	}
}

type flakyStore struct {
	session.Store
	failures atomic.Int32

	mu       sync.Mutex
	inFlight int
	overlap  bool
	delay    time.Duration
}

func (f *flakyStore) Get(ctx context.Context, id string) (*session.Session, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > 1 {
		f.overlap = true
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	time.Sleep(f.delay)
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("connection reset")
	}
	return f.Store.Get(ctx, id)
}

func TestPollerTransientFailureKeepsPolling(t *testing.T) {
	mem := session.NewMemoryStore()
	sess, _ := mem.Create(context.Background(), "l1", 0, content.CategorySet{content.Slide})
	store := &flakyStore{Store: mem}
	store.failures.Store(2)

	p := NewPoller(store, sess.ID, time.Millisecond)
	ch, stop := collect(p)
	defer stop()

	for i := 0; i < 2; i++ {
		if m := next(t, ch); m.Type != protocol.MsgPollFailed {
			t.Fatalf("poll %d = %s, want poll-failed", i, m.Type)
		}
	}
	if m := next(t, ch); m.Type != protocol.MsgUpdateSlide {
		t.Fatalf("poll after recovery = %s", m.Type)
	}
}

func TestPollerNeverOverlaps(t *testing.T) {
	mem := session.NewMemoryStore()
	sess, _ := mem.Create(context.Background(), "l1", 0, content.CategorySet{content.Slide})
	store := &flakyStore{Store: mem, delay: 5 * time.Millisecond}

	// The interval is shorter than a read, so overlapping reads would show.
	p := NewPoller(store, sess.ID, time.Microsecond)
	ch, stop := collect(p)
	for i := 0; i < 10; i++ {
		next(t, ch)
	}
	stop()

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.overlap {
		t.Fatal("poll reads overlapped")
	}
}

func TestPollerIsReceiveOnly(t *testing.T) {
	p := NewPoller(session.NewMemoryStore(), "x", time.Second)
	if err := p.Send(context.Background(), updateMsg(1)); !errors.Is(err, ErrReceiveOnly) {
		t.Fatalf("send = %v, want ErrReceiveOnly", err)
	}
	p.Close()
	<-p.Done()
}

func TestLinkStrategyNeedsSession(t *testing.T) {
	s := &LinkStrategy{Store: session.NewMemoryStore(), Interval: time.Second}
	if _, err := s.Connect(context.Background(), Target{}); err == nil {
		t.Fatal("expected error without session id")
	}
	a := NewAdapter([]Strategy{s})
	conn, err := a.Connect(context.Background(), Target{SessionID: "abc"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer conn.Close()
	if conn.Kind() != KindLinkPoll || a.Phase() != PhaseConnected {
		t.Fatalf("kind = %s phase = %s", conn.Kind(), a.Phase())
	}
}
