package presenter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lessoncast/lessoncast/internal/content"
	"github.com/lessoncast/lessoncast/internal/protocol"
	"github.com/lessoncast/lessoncast/internal/session"
	"github.com/lessoncast/lessoncast/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLesson(n int) *content.Lesson {
	l := &content.Lesson{ID: "L1", Title: "Cells"}
	for i := 0; i < n; i++ {
		l.Fragments = append(l.Fragments, content.Fragment{
			Title:  fmt.Sprintf("Part %d", i+1),
			Slides: []content.SlideContent{{Body: fmt.Sprintf("slide %d", i+1)}},
		})
	}
	return l
}

// pipeStrategy hands out one end of a pipe and keeps the other as the surface.
type pipeStrategy struct {
	kind transport.Kind
	fail error

	mu      sync.Mutex
	surface transport.Connection
	target  transport.Target
}

func (s *pipeStrategy) Kind() transport.Kind       { return s.kind }
func (s *pipeStrategy) Probe(context.Context) bool { return true }

func (s *pipeStrategy) Connect(_ context.Context, target transport.Target) (transport.Connection, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	presenter, surface := transport.Pipe(s.kind, 16)
	s.mu.Lock()
	s.surface, s.target = surface, target
	s.mu.Unlock()
	return presenter, nil
}

func (s *pipeStrategy) Surface() transport.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surface
}

func startPush(t *testing.T, c *Controller) (transport.Connection, chan protocol.Message) {
	t.Helper()
	strategy := &pipeStrategy{kind: transport.KindNative}
	adapter := transport.NewAdapter([]transport.Strategy{strategy})
	require.NoError(t, c.Start(context.Background(), adapter, content.CategorySet{content.Slide}))

	got := make(chan protocol.Message, 32)
	surface := strategy.Surface()
	surface.OnMessage(func(m protocol.Message) { got <- m })
	return surface, got
}

func recv(t *testing.T, ch chan protocol.Message) protocol.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return protocol.Message{}
	}
}

func assertSilent(t *testing.T, ch chan protocol.Message) {
	t.Helper()
	select {
	case m := <-ch:
		t.Fatalf("unexpected message %s seq=%d", m.Type, m.Seq)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNavigateForwardAcrossTransportAndStore(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	sess, err := store.Create(ctx, "L1", 0, content.CategorySet{content.Slide})
	require.NoError(t, err)

	c := New(testLesson(5), 0, store, WithHeartbeat(time.Hour))
	_, got := startPush(t, c)
	require.NoError(t, c.AttachSession(ctx, sess.ID))

	first := recv(t, got)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, 0, first.FragmentIndex)
	assert.Equal(t, "slide 1", first.Slide)

	for i := 0; i < 3; i++ {
		assert.True(t, c.Navigate(ctx, Next))
	}
	assert.Equal(t, 3, c.Index())

	var last protocol.Message
	for i := 0; i < 3; i++ {
		last = recv(t, got)
	}
	assert.Equal(t, protocol.MsgUpdateSlide, last.Type)
	assert.Equal(t, uint64(4), last.Seq)
	assert.Equal(t, 3, last.FragmentIndex)
	assert.Equal(t, "Cells", last.LessonTitle)

	rec, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.FragmentIndex)
}

func TestNavigateAtBoundaryEmitsNothing(t *testing.T) {
	ctx := context.Background()
	c := New(testLesson(3), 0, nil)
	_, got := startPush(t, c)
	recv(t, got)

	assert.False(t, c.Navigate(ctx, Prev))
	assert.Equal(t, 0, c.Index())
	assertSilent(t, got)

	assert.True(t, c.GoTo(ctx, 99))
	assert.Equal(t, 2, c.Index())
	assert.Equal(t, 2, recv(t, got).FragmentIndex)

	assert.False(t, c.Navigate(ctx, Next))
	assertSilent(t, got)
}

func TestNavigateWithoutDisplayKeepsPosition(t *testing.T) {
	c := New(testLesson(4), 1, nil)
	assert.True(t, c.Navigate(context.Background(), Next))
	assert.Equal(t, 2, c.Index())
}

func TestStartFailureReportsNotice(t *testing.T) {
	c := New(testLesson(2), 0, nil)
	adapter := transport.NewAdapter([]transport.Strategy{
		&pipeStrategy{kind: transport.KindWindow, fail: errors.New("no display")},
	})

	err := c.Start(context.Background(), adapter, content.CategorySet{content.Slide})
	require.ErrorIs(t, err, transport.ErrTransportUnavailable)
	assert.ErrorIs(t, err, transport.ErrWindowBlocked)

	select {
	case n := <-c.Notices():
		assert.Equal(t, Warning, n.Level)
		assert.Contains(t, n.Text, "share a link")
	case <-time.After(time.Second):
		t.Fatal("no notice")
	}
	_, presenting := c.Presenting()
	assert.False(t, presenting)
}

func TestSendFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	c := New(testLesson(5), 0, nil)
	surface, got := startPush(t, c)
	recv(t, got)

	surface.Close()
	require.Eventually(t, func() bool {
		_, ok := c.Presenting()
		return !ok
	}, time.Second, 10*time.Millisecond)

	assert.True(t, c.Navigate(ctx, Next))
	assert.Equal(t, 1, c.Index())
}

func TestSurfaceTracking(t *testing.T) {
	c := New(testLesson(2), 0, nil)
	surface, got := startPush(t, c)
	recv(t, got)

	ctx := context.Background()
	require.NoError(t, surface.Send(ctx, protocol.Message{Type: protocol.MsgSurfaceJoined, Status: &protocol.SurfaceStatus{SurfaceID: "s1", Name: "projector"}}))
	require.NoError(t, surface.Send(ctx, protocol.Message{Type: protocol.MsgSurfaceStatus, Status: &protocol.SurfaceStatus{SurfaceID: "s1", Name: "projector", State: "rendering", FragmentIndex: 0}}))

	require.Eventually(t, func() bool {
		s := c.Surfaces()
		return len(s) == 1 && s[0].State == "rendering"
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, surface.Send(ctx, protocol.Message{Type: protocol.MsgSurfaceLeft, Status: &protocol.SurfaceStatus{SurfaceID: "s1", Name: "projector"}}))
	require.Eventually(t, func() bool { return len(c.Surfaces()) == 0 }, time.Second, 10*time.Millisecond)
}

func TestEndDeactivatesAndTerminates(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	sess, err := store.Create(ctx, "L1", 0, content.CategorySet{content.Reading})
	require.NoError(t, err)

	c := New(testLesson(3), 0, store, WithHeartbeat(time.Hour))
	surface, got := startPush(t, c)
	recv(t, got)
	require.NoError(t, c.AttachSession(ctx, sess.ID))

	require.NoError(t, c.End(ctx))

	m := recv(t, got)
	assert.Equal(t, protocol.MsgTerminate, m.Type)
	assert.Equal(t, protocol.ReasonPresenterEnded, m.Reason)

	select {
	case <-surface.Done():
	case <-time.After(time.Second):
		t.Fatal("surface connection still open")
	}

	rec, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, rec.Active)
	assert.ErrorIs(t, store.UpdateFragmentIndex(ctx, sess.ID, 1), session.ErrNotFound)

	assert.False(t, c.Navigate(ctx, Next))
	assert.NoError(t, c.End(ctx))
}

func TestHeartbeatTouchesSession(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	sess, err := store.Create(ctx, "L1", 0, content.CategorySet{content.Slide})
	require.NoError(t, err)

	c := New(testLesson(3), 0, store, WithHeartbeat(10*time.Millisecond))
	require.NoError(t, c.AttachSession(ctx, sess.ID))
	after, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		rec, err := store.Get(ctx, sess.ID)
		return err == nil && rec.LastUpdatedAt.After(after.LastUpdatedAt)
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, c.End(ctx))
}

func TestDeactivatedSessionIsDetached(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	sess, err := store.Create(ctx, "L1", 0, content.CategorySet{content.Slide})
	require.NoError(t, err)

	c := New(testLesson(3), 0, store, WithHeartbeat(time.Hour))
	require.NoError(t, c.AttachSession(ctx, sess.ID))
	require.NoError(t, store.Deactivate(ctx, sess.ID))

	assert.True(t, c.Navigate(ctx, Next))
	assert.Empty(t, c.SessionID())
	assert.Equal(t, 1, c.Index())
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("next")
	require.NoError(t, err)
	assert.Equal(t, Next, d)
	_, err = ParseDirection("sideways")
	assert.Error(t, err)
}
