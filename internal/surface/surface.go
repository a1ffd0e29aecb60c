// Package surface is the passive display side of a presentation. A surface
// resolves what to show from its link, then follows exactly one transport:
// push messages from a presenter, or session records read by a poller.
package surface

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lessoncast/lessoncast/internal/content"
	"github.com/lessoncast/lessoncast/internal/displayurl"
	"github.com/lessoncast/lessoncast/internal/protocol"
	"github.com/lessoncast/lessoncast/internal/session"
	"github.com/lessoncast/lessoncast/internal/transport"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("lessoncast")

var (
	// ErrMixedTransport is returned when a surface already following one
	// transport kind is handed a connection of another.
	ErrMixedTransport = errors.New("surface is already attached to another transport kind")
	// ErrEnded is returned by operations on a surface that reached the end state.
	ErrEnded = errors.New("presentation ended")
)

type State int

const (
	AwaitingInput State = iota
	Resolved
	Rendering
	Stale
	Ended
)

func (s State) String() string {
	switch s {
	case AwaitingInput:
		return "awaiting-input"
	case Resolved:
		return "resolved"
	case Rendering:
		return "rendering"
	case Stale:
		return "stale"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

const (
	defaultStaleThreshold = 5
	loadTimeout           = 10 * time.Second
	statusTimeout         = 5 * time.Second
)

// Notes shown alongside the state.
const (
	NoteWaitingPresenter = "waiting for presenter"
	NotePresenterAway    = "presenter disconnected"
	NotePresenterIdle    = "presenter inactive"
	NoteStoreUnreachable = "cannot reach the session store"
	NoteConnectionLost   = "connection lost"
)

// View is an immutable snapshot for rendering.
type View struct {
	State         State
	Kind          string
	Receiver      bool
	Name          string
	LessonID      string
	LessonTitle   string
	FragmentIndex int
	Total         int
	Categories    content.CategorySet
	Content       content.PartialFragment
	Note          string
}

type Options struct {
	// Name identifies the surface to the presenter.
	Name string
	// StaleThreshold is the number of consecutive unchanged or failed polls
	// before the surface is shown as stale.
	StaleThreshold int
	// Receiver keeps the surface alive across presentations: terminate
	// returns it to awaiting input and a new route starts over.
	Receiver bool
	// OnChange is called after every state change, outside internal locks.
	OnChange func(View)
}

// Surface is one display instance.
type Surface struct {
	lessons content.Source
	opts    Options
	ctx     context.Context
	cancel  context.CancelFunc

	applyMu sync.Mutex // serializes Resolve, Attach and Apply

	mu         sync.Mutex
	state      State
	note       string
	conn       transport.Connection
	kind       transport.Kind
	hasKind    bool
	lesson     *content.Lesson
	lessonID   string
	title      string
	slide      string
	index      int
	categories content.CategorySet
	rendered   content.PartialFragment

	applied       bool
	lastSeq       uint64
	lastUpdatedAt time.Time
	unchanged     int
	failures      int
}

func New(lessons content.Source, opts Options) *Surface {
	if opts.StaleThreshold <= 0 {
		opts.StaleThreshold = defaultStaleThreshold
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Surface{lessons: lessons, opts: opts, ctx: ctx, cancel: cancel}
	if opts.Receiver {
		s.note = NoteWaitingPresenter
	}
	return s
}

// View returns the current snapshot.
func (s *Surface) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Surface) viewLocked() View {
	v := View{
		State:         s.state,
		Receiver:      s.opts.Receiver,
		Name:          s.opts.Name,
		LessonID:      s.lessonID,
		LessonTitle:   s.title,
		FragmentIndex: s.index,
		Total:         s.lesson.Len(),
		Categories:    append(content.CategorySet(nil), s.categories...),
		Content:       s.rendered,
		Note:          s.note,
	}
	if s.hasKind {
		v.Kind = s.kind.String()
	}
	return v
}

func (s *Surface) changed() {
	if s.opts.OnChange == nil {
		return
	}
	s.opts.OnChange(s.View())
}

// Resolve identifies what to show from link params. Direct links render
// immediately. Session links are resolved through store; a session that is
// gone ends the surface and returns session.ErrNotFound, while a transient
// store failure leaves the surface awaiting its first successful poll.
func (s *Surface) Resolve(ctx context.Context, params displayurl.Params, store session.Store) error {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	switch params.Mode() {
	case displayurl.ModeAwaiting:
		s.mu.Lock()
		s.state = AwaitingInput
		s.mu.Unlock()
		s.changed()
		return nil

	case displayurl.ModeDirect:
		cats := params.Categories
		if cats.Empty() {
			cats = displayurl.DefaultCategories
		}
		lesson, err := s.lessons.Lesson(ctx, params.LessonID)
		if err != nil {
			return fmt.Errorf("loading lesson %s: %w", params.LessonID, err)
		}
		s.mu.Lock()
		s.categories = cats
		s.setLessonLocked(lesson, params.LessonID)
		s.index = lesson.ClampIndex(params.FragmentIndex)
		s.state = Resolved
		s.mu.Unlock()
		s.changed()
		s.render()
		return nil

	case displayurl.ModeSession:
		if store == nil {
			return errors.New("session link needs a session store")
		}
		rec, err := store.Get(ctx, params.SessionID)
		switch {
		case errors.Is(err, session.ErrNotFound):
			s.end(protocol.ReasonSessionEnded)
			return err
		case err != nil:
			log.Warningf("resolving session %s: %v", params.SessionID, err)
			s.mu.Lock()
			s.failures++
			s.note = NoteStoreUnreachable
			s.mu.Unlock()
			s.changed()
			return nil
		case !rec.Active:
			s.end(protocol.ReasonSessionEnded)
			return session.ErrNotFound
		}
		lesson, err := s.lessons.Lesson(ctx, rec.LessonID)
		if err != nil {
			return fmt.Errorf("loading lesson %s: %w", rec.LessonID, err)
		}
		s.mu.Lock()
		s.categories = rec.Categories
		s.setLessonLocked(lesson, rec.LessonID)
		s.index = lesson.ClampIndex(rec.FragmentIndex)
		s.applied = true
		s.lastSeq = rec.Revision
		s.lastUpdatedAt = rec.LastUpdatedAt
		s.state = Resolved
		s.mu.Unlock()
		s.changed()
		s.render()
		return nil
	}
	return fmt.Errorf("unknown display mode %v", params.Mode())
}

func (s *Surface) setLessonLocked(l *content.Lesson, id string) {
	s.lesson = l
	s.lessonID = id
	if l != nil {
		s.title = l.Title
	}
}

// Attach makes conn the surface's transport and starts consuming it. A
// reconnect of the same kind replaces the old connection; a different kind
// is refused.
func (s *Surface) Attach(conn transport.Connection) error {
	s.applyMu.Lock()
	s.mu.Lock()
	if s.state == Ended {
		s.mu.Unlock()
		s.applyMu.Unlock()
		return ErrEnded
	}
	if s.hasKind && s.kind != conn.Kind() {
		kind := s.kind
		s.mu.Unlock()
		s.applyMu.Unlock()
		return fmt.Errorf("%w: following %s, got %s", ErrMixedTransport, kind, conn.Kind())
	}
	old := s.conn
	s.conn, s.kind, s.hasKind = conn, conn.Kind(), true
	s.mu.Unlock()
	s.applyMu.Unlock()

	if old != nil && old != conn {
		old.Close()
	}
	s.changed()
	conn.OnMessage(s.Apply)
	s.report(conn)
	return nil
}

// Apply handles one message from the attached transport.
func (s *Surface) Apply(msg protocol.Message) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	ended := s.state == Ended
	s.mu.Unlock()
	if ended {
		return
	}

	switch msg.Type {
	case protocol.MsgUpdateSlide:
		s.applyUpdate(msg)
	case protocol.MsgPollFailed:
		s.pollFailed(msg.Reason)
	case protocol.MsgTerminate:
		s.terminate(msg.Reason)
	case protocol.MsgRouted:
		s.routed(msg.Route)
	case protocol.MsgPresenterLeft:
		s.mu.Lock()
		if s.state == Rendering {
			s.state = Stale
		}
		s.note = NotePresenterAway
		s.mu.Unlock()
		s.changed()
		s.reportCurrent()
	case protocol.MsgPresenterJoined:
		s.mu.Lock()
		// A restarted presenter numbers its events from the start again.
		s.applied = false
		if s.state == Stale {
			s.state = Rendering
		}
		s.note = ""
		s.mu.Unlock()
		s.changed()
		s.reportCurrent()
	case protocol.MsgError:
		log.Warningf("hub error: %s", msg.Reason)
	default:
		log.Debugf("surface ignoring %s", msg.Type)
	}
}

func (s *Surface) polling() bool {
	return s.hasKind && s.kind == transport.KindLinkPoll
}

func (s *Surface) applyUpdate(msg protocol.Message) {
	s.mu.Lock()
	poll := s.polling()
	if s.applied && (msg.Seq < s.lastSeq || (!poll && msg.Seq == s.lastSeq)) {
		log.Debugf("discarding update seq %d, already applied %d", msg.Seq, s.lastSeq)
		s.mu.Unlock()
		return
	}
	if poll {
		s.failures = 0
		fresh := !s.applied || msg.Seq > s.lastSeq || !msg.UpdatedAt.Equal(s.lastUpdatedAt)
		if !fresh {
			s.unchanged++
			prev := s.state
			if s.unchanged >= s.opts.StaleThreshold && s.state == Rendering {
				s.state = Stale
				s.note = NotePresenterIdle
			} else if s.unchanged < s.opts.StaleThreshold && s.state == Stale {
				s.state = Rendering
				s.note = ""
			}
			now := s.state
			s.mu.Unlock()
			if prev != now {
				s.changed()
			}
			return
		}
		s.unchanged = 0
		s.lastUpdatedAt = msg.UpdatedAt
		if len(msg.Categories) > 0 {
			if cats, err := content.CategoriesFromStrings(msg.Categories); err == nil {
				s.categories = cats
			}
		}
	}
	s.applied = true
	s.lastSeq = msg.Seq
	current := s.lesson
	s.mu.Unlock()

	lesson := current
	if msg.LessonID != "" && (current == nil || current.ID != msg.LessonID) {
		lesson = s.loadLesson(msg.LessonID)
	}

	s.mu.Lock()
	if msg.LessonID != "" && (msg.LessonID != s.lessonID || s.lesson == nil) {
		s.lesson, s.lessonID = lesson, msg.LessonID
	}
	if msg.LessonTitle != "" {
		s.title = msg.LessonTitle
	} else if s.lesson != nil {
		s.title = s.lesson.Title
	}
	s.slide = msg.Slide
	s.index = msg.FragmentIndex
	if s.lesson != nil {
		s.index = s.lesson.ClampIndex(msg.FragmentIndex)
	}
	s.note = ""
	s.mu.Unlock()
	s.render()
	s.reportCurrent()
}

func (s *Surface) loadLesson(id string) *content.Lesson {
	ctx, cancel := context.WithTimeout(s.ctx, loadTimeout)
	defer cancel()
	l, err := s.lessons.Lesson(ctx, id)
	if err != nil {
		log.Warningf("loading lesson %s: %v", id, err)
		return nil
	}
	return l
}

// render filters the current fragment into the displayed content. Without
// the lesson the pushed slide payload is shown on its own.
func (s *Surface) render() {
	s.mu.Lock()
	if s.categories.Empty() {
		s.categories = append(content.CategorySet(nil), displayurl.DefaultCategories...)
	}
	if f, err := s.lesson.Fragment(s.index); s.lesson != nil && err == nil {
		s.rendered = content.Filter(f, s.categories)
	} else {
		s.rendered = content.PartialFragment{Title: s.title}
		if s.categories.Has(content.Slide) && s.slide != "" {
			s.rendered.Slide = &content.Block{Body: s.slide}
		}
	}
	s.state = Rendering
	s.mu.Unlock()
	s.changed()
}

func (s *Surface) pollFailed(reason string) {
	s.mu.Lock()
	s.failures++
	log.Debugf("poll failure %d/%d: %s", s.failures, s.opts.StaleThreshold, reason)
	if s.failures < s.opts.StaleThreshold {
		s.mu.Unlock()
		return
	}
	if s.state == Rendering || s.state == Resolved {
		s.state = Stale
	}
	s.note = NoteStoreUnreachable
	s.mu.Unlock()
	s.changed()
}

func (s *Surface) terminate(reason string) {
	if !s.opts.Receiver {
		s.end(reason)
		return
	}
	log.Infof("presentation ended (%s), receiver idle", reason)
	s.mu.Lock()
	s.resetLocked()
	s.state = AwaitingInput
	s.note = NoteWaitingPresenter
	conn := s.conn
	s.mu.Unlock()
	s.changed()
	s.report(conn)
}

func (s *Surface) resetLocked() {
	s.lesson, s.lessonID, s.title, s.slide = nil, "", "", ""
	s.index = 0
	s.categories = nil
	s.rendered = content.PartialFragment{}
	s.applied, s.lastSeq = false, 0
	s.lastUpdatedAt = time.Time{}
	s.unchanged, s.failures = 0, 0
}

func (s *Surface) routed(route *protocol.Route) {
	if route == nil {
		return
	}
	cats, err := content.CategoriesFromStrings(route.Categories)
	if err != nil {
		log.Warningf("route %s: %v", route.ChannelID, err)
		cats = nil
	}
	lesson := s.loadLesson(route.LessonID)

	s.mu.Lock()
	s.resetLocked()
	s.categories = cats
	s.setLessonLocked(lesson, route.LessonID)
	s.index = route.FragmentIndex
	if lesson != nil {
		s.index = lesson.ClampIndex(route.FragmentIndex)
	}
	s.state = Resolved
	s.note = ""
	s.mu.Unlock()
	log.Infof("routed into channel %s for lesson %s", route.ChannelID, route.LessonID)
	s.changed()
	s.render()
	s.reportCurrent()
}

func (s *Surface) end(reason string) {
	s.mu.Lock()
	if s.state == Ended {
		s.mu.Unlock()
		return
	}
	s.state = Ended
	s.note = endNote(reason)
	conn := s.conn
	s.mu.Unlock()
	log.Infof("display ended: %s", reason)
	s.changed()
	if conn != nil {
		// Apply runs on the connection's delivery goroutine.
		go conn.Close()
	}
}

func endNote(reason string) string {
	switch reason {
	case protocol.ReasonSessionEnded:
		return "session ended"
	case protocol.ReasonPresenterEnded:
		return "the presenter ended the presentation"
	case protocol.ReasonPresenterLost:
		return "the presenter did not come back"
	case protocol.ReasonWindowClosed:
		return "window closed"
	case "":
		return "presentation ended"
	default:
		return reason
	}
}

func (s *Surface) reportCurrent() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	s.report(conn)
}

// report tells the presenter what this surface shows. The poll transport has
// no back channel.
func (s *Surface) report(conn transport.Connection) {
	if conn == nil || !conn.Kind().Push() {
		return
	}
	s.mu.Lock()
	status := &protocol.SurfaceStatus{Name: s.opts.Name, State: s.state.String(), FragmentIndex: s.index}
	s.mu.Unlock()
	ctx, cancel := context.WithTimeout(s.ctx, statusTimeout)
	defer cancel()
	if err := conn.Send(ctx, protocol.Message{Type: protocol.MsgSurfaceStatus, Status: status}); err != nil {
		log.Debugf("status report: %v", err)
	}
}

func (s *Surface) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Run follows the attached transport until it finishes or ctx is done. A
// surface without a transport just waits for ctx.
func (s *Surface) Run(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		<-ctx.Done()
		s.Close()
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		s.Close()
		return ctx.Err()
	case <-conn.Done():
	}

	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	s.mu.Lock()
	if s.state == Ended {
		s.mu.Unlock()
		return nil
	}
	if s.opts.Receiver {
		// Receivers outlive their connection; the caller reattaches.
		s.resetLocked()
		s.conn, s.hasKind = nil, false
		s.state = AwaitingInput
		s.note = NoteConnectionLost
		s.mu.Unlock()
		s.changed()
		return nil
	}
	s.mu.Unlock()
	if conn.State() == transport.Terminated {
		s.end("")
	} else {
		s.end(NoteConnectionLost)
	}
	return nil
}

// Close stops the transport; a poller is cancelled with it.
func (s *Surface) Close() {
	s.cancel()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}
