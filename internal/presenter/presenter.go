// Package presenter owns the presenter's navigation position and delivers it
// to display surfaces. Delivery failures are reported as notices and never
// change the local position.
package presenter

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lessoncast/lessoncast/internal/content"
	"github.com/lessoncast/lessoncast/internal/protocol"
	"github.com/lessoncast/lessoncast/internal/session"
	"github.com/lessoncast/lessoncast/internal/transport"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("lessoncast")

// ErrEnded is returned by operations on a controller whose presentation ended.
var ErrEnded = errors.New("presentation ended")

type Direction int

const (
	Prev Direction = -1
	Next Direction = 1
)

// ParseDirection accepts "prev" and "next".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "prev":
		return Prev, nil
	case "next":
		return Next, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

type Level int

const (
	Info Level = iota
	Warning
)

// Notice is a user-facing message about delivery or surface activity.
type Notice struct {
	Level Level
	Text  string
	At    time.Time
}

const (
	noticeBuffer     = 32
	defaultHeartbeat = 3 * time.Second
	writeTimeout     = 5 * time.Second
)

type Option func(*Controller)

// WithHeartbeat sets how often an attached session is touched.
func WithHeartbeat(d time.Duration) Option {
	return func(c *Controller) { c.heartbeat = d }
}

// Controller is the presenter state for one lesson.
type Controller struct {
	lesson    *content.Lesson
	store     session.Store
	heartbeat time.Duration

	emitMu sync.Mutex // orders deliveries

	mu        sync.Mutex
	index     int
	seq       uint64
	conn      transport.Connection
	sessionID string
	surfaces  map[string]protocol.SurfaceStatus
	hbStop    chan struct{}
	ended     bool

	notices chan Notice
}

// New starts a controller at start, clamped into the lesson. store may be
// nil when no session will be attached.
func New(lesson *content.Lesson, start int, store session.Store, opts ...Option) *Controller {
	c := &Controller{
		lesson:    lesson,
		store:     store,
		heartbeat: defaultHeartbeat,
		index:     lesson.ClampIndex(start),
		surfaces:  make(map[string]protocol.SurfaceStatus),
		notices:   make(chan Notice, noticeBuffer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) Lesson() *content.Lesson { return c.lesson }

// Index is the current fragment index.
func (c *Controller) Index() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

// Notices delivers notices; when nobody reads, the oldest are dropped.
func (c *Controller) Notices() <-chan Notice { return c.notices }

// Navigate moves one fragment in dir. At either end of the lesson it does
// nothing and reports false.
func (c *Controller) Navigate(ctx context.Context, dir Direction) bool {
	return c.move(ctx, func(cur int) int { return cur + int(dir) })
}

// GoTo jumps to i, clamped into the lesson. It reports whether the position
// changed; only a change emits a navigation event.
func (c *Controller) GoTo(ctx context.Context, i int) bool {
	return c.move(ctx, func(int) int { return i })
}

func (c *Controller) move(ctx context.Context, target func(cur int) int) bool {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	next := c.lesson.ClampIndex(target(c.index))
	if c.ended || next == c.index {
		c.mu.Unlock()
		return false
	}
	c.index = next
	ev := c.eventLocked()
	conn, sessionID := c.conn, c.sessionID
	c.mu.Unlock()

	c.deliver(ctx, ev, conn, sessionID)
	return true
}

func (c *Controller) eventLocked() protocol.NavigationEvent {
	c.seq++
	ev := protocol.NavigationEvent{
		Seq:           c.seq,
		LessonID:      c.lesson.ID,
		FragmentIndex: c.index,
		LessonTitle:   c.lesson.Title,
	}
	if f, err := c.lesson.Fragment(c.index); err == nil {
		ev.Slide = content.PrimarySlide(f).Body
	}
	return ev
}

func (c *Controller) deliver(ctx context.Context, ev protocol.NavigationEvent, conn transport.Connection, sessionID string) {
	if conn != nil {
		sctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := conn.Send(sctx, protocol.UpdateSlide(ev))
		cancel()
		if err != nil {
			log.Warningf("delivering fragment %d over %s: %v", ev.FragmentIndex, conn.Kind(), err)
			c.notify(Warning, fmt.Sprintf("display did not receive fragment %d: %v", ev.FragmentIndex+1, err))
		}
	}
	if sessionID != "" {
		if err := c.store.UpdateFragmentIndex(ctx, sessionID, ev.FragmentIndex); err != nil {
			c.sessionFailed(sessionID, err)
		}
	}
}

// Start connects a display through adapter and shows the current position
// on it. On failure the presenter keeps working without a display.
func (c *Controller) Start(ctx context.Context, adapter *transport.Adapter, categories content.CategorySet) error {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return ErrEnded
	}
	if c.conn != nil {
		c.mu.Unlock()
		return fmt.Errorf("already presenting over %s", c.conn.Kind())
	}
	target := transport.Target{LessonID: c.lesson.ID, FragmentIndex: c.index, Categories: categories}
	c.mu.Unlock()

	conn, err := adapter.Connect(ctx, target)
	if err != nil {
		if errors.Is(err, transport.ErrWindowBlocked) {
			c.notify(Warning, "display window could not be opened; share a link instead")
		} else {
			c.notify(Warning, "no display available; share a link instead")
		}
		return err
	}

	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		conn.Close()
		return ErrEnded
	}
	c.conn = conn
	ev := c.eventLocked()
	c.mu.Unlock()

	conn.OnMessage(c.handle)
	go c.watch(conn)
	c.notify(Info, fmt.Sprintf("presenting over %s display", conn.Kind()))
	c.deliver(ctx, ev, conn, "")
	return nil
}

func (c *Controller) watch(conn transport.Connection) {
	<-conn.Done()
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
		c.surfaces = make(map[string]protocol.SurfaceStatus)
	}
	ended := c.ended
	c.mu.Unlock()
	if current && !ended {
		c.notify(Warning, fmt.Sprintf("%s display disconnected", conn.Kind()))
	}
}

// Presenting reports the active push transport kind, if any.
func (c *Controller) Presenting() (transport.Kind, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return 0, false
	}
	return c.conn.Kind(), true
}

// Disconnect closes the push display without ending a shared session.
func (c *Controller) Disconnect(ctx context.Context) {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, writeTimeout)
	conn.Send(sctx, protocol.Terminate(protocol.ReasonPresenterEnded))
	cancel()
	conn.Close()
}

func (c *Controller) handle(msg protocol.Message) {
	switch msg.Type {
	case protocol.MsgSurfaceJoined:
		if msg.Status == nil {
			return
		}
		c.mu.Lock()
		c.surfaces[msg.Status.SurfaceID] = protocol.SurfaceStatus{SurfaceID: msg.Status.SurfaceID, Name: msg.Status.Name, State: "joined"}
		c.mu.Unlock()
		c.notify(Info, fmt.Sprintf("%s joined", msg.Status.Name))
	case protocol.MsgSurfaceLeft:
		if msg.Status == nil {
			return
		}
		c.mu.Lock()
		delete(c.surfaces, msg.Status.SurfaceID)
		c.mu.Unlock()
		c.notify(Info, fmt.Sprintf("%s left", msg.Status.Name))
	case protocol.MsgSurfaceStatus:
		if msg.Status == nil {
			return
		}
		c.mu.Lock()
		c.surfaces[msg.Status.SurfaceID] = *msg.Status
		c.mu.Unlock()
	case protocol.MsgError:
		c.notify(Warning, "hub: "+msg.Reason)
	default:
		log.Debugf("presenter ignoring %s", msg.Type)
	}
}

// Surfaces returns the last known status of every connected push surface.
func (c *Controller) Surfaces() []protocol.SurfaceStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]protocol.SurfaceStatus, 0, len(c.surfaces))
	for _, s := range c.surfaces {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AttachSession makes the controller the writer of a shared session: each
// navigation updates it, and a heartbeat keeps its lastUpdatedAt advancing
// while the presenter is alive.
func (c *Controller) AttachSession(ctx context.Context, sessionID string) error {
	if c.store == nil {
		return errors.New("no session store configured")
	}
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return ErrEnded
	}
	prev := c.sessionID
	c.sessionID = sessionID
	if c.hbStop != nil {
		close(c.hbStop)
	}
	stop := make(chan struct{})
	c.hbStop = stop
	index := c.index
	c.mu.Unlock()

	if prev != "" && prev != sessionID {
		log.Infof("replacing shared session %s with %s", prev, sessionID)
		if err := c.store.Deactivate(ctx, prev); err != nil {
			log.Warningf("deactivating session %s: %v", prev, err)
		}
	}
	if err := c.store.UpdateFragmentIndex(ctx, sessionID, index); err != nil {
		c.sessionFailed(sessionID, err)
		if errors.Is(err, session.ErrNotFound) {
			return err
		}
	}
	go c.heartbeatLoop(sessionID, stop)
	return nil
}

// SessionID is the attached shared session, if any.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Controller) heartbeatLoop(sessionID string, stop chan struct{}) {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := c.store.Touch(ctx, sessionID)
			cancel()
			if err != nil {
				c.sessionFailed(sessionID, err)
				if errors.Is(err, session.ErrNotFound) {
					return
				}
			}
		}
	}
}

// sessionFailed reports a failed write; a session that no longer exists is
// detached so the presenter stops writing to it.
func (c *Controller) sessionFailed(sessionID string, err error) {
	if !errors.Is(err, session.ErrNotFound) {
		log.Warningf("session %s write failed: %v", sessionID, err)
		c.notify(Warning, fmt.Sprintf("shared link not updated: %v", err))
		return
	}
	c.mu.Lock()
	if c.sessionID == sessionID {
		c.sessionID = ""
		if c.hbStop != nil {
			close(c.hbStop)
			c.hbStop = nil
		}
	}
	c.mu.Unlock()
	log.Infof("session %s is gone, detaching", sessionID)
	c.notify(Warning, "shared link has ended")
}

// End finishes the presentation: the shared session is deactivated so link
// surfaces stop, and push surfaces get an explicit terminate.
func (c *Controller) End(ctx context.Context) error {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return nil
	}
	c.ended = true
	conn, sessionID := c.conn, c.sessionID
	c.conn, c.sessionID = nil, ""
	if c.hbStop != nil {
		close(c.hbStop)
		c.hbStop = nil
	}
	c.mu.Unlock()

	var errs []error
	if sessionID != "" {
		if err := c.store.Deactivate(ctx, sessionID); err != nil && !errors.Is(err, session.ErrNotFound) {
			errs = append(errs, fmt.Errorf("deactivating session %s: %w", sessionID, err))
		} else {
			log.Infof("session %s deactivated", sessionID)
		}
	}
	if conn != nil {
		sctx, cancel := context.WithTimeout(ctx, writeTimeout)
		if err := conn.Send(sctx, protocol.Terminate(protocol.ReasonPresenterEnded)); err != nil {
			log.Debugf("terminate over %s: %v", conn.Kind(), err)
		}
		cancel()
		conn.Close()
	}
	return errors.Join(errs...)
}

func (c *Controller) notify(level Level, text string) {
	n := Notice{Level: level, Text: text, At: time.Now()}
	for {
		select {
		case c.notices <- n:
			return
		default:
		}
		select {
		case <-c.notices:
		default:
		}
	}
}
