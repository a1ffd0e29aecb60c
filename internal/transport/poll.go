package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lessoncast/lessoncast/internal/protocol"
	"github.com/lessoncast/lessoncast/internal/session"
)

const minPollTimeout = 2 * time.Second

// Poller is the receive side of the link transport. It reads the session
// record on a fixed interval and turns each read into a message. Reads never
// overlap: the next one is scheduled only after the previous one settled.
type Poller struct {
	store     session.Store
	sessionID string
	interval  time.Duration

	state     atomic.Int32
	handler   atomic.Pointer[func(protocol.Message)]
	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

func NewPoller(store session.Store, sessionID string, interval time.Duration) *Poller {
	p := &Poller{
		store:     store,
		sessionID: sessionID,
		interval:  interval,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	p.state.Store(int32(Connecting))
	return p
}

func (p *Poller) Kind() Kind { return KindLinkPoll }

func (p *Poller) State() State { return State(p.state.Load()) }

func (p *Poller) Send(context.Context, protocol.Message) error { return ErrReceiveOnly }

// OnMessage installs the handler and starts polling immediately.
func (p *Poller) OnMessage(handler func(protocol.Message)) {
	p.handler.Store(&handler)
	p.startOnce.Do(func() { go p.run() })
}

func (p *Poller) Done() <-chan struct{} { return p.done }

func (p *Poller) Close() error {
	p.stopOnce.Do(func() { close(p.stop) })
	started := true
	p.startOnce.Do(func() {
		started = false
		close(p.done)
	})
	if started {
		<-p.done
	}
	p.state.Store(int32(Terminated))
	return nil
}

func (p *Poller) run() {
	defer close(p.done)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-p.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	timeout := max(p.interval, minPollTimeout)
	for {
		rctx, rcancel := context.WithTimeout(ctx, timeout)
		rec, err := p.store.Get(rctx, p.sessionID)
		rcancel()
		if ctx.Err() != nil {
			p.state.Store(int32(Terminated))
			return
		}
		msg, terminal := p.translate(rec, err)
		if h := p.handler.Load(); h != nil {
			(*h)(msg)
		}
		if terminal {
			p.state.Store(int32(Terminated))
			return
		}

		timer := time.NewTimer(p.interval)
		select {
		case <-p.stop:
			timer.Stop()
			p.state.Store(int32(Terminated))
			return
		case <-timer.C:
		}
	}
}

func (p *Poller) translate(rec *session.Session, err error) (protocol.Message, bool) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return protocol.Terminate(protocol.ReasonSessionEnded), true
	case err != nil:
		p.state.Store(int32(Disconnected))
		log.Debugf("poll %s failed: %v", p.sessionID, err)
		return protocol.Message{Type: protocol.MsgPollFailed, Reason: err.Error()}, false
	case !rec.Active:
		return protocol.Terminate(protocol.ReasonSessionEnded), true
	}
	p.state.Store(int32(Connected))
	return protocol.Message{
		Type:          protocol.MsgUpdateSlide,
		Seq:           rec.Revision,
		LessonID:      rec.LessonID,
		FragmentIndex: rec.FragmentIndex,
		UpdatedAt:     rec.LastUpdatedAt,
		Categories:    rec.Categories.Strings(),
	}, false
}

// LinkStrategy connects a surface to a shared session by polling.
type LinkStrategy struct {
	Store    session.Store
	Interval time.Duration
}

func (s *LinkStrategy) Kind() Kind { return KindLinkPoll }

func (s *LinkStrategy) Probe(context.Context) bool { return s.Store != nil }

func (s *LinkStrategy) Connect(ctx context.Context, target Target) (Connection, error) {
	if target.SessionID == "" {
		return nil, errors.New("link transport needs a session id")
	}
	return NewPoller(s.Store, target.SessionID, s.Interval), nil
}
