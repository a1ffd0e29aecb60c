package transport

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/lessoncast/lessoncast/internal/protocol"
)

// Pipe returns two connected in-memory endpoints of the given kind. Closing
// either end terminates both; messages already queued are still delivered,
// and an end with a handler reports Done only after they were.
func Pipe(kind Kind, buffer int) (Connection, Connection) {
	shared := &pipeShared{closed: make(chan struct{})}
	a := newPipeEnd(kind, shared, buffer)
	b := newPipeEnd(kind, shared, buffer)
	a.peer, b.peer = b, a
	go a.finish()
	go b.finish()
	return a, b
}

func newPipeEnd(kind Kind, shared *pipeShared, buffer int) *pipeEnd {
	return &pipeEnd{
		kind:    kind,
		shared:  shared,
		inbox:   make(chan protocol.Message, buffer),
		drained: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

type pipeShared struct {
	once   sync.Once
	closed chan struct{}
}

type pipeEnd struct {
	kind    Kind
	shared  *pipeShared
	inbox   chan protocol.Message
	peer    *pipeEnd
	start   sync.Once
	handler atomic.Pointer[func(protocol.Message)]

	delivering atomic.Bool
	drained    chan struct{}
	done       chan struct{}
}

func (p *pipeEnd) Kind() Kind { return p.kind }

func (p *pipeEnd) State() State {
	select {
	case <-p.shared.closed:
		return Terminated
	default:
		return Connected
	}
}

func (p *pipeEnd) Send(ctx context.Context, msg protocol.Message) error {
	select {
	case <-p.shared.closed:
		return ErrClosed
	default:
	}
	select {
	case p.peer.inbox <- msg:
		return nil
	case <-p.shared.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) OnMessage(handler func(protocol.Message)) {
	p.handler.Store(&handler)
	p.start.Do(func() {
		p.delivering.Store(true)
		go p.deliver()
	})
}

func (p *pipeEnd) finish() {
	<-p.shared.closed
	if p.delivering.Load() {
		<-p.drained
	}
	close(p.done)
}

func (p *pipeEnd) deliver() {
	defer close(p.drained)
	for {
		select {
		case m := <-p.inbox:
			p.dispatch(m)
		case <-p.shared.closed:
			for {
				select {
				case m := <-p.inbox:
					p.dispatch(m)
				default:
					return
				}
			}
		}
	}
}

func (p *pipeEnd) dispatch(m protocol.Message) {
	if h := p.handler.Load(); h != nil {
		(*h)(m)
	}
}

func (p *pipeEnd) Done() <-chan struct{} { return p.done }

func (p *pipeEnd) Close() error {
	p.shared.once.Do(func() { close(p.shared.closed) })
	return nil
}
