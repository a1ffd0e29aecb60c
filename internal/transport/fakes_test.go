package transport

import (
	"context"
	"sync"

	"github.com/lessoncast/lessoncast/internal/protocol"
)

type fakeStrategy struct {
	kind      Kind
	available bool
	connect   func(ctx context.Context, target Target) (Connection, error)

	mu    sync.Mutex
	calls int
}

func (s *fakeStrategy) Kind() Kind                 { return s.kind }
func (s *fakeStrategy) Probe(context.Context) bool { return s.available }

func (s *fakeStrategy) Connect(ctx context.Context, target Target) (Connection, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.connect(ctx, target)
}

func (s *fakeStrategy) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeConn is a connection whose drop can be simulated.
type fakeConn struct {
	kind Kind

	mu      sync.Mutex
	state   State
	sent    []protocol.Message
	handler func(protocol.Message)

	done chan struct{}
	once sync.Once
}

func newFakeConn(kind Kind) *fakeConn {
	return &fakeConn{kind: kind, state: Connected, done: make(chan struct{})}
}

func (c *fakeConn) Kind() Kind { return c.kind }

func (c *fakeConn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeConn) Send(_ context.Context, msg protocol.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Connected {
		return ErrClosed
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) Sent() []protocol.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Message(nil), c.sent...)
}

func (c *fakeConn) OnMessage(h func(protocol.Message)) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *fakeConn) deliver(m protocol.Message) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(m)
	}
}

func (c *fakeConn) Done() <-chan struct{} { return c.done }

func (c *fakeConn) end(s State) {
	c.once.Do(func() {
		c.mu.Lock()
		c.state = s
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *fakeConn) Close() error {
	c.end(Terminated)
	return nil
}

// drop simulates an unexpected loss of the underlying channel.
func (c *fakeConn) drop() { c.end(Disconnected) }

type redialConn struct {
	*fakeConn
	redial func(ctx context.Context) (Connection, error)
}

func (r *redialConn) Redial(ctx context.Context) (Connection, error) { return r.redial(ctx) }
