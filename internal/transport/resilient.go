package transport

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lessoncast/lessoncast/internal/protocol"
)

const redialTimeout = 10 * time.Second

// managed wraps the connection returned by Adapter.Connect. It mirrors the
// underlying connection's lifecycle onto the adapter phase and, for push
// kinds that support it, redials after an unexpected drop.
type managed struct {
	adapter *Adapter
	kind    Kind

	mu      sync.Mutex
	cur     Connection
	handler func(protocol.Message)

	state   atomic.Int32
	closing atomic.Bool
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func (a *Adapter) manage(conn Connection) *managed {
	m := &managed{
		adapter: a,
		kind:    conn.Kind(),
		cur:     conn,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	m.state.Store(int32(Connected))
	go m.watch()
	return m
}

func (m *managed) Kind() Kind { return m.kind }

func (m *managed) State() State { return State(m.state.Load()) }

func (m *managed) current() Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

func (m *managed) Send(ctx context.Context, msg protocol.Message) error {
	if m.State() != Connected {
		return ErrClosed
	}
	return m.current().Send(ctx, msg)
}

func (m *managed) OnMessage(handler func(protocol.Message)) {
	m.mu.Lock()
	m.handler = handler
	cur := m.cur
	m.mu.Unlock()
	cur.OnMessage(handler)
}

func (m *managed) Done() <-chan struct{} { return m.done }

func (m *managed) Close() error {
	m.mu.Lock()
	m.closing.Store(true)
	cur := m.cur
	m.mu.Unlock()
	m.once.Do(func() { close(m.stop) })
	err := cur.Close()
	<-m.done
	return err
}

func (m *managed) watch() {
	defer func() {
		m.state.Store(int32(Terminated))
		m.adapter.setPhase(PhaseTerminated)
		close(m.done)
	}()
	for {
		cur := m.current()
		<-cur.Done()
		if m.closing.Load() || cur.State() == Terminated {
			return
		}
		m.state.Store(int32(Disconnected))
		m.adapter.setPhase(PhaseDisconnected)
		next := m.redial(cur)
		if next == nil {
			log.Warningf("%s connection lost, giving up", m.kind)
			return
		}
		// Close may have run while redialing; it reads cur under mu.
		m.mu.Lock()
		if m.closing.Load() {
			m.mu.Unlock()
			next.Close()
			return
		}
		m.cur = next
		h := m.handler
		m.mu.Unlock()
		if h != nil {
			next.OnMessage(h)
		}
		m.state.Store(int32(Connected))
		m.adapter.setPhase(PhaseConnected)
		log.Infof("%s connection re-established", m.kind)
	}
}

func (m *managed) redial(cur Connection) Connection {
	r, ok := cur.(Redialer)
	if !ok || !m.kind.Push() {
		return nil
	}
	for attempt := 1; attempt <= m.adapter.attempts; attempt++ {
		select {
		case <-m.stop:
			return nil
		case <-time.After(m.adapter.backoff * time.Duration(attempt)):
		}
		ctx, cancel := context.WithTimeout(context.Background(), redialTimeout)
		next, err := r.Redial(ctx)
		cancel()
		if err == nil {
			return next
		}
		log.Debugf("%s redial attempt %d/%d failed: %v", m.kind, attempt, m.adapter.attempts, err)
	}
	return nil
}
