package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lessoncast/lessoncast/internal/protocol"
)

const (
	writeTimeout    = 10 * time.Second
	defaultPing     = 30 * time.Second
	inboxSize       = 64
	closeGrace      = time.Second
	dialTimeoutHint = 10 * time.Second
)

// WSConn is a push connection to a hub channel or receiver endpoint.
// Reading starts at dial time; messages are buffered until a handler is
// installed with OnMessage.
type WSConn struct {
	kind  Kind
	url   string
	token string
	ping  time.Duration

	conn    *websocket.Conn
	writeMu sync.Mutex // serialises all conn writes

	state      atomic.Int32
	closing    atomic.Bool
	terminated atomic.Bool

	inbox      chan protocol.Message
	startOnce  sync.Once
	handler    atomic.Pointer[func(protocol.Message)]
	delivering atomic.Bool
	delivered  chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// DialWS connects to a hub websocket endpoint. A zero ping uses the default
// keepalive interval.
func DialWS(ctx context.Context, kind Kind, url, token string, ping time.Duration) (*WSConn, error) {
	if ping <= 0 {
		ping = defaultPing
	}
	header := http.Header{}
	if token != "" {
		header.Set(protocol.TokenHeader, token)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dialTimeoutHint)
		defer cancel()
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", kind, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", kind, err)
	}
	c := &WSConn{
		kind:      kind,
		url:       url,
		token:     token,
		ping:      ping,
		conn:      conn,
		inbox:     make(chan protocol.Message, inboxSize),
		delivered: make(chan struct{}),
		done:      make(chan struct{}),
	}
	c.state.Store(int32(Connected))
	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

func (c *WSConn) Kind() Kind { return c.kind }

func (c *WSConn) State() State { return State(c.state.Load()) }

func (c *WSConn) Send(ctx context.Context, msg protocol.Message) error {
	if c.State() != Connected {
		return ErrClosed
	}
	data, err := protocol.Encode(msg)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msg.Type, err)
	}
	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

func (c *WSConn) OnMessage(handler func(protocol.Message)) {
	c.handler.Store(&handler)
	c.startOnce.Do(func() {
		c.delivering.Store(true)
		go c.deliver()
	})
}

// Await consumes buffered messages until one of type t arrives. It must only
// be called before OnMessage; other messages read meanwhile are dropped.
func (c *WSConn) Await(ctx context.Context, t protocol.MessageType) (protocol.Message, error) {
	for {
		select {
		case m, ok := <-c.inbox:
			if !ok {
				return protocol.Message{}, ErrClosed
			}
			if m.Type == t {
				return m, nil
			}
			if m.Type == protocol.MsgTerminate || m.Type == protocol.MsgError {
				return m, fmt.Errorf("%s while waiting for %s: %s", m.Type, t, m.Reason)
			}
		case <-ctx.Done():
			return protocol.Message{}, ctx.Err()
		}
	}
}

func (c *WSConn) Done() <-chan struct{} { return c.done }

func (c *WSConn) Close() error {
	c.closing.Store(true)
	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGrace))
	c.writeMu.Unlock()
	c.finish()
	return nil
}

// Redial opens a fresh connection to the same endpoint.
func (c *WSConn) Redial(ctx context.Context) (Connection, error) {
	return DialWS(ctx, c.kind, c.url, c.token, c.ping)
}

func (c *WSConn) readLoop() {
	defer c.drain()
	pongWait := 2 * c.ping
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closing.Load() && !c.terminated.Load() {
				log.Debugf("%s connection dropped: %v", c.kind, err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		msg, err := protocol.Decode(data)
		if err != nil {
			log.Warningf("discarding malformed %s message: %v", c.kind, err)
			continue
		}
		if msg.Type == protocol.MsgTerminate {
			c.terminated.Store(true)
		}
		select {
		case c.inbox <- msg:
		default:
			log.Warningf("%s inbox full, dropping %s", c.kind, msg.Type)
		}
	}
}

// drain closes the inbox once reading stops. With a handler installed, Done
// waits until every queued message was handled, so a terminate is applied
// before the connection reports itself finished.
func (c *WSConn) drain() {
	close(c.inbox)
	if c.delivering.Load() {
		<-c.delivered
	}
	c.finish()
}

func (c *WSConn) deliver() {
	defer close(c.delivered)
	for m := range c.inbox {
		if h := c.handler.Load(); h != nil {
			(*h)(m)
		}
	}
}

func (c *WSConn) pingLoop() {
	ticker := time.NewTicker(c.ping)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (c *WSConn) finish() {
	c.closeOnce.Do(func() {
		if c.closing.Load() || c.terminated.Load() {
			c.state.Store(int32(Terminated))
		} else {
			c.state.Store(int32(Disconnected))
		}
		c.conn.Close()
		close(c.done)
	})
}
