package hub

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lessoncast/lessoncast/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

type client struct {
	id   string
	role protocol.Role
	name string
	conn *websocket.Conn
	send chan []byte

	// Guarded by Hub.mu.
	channel *channel
	removed bool
}

func newClient(conn *websocket.Conn, role protocol.Role, name string, buffer int) *client {
	id := uuid.NewString()
	if name == "" {
		name = string(role) + "-" + id[:8]
	}
	return &client{
		id:   id,
		role: role,
		name: name,
		conn: conn,
		send: make(chan []byte, buffer),
	}
}

// writePump owns all writes to the connection. It exits when send is closed,
// after flushing what was queued before the close.
func (c *client) writePump(ping time.Duration) {
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) status() *protocol.SurfaceStatus {
	return &protocol.SurfaceStatus{SurfaceID: c.id, Name: c.name}
}
