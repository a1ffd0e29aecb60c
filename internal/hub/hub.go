// Package hub is the server side of the push transports. A presentation
// channel has at most one presenter and any number of surfaces; the hub fans
// presenter messages out to the surfaces in order and reports surface
// activity back to the presenter. Native receivers are long-lived surfaces
// that get bound to a channel on demand.
package hub

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lessoncast/lessoncast/internal/protocol"
	"github.com/lessoncast/lessoncast/internal/relay"
	"github.com/oklog/ulid/v2"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("lessoncast")

var (
	ErrTooManyConnections = errors.New("too many connections")
	ErrChannelNotFound    = errors.New("channel not found")
	ErrPresenterExists    = errors.New("channel already has a presenter")
	ErrReceiverNotFound   = errors.New("receiver not found")
	ErrReceiverBusy       = errors.New("receiver busy")
)

type Options struct {
	MaxConnections int
	SendBuffer     int
	PingInterval   time.Duration
	// PresenterGrace is how long a channel waits for a dropped presenter to
	// rejoin before its surfaces are terminated.
	PresenterGrace time.Duration
	// ChannelTTL bounds how long an empty channel is kept.
	ChannelTTL time.Duration
}

func DefaultOptions() Options {
	return Options{
		MaxConnections: 256,
		SendBuffer:     64,
		PingInterval:   30 * time.Second,
		PresenterGrace: 15 * time.Second,
		ChannelTTL:     10 * time.Minute,
	}
}

type channel struct {
	id        string
	createdAt time.Time
	presenter *client
	surfaces  map[*client]struct{}
	// remote channels are owned by another instance; this one only serves
	// surfaces for it.
	remote bool
	grace  *time.Timer
	ended  bool
}

type Hub struct {
	opts     Options
	instance string
	relay    relay.Relay
	now      func() time.Time

	mu        sync.Mutex
	conns     int
	channels  map[string]*channel
	receivers map[string]*client
	pending   []relay.Envelope
}

// Stats is a point-in-time count of hub state.
type Stats struct {
	Connections int `json:"connections"`
	Channels    int `json:"channels"`
	Receivers   int `json:"receivers"`
}

func New(opts Options, r relay.Relay) *Hub {
	if r == nil {
		r = relay.Noop{}
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultOptions().SendBuffer
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultOptions().PingInterval
	}
	h := &Hub{
		opts:      opts,
		instance:  uuid.NewString(),
		relay:     r,
		now:       time.Now,
		channels:  make(map[string]*channel),
		receivers: make(map[string]*client),
	}
	if err := r.Subscribe(h.relayed); err != nil {
		log.Errorf("relay subscribe failed: %v", err)
	}
	return h
}

// Instance identifies this hub in relayed traffic.
func (h *Hub) Instance() string { return h.instance }

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{Connections: h.conns, Channels: len(h.channels), Receivers: len(h.receivers)}
}

// Reserve claims a connection slot before a websocket upgrade. Release
// returns it when the upgrade fails; after a successful upgrade the slot is
// released when the client is removed.
func (h *Hub) Reserve() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.opts.MaxConnections > 0 && h.conns >= h.opts.MaxConnections {
		return ErrTooManyConnections
	}
	h.conns++
	return nil
}

func (h *Hub) Release() {
	h.mu.Lock()
	h.conns--
	h.mu.Unlock()
}

func (h *Hub) newChannel() *channel {
	ch := &channel{
		id:        ulid.Make().String(),
		createdAt: h.now(),
		surfaces:  make(map[*client]struct{}),
	}
	h.channels[ch.id] = ch
	return ch
}

// CreateChannel opens an empty channel for a presenter and its surfaces.
func (h *Hub) CreateChannel() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := h.newChannel()
	log.Debugf("channel %s created", ch.id)
	return ch.id
}

// CanJoin reports whether a client with role could join channelID now.
func (h *Hub) CanJoin(role protocol.Role, channelID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.channels[channelID]
	switch {
	case !ok && role == protocol.RoleSurface && relay.Enabled(h.relay):
		return nil
	case !ok:
		return ErrChannelNotFound
	case role == protocol.RolePresenter && (ch.presenter != nil || ch.remote):
		return ErrPresenterExists
	}
	return nil
}

// Receivers lists registered native receivers by name.
func (h *Hub) Receivers() []protocol.Receiver {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]protocol.Receiver, 0, len(h.receivers))
	for _, r := range h.receivers {
		out = append(out, protocol.Receiver{ID: r.id, Name: r.name, Busy: r.channel != nil})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Route binds an idle receiver to a new channel and tells it what to show.
func (h *Hub) Route(receiverID string, route protocol.Route) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.receivers[receiverID]
	if !ok {
		return "", ErrReceiverNotFound
	}
	if r.channel != nil {
		return "", ErrReceiverBusy
	}
	ch := h.newChannel()
	ch.surfaces[r] = struct{}{}
	r.channel = ch
	route.ChannelID = ch.id
	h.enqueue(r, protocol.Message{Type: protocol.MsgRouted, Route: &route})
	log.Infof("receiver %s routed to channel %s", r.name, ch.id)
	return ch.id, nil
}

// ServeChannel runs a presenter or surface connection until it closes.
func (h *Hub) ServeChannel(conn *websocket.Conn, role protocol.Role, name, channelID string) {
	c := newClient(conn, role, name, h.opts.SendBuffer)
	go c.writePump(h.opts.PingInterval)

	var err error
	h.mu.Lock()
	if role == protocol.RolePresenter {
		err = h.joinPresenter(c, channelID)
	} else {
		err = h.joinSurface(c, channelID)
	}
	if err != nil {
		h.enqueue(c, protocol.Message{Type: protocol.MsgError, Reason: err.Error()})
		h.drop(c)
	}
	h.mu.Unlock()
	h.flush()
	if err != nil {
		log.Debugf("%s join %s rejected: %v", role, channelID, err)
		return
	}
	log.Infof("%s %s joined channel %s", role, c.name, channelID)
	h.readPump(c)
}

// ServeReceiver registers a native receiver and runs it until it closes.
func (h *Hub) ServeReceiver(conn *websocket.Conn, name string) {
	c := newClient(conn, protocol.RoleReceiver, name, h.opts.SendBuffer)
	go c.writePump(h.opts.PingInterval)
	h.mu.Lock()
	h.receivers[c.id] = c
	h.mu.Unlock()
	log.Infof("receiver %s registered", c.name)
	h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer h.leave(c)
	pongWait := 2 * h.opts.PingInterval
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		msg, err := protocol.Decode(data)
		if err != nil {
			log.Debugf("discarding malformed message from %s: %v", c.name, err)
			continue
		}
		h.handle(c, msg)
	}
}

func (h *Hub) leave(c *client) {
	h.mu.Lock()
	h.drop(c)
	h.mu.Unlock()
	h.flush()
	log.Debugf("%s %s disconnected", c.role, c.name)
}

func (h *Hub) handle(c *client, msg protocol.Message) {
	h.mu.Lock()
	defer h.flush()
	defer h.mu.Unlock()

	ch := c.channel
	if c.removed || ch == nil || ch.ended {
		return
	}
	if c.role == protocol.RolePresenter {
		if ch.presenter != c {
			return
		}
		switch msg.Type {
		case protocol.MsgUpdateSlide:
			h.fanout(ch, msg)
			h.publish(ch, msg, false)
		case protocol.MsgTerminate:
			reason := msg.Reason
			if reason == "" {
				reason = protocol.ReasonPresenterEnded
			}
			h.endChannel(ch, reason)
		default:
			log.Debugf("ignoring %s from presenter", msg.Type)
		}
		return
	}

	if msg.Type != protocol.MsgSurfaceStatus || msg.Status == nil {
		return
	}
	st := *msg.Status
	st.SurfaceID = c.id
	st.Name = c.name
	h.toPresenter(ch, protocol.Message{Type: protocol.MsgSurfaceStatus, Status: &st})
}

func (h *Hub) joinPresenter(c *client, channelID string) error {
	ch, ok := h.channels[channelID]
	if !ok || ch.ended {
		return ErrChannelNotFound
	}
	if ch.presenter != nil || ch.remote {
		return ErrPresenterExists
	}
	ch.presenter = c
	c.channel = ch
	if ch.grace != nil {
		ch.grace.Stop()
		ch.grace = nil
		h.fanout(ch, protocol.Message{Type: protocol.MsgPresenterJoined})
		h.publish(ch, protocol.Message{Type: protocol.MsgPresenterJoined}, false)
	}
	for s := range ch.surfaces {
		h.enqueue(c, protocol.Message{Type: protocol.MsgSurfaceJoined, Status: s.status()})
	}
	return nil
}

func (h *Hub) joinSurface(c *client, channelID string) error {
	ch, ok := h.channels[channelID]
	if !ok {
		if !relay.Enabled(h.relay) {
			return ErrChannelNotFound
		}
		ch = &channel{id: channelID, createdAt: h.now(), surfaces: make(map[*client]struct{}), remote: true}
		h.channels[channelID] = ch
	}
	if ch.ended {
		return ErrChannelNotFound
	}
	ch.surfaces[c] = struct{}{}
	c.channel = ch
	if ch.presenter == nil && ch.grace != nil {
		h.enqueue(c, protocol.Message{Type: protocol.MsgPresenterLeft})
	}
	h.toPresenter(ch, protocol.Message{Type: protocol.MsgSurfaceJoined, Status: c.status()})
	return nil
}

func (h *Hub) toPresenter(ch *channel, msg protocol.Message) {
	switch {
	case ch.presenter != nil:
		h.enqueue(ch.presenter, msg)
	case ch.remote:
		h.publish(ch, msg, true)
	}
}

// enqueue hands msg to c's write pump; a client whose buffer is full is
// disconnected. Callers hold h.mu.
func (h *Hub) enqueue(c *client, msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		log.Errorf("encode %s: %v", msg.Type, err)
		return
	}
	h.enqueueRaw(c, data)
}

func (h *Hub) enqueueRaw(c *client, data []byte) {
	if c.removed {
		return
	}
	select {
	case c.send <- data:
	default:
		log.Warningf("%s %s too slow, disconnecting", c.role, c.name)
		h.drop(c)
	}
}

func (h *Hub) fanout(ch *channel, msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		log.Errorf("encode %s: %v", msg.Type, err)
		return
	}
	for s := range ch.surfaces {
		h.enqueueRaw(s, data)
	}
}

// drop removes c from the hub. Callers hold h.mu.
func (h *Hub) drop(c *client) {
	if c.removed {
		return
	}
	c.removed = true
	close(c.send)
	h.conns--
	if c.role == protocol.RoleReceiver {
		delete(h.receivers, c.id)
	}
	if ch := c.channel; ch != nil {
		c.channel = nil
		h.detach(ch, c)
	}
}

func (h *Hub) detach(ch *channel, c *client) {
	if ch.presenter == c {
		ch.presenter = nil
		if ch.ended {
			return
		}
		log.Infof("presenter left channel %s, waiting %s", ch.id, h.opts.PresenterGrace)
		h.fanout(ch, protocol.Message{Type: protocol.MsgPresenterLeft})
		h.publish(ch, protocol.Message{Type: protocol.MsgPresenterLeft}, false)
		ch.grace = time.AfterFunc(h.opts.PresenterGrace, func() { h.graceExpired(ch) })
		return
	}
	if _, ok := ch.surfaces[c]; ok {
		delete(ch.surfaces, c)
		if !ch.ended {
			h.toPresenter(ch, protocol.Message{Type: protocol.MsgSurfaceLeft, Status: c.status()})
		}
	}
}

func (h *Hub) graceExpired(ch *channel) {
	h.mu.Lock()
	if ch.presenter == nil && !ch.ended {
		log.Infof("presenter did not return to channel %s", ch.id)
		h.endChannel(ch, protocol.ReasonPresenterLost)
	}
	h.mu.Unlock()
	h.flush()
}

// endChannel terminates every surface of ch. Receivers go back to idle; other
// surfaces are disconnected once the terminate message is flushed.
func (h *Hub) endChannel(ch *channel, reason string) {
	if ch.ended {
		return
	}
	ch.ended = true
	if ch.grace != nil {
		ch.grace.Stop()
		ch.grace = nil
	}
	term := protocol.Terminate(reason)
	for s := range ch.surfaces {
		h.enqueue(s, term)
		s.channel = nil
		if s.role != protocol.RoleReceiver {
			h.drop(s)
		}
	}
	ch.surfaces = make(map[*client]struct{})
	if ch.presenter != nil {
		ch.presenter.channel = nil
		ch.presenter = nil
	}
	delete(h.channels, ch.id)
	h.publish(ch, term, false)
	log.Infof("channel %s ended: %s", ch.id, reason)
}

// publish queues msg for other instances. Only the owning instance publishes
// presenter traffic; only remote channels publish toward the presenter.
func (h *Hub) publish(ch *channel, msg protocol.Message, toPresenter bool) {
	if !relay.Enabled(h.relay) || ch.remote != toPresenter {
		return
	}
	h.pending = append(h.pending, relay.Envelope{
		Origin:      h.instance,
		ChannelID:   ch.id,
		ToPresenter: toPresenter,
		Message:     msg,
	})
}

// flush publishes queued envelopes outside the lock.
func (h *Hub) flush() {
	h.mu.Lock()
	out := h.pending
	h.pending = nil
	h.mu.Unlock()
	for _, env := range out {
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		if err := h.relay.Publish(ctx, env); err != nil {
			log.Warningf("relay publish %s for %s: %v", env.Message.Type, env.ChannelID, err)
		}
		cancel()
	}
}

// relayed applies traffic published by another instance.
func (h *Hub) relayed(env relay.Envelope) {
	if env.Origin == h.instance {
		return
	}
	h.mu.Lock()
	defer h.flush()
	defer h.mu.Unlock()
	ch, ok := h.channels[env.ChannelID]
	if !ok || ch.ended {
		return
	}
	if env.ToPresenter {
		if ch.presenter != nil {
			h.enqueue(ch.presenter, env.Message)
		}
		return
	}
	if !ch.remote {
		return
	}
	if env.Message.Type == protocol.MsgTerminate {
		h.endChannel(ch, env.Message.Reason)
		return
	}
	h.fanout(ch, env.Message)
}

// Sweep ends channels no presenter joined within the channel TTL and drops
// remote channels left without surfaces.
func (h *Hub) Sweep(now time.Time) int {
	h.mu.Lock()
	defer h.flush()
	defer h.mu.Unlock()
	removed := 0
	for id, ch := range h.channels {
		if ch.presenter != nil || ch.grace != nil || now.Sub(ch.createdAt) <= h.opts.ChannelTTL {
			continue
		}
		switch {
		case !ch.remote:
			h.endChannel(ch, protocol.ReasonPresenterLost)
		case len(ch.surfaces) == 0:
			ch.ended = true
			delete(h.channels, id)
		default:
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Debugf("swept %d idle channels", removed)
	}
	return removed
}

// Close ends every channel and disconnects every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	var presenters []*client
	for _, ch := range h.channels {
		if ch.presenter != nil {
			presenters = append(presenters, ch.presenter)
		}
		h.endChannel(ch, protocol.ReasonSessionEnded)
	}
	for _, p := range presenters {
		h.drop(p)
	}
	for _, r := range h.receivers {
		h.drop(r)
	}
	h.mu.Unlock()
	h.flush()
	return h.relay.Close()
}
