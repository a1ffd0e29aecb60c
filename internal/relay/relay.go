// Package relay carries hub channel traffic between server instances so a
// presenter and its surfaces may be connected to different instances.
package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/lessoncast/lessoncast/internal/protocol"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("lessoncast")

// ErrClosed is returned when publishing on a closed relay.
var ErrClosed = errors.New("relay closed")

// Envelope is one message relayed for a channel.
type Envelope struct {
	// Origin is the publishing instance; instances ignore their own traffic.
	Origin    string `json:"origin"`
	ChannelID string `json:"channelId"`
	// ToPresenter marks surface traffic headed back to the presenter.
	ToPresenter bool             `json:"toPresenter,omitempty"`
	Message     protocol.Message `json:"message"`
}

// Relay fans envelopes out to every subscribed instance, the publisher
// included.
type Relay interface {
	Publish(ctx context.Context, env Envelope) error
	// Subscribe installs the single delivery handler.
	Subscribe(handler func(Envelope)) error
	Close() error
}

// Noop is used when the server runs as a single instance.
type Noop struct{}

func (Noop) Publish(context.Context, Envelope) error { return nil }
func (Noop) Subscribe(func(Envelope)) error          { return nil }
func (Noop) Close() error                            { return nil }

// Enabled reports whether r actually relays anything.
func Enabled(r Relay) bool {
	if r == nil {
		return false
	}
	_, noop := r.(Noop)
	return !noop
}

// Bus is an in-process fanout shared by Memory relays.
type Bus struct {
	mu   sync.RWMutex
	subs map[*Memory]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*Memory]struct{})}
}

// Relay returns a new relay endpoint attached to the bus.
func (b *Bus) Relay() *Memory {
	m := &Memory{bus: b, queue: make(chan Envelope, 256), done: make(chan struct{})}
	b.mu.Lock()
	b.subs[m] = struct{}{}
	b.mu.Unlock()
	return m
}

func (b *Bus) publish(env Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for m := range b.subs {
		select {
		case m.queue <- env:
		default:
			log.Warningf("relay queue full, dropping %s for channel %s", env.Message.Type, env.ChannelID)
		}
	}
}

// Memory is a Bus endpoint. Deliveries run on one goroutine in publish order.
type Memory struct {
	bus   *Bus
	queue chan Envelope

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

func (m *Memory) Publish(ctx context.Context, env Envelope) error {
	select {
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	m.bus.publish(env)
	return nil
}

func (m *Memory) Subscribe(handler func(Envelope)) error {
	m.startOnce.Do(func() {
		go func() {
			for {
				select {
				case env := <-m.queue:
					handler(env)
				case <-m.done:
					return
				}
			}
		}()
	})
	return nil
}

func (m *Memory) Close() error {
	m.closeOnce.Do(func() {
		m.bus.mu.Lock()
		delete(m.bus.subs, m)
		m.bus.mu.Unlock()
		close(m.done)
	})
	return nil
}
