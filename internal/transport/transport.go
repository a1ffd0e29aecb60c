// Package transport delivers presenter messages to display surfaces. Three
// kinds exist: a native display route, a directly opened second window, and a
// shareable link whose surface polls the session store. Push kinds (native,
// window) are ordered and at-most-once with no replay; the poll kind re-derives
// full state from the latest session record on every read.
package transport

import (
	"context"
	"errors"

	"github.com/lessoncast/lessoncast/internal/content"
	"github.com/lessoncast/lessoncast/internal/protocol"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("lessoncast")

var (
	// ErrTransportUnavailable means no strategy could produce a connection.
	ErrTransportUnavailable = errors.New("transport unavailable")
	// ErrWindowBlocked means the second window could not be opened; the user
	// has to share a link instead.
	ErrWindowBlocked = errors.New("display window could not be opened; share a link instead")
	// ErrClosed is returned by Send on a connection that is no longer usable.
	ErrClosed = errors.New("connection closed")
	// ErrReceiveOnly is returned by Send on the poll transport, which has no
	// back channel.
	ErrReceiveOnly = errors.New("transport is receive-only")
)

type Kind int

const (
	KindNative Kind = iota
	KindWindow
	KindLinkPoll
)

func (k Kind) String() string {
	switch k {
	case KindNative:
		return "native"
	case KindWindow:
		return "window"
	case KindLinkPoll:
		return "link-poll"
	default:
		return "unknown"
	}
}

// Push reports whether the kind delivers by push.
func (k Kind) Push() bool { return k == KindNative || k == KindWindow }

// State is the lifecycle of a single connection.
type State int32

const (
	Connecting State = iota
	Connected
	Disconnected
	Terminated
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Connection is a typed message channel with a single handler entry point.
// Push and poll kinds present the same interface.
type Connection interface {
	Kind() Kind
	State() State
	Send(ctx context.Context, msg protocol.Message) error
	// OnMessage installs the handler and starts delivery. Messages are
	// delivered sequentially from one goroutine.
	OnMessage(handler func(protocol.Message))
	// Done is closed once the connection stops delivering. State then tells
	// whether it was terminated or merely disconnected.
	Done() <-chan struct{}
	Close() error
}

// Target describes what a new connection should present.
type Target struct {
	LessonID      string
	FragmentIndex int
	Categories    content.CategorySet
	SessionID     string
}

// Strategy is one way of reaching a display surface.
type Strategy interface {
	Kind() Kind
	// Probe reports whether the strategy can be attempted in this runtime.
	Probe(ctx context.Context) bool
	Connect(ctx context.Context, target Target) (Connection, error)
}

// Redialer is implemented by connections that can re-establish the same
// underlying channel after an unexpected drop.
type Redialer interface {
	Redial(ctx context.Context) (Connection, error)
}
