package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Phase is the adapter's view of the presentation transport as a whole.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseProbing
	PhaseNativeReady
	PhaseWindowReady
	PhaseLinkReady
	PhaseConnected
	PhaseDisconnected
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseProbing:
		return "probing"
	case PhaseNativeReady:
		return "native-ready"
	case PhaseWindowReady:
		return "window-ready"
	case PhaseLinkReady:
		return "link-ready"
	case PhaseConnected:
		return "connected"
	case PhaseDisconnected:
		return "disconnected"
	case PhaseTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

func readyPhase(k Kind) Phase {
	switch k {
	case KindNative:
		return PhaseNativeReady
	case KindWindow:
		return PhaseWindowReady
	default:
		return PhaseLinkReady
	}
}

// Rank orders strategies by preference: native first, then window, then
// link. Strategies of equal kind keep their relative order.
func Rank(strategies []Strategy) []Strategy {
	out := make([]Strategy, len(strategies))
	copy(out, strategies)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Kind() < out[j].Kind() })
	return out
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithReconnect enables redialing dropped push connections up to attempts
// times, waiting backoff*n before the n-th attempt.
func WithReconnect(attempts int, backoff time.Duration) Option {
	return func(a *Adapter) {
		a.attempts = attempts
		a.backoff = backoff
	}
}

// WithPhaseObserver registers fn to be called on every phase change.
func WithPhaseObserver(fn func(Phase)) Option {
	return func(a *Adapter) { a.observer = fn }
}

// Adapter selects and establishes a transport to a display surface.
type Adapter struct {
	strategies []Strategy
	attempts   int
	backoff    time.Duration
	observer   func(Phase)

	mu    sync.Mutex
	phase Phase
}

func NewAdapter(strategies []Strategy, opts ...Option) *Adapter {
	a := &Adapter{strategies: Rank(strategies), backoff: time.Second}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

func (a *Adapter) setPhase(p Phase) {
	a.mu.Lock()
	changed := a.phase != p
	a.phase = p
	fn := a.observer
	a.mu.Unlock()
	if changed && fn != nil {
		fn(p)
	}
}

// Connect tries each strategy once in preference order and returns the first
// connection established. When every push strategy fails the error wraps
// ErrTransportUnavailable, and also ErrWindowBlocked if a window open was
// attempted and refused. If ctx is cancelled while a strategy is still
// connecting, the late connection is closed as soon as it arrives.
func (a *Adapter) Connect(ctx context.Context, target Target) (Connection, error) {
	a.setPhase(PhaseProbing)
	errs := []error{ErrTransportUnavailable}
	for _, s := range a.strategies {
		if err := ctx.Err(); err != nil {
			a.setPhase(PhaseIdle)
			return nil, err
		}
		if !s.Probe(ctx) {
			log.Debugf("%s transport not available", s.Kind())
			continue
		}
		conn, err := connectCancellable(ctx, s, target)
		if err != nil {
			if ctx.Err() != nil {
				a.setPhase(PhaseIdle)
				return nil, ctx.Err()
			}
			log.Warningf("%s transport failed: %v", s.Kind(), err)
			if s.Kind() == KindWindow && !errors.Is(err, ErrWindowBlocked) {
				err = fmt.Errorf("%w: %v", ErrWindowBlocked, err)
			}
			errs = append(errs, err)
			continue
		}
		a.setPhase(readyPhase(s.Kind()))
		log.Infof("presenting over %s transport", s.Kind())
		m := a.manage(conn)
		a.setPhase(PhaseConnected)
		return m, nil
	}
	a.setPhase(PhaseIdle)
	return nil, errors.Join(errs...)
}

func connectCancellable(ctx context.Context, s Strategy, target Target) (Connection, error) {
	type result struct {
		conn Connection
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := s.Connect(ctx, target)
		ch <- result{c, err}
	}()
	select {
	case r := <-ch:
		if r.err == nil && ctx.Err() != nil {
			r.conn.Close()
			return nil, ctx.Err()
		}
		return r.conn, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil && r.conn != nil {
				log.Debugf("closing %s connection that arrived after cancellation", s.Kind())
				r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}
