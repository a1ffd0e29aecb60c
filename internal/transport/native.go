package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/lessoncast/lessoncast/internal/protocol"
)

// NativeStrategy routes the presentation to a registered receiver display.
type NativeStrategy struct {
	API HubAPI
	// Receiver restricts routing to the receiver with this name. Empty picks
	// the first idle one.
	Receiver string
	Ping     time.Duration
}

func (s *NativeStrategy) Kind() Kind { return KindNative }

func (s *NativeStrategy) Probe(ctx context.Context) bool {
	_, err := s.pick(ctx)
	return err == nil
}

func (s *NativeStrategy) pick(ctx context.Context) (protocol.Receiver, error) {
	receivers, err := s.API.Receivers(ctx)
	if err != nil {
		return protocol.Receiver{}, err
	}
	for _, r := range receivers {
		if r.Busy {
			continue
		}
		if s.Receiver == "" || s.Receiver == r.Name {
			return r, nil
		}
	}
	return protocol.Receiver{}, fmt.Errorf("no idle receiver: %w", ErrTransportUnavailable)
}

func (s *NativeStrategy) Connect(ctx context.Context, target Target) (Connection, error) {
	r, err := s.pick(ctx)
	if err != nil {
		return nil, err
	}
	channelID, err := s.API.RouteReceiver(ctx, r.ID, protocol.Route{
		LessonID:      target.LessonID,
		FragmentIndex: target.FragmentIndex,
		Categories:    target.Categories.Strings(),
	})
	if err != nil {
		return nil, fmt.Errorf("route receiver %s: %w", r.Name, err)
	}
	log.Infof("routed receiver %q to channel %s", r.Name, channelID)
	return DialWS(ctx, KindNative, s.API.ChannelURL(channelID, protocol.RolePresenter), s.API.Token(), s.Ping)
}
