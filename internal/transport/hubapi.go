package transport

import (
	"context"

	"github.com/lessoncast/lessoncast/internal/protocol"
)

// HubAPI is the part of the hub's HTTP surface the push strategies need.
type HubAPI interface {
	Receivers(ctx context.Context) ([]protocol.Receiver, error)
	// RouteReceiver binds an idle receiver to a new channel and returns the
	// channel id.
	RouteReceiver(ctx context.Context, receiverID string, route protocol.Route) (string, error)
	CreateChannel(ctx context.Context) (string, error)
	ChannelURL(channelID string, role protocol.Role) string
	// DisplayBase is the public base URL display links are built on.
	DisplayBase() string
	Token() string
}
