package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/lessoncast/lessoncast/internal/protocol"
	"github.com/lessoncast/lessoncast/internal/transport"
)

// ErrReceiverBusy is returned when routing to a receiver that is already
// presenting.
var ErrReceiverBusy = errors.New("receiver busy")

// Hub is the client side of the server's channel and receiver API.
type Hub struct {
	c *HTTPClient
}

var _ transport.HubAPI = (*Hub)(nil)

func NewHub(c *HTTPClient) *Hub { return &Hub{c: c} }

type routeRequest struct {
	ReceiverID string         `json:"receiverId"`
	Route      protocol.Route `json:"route"`
}

type channelResponse struct {
	ChannelID string `json:"channelId"`
}

func (h *Hub) Receivers(ctx context.Context) ([]protocol.Receiver, error) {
	var out []protocol.Receiver
	if err := h.c.get(ctx, "/api/receivers", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (h *Hub) RouteReceiver(ctx context.Context, receiverID string, route protocol.Route) (string, error) {
	var out channelResponse
	err := h.c.post(ctx, "/api/routes", routeRequest{ReceiverID: receiverID, Route: route}, &out)
	if statusCode(err) == http.StatusConflict {
		return "", fmt.Errorf("%w: %v", ErrReceiverBusy, err)
	}
	if err != nil {
		return "", err
	}
	return out.ChannelID, nil
}

func (h *Hub) CreateChannel(ctx context.Context) (string, error) {
	var out channelResponse
	if err := h.c.post(ctx, "/api/channels", nil, &out); err != nil {
		return "", err
	}
	return out.ChannelID, nil
}

func (h *Hub) ChannelURL(channelID string, role protocol.Role) string {
	q := url.Values{"role": {string(role)}}
	return h.wsBase() + "/ws/channel/" + escape(channelID) + "?" + q.Encode()
}

// ReceiverURL is the endpoint a native receiver registers at.
func (h *Hub) ReceiverURL(name string) string {
	q := url.Values{}
	if name != "" {
		q.Set("name", name)
	}
	return h.wsBase() + "/ws/receiver?" + q.Encode()
}

// SurfaceURL joins a channel as a surface with a display name.
func (h *Hub) SurfaceURL(channelID, name string) string {
	q := url.Values{"role": {string(protocol.RoleSurface)}}
	if name != "" {
		q.Set("name", name)
	}
	return h.wsBase() + "/ws/channel/" + escape(channelID) + "?" + q.Encode()
}

func (h *Hub) DisplayBase() string { return h.c.baseURL }

func (h *Hub) Token() string { return h.c.token }

func (h *Hub) wsBase() string {
	switch {
	case strings.HasPrefix(h.c.baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(h.c.baseURL, "https://")
	case strings.HasPrefix(h.c.baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(h.c.baseURL, "http://")
	default:
		return h.c.baseURL
	}
}
