package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/lessoncast/lessoncast/internal/content"
	"github.com/lessoncast/lessoncast/internal/protocol"
	"github.com/lessoncast/lessoncast/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL+"/", "tok")
}

func TestSessionsCreateRemembersWriterKey(t *testing.T) {
	var gotKey atomic.Value
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok", r.Header.Get(protocol.TokenHeader))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/sessions":
			var req createRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, []string{"slide"}, req.Categories)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(session.Session{ID: "s1", LessonID: req.LessonID, Active: true, WriterKey: "wk"})
		case r.Method == http.MethodPut && r.URL.Path == "/api/sessions/s1/fragment":
			gotKey.Store(r.Header.Get(protocol.WriterKeyHeader))
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	})

	store := NewSessions(c)
	sess, err := store.Create(context.Background(), "L1", 0, content.CategorySet{content.Slide})
	require.NoError(t, err)
	assert.Equal(t, "s1", sess.ID)

	require.NoError(t, store.UpdateFragmentIndex(context.Background(), "s1", 2))
	assert.Equal(t, "wk", gotKey.Load())
}

func TestSessionsErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		notFound  bool
		transient bool
		forbidden bool
	}{
		{"not found", http.StatusNotFound, true, false, false},
		{"gone", http.StatusGone, true, false, false},
		{"forbidden", http.StatusForbidden, false, false, true},
		{"server error", http.StatusInternalServerError, false, true, false},
		{"unavailable", http.StatusServiceUnavailable, false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			})
			store := NewSessions(c)
			_, err := store.Get(context.Background(), "x")
			require.Error(t, err)
			assert.Equal(t, tt.notFound, errors.Is(err, session.ErrNotFound), "not found: %v", err)
			assert.Equal(t, tt.transient, IsTransient(err), "transient: %v", err)
			assert.Equal(t, tt.forbidden, errors.Is(err, ErrForbidden), "forbidden: %v", err)
		})
	}
}

func TestNetworkFailureIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	store := NewSessions(NewHTTPClient(base, ""))
	_, err := store.Get(context.Background(), "x")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.False(t, errors.Is(err, session.ErrNotFound))
}

func TestLessonsNotFound(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/lessons/L1" {
			json.NewEncoder(w).Encode(content.Lesson{ID: "L1", Title: "Cells", Fragments: make([]content.Fragment, 3)})
			return
		}
		http.NotFound(w, r)
	})
	lessons := NewLessons(c)

	l, err := lessons.Lesson(context.Background(), "L1")
	require.NoError(t, err)
	assert.Equal(t, 3, l.Len())

	_, err = lessons.Lesson(context.Background(), "L2")
	assert.ErrorIs(t, err, content.ErrLessonNotFound)
}

func TestHubURLsAndRoutes(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/receivers":
			json.NewEncoder(w).Encode([]protocol.Receiver{{ID: "r1", Name: "projector"}})
		case "/api/routes":
			var req routeRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.ReceiverID != "r1" {
				http.Error(w, "busy", http.StatusConflict)
				return
			}
			json.NewEncoder(w).Encode(channelResponse{ChannelID: "ch1"})
		case "/api/channels":
			json.NewEncoder(w).Encode(channelResponse{ChannelID: "ch2"})
		default:
			http.NotFound(w, r)
		}
	})
	hub := NewHub(c)
	ctx := context.Background()

	rs, err := hub.Receivers(ctx)
	require.NoError(t, err)
	require.Len(t, rs, 1)

	ch, err := hub.RouteReceiver(ctx, "r1", protocol.Route{LessonID: "L1"})
	require.NoError(t, err)
	assert.Equal(t, "ch1", ch)

	_, err = hub.RouteReceiver(ctx, "r2", protocol.Route{LessonID: "L1"})
	assert.ErrorIs(t, err, ErrReceiverBusy)

	ch, err = hub.CreateChannel(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ch2", ch)

	assert.Regexp(t, `^ws://127\.0\.0\.1:\d+/ws/channel/ch2\?role=presenter$`, hub.ChannelURL("ch2", protocol.RolePresenter))
	assert.Regexp(t, `^ws://.+/ws/receiver\?name=projector$`, hub.ReceiverURL("projector"))
	assert.Equal(t, "tok", hub.Token())
}
