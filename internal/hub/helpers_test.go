package hub

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lessoncast/lessoncast/internal/config"
	"github.com/lessoncast/lessoncast/internal/content"
	"github.com/lessoncast/lessoncast/internal/protocol"
	"github.com/lessoncast/lessoncast/internal/relay"
	"github.com/lessoncast/lessoncast/internal/session"
)

type testEnv struct {
	srv   *httptest.Server
	hub   *Hub
	store *session.MemoryStore
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.PingInterval = time.Second
	return opts
}

func newTestEnv(t *testing.T, opts Options, r relay.Relay) *testEnv {
	t.Helper()
	cfg := testConfig(t)
	h := New(opts, r)
	store := session.NewMemoryStore()
	lessons := content.NewLibrary(&content.Lesson{ID: "L1", Title: "Cells", Fragments: make([]content.Fragment, 5)})
	srv := httptest.NewServer(NewServer(cfg, h, store, lessons).Handler())
	t.Cleanup(func() {
		srv.Close()
		h.Close()
	})
	return &testEnv{srv: srv, hub: h, store: store}
}

func (e *testEnv) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(e.srv.URL, "http") + path
}

// dialTestWS connects to path and fails the test on error.
func (e *testEnv) dialTestWS(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(e.wsURL(path), nil)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s: %v (status %d)", path, err, status)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (e *testEnv) dialStatus(path string) int {
	conn, resp, err := websocket.DefaultDialer.Dial(e.wsURL(path), nil)
	if err == nil {
		conn.Close()
		return http.StatusSwitchingProtocols
	}
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, header http.Header, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) createChannel(t *testing.T) string {
	t.Helper()
	var out channelResponse
	if code := e.do(t, http.MethodPost, "/api/channels", nil, nil, &out); code != http.StatusCreated {
		t.Fatalf("create channel: %d", code)
	}
	return out.ChannelID
}

func readMsg(t *testing.T, conn *websocket.Conn) protocol.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var m protocol.Message
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

// readUntil skips messages until one of type want arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want protocol.MessageType) protocol.Message {
	t.Helper()
	for {
		if m := readMsg(t, conn); m.Type == want {
			return m
		}
	}
}

func sendMsg(t *testing.T, conn *websocket.Conn, m protocol.Message) {
	t.Helper()
	if err := conn.WriteJSON(m); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
