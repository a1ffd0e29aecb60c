package hub

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lessoncast/lessoncast/internal/content"
	"github.com/lessoncast/lessoncast/internal/protocol"
	"github.com/lessoncast/lessoncast/internal/session"
)

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	securityHeaders(inner).ServeHTTP(rec, req)

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"X-XSS-Protection":        "1; mode=block",
		"Content-Security-Policy": "default-src 'self'",
	}

	for header, expected := range want {
		if got := rec.Header().Get(header); got != expected {
			t.Errorf("header %s = %q, want %q", header, got, expected)
		}
	}
}

func newAuthServer(t *testing.T, token string, origins ...string) *Server {
	cfg := testConfig(t)
	cfg.Server.AuthToken = token
	cfg.Server.AllowedOrigins = origins
	return NewServer(cfg, New(testOptions(), nil), session.NewMemoryStore(), content.NewLibrary())
}

func TestAuthorize(t *testing.T) {
	s := newAuthServer(t, "secret")
	tests := []struct {
		name   string
		target string
		header map[string]string
		want   bool
	}{
		{"none", "/api/info", nil, false},
		{"query", "/api/info?token=secret", nil, true},
		{"header", "/api/info", map[string]string{protocol.TokenHeader: "secret"}, true},
		{"bearer", "/api/info", map[string]string{"Authorization": "Bearer secret"}, true},
		{"wrong bearer", "/api/info", map[string]string{"Authorization": "Bearer nope"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			if got := s.authorize(req); got != tt.want {
				t.Errorf("authorize = %v, want %v", got, tt.want)
			}
		})
	}

	open := newAuthServer(t, "")
	if !open.authorize(httptest.NewRequest(http.MethodGet, "/", nil)) {
		t.Error("empty token should allow every request")
	}
}

func TestUnauthorizedRequestsRejected(t *testing.T) {
	s := newAuthServer(t, "secret")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/receivers", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d, want 200", rec.Code)
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		host    string
		want    bool
	}{
		{"no origin", nil, "", "example.com", true},
		{"same host", nil, "http://example.com", "example.com", true},
		{"localhost", nil, "http://localhost:3000", "example.com", true},
		{"loopback v6", nil, "http://[::1]:3000", "example.com", true},
		{"foreign", nil, "http://evil.test", "example.com", false},
		{"allowed list", []string{"https://class.test"}, "https://class.test", "example.com", true},
		{"allowed host other scheme", []string{"https://class.test"}, "http://class.test", "example.com", true},
		{"not in list", []string{"https://class.test"}, "http://localhost", "example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newAuthServer(t, "", tt.allowed...)
			req := httptest.NewRequest(http.MethodGet, "/ws/receiver", nil)
			req.Host = tt.host
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := s.checkOrigin(req); got != tt.want {
				t.Errorf("checkOrigin = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, testOptions(), nil)
	var h Health
	if code := env.do(t, http.MethodGet, "/healthz", nil, nil, &h); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if h.Status != "ok" || h.Instance == "" || h.Goroutines == 0 {
		t.Fatalf("health = %+v", h)
	}
}

func TestSessionAPI(t *testing.T) {
	env := newTestEnv(t, testOptions(), nil)

	if code := env.do(t, http.MethodPost, "/api/sessions", createSessionRequest{LessonID: "L1"}, nil, nil); code != http.StatusBadRequest {
		t.Fatalf("empty categories: %d, want 400", code)
	}
	if code := env.do(t, http.MethodPost, "/api/sessions", createSessionRequest{LessonID: "nope", Categories: []string{"slide"}}, nil, nil); code != http.StatusNotFound {
		t.Fatalf("unknown lesson: %d, want 404", code)
	}
	if code := env.do(t, http.MethodPost, "/api/sessions", createSessionRequest{LessonID: "L1", FragmentIndex: 9, Categories: []string{"slide"}}, nil, nil); code != http.StatusBadRequest {
		t.Fatalf("out of range fragment: %d, want 400", code)
	}

	var created session.Session
	code := env.do(t, http.MethodPost, "/api/sessions", createSessionRequest{LessonID: "L1", Categories: []string{"slide"}}, nil, &created)
	if code != http.StatusCreated || created.WriterKey == "" {
		t.Fatalf("create: %d %+v", code, created)
	}
	path := "/api/sessions/" + created.ID

	var got session.Session
	if code := env.do(t, http.MethodGet, path, nil, nil, &got); code != http.StatusOK {
		t.Fatalf("get: %d", code)
	}
	if got.WriterKey != "" {
		t.Fatal("writer key leaked to readers")
	}

	if code := env.do(t, http.MethodPut, path+"/fragment", fragmentRequest{FragmentIndex: 2}, nil, nil); code != http.StatusForbidden {
		t.Fatalf("update without key: %d, want 403", code)
	}
	writer := http.Header{protocol.WriterKeyHeader: {created.WriterKey}}
	if code := env.do(t, http.MethodPut, path+"/fragment", fragmentRequest{FragmentIndex: 2}, writer, nil); code != http.StatusNoContent {
		t.Fatalf("update: %d", code)
	}
	if code := env.do(t, http.MethodPut, path+"/fragment", fragmentRequest{FragmentIndex: 7}, writer, nil); code != http.StatusBadRequest {
		t.Fatalf("update out of range: %d, want 400", code)
	}
	if code := env.do(t, http.MethodPost, path+"/touch", nil, writer, nil); code != http.StatusNoContent {
		t.Fatalf("touch: %d", code)
	}
	env.do(t, http.MethodGet, path, nil, nil, &got)
	if got.FragmentIndex != 2 || got.Revision != 3 {
		t.Fatalf("after writes: index=%d revision=%d", got.FragmentIndex, got.Revision)
	}

	if code := env.do(t, http.MethodDelete, path, nil, writer, nil); code != http.StatusNoContent {
		t.Fatalf("deactivate: %d", code)
	}
	env.do(t, http.MethodGet, path, nil, nil, &got)
	if got.Active {
		t.Fatal("session still active")
	}
	if code := env.do(t, http.MethodPut, path+"/fragment", fragmentRequest{FragmentIndex: 1}, writer, nil); code != http.StatusGone {
		t.Fatalf("update after deactivate: %d, want 410", code)
	}
	if code := env.do(t, http.MethodGet, "/api/sessions/unknown", nil, nil, nil); code != http.StatusNotFound {
		t.Fatalf("unknown session: %d, want 404", code)
	}
}

func TestLessonAPI(t *testing.T) {
	env := newTestEnv(t, testOptions(), nil)
	var ids []string
	if code := env.do(t, http.MethodGet, "/api/lessons", nil, nil, &ids); code != http.StatusOK || len(ids) != 1 {
		t.Fatalf("lessons: %d %v", code, ids)
	}
	var l content.Lesson
	if code := env.do(t, http.MethodGet, "/api/lessons/L1", nil, nil, &l); code != http.StatusOK || l.Len() != 5 {
		t.Fatalf("lesson: %d %d", code, l.Len())
	}
	if code := env.do(t, http.MethodGet, "/api/lessons/L2", nil, nil, nil); code != http.StatusNotFound {
		t.Fatalf("missing lesson: %d", code)
	}
}
