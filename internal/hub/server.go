package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lessoncast/lessoncast/internal/config"
	"github.com/lessoncast/lessoncast/internal/content"
	"github.com/lessoncast/lessoncast/internal/protocol"
	"github.com/lessoncast/lessoncast/internal/session"
)

// Server exposes the session store, the lesson library and the hub over HTTP
// and websockets.
type Server struct {
	config         *config.Config
	hub            *Hub
	store          session.Store
	lessons        content.Source
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
	started        time.Time
}

func NewServer(cfg *config.Config, hub *Hub, store session.Store, lessons content.Source) *Server {
	s := &Server{
		config:         cfg,
		hub:            hub,
		store:          store,
		lessons:        lessons,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      cfg.Server.AuthToken,
		started:        time.Now(),
	}

	for _, origin := range cfg.Server.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

// Handler returns the full route table wrapped in security headers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return securityHeaders(mux)
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/info", s.auth(s.handleInfo))

	mux.HandleFunc("GET /api/lessons", s.auth(s.handleLessons))
	mux.HandleFunc("GET /api/lessons/{id}", s.auth(s.handleLesson))

	mux.HandleFunc("POST /api/sessions", s.auth(s.handleCreateSession))
	mux.HandleFunc("GET /api/sessions/{id}", s.auth(s.handleGetSession))
	mux.HandleFunc("PUT /api/sessions/{id}/fragment", s.auth(s.handleUpdateFragment))
	mux.HandleFunc("POST /api/sessions/{id}/touch", s.auth(s.handleTouch))
	mux.HandleFunc("DELETE /api/sessions/{id}", s.auth(s.handleDeactivate))

	mux.HandleFunc("GET /api/receivers", s.auth(s.handleReceivers))
	mux.HandleFunc("POST /api/routes", s.auth(s.handleRoute))
	mux.HandleFunc("POST /api/channels", s.auth(s.handleCreateChannel))

	mux.HandleFunc("GET /ws/channel/{id}", s.auth(s.handleChannelWS))
	mux.HandleFunc("GET /ws/receiver", s.auth(s.handleReceiverWS))
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{CheckOrigin: s.checkOrigin}
}

func (s *Server) handleChannelWS(w http.ResponseWriter, r *http.Request) {
	channelID := r.PathValue("id")
	role := protocol.Role(r.URL.Query().Get("role"))
	if role == "" {
		role = protocol.RoleSurface
	}
	if role != protocol.RolePresenter && role != protocol.RoleSurface {
		http.Error(w, "role must be presenter or surface", http.StatusBadRequest)
		return
	}
	if err := s.hub.CanJoin(role, channelID); err != nil {
		writeError(w, err)
		return
	}
	if err := s.hub.Reserve(); err != nil {
		writeError(w, err)
		return
	}
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.hub.Release()
		log.Warningf("ws upgrade error: %v", err)
		return
	}
	log.Debugf("websocket %s connected: %s", role, r.RemoteAddr)
	s.hub.ServeChannel(conn, role, r.URL.Query().Get("name"), channelID)
}

func (s *Server) handleReceiverWS(w http.ResponseWriter, r *http.Request) {
	if err := s.hub.Reserve(); err != nil {
		writeError(w, err)
		return
	}
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.hub.Release()
		log.Warningf("ws upgrade error: %v", err)
		return
	}
	s.hub.ServeReceiver(conn, r.URL.Query().Get("name"))
}

func (s *Server) handleReceivers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Receivers())
}

type routeRequest struct {
	ReceiverID string         `json:"receiverId"`
	Route      protocol.Route `json:"route"`
}

type channelResponse struct {
	ChannelID string `json:"channelId"`
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Route.LessonID == "" {
		http.Error(w, "route.lessonId is required", http.StatusBadRequest)
		return
	}
	id, err := s.hub.Route(req.ReceiverID, req.Route)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, channelResponse{ChannelID: id})
}

func (s *Server) handleCreateChannel(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusCreated, channelResponse{ChannelID: s.hub.CreateChannel()})
}

type infoResponse struct {
	PublicURL string `json:"publicUrl"`
	Instance  string `json:"instance"`
}

func (s *Server) handleInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, infoResponse{PublicURL: s.config.PublicBase(), Instance: s.hub.Instance()})
}

// Run sweeps idle channels and expires abandoned sessions until ctx is done.
func (s *Server) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.Hub.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.hub.Sweep(now)
			s.expireSessions(ctx, now)
		}
	}
}

func (s *Server) expireSessions(ctx context.Context, now time.Time) {
	exp, ok := s.store.(session.Expirer)
	if !ok {
		return
	}
	ids, err := exp.Expire(ctx, now, s.config.Sessions.ExpireAfter)
	if err != nil {
		log.Warningf("session expiry: %v", err)
		return
	}
	for _, id := range ids {
		log.Infof("session %s expired", id)
	}
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorize(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get(protocol.TokenHeader) == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	hostname := parsed.Hostname()
	return hostname == "localhost" || hostname == "127.0.0.1" || hostname == "::1"
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warningf("writing response: %v", err)
	}
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrTooManyConnections):
		status = http.StatusServiceUnavailable
	case errors.Is(err, ErrChannelNotFound), errors.Is(err, ErrReceiverNotFound),
		errors.Is(err, session.ErrNotFound), errors.Is(err, content.ErrLessonNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrPresenterExists), errors.Is(err, ErrReceiverBusy):
		status = http.StatusConflict
	case errors.Is(err, session.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, errSessionGone):
		status = http.StatusGone
	case errors.Is(err, errNotWriter):
		status = http.StatusForbidden
	}
	http.Error(w, err.Error(), status)
}

// ListenAndServe serves handler on host:port until ctx is cancelled, then
// shuts down gracefully.
func ListenAndServe(ctx context.Context, host string, port int, handler http.Handler) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
