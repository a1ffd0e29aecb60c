package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/lessoncast/lessoncast/internal/content"
	"github.com/lessoncast/lessoncast/internal/protocol"
	"github.com/lessoncast/lessoncast/internal/session"
)

// Sessions is a session.Store backed by the server's session API. Writer keys
// returned at creation are remembered per session and presented on writes.
type Sessions struct {
	c *HTTPClient

	mu   sync.Mutex
	keys map[string]string
}

var _ session.Store = (*Sessions)(nil)

func NewSessions(c *HTTPClient) *Sessions {
	return &Sessions{c: c, keys: make(map[string]string)}
}

type createRequest struct {
	LessonID      string   `json:"lessonId"`
	FragmentIndex int      `json:"fragmentIndex"`
	Categories    []string `json:"categories"`
}

type fragmentRequest struct {
	FragmentIndex int `json:"fragmentIndex"`
}

func (s *Sessions) Create(ctx context.Context, lessonID string, fragmentIndex int, categories content.CategorySet) (*session.Session, error) {
	var out session.Session
	err := s.c.post(ctx, "/api/sessions", createRequest{
		LessonID:      lessonID,
		FragmentIndex: fragmentIndex,
		Categories:    categories.Strings(),
	}, &out)
	if err != nil {
		return nil, mapErr(err)
	}
	s.SetWriterKey(out.ID, out.WriterKey)
	log.Debugf("created session %s for lesson %s", out.ID, lessonID)
	return &out, nil
}

func (s *Sessions) Get(ctx context.Context, id string) (*session.Session, error) {
	var out session.Session
	if err := s.c.get(ctx, "/api/sessions/"+escape(id), &out); err != nil {
		return nil, mapErr(err)
	}
	return &out, nil
}

func (s *Sessions) UpdateFragmentIndex(ctx context.Context, id string, fragmentIndex int) error {
	return s.write(ctx, http.MethodPut, id, "/fragment", fragmentRequest{FragmentIndex: fragmentIndex})
}

func (s *Sessions) Touch(ctx context.Context, id string) error {
	return s.write(ctx, http.MethodPost, id, "/touch", nil)
}

func (s *Sessions) Deactivate(ctx context.Context, id string) error {
	return s.write(ctx, http.MethodDelete, id, "", nil)
}

// SetWriterKey records the writer key for a session created elsewhere.
func (s *Sessions) SetWriterKey(id, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[id] = key
}

func (s *Sessions) write(ctx context.Context, method, id, suffix string, body interface{}) error {
	s.mu.Lock()
	key := s.keys[id]
	s.mu.Unlock()
	header := http.Header{}
	if key != "" {
		header.Set(protocol.WriterKeyHeader, key)
	}
	err := s.c.do(ctx, method, "/api/sessions/"+escape(id)+suffix, body, header, nil)
	return mapErr(err)
}

// mapErr turns HTTP statuses into the store's error vocabulary. Not found and
// gone are terminal; everything the server did not explicitly reject is
// transient.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	switch statusCode(err) {
	case 0:
		return err
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%w: %v", session.ErrNotFound, err)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %v", session.ErrInvalid, err)
	case http.StatusForbidden, http.StatusUnauthorized:
		return fmt.Errorf("%w: %v", ErrForbidden, err)
	default:
		return &TransientError{Op: "session", Err: err}
	}
}
