package hub

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lessoncast/lessoncast/internal/content"
	"github.com/lessoncast/lessoncast/internal/protocol"
	"github.com/lessoncast/lessoncast/internal/session"
)

var (
	errSessionGone = errors.New("session no longer active")
	errNotWriter   = errors.New("writer key mismatch")
)

type lessonLister interface {
	IDs() []string
}

func (s *Server) handleLessons(w http.ResponseWriter, _ *http.Request) {
	ids := []string{}
	if l, ok := s.lessons.(lessonLister); ok {
		ids = l.IDs()
	}
	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) handleLesson(w http.ResponseWriter, r *http.Request) {
	lesson, err := s.lessons.Lesson(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lesson)
}

type createSessionRequest struct {
	LessonID      string   `json:"lessonId"`
	FragmentIndex int      `json:"fragmentIndex"`
	Categories    []string `json:"categories"`
}

type fragmentRequest struct {
	FragmentIndex int `json:"fragmentIndex"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	cats, err := content.CategoriesFromStrings(req.Categories)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if cats.Empty() {
		http.Error(w, "at least one category is required", http.StatusBadRequest)
		return
	}
	lesson, err := s.lessons.Lesson(r.Context(), req.LessonID)
	if err != nil {
		writeError(w, err)
		return
	}
	if req.FragmentIndex < 0 || req.FragmentIndex >= lesson.Len() {
		http.Error(w, "fragment index out of range", http.StatusBadRequest)
		return
	}

	sess, err := s.store.Create(r.Context(), req.LessonID, req.FragmentIndex, cats)
	if err != nil {
		writeError(w, err)
		return
	}
	log.Infof("session %s created for lesson %s (%s)", sess.ID, sess.LessonID, cats)
	// The creator is the single writer; only it ever sees the key.
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Public())
}

func (s *Server) handleUpdateFragment(w http.ResponseWriter, r *http.Request) {
	var req fragmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	sess, ok := s.authorizeWrite(w, r)
	if !ok {
		return
	}
	if lesson, err := s.lessons.Lesson(r.Context(), sess.LessonID); err == nil && req.FragmentIndex >= lesson.Len() {
		http.Error(w, "fragment index out of range", http.StatusBadRequest)
		return
	}
	if err := s.store.UpdateFragmentIndex(r.Context(), sess.ID, req.FragmentIndex); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTouch(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.authorizeWrite(w, r)
	if !ok {
		return
	}
	if err := s.store.Touch(r.Context(), sess.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if r.Header.Get(protocol.WriterKeyHeader) != sess.WriterKey {
		writeError(w, errNotWriter)
		return
	}
	if err := s.store.Deactivate(r.Context(), sess.ID); err != nil {
		writeError(w, err)
		return
	}
	log.Infof("session %s deactivated", sess.ID)
	w.WriteHeader(http.StatusNoContent)
}

// authorizeWrite loads the session for a write and checks the writer key.
// Inactive sessions answer 410 so writers can tell them from unknown ids.
func (s *Server) authorizeWrite(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	if r.Header.Get(protocol.WriterKeyHeader) != sess.WriterKey {
		writeError(w, errNotWriter)
		return nil, false
	}
	if !sess.Active {
		writeError(w, errSessionGone)
		return nil, false
	}
	return sess, true
}
