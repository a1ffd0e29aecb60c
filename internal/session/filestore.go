package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lessoncast/lessoncast/internal/content"
	"github.com/oklog/ulid/v2"
)

const fileExt = ".json"

// FileStore persists each session as <dir>/<id>.json so sessions survive a
// server restart. Writes use a temp file and rename.
type FileStore struct {
	dir string
	mu  sync.Mutex // serializes read-modify-write cycles
	now func() time.Time
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating session dir: %w", err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(id string) (string, error) {
	if _, err := ulid.ParseStrict(id); err != nil {
		return "", ErrNotFound
	}
	return filepath.Join(s.dir, id+fileExt), nil
}

func (s *FileStore) Create(_ context.Context, lessonID string, fragmentIndex int, categories content.CategorySet) (*Session, error) {
	if err := validate(lessonID, fragmentIndex); err != nil {
		return nil, err
	}
	st := newSession(lessonID, fragmentIndex, categories, s.now().UTC())

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.save(st); err != nil {
		return nil, err
	}
	return st, nil
}

func (s *FileStore) Get(_ context.Context, id string) (*Session, error) {
	return s.load(id)
}

func (s *FileStore) UpdateFragmentIndex(_ context.Context, id string, fragmentIndex int) error {
	if fragmentIndex < 0 {
		return fmt.Errorf("%w: negative fragment index %d", ErrInvalid, fragmentIndex)
	}
	return s.write(id, func(st *Session) { st.FragmentIndex = fragmentIndex })
}

func (s *FileStore) Touch(_ context.Context, id string) error {
	return s.write(id, func(*Session) {})
}

func (s *FileStore) Deactivate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load(id)
	if err != nil {
		return err
	}
	if !st.Active {
		return nil
	}
	st.Active = false
	st.LastUpdatedAt = s.now().UTC()
	st.Revision++
	return s.save(st)
}

func (s *FileStore) write(id string, mutate func(*Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.load(id)
	if err != nil {
		return err
	}
	if !st.Active {
		return ErrNotFound
	}
	mutate(st)
	st.LastUpdatedAt = s.now().UTC()
	st.Revision++
	return s.save(st)
}

func (s *FileStore) Expire(ctx context.Context, now time.Time, maxIdle time.Duration) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading session dir: %w", err)
	}
	var expired []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		id := strings.TrimSuffix(name, fileExt)
		st, err := s.load(id)
		if err != nil {
			continue
		}
		if !st.Active || now.Sub(st.LastUpdatedAt) <= maxIdle {
			continue
		}
		if err := s.Deactivate(ctx, id); err != nil {
			return expired, err
		}
		expired = append(expired, id)
	}
	return expired, nil
}

func (s *FileStore) load(id string) (*Session, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading session: %w", err)
	}
	var st Session
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("parsing session %s: %w", id, err)
	}
	return &st, nil
}

func (s *FileStore) save(st *Session) error {
	path, err := s.path(st.ID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming session file: %w", err)
	}
	committed = true
	return nil
}
