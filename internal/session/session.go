// Package session holds the shared presentation record that link-poll display
// surfaces read and the presenter writes.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lessoncast/lessoncast/internal/content"
	"github.com/oklog/ulid/v2"
)

// ErrNotFound is returned when the id is unknown or the session has been
// deactivated. It is terminal for readers and never retried.
var ErrNotFound = errors.New("session not found")

// ErrInvalid is returned for records that cannot be created or written.
var ErrInvalid = errors.New("invalid session")

// Session is the single-writer record shared with display surfaces.
type Session struct {
	ID            string              `json:"id"`
	LessonID      string              `json:"lessonId"`
	FragmentIndex int                 `json:"fragmentIndex"`
	Categories    content.CategorySet `json:"categories"`
	Active        bool                `json:"active"`
	CreatedAt     time.Time           `json:"createdAt"`
	LastUpdatedAt time.Time           `json:"lastUpdatedAt"`
	// Revision increases on every write and orders records for pollers.
	Revision uint64 `json:"revision"`
	// WriterKey is handed to the creator only; writes over HTTP must present it.
	WriterKey string `json:"writerKey,omitempty"`
}

// Clone returns a copy whose slices can be mutated independently.
func (s *Session) Clone() *Session {
	c := *s
	if s.Categories != nil {
		c.Categories = append(content.CategorySet(nil), s.Categories...)
	}
	return &c
}

// Public returns a copy without the writer key, safe to serve to readers.
func (s *Session) Public() *Session {
	c := s.Clone()
	c.WriterKey = ""
	return c
}

// Store is the durable record store. Writes replace the whole record so
// readers always observe a consistent snapshot.
type Store interface {
	Create(ctx context.Context, lessonID string, fragmentIndex int, categories content.CategorySet) (*Session, error)
	// Get returns the record, including deactivated ones, or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)
	// UpdateFragmentIndex returns ErrNotFound for unknown or inactive sessions.
	UpdateFragmentIndex(ctx context.Context, id string, fragmentIndex int) error
	// Touch advances LastUpdatedAt without other changes; it is the presenter heartbeat.
	Touch(ctx context.Context, id string) error
	Deactivate(ctx context.Context, id string) error
}

// Expirer deactivates sessions whose presenter stopped writing.
type Expirer interface {
	Expire(ctx context.Context, now time.Time, maxIdle time.Duration) ([]string, error)
}

func newID() string {
	return ulid.Make().String()
}

func validate(lessonID string, fragmentIndex int) error {
	if lessonID == "" {
		return fmt.Errorf("%w: missing lesson id", ErrInvalid)
	}
	if fragmentIndex < 0 {
		return fmt.Errorf("%w: negative fragment index %d", ErrInvalid, fragmentIndex)
	}
	return nil
}

func newSession(lessonID string, fragmentIndex int, categories content.CategorySet, now time.Time) *Session {
	return &Session{
		ID:            newID(),
		LessonID:      lessonID,
		FragmentIndex: fragmentIndex,
		Categories:    append(content.CategorySet(nil), categories...),
		Active:        true,
		CreatedAt:     now,
		LastUpdatedAt: now,
		Revision:      1,
		WriterKey:     uuid.NewString(),
	}
}
