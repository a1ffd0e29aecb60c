package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/lessoncast/lessoncast/internal/content"
)

// Lessons is a content.Source backed by the server's lesson API.
type Lessons struct {
	c *HTTPClient
}

var _ content.Source = (*Lessons)(nil)

func NewLessons(c *HTTPClient) *Lessons { return &Lessons{c: c} }

func (l *Lessons) Lesson(ctx context.Context, id string) (*content.Lesson, error) {
	var out content.Lesson
	if err := l.c.get(ctx, "/api/lessons/"+escape(id), &out); err != nil {
		if statusCode(err) == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", content.ErrLessonNotFound, id)
		}
		return nil, err
	}
	return &out, nil
}

// IDs lists the lessons the server knows.
func (l *Lessons) IDs(ctx context.Context) ([]string, error) {
	var out []string
	if err := l.c.get(ctx, "/api/lessons", &out); err != nil {
		return nil, err
	}
	return out, nil
}
