// Package content holds the lesson model consumed by the presentation core and
// the filter that decides which parts of a fragment a display surface may render.
// Lessons are owned by an external store; nothing here mutates them.
package content

import (
	"context"
	"errors"
	"fmt"
)

// ErrLessonNotFound is returned by a Source when the lesson id is unknown.
var ErrLessonNotFound = errors.New("lesson not found")

// Lesson is an ordered sequence of fragments.
type Lesson struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	Fragments []Fragment `json:"fragments" yaml:"fragments"`
}

// Fragment is one presentable unit of a lesson.
type Fragment struct {
	Title     string         `json:"title" yaml:"title"`
	Reading   string         `json:"reading,omitempty" yaml:"reading"`
	Slides    []SlideContent `json:"slides,omitempty" yaml:"slides"`
	Videos    []Video        `json:"videos,omitempty" yaml:"videos"`
	StudyAids []StudyAidItem `json:"studyAids,omitempty" yaml:"study_aids"`
}

type SlideContent struct {
	Title string `json:"title,omitempty" yaml:"title"`
	Body  string `json:"body" yaml:"body"` // markdown
}

type Video struct {
	Title string `json:"title" yaml:"title"`
	URL   string `json:"url" yaml:"url"`
}

// StudyAidItem is a flashcard-style prompt.
type StudyAidItem struct {
	Kind   string `json:"kind,omitempty" yaml:"kind"`
	Prompt string `json:"prompt" yaml:"prompt"`
	Answer string `json:"answer,omitempty" yaml:"answer"`
}

// Len returns the number of fragments.
func (l *Lesson) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Fragments)
}

// Fragment returns the fragment at i.
func (l *Lesson) Fragment(i int) (Fragment, error) {
	if i < 0 || i >= l.Len() {
		return Fragment{}, fmt.Errorf("fragment %d out of range [0,%d)", i, l.Len())
	}
	return l.Fragments[i], nil
}

// ClampIndex clamps i into [0, Len()-1]. An empty lesson clamps to 0.
func (l *Lesson) ClampIndex(i int) int {
	if i >= l.Len() {
		i = l.Len() - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}

// Source resolves lessons by id.
type Source interface {
	Lesson(ctx context.Context, id string) (*Lesson, error)
}
