package content

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Library is an in-memory Source loaded from YAML lesson files, one lesson per
// file. It stands in for the external authoring store.
type Library struct {
	mu      sync.RWMutex
	lessons map[string]*Lesson
}

func NewLibrary(lessons ...*Lesson) *Library {
	l := &Library{lessons: make(map[string]*Lesson)}
	for _, lesson := range lessons {
		l.lessons[lesson.ID] = lesson
	}
	return l
}

// LoadLibrary reads every *.yaml / *.yml file in dir. A lesson without an id
// takes its file name (sans extension) as id.
func LoadLibrary(dir string) (*Library, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading lessons dir: %w", err)
	}

	lib := NewLibrary()
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		lesson, err := readLessonFile(path)
		if err != nil {
			return nil, err
		}
		if lesson.ID == "" {
			lesson.ID = strings.TrimSuffix(e.Name(), ext)
		}
		if _, dup := lib.lessons[lesson.ID]; dup {
			return nil, fmt.Errorf("duplicate lesson id %q in %s", lesson.ID, path)
		}
		lib.lessons[lesson.ID] = lesson
	}
	return lib, nil
}

func readLessonFile(path string) (*Lesson, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lesson: %w", err)
	}
	var lesson Lesson
	if err := yaml.Unmarshal(data, &lesson); err != nil {
		return nil, fmt.Errorf("parsing lesson %s: %w", path, err)
	}
	return &lesson, nil
}

// Lesson returns the lesson with the given id.
func (l *Library) Lesson(_ context.Context, id string) (*Lesson, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	lesson, ok := l.lessons[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLessonNotFound, id)
	}
	return lesson, nil
}

// Put adds or replaces a lesson.
func (l *Library) Put(lesson *Lesson) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lessons[lesson.ID] = lesson
}

// IDs returns all lesson ids, sorted.
func (l *Library) IDs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]string, 0, len(l.lessons))
	for id := range l.lessons {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
