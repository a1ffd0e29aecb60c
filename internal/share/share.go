// Package share turns a presenter position into a shareable display link
// backed by a session record.
package share

import (
	"context"
	"errors"
	"fmt"

	"github.com/lessoncast/lessoncast/internal/content"
	"github.com/lessoncast/lessoncast/internal/displayurl"
	"github.com/lessoncast/lessoncast/internal/presenter"
	"github.com/lessoncast/lessoncast/internal/session"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("lessoncast")

// ErrNoCategories rejects a share request that selects nothing to show.
var ErrNoCategories = errors.New("select at least one category to share")

// Reference is what the presenter hands out: a link for people and the raw
// session id for tooling.
type Reference struct {
	SessionID  string
	Link       string
	Categories content.CategorySet
}

// Controller creates sessions. It never delivers navigation; a session goes
// live once a link surface starts polling it.
type Controller struct {
	store session.Store
	base  string
}

// New returns a controller whose links point at base (scheme://host).
func New(store session.Store, base string) *Controller {
	return &Controller{store: store, base: base}
}

// CreateSession validates the selection and creates a session record. An
// empty selection fails with ErrNoCategories before anything is written.
func (c *Controller) CreateSession(ctx context.Context, lessonID string, fragmentIndex int, categories content.CategorySet) (*Reference, error) {
	if categories.Empty() {
		return nil, ErrNoCategories
	}
	cats, err := content.NewCategorySet(categories...)
	if err != nil {
		return nil, err
	}
	sess, err := c.store.Create(ctx, lessonID, fragmentIndex, cats)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	log.Infof("session %s created for lesson %s at fragment %d (%s)", sess.ID, lessonID, fragmentIndex, cats)
	return &Reference{
		SessionID:  sess.ID,
		Link:       displayurl.SessionLink(c.base, sess.ID),
		Categories: cats,
	}, nil
}

// Share creates a session at p's current position and makes p its writer.
// Categories cannot change later; sharing again replaces the link.
func (c *Controller) Share(ctx context.Context, p *presenter.Controller, categories content.CategorySet) (*Reference, error) {
	ref, err := c.CreateSession(ctx, p.Lesson().ID, p.Index(), categories)
	if err != nil {
		return nil, err
	}
	if err := p.AttachSession(ctx, ref.SessionID); err != nil {
		if derr := c.store.Deactivate(ctx, ref.SessionID); derr != nil {
			log.Warningf("deactivating unattached session %s: %v", ref.SessionID, derr)
		}
		return nil, err
	}
	return ref, nil
}
