// Package displayurl builds and parses the links a display surface is opened
// with.
//
//	/display?lesson=L1&fragment=0&type=slide,reading   direct mode
//	/display?session=01J...                            session (link-poll) mode
//	/display?lesson=L1&fragment=0&channel=01J...       direct mode attached to a push channel
package displayurl

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/lessoncast/lessoncast/internal/content"
)

// Path is the route display links point at.
const Path = "/display"

// Query parameter names.
const (
	ParamLesson   = "lesson"
	ParamFragment = "fragment"
	ParamSession  = "session"
	ParamType     = "type"
	ParamChannel  = "channel"
)

// DefaultCategories applies to direct-mode links without a type parameter.
var DefaultCategories = content.CategorySet{content.Slide}

type Mode int

const (
	ModeAwaiting Mode = iota // nothing to show yet
	ModeDirect               // lesson and fragment carried in the URL
	ModeSession              // resolved through the session store
)

func (m Mode) String() string {
	switch m {
	case ModeDirect:
		return "direct"
	case ModeSession:
		return "session"
	default:
		return "awaiting"
	}
}

// Params are the surface inputs carried by a display link.
type Params struct {
	LessonID      string
	FragmentIndex int
	SessionID     string
	Categories    content.CategorySet
	Channel       string
}

// Mode reports how a surface should resolve its state. A session id wins
// over lesson/fragment.
func (p Params) Mode() Mode {
	switch {
	case p.SessionID != "":
		return ModeSession
	case p.LessonID != "":
		return ModeDirect
	default:
		return ModeAwaiting
	}
}

// Parse reads params from a full URL or a bare query string.
func Parse(raw string) (Params, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Params{}, fmt.Errorf("parsing display url: %w", err)
	}
	return FromQuery(u.Query())
}

// FromQuery reads params from decoded query values.
func FromQuery(q url.Values) (Params, error) {
	p := Params{
		SessionID: strings.TrimSpace(q.Get(ParamSession)),
		Channel:   strings.TrimSpace(q.Get(ParamChannel)),
	}
	if p.SessionID != "" {
		// lesson, fragment and type come from the session record.
		return p, nil
	}

	p.LessonID = strings.TrimSpace(q.Get(ParamLesson))
	if p.LessonID == "" {
		return p, nil
	}
	if f := q.Get(ParamFragment); f != "" {
		idx, err := strconv.Atoi(f)
		if err != nil || idx < 0 {
			return Params{}, fmt.Errorf("invalid fragment %q", f)
		}
		p.FragmentIndex = idx
	}

	cats, err := content.ParseCategories(q.Get(ParamType))
	if err != nil {
		return Params{}, err
	}
	if cats.Empty() {
		cats = append(content.CategorySet(nil), DefaultCategories...)
	}
	p.Categories = cats
	return p, nil
}

// Query encodes p.
func (p Params) Query() url.Values {
	q := url.Values{}
	if p.SessionID != "" {
		q.Set(ParamSession, p.SessionID)
		return q
	}
	if p.LessonID != "" {
		q.Set(ParamLesson, p.LessonID)
		q.Set(ParamFragment, strconv.Itoa(p.FragmentIndex))
		if !p.Categories.Empty() {
			q.Set(ParamType, p.Categories.String())
		}
	}
	if p.Channel != "" {
		q.Set(ParamChannel, p.Channel)
	}
	return q
}

// URL returns the display link for p under base (e.g. "http://host:8080").
func (p Params) URL(base string) string {
	return strings.TrimRight(base, "/") + Path + "?" + p.Query().Encode()
}

// SessionLink is the shareable link for a session id.
func SessionLink(base, sessionID string) string {
	return Params{SessionID: sessionID}.URL(base)
}

// Base returns scheme://host of a display link, the server it belongs to.
func Base(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parsing display url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("display url %q has no host", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}
