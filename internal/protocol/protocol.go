// Package protocol defines the messages exchanged between a presenter and its
// display surfaces. Push transports carry them as JSON text frames; the poll
// transport synthesizes the same shapes from session records.
package protocol

import (
	"encoding/json"
	"time"
)

// HTTP headers shared by the hub and its clients.
const (
	TokenHeader     = "X-Lessoncast-Token"
	WriterKeyHeader = "X-Writer-Key"
)

type MessageType string

const (
	// MsgUpdateSlide carries a NavigationEvent.
	MsgUpdateSlide MessageType = "update-slide"
	// MsgTerminate ends the presentation for every receiving surface.
	MsgTerminate MessageType = "terminate"
	// MsgRouted binds a registered receiver to a presentation channel.
	MsgRouted MessageType = "routed"

	// Surface -> presenter.
	MsgSurfaceStatus MessageType = "surface-status"

	// Hub -> presenter.
	MsgSurfaceJoined MessageType = "surface-joined"
	MsgSurfaceLeft   MessageType = "surface-left"

	// Hub -> surfaces.
	MsgPresenterLeft   MessageType = "presenter-left"
	MsgPresenterJoined MessageType = "presenter-joined"

	// Produced locally by the poll transport when a read fails transiently.
	MsgPollFailed MessageType = "poll-failed"

	MsgError MessageType = "error"
)

// Role is the part a websocket client plays in a presentation channel.
type Role string

const (
	RolePresenter Role = "presenter"
	RoleSurface   Role = "surface"
	RoleReceiver  Role = "receiver"
)

// Receiver describes a registered native display.
type Receiver struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Busy bool   `json:"busy"`
}

// Termination reasons.
const (
	ReasonPresenterEnded = "presenter-ended"
	ReasonPresenterLost  = "presenter-lost"
	ReasonSessionEnded   = "session-ended"
	ReasonWindowClosed   = "window-closed"
)

// NavigationEvent is the presenter's current position. Seq increases with
// every event a presenter emits; receivers discard events with a Seq at or
// below the last one they applied.
type NavigationEvent struct {
	Seq           uint64 `json:"seq"`
	LessonID      string `json:"lessonId,omitempty"`
	FragmentIndex int    `json:"fragmentIndex"`
	LessonTitle   string `json:"lessonTitle"`
	// Slide is pre-rendered content for the primary slide; opaque to the core.
	Slide string `json:"slide,omitempty"`
}

// Route tells a receiver what to show when it is bound to a channel.
type Route struct {
	ChannelID     string   `json:"channelId"`
	LessonID      string   `json:"lessonId"`
	FragmentIndex int      `json:"fragmentIndex"`
	Categories    []string `json:"categories"`
}

// SurfaceStatus is reported by a surface over bidirectional transports.
type SurfaceStatus struct {
	SurfaceID     string `json:"surfaceId,omitempty"`
	Name          string `json:"name,omitempty"`
	State         string `json:"state"`
	FragmentIndex int    `json:"fragmentIndex"`
}

// Message is the envelope for every transport. Fields not relevant to Type
// are omitted on the wire.
type Message struct {
	Type MessageType `json:"type"`

	// update-slide
	Seq           uint64 `json:"seq,omitempty"`
	LessonID      string `json:"lessonId,omitempty"`
	FragmentIndex int    `json:"fragmentIndex"`
	LessonTitle   string `json:"lessonTitle,omitempty"`
	Slide         string `json:"slide,omitempty"`

	// Set by the poll transport from the session record.
	UpdatedAt  time.Time `json:"updatedAt,omitzero"`
	Categories []string  `json:"categories,omitempty"`

	Route  *Route         `json:"route,omitempty"`
	Status *SurfaceStatus `json:"status,omitempty"`
	Reason string         `json:"reason,omitempty"`
}

// UpdateSlide wraps ev in a message.
func UpdateSlide(ev NavigationEvent) Message {
	return Message{
		Type:          MsgUpdateSlide,
		Seq:           ev.Seq,
		LessonID:      ev.LessonID,
		FragmentIndex: ev.FragmentIndex,
		LessonTitle:   ev.LessonTitle,
		Slide:         ev.Slide,
	}
}

// Terminate builds an explicit termination message.
func Terminate(reason string) Message {
	return Message{Type: MsgTerminate, Reason: reason}
}

// Event extracts the NavigationEvent from an update-slide message.
func (m Message) Event() (NavigationEvent, bool) {
	if m.Type != MsgUpdateSlide {
		return NavigationEvent{}, false
	}
	return NavigationEvent{
		Seq:           m.Seq,
		LessonID:      m.LessonID,
		FragmentIndex: m.FragmentIndex,
		LessonTitle:   m.LessonTitle,
		Slide:         m.Slide,
	}, true
}

func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

func Decode(data []byte) (Message, error) {
	var m Message
	err := json.Unmarshal(data, &m)
	return m, err
}
