// Package chat maintains the client-side conversation cache and drives chat
// turns against the backend. The backend stays the source of truth; this
// cache is advisory and rebuilt on every conversation switch.
package chat

import (
	"time"
)

// Message roles and types as stored by the backend.
const (
	RoleUser = "user"
	RoleBot  = "bot"

	TypeText  = "text"
	TypeImage = "image"
)

// Message is one bubble of the active conversation. A Pending image message
// is a client-only optimistic placeholder awaiting backend confirmation.
type Message struct {
	Role      string
	MType     string
	Content   string
	ImagePath string
	Pending   bool
	// Failed marks an optimistic entry whose exchange failed. It is kept
	// visible rather than rolled back so the user can retry.
	Failed  bool
	LocalID string // client-side id for pending entries
}

// Conversation is one sidebar entry. Timestamps keep the backend's string
// form; recency ordering parses them leniently.
type Conversation struct {
	ID        string
	Title     string
	CreatedAt string
	UpdatedAt string
}

// DisplayTitle returns the title to present, substituting a generic label
// while the title is still a placeholder.
func (c Conversation) DisplayTitle() string {
	if IsPlaceholderTitle(c.Title) {
		return "Conversation"
	}
	return c.Title
}

// Speaker voices an answer aloud. The default implementation does nothing;
// speech engines live outside this module.
type Speaker interface {
	Speak(text string)
}

// timestampFormats are tried in order when parsing backend timestamps.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05",
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampFormats {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// recency returns the instant used for sidebar ordering: updated_at when
// parseable, else created_at, else the zero time.
func (c Conversation) recency() time.Time {
	if ts, ok := parseTimestamp(c.UpdatedAt); ok {
		return ts
	}
	if ts, ok := parseTimestamp(c.CreatedAt); ok {
		return ts
	}
	return time.Time{}
}
