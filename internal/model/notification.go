package model

import "time"

// Kind is the normalized notification type
type Kind string

const (
	KindMention Kind = "mention"
	KindReply   Kind = "reply"
	KindOther   Kind = "other"
)

// ParseKind maps a platform reason/type onto a Kind
func ParseKind(reason string) Kind {
	switch reason {
	case "mention":
		return KindMention
	case "reply":
		return KindReply
	default:
		return KindOther
	}
}

// Notification is a platform event the reply processor may answer.
// Only the fields a platform actually provides are set.
type Notification struct {
	ID string `json:"id"`
	// Kind is the normalized type, RawReason the platform's own value
	Kind      Kind   `json:"kind"`
	RawReason string `json:"raw_reason"`
	Author    string `json:"author"`

	// Mastodon: the status to reply to
	StatusID string `json:"status_id,omitempty"`

	// Bluesky: the record to reply to and the root of its thread
	URI     string `json:"uri,omitempty"`
	CID     string `json:"cid,omitempty"`
	RootURI string `json:"root_uri,omitempty"`
	RootCID string `json:"root_cid,omitempty"`

	IndexedAt time.Time `json:"indexed_at"`
}
