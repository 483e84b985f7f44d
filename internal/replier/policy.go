package replier

import (
	"fmt"
	"slices"
	"strings"

	"github.com/yeenbean/pauljac3-mastodon-bot/internal/model"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/platform"
)

// Mode decides what happens after a notification that does not match
type Mode string

const (
	// ModeContiguousPrefix stops at the first non-matching notification
	ModeContiguousPrefix Mode = "contiguous-prefix"
	// ModeFilterAll skips non-matching notifications and keeps going
	ModeFilterAll Mode = "filter-all"
)

// ParseMode validates a configured mode
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.TrimSpace(s)); m {
	case ModeContiguousPrefix, ModeFilterAll:
		return m, nil
	default:
		return "", fmt.Errorf("replier: unknown reply mode %q", s)
	}
}

// Policy selects which notifications of one platform get a reply
type Policy struct {
	Mode  Mode
	Kinds []model.Kind
}

// DefaultPolicy returns the platform default:
// Mastodon answers the leading run of mentions, Bluesky answers every
// reply or mention.
func DefaultPolicy(name string) Policy {
	if name == platform.Mastodon {
		return Policy{Mode: ModeContiguousPrefix, Kinds: []model.Kind{model.KindMention}}
	}
	return Policy{Mode: ModeFilterAll, Kinds: []model.Kind{model.KindReply, model.KindMention}}
}

// Matches reports whether kind deserves a reply
func (p Policy) Matches(k model.Kind) bool {
	return slices.Contains(p.Kinds, k)
}

// Decision is the verdict for one notification
type Decision struct {
	Notification model.Notification
	Answer       bool
	Reason       string
}

// Classify returns a decision for every notification, in order
func (p Policy) Classify(ns []model.Notification) []Decision {
	out := make([]Decision, 0, len(ns))
	stopped := false
	for _, n := range ns {
		switch {
		case stopped:
			out = append(out, Decision{Notification: n, Reason: "after non-matching notification"})
		case p.Matches(n.Kind):
			out = append(out, Decision{Notification: n, Answer: true, Reason: "matches " + string(n.Kind)})
		case p.Mode == ModeContiguousPrefix:
			stopped = true
			out = append(out, Decision{Notification: n, Reason: "stops at " + n.RawReason})
		default:
			out = append(out, Decision{Notification: n, Reason: "ignored " + n.RawReason})
		}
	}
	return out
}

// Select returns the notifications to answer
func (p Policy) Select(ns []model.Notification) []model.Notification {
	var out []model.Notification
	for _, d := range p.Classify(ns) {
		if d.Answer {
			out = append(out, d.Notification)
		}
	}
	return out
}
