package platform

import (
	"context"

	"github.com/yeenbean/pauljac3-mastodon-bot/internal/model"
)

// Platform names
const (
	Mastodon = "mastodon"
	Bluesky  = "bluesky"
	Twitter  = "twitter"
)

// Poster is implemented by every platform adapter
type Poster interface {
	// Name returns the platform name used in logs and metrics
	Name() string
	// Authenticate establishes or verifies the session
	Authenticate(ctx context.Context) error
	// PostMessage publishes text as a new post
	PostMessage(ctx context.Context, text string) error
}

// Notifier is implemented by adapters that can receive mentions
type Notifier interface {
	Name() string
	// UnseenCount returns the number of unseen notifications
	UnseenCount(ctx context.Context) (int, error)
	// ListNotifications returns up to limit notifications, newest first
	ListNotifications(ctx context.Context, limit int) ([]model.Notification, error)
	// MarkAllSeen marks every notification seen. It is idempotent.
	MarkAllSeen(ctx context.Context) error
	// ReplyTo answers n in its thread
	ReplyTo(ctx context.Context, n model.Notification, text string) error
}
