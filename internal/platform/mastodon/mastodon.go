package mastodon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/yeenbean/pauljac3-mastodon-bot/internal/model"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/outbound"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/platform"

	"go.uber.org/zap"
)

const (
	// DefaultURL is the instance the bot lives on
	DefaultURL = "https://botsin.space"
	// maxListLimit is the largest page the notifications endpoint serves
	maxListLimit = 80

	visibilityUnlisted = "unlisted"
)

var (
	_ platform.Poster   = (*Client)(nil)
	_ platform.Notifier = (*Client)(nil)
)

// Config is the configuration for the Mastodon adapter
type Config struct {
	URL         string
	AccessToken string
	Timeout     time.Duration
}

// Client is the Mastodon REST adapter
type Client struct {
	api outbound.Client
	log *zap.Logger
}

// New creates a new Mastodon adapter
func New(cfg Config, log *zap.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	return &Client{
		api: outbound.NewHTTP(outbound.Config{
			BaseURL:    cfg.URL,
			Timeout:    cfg.Timeout,
			AuthHeader: "Authorization",
			AuthValue:  "Bearer " + cfg.AccessToken,
		}, log),
		log: log,
	}
}

type account struct {
	ID   string `json:"id"`
	Acct string `json:"acct"`
}

type status struct {
	ID string `json:"id"`
}

type notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	Account   account   `json:"account"`
	Status    *status   `json:"status"`
}

type statusRequest struct {
	Status      string `json:"status"`
	Visibility  string `json:"visibility"`
	InReplyToID string `json:"in_reply_to_id,omitempty"`
}

// Name returns the platform name
func (c *Client) Name() string { return platform.Mastodon }

// Authenticate verifies the access token
func (c *Client) Authenticate(ctx context.Context) error {
	var acc account
	if err := c.api.Do(ctx, outbound.Request{Method: http.MethodGet, Path: "/api/v1/accounts/verify_credentials"}, &acc); err != nil {
		return fmt.Errorf("mastodon: verify credentials: %w", err)
	}
	c.log.Debug("mastodon: authenticated", zap.String("acct", acc.Acct))
	return nil
}

// PostMessage publishes an unlisted status
func (c *Client) PostMessage(ctx context.Context, text string) error {
	return c.postStatus(ctx, statusRequest{Status: text, Visibility: visibilityUnlisted})
}

// UnseenCount returns the unread notification count
func (c *Client) UnseenCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := c.api.Do(ctx, outbound.Request{Method: http.MethodGet, Path: "/api/v1/notifications/unread_count"}, &out); err != nil {
		return 0, fmt.Errorf("mastodon: unread count: %w", err)
	}
	return out.Count, nil
}

// ListNotifications returns up to limit notifications, newest first
func (c *Client) ListNotifications(ctx context.Context, limit int) ([]model.Notification, error) {
	if limit > maxListLimit {
		limit = maxListLimit
	}
	var raw []notification
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if err := c.api.Do(ctx, outbound.Request{Method: http.MethodGet, Path: "/api/v1/notifications", Query: q}, &raw); err != nil {
		return nil, fmt.Errorf("mastodon: list notifications: %w", err)
	}
	out := make([]model.Notification, 0, len(raw))
	for _, n := range raw {
		mn := model.Notification{
			ID:        n.ID,
			Kind:      model.ParseKind(n.Type),
			RawReason: n.Type,
			Author:    n.Account.Acct,
			IndexedAt: n.CreatedAt,
		}
		if n.Status != nil {
			mn.StatusID = n.Status.ID
		}
		out = append(out, mn)
	}
	return out, nil
}

// MarkAllSeen clears every notification
func (c *Client) MarkAllSeen(ctx context.Context) error {
	if err := c.api.Do(ctx, outbound.Request{Method: http.MethodPost, Path: "/api/v1/notifications/clear"}, nil); err != nil {
		return fmt.Errorf("mastodon: clear notifications: %w", err)
	}
	return nil
}

// ReplyTo favourites the mentioning status and answers it
func (c *Client) ReplyTo(ctx context.Context, n model.Notification, text string) error {
	if n.StatusID == "" {
		return errors.New("mastodon: notification has no status to reply to")
	}
	fav := outbound.Request{Method: http.MethodPost, Path: "/api/v1/statuses/" + url.PathEscape(n.StatusID) + "/favourite"}
	if err := c.api.Do(ctx, fav, nil); err != nil {
		return fmt.Errorf("mastodon: favourite %s: %w", n.StatusID, err)
	}
	return c.postStatus(ctx, statusRequest{
		Status:      "@" + n.Author + " " + text,
		Visibility:  visibilityUnlisted,
		InReplyToID: n.StatusID,
	})
}

func (c *Client) postStatus(ctx context.Context, req statusRequest) error {
	var out status
	if err := c.api.Do(ctx, outbound.Request{Method: http.MethodPost, Path: "/api/v1/statuses", Body: req}, &out); err != nil {
		return fmt.Errorf("mastodon: create status: %w", err)
	}
	c.log.Debug("mastodon: status created", zap.String("id", out.ID))
	return nil
}
