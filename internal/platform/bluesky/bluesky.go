package bluesky

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/yeenbean/pauljac3-mastodon-bot/internal/model"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/outbound"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/platform"

	"go.uber.org/zap"
)

const (
	// DefaultURL is the default PDS entryway
	DefaultURL = "https://bsky.social"
	// DefaultSessionTTL is how long an access token is used before refreshing
	DefaultSessionTTL = 90 * time.Minute

	maxListLimit   = 100
	postCollection = "app.bsky.feed.post"
)

var (
	_ platform.Poster   = (*Client)(nil)
	_ platform.Notifier = (*Client)(nil)

	// ErrNoSession is returned when a call is made before Authenticate
	ErrNoSession = errors.New("bluesky: not authenticated")
)

// Config is the configuration for the Bluesky adapter
type Config struct {
	URL        string
	Identifier string
	Password   string
	Timeout    time.Duration
	SessionTTL time.Duration
}

type session struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	DID        string `json:"did"`
	Handle     string `json:"handle"`
	createdAt  time.Time
}

// Client is the Bluesky XRPC adapter
type Client struct {
	cfg Config
	api outbound.Client
	log *zap.Logger
	now func() time.Time

	mtx  sync.Mutex
	sess *session
}

// New creates a new Bluesky adapter. Call Authenticate before use.
func New(cfg Config, log *zap.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	return &Client{
		cfg: cfg,
		api: outbound.NewHTTP(outbound.Config{
			BaseURL:    cfg.URL,
			Timeout:    cfg.Timeout,
			AuthHeader: "Authorization",
		}, log),
		log: log,
		now: time.Now,
	}
}

type strongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type replyRef struct {
	Root   strongRef `json:"root"`
	Parent strongRef `json:"parent"`
}

type postRecord struct {
	Type      string    `json:"$type"`
	Text      string    `json:"text"`
	CreatedAt string    `json:"createdAt"`
	Reply     *replyRef `json:"reply,omitempty"`
}

type notification struct {
	URI    string `json:"uri"`
	CID    string `json:"cid"`
	Reason string `json:"reason"`
	Author struct {
		DID    string `json:"did"`
		Handle string `json:"handle"`
	} `json:"author"`
	Record struct {
		Reply *replyRef `json:"reply"`
	} `json:"record"`
	IsRead    bool      `json:"isRead"`
	IndexedAt time.Time `json:"indexedAt"`
}

// Name returns the platform name
func (c *Client) Name() string { return platform.Bluesky }

// Authenticate creates a new session
func (c *Client) Authenticate(ctx context.Context) error {
	var s session
	req := outbound.Request{
		Method: http.MethodPost,
		Path:   "/xrpc/com.atproto.server.createSession",
		Body:   map[string]string{"identifier": c.cfg.Identifier, "password": c.cfg.Password},
	}
	if err := c.api.Do(ctx, req, &s); err != nil {
		return fmt.Errorf("bluesky: create session: %w", err)
	}
	s.createdAt = c.now()
	c.mtx.Lock()
	c.sess = &s
	c.mtx.Unlock()
	c.log.Debug("bluesky: session created", zap.String("handle", s.Handle))
	return nil
}

// token returns a usable access token, refreshing the session when it is
// older than the configured TTL
func (c *Client) token(ctx context.Context) (string, string, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.sess == nil {
		return "", "", ErrNoSession
	}
	if c.now().Sub(c.sess.createdAt) < c.cfg.SessionTTL {
		return c.sess.AccessJwt, c.sess.DID, nil
	}
	var s session
	req := outbound.Request{
		Method: http.MethodPost,
		Path:   "/xrpc/com.atproto.server.refreshSession",
		Auth:   "Bearer " + c.sess.RefreshJwt,
	}
	if err := c.api.Do(ctx, req, &s); err != nil {
		return "", "", fmt.Errorf("bluesky: refresh session: %w", err)
	}
	s.createdAt = c.now()
	c.sess = &s
	c.log.Debug("bluesky: session refreshed")
	return s.AccessJwt, s.DID, nil
}

func (c *Client) do(ctx context.Context, req outbound.Request, out any) error {
	tok, _, err := c.token(ctx)
	if err != nil {
		return err
	}
	req.Auth = "Bearer " + tok
	return c.api.Do(ctx, req, out)
}

// PostMessage publishes a new post
func (c *Client) PostMessage(ctx context.Context, text string) error {
	return c.createPost(ctx, text, nil)
}

// UnseenCount returns the unread notification count
func (c *Client) UnseenCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	req := outbound.Request{Method: http.MethodGet, Path: "/xrpc/app.bsky.notification.getUnreadCount"}
	if err := c.do(ctx, req, &out); err != nil {
		return 0, fmt.Errorf("bluesky: unread count: %w", err)
	}
	return out.Count, nil
}

// ListNotifications returns up to limit notifications, newest first
func (c *Client) ListNotifications(ctx context.Context, limit int) ([]model.Notification, error) {
	if limit > maxListLimit {
		limit = maxListLimit
	}
	var out struct {
		Notifications []notification `json:"notifications"`
	}
	req := outbound.Request{
		Method: http.MethodGet,
		Path:   "/xrpc/app.bsky.notification.listNotifications",
		Query:  url.Values{"limit": {strconv.Itoa(limit)}},
	}
	if err := c.do(ctx, req, &out); err != nil {
		return nil, fmt.Errorf("bluesky: list notifications: %w", err)
	}
	list := make([]model.Notification, 0, len(out.Notifications))
	for _, n := range out.Notifications {
		mn := model.Notification{
			ID:        n.URI,
			Kind:      model.ParseKind(n.Reason),
			RawReason: n.Reason,
			Author:    n.Author.Handle,
			URI:       n.URI,
			CID:       n.CID,
			IndexedAt: n.IndexedAt,
		}
		if n.Record.Reply != nil {
			mn.RootURI = n.Record.Reply.Root.URI
			mn.RootCID = n.Record.Reply.Root.CID
		}
		list = append(list, mn)
	}
	return list, nil
}

// MarkAllSeen moves the seen marker to now
func (c *Client) MarkAllSeen(ctx context.Context) error {
	req := outbound.Request{
		Method: http.MethodPost,
		Path:   "/xrpc/app.bsky.notification.updateSeen",
		Body:   map[string]string{"seenAt": c.now().UTC().Format(time.RFC3339Nano)},
	}
	if err := c.do(ctx, req, nil); err != nil {
		return fmt.Errorf("bluesky: update seen: %w", err)
	}
	return nil
}

// ReplyTo posts text as a reply to n, keeping n's thread root
func (c *Client) ReplyTo(ctx context.Context, n model.Notification, text string) error {
	if n.URI == "" || n.CID == "" {
		return errors.New("bluesky: notification has no record to reply to")
	}
	parent := strongRef{URI: n.URI, CID: n.CID}
	root := parent
	if n.RootURI != "" && n.RootCID != "" {
		root = strongRef{URI: n.RootURI, CID: n.RootCID}
	}
	return c.createPost(ctx, text, &replyRef{Root: root, Parent: parent})
}

func (c *Client) createPost(ctx context.Context, text string, reply *replyRef) error {
	tok, did, err := c.token(ctx)
	if err != nil {
		return err
	}
	body := map[string]any{
		"repo":       did,
		"collection": postCollection,
		"record": postRecord{
			Type:      postCollection,
			Text:      text,
			CreatedAt: c.now().UTC().Format(time.RFC3339Nano),
			Reply:     reply,
		},
	}
	var out strongRef
	req := outbound.Request{
		Method: http.MethodPost,
		Path:   "/xrpc/com.atproto.repo.createRecord",
		Body:   body,
		Auth:   "Bearer " + tok,
	}
	if err := c.api.Do(ctx, req, &out); err != nil {
		return fmt.Errorf("bluesky: create record: %w", err)
	}
	c.log.Debug("bluesky: post created", zap.String("uri", out.URI))
	return nil
}
