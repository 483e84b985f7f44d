package twitter

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dghubble/oauth1"
	"go.uber.org/zap"

	"github.com/yeenbean/pauljac3-mastodon-bot/internal/outbound"
	"github.com/yeenbean/pauljac3-mastodon-bot/internal/platform"
)

// DefaultURL is the X API v2 host
const DefaultURL = "https://api.twitter.com"

var _ platform.Poster = (*Client)(nil)

// Config holds the OAuth 1.0a user-context credentials
type Config struct {
	URL               string
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
	Timeout           time.Duration
}

// Client posts tweets. It does not read mentions.
type Client struct {
	api outbound.Client
	log *zap.Logger
}

// New creates a new Twitter adapter
func New(cfg Config, log *zap.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	httpClient := oauth1.NewConfig(cfg.APIKey, cfg.APISecret).
		Client(context.Background(), oauth1.NewToken(cfg.AccessToken, cfg.AccessTokenSecret))
	httpClient.Timeout = cfg.Timeout
	return &Client{
		api: outbound.NewHTTP(outbound.Config{BaseURL: cfg.URL, HTTPClient: httpClient}, log),
		log: log,
	}
}

type tweetData struct {
	ID       string `json:"id"`
	Text     string `json:"text,omitempty"`
	Username string `json:"username,omitempty"`
}

// Name returns the platform name
func (c *Client) Name() string { return platform.Twitter }

// Authenticate checks the user-context credentials
func (c *Client) Authenticate(ctx context.Context) error {
	var out struct {
		Data tweetData `json:"data"`
	}
	if err := c.api.Do(ctx, outbound.Request{Method: http.MethodGet, Path: "/2/users/me"}, &out); err != nil {
		return fmt.Errorf("twitter: users/me: %w", err)
	}
	c.log.Debug("twitter: authenticated", zap.String("username", out.Data.Username))
	return nil
}

// PostMessage publishes a tweet
func (c *Client) PostMessage(ctx context.Context, text string) error {
	var out struct {
		Data tweetData `json:"data"`
	}
	req := outbound.Request{
		Method:       http.MethodPost,
		Path:         "/2/tweets",
		Body:         map[string]string{"text": text},
		ExpectStatus: http.StatusCreated,
	}
	if err := c.api.Do(ctx, req, &out); err != nil {
		return fmt.Errorf("twitter: create tweet: %w", err)
	}
	c.log.Debug("twitter: tweet created", zap.String("id", out.Data.ID))
	return nil
}
