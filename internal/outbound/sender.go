package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Config is the configuration for the outbound client
type Config struct {
	BaseURL string
	Timeout time.Duration
	// AuthHeader and AuthValue are sent with every request unless the
	// request carries its own Auth value
	AuthHeader string
	AuthValue  string
	// HTTPClient replaces the default client, e.g. one that signs requests
	HTTPClient *http.Client
}

// Request describes one JSON call
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	// Auth overrides Config.AuthValue for this request
	Auth string
	// ExpectStatus defaults to any 2xx
	ExpectStatus int
}

// StatusError is returned when the remote answers with an unexpected status
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

// Client sends JSON requests to one platform API
type Client interface {
	// Do sends req and decodes the response body into out when out is non-nil
	Do(ctx context.Context, req Request, out any) error
}

const maxErrorBody = 512

// httpClient is the HTTP outbound client
type httpClient struct {
	cfg    Config
	client *http.Client
	log    *zap.Logger
}

// NewHTTP creates a new HTTP outbound client
func NewHTTP(cfg Config, log *zap.Logger) Client {
	c := cfg.HTTPClient
	if c == nil {
		c = &http.Client{Timeout: cfg.Timeout}
	}
	return &httpClient{
		cfg:    cfg,
		client: c,
		log:    log,
	}
}

// Do sends the request. There are no retries; the caller decides what a
// failure means.
func (s *httpClient) Do(ctx context.Context, r Request, out any) error {
	var body io.Reader
	if r.Body != nil {
		b, err := json.Marshal(r.Body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	u := strings.TrimRight(s.cfg.BaseURL, "/") + r.Path
	if len(r.Query) > 0 {
		u += "?" + r.Query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, u, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	auth := r.Auth
	if auth == "" {
		auth = s.cfg.AuthValue
	}
	if s.cfg.AuthHeader != "" && auth != "" {
		req.Header.Set(s.cfg.AuthHeader, auth)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			s.log.Error("outbound: close response body error", zap.Error(err))
		}
	}()

	if !statusOK(resp.StatusCode, r.ExpectStatus) {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("decode response: empty body")
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func statusOK(got, expect int) bool {
	if expect != 0 {
		return got == expect
	}
	return got >= 200 && got < 300
}
