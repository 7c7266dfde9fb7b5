// Package api is the HTTP client for the MyChefAI backend. All requests flow
// through an AuthTransport that attaches the session credential whenever one
// is held; no call site attaches authorization headers itself.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const defaultRequestTimeout = 15 * time.Second

// TokenSource supplies the current session credential. Implemented by
// session.Manager.
type TokenSource interface {
	SessionToken() (token string, ok bool)
}

// AuthTransport decorates every outgoing request with the bearer credential
// from its token source. While no source is attached, or the source holds no
// credential, requests pass through unmodified.
type AuthTransport struct {
	base http.RoundTripper

	lock   sync.RWMutex
	source TokenSource
}

// UseTokenSource attaches the credential source. Called once at the
// composition root after the session manager exists.
func (t *AuthTransport) UseTokenSource(source TokenSource) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.source = source
}

func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.lock.RLock()
	source := t.source
	t.lock.RUnlock()

	if source != nil {
		if token, ok := source.SessionToken(); ok {
			req = req.Clone(req.Context())
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return t.base.RoundTrip(req)
}

// Client calls the MyChefAI backend endpoints.
type Client struct {
	baseURL   string
	transport *AuthTransport
	http      *http.Client
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithBaseTransport replaces the underlying transport (primarily for testing).
func WithBaseTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) {
		c.transport.base = rt
	}
}

// New creates a backend client for the given base URL (e.g.
// "http://localhost:8080/api").
func New(baseURL string, options ...ClientOption) (*Client, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, errors.Errorf("[api.New] invalid base URL %q", baseURL)
	}

	transport := &AuthTransport{base: http.DefaultTransport}
	c := &Client{
		baseURL:   baseURL,
		transport: transport,
		http: &http.Client{
			Timeout:   defaultRequestTimeout,
			Transport: transport,
		},
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// UseTokenSource attaches the session credential source to the client's
// transport.
func (c *Client) UseTokenSource(source TokenSource) {
	c.transport.UseTokenSource(source)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, body, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "[api.Client] marshal %s %s", method, path)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrapf(err, "[api.Client] build %s %s", method, path)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "[api.Client] %s %s", method, path)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Debug().Int("status", resp.StatusCode).Str("path", path).Msg("backend request rejected")
		return &StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(MalformedResponseErr, "%s %s: %v", method, path, err)
	}
	return nil
}

// StatusError is a non-2xx backend response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d", e.StatusCode)
}
