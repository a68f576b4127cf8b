// Package store is the HTTP client for the Session Store.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iksnae/chat-session/internal"
)

const sessionsPath = "/api/chat-sessions"

// Client talks to the Session Store over HTTP
type Client struct {
	baseURL    string
	httpClient *http.Client
	normalizer *internal.Normalizer
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout bounds every request. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := &http.Client{}
		if c.httpClient != nil {
			copied := *c.httpClient
			hc = &copied
		}
		hc.Timeout = d
		c.httpClient = hc
	}
}

// NewClient creates a client for the store at baseURL
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{},
		normalizer: internal.NewNormalizer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	return c
}

// BaseURL returns the store URL without a trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

type listResponse struct {
	Sessions []internal.Session `json:"sessions"`
}

// ListSessions returns every session owned by userID, in the order the store sends them
func (c *Client) ListSessions(ctx context.Context, userID string) ([]internal.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, internal.ErrNoIdentity
	}

	endpoint := c.baseURL + sessionsPath + "?" + url.Values{"user_id": {userID}}.Encode()
	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, &internal.StoreError{Op: "list", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &internal.StoreError{Op: "list", StatusCode: resp.StatusCode, Err: readErrorBody(resp)}
	}

	var body listResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, &internal.StoreError{Op: "list", StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if body.Sessions == nil {
		return []internal.Session{}, nil
	}

	internal.LogDebug("Listed %d sessions for %s", len(body.Sessions), userID)
	return c.normalizer.NormalizeSessions(body.Sessions), nil
}

// GetSession fetches one session. A session the store does not know returns (nil, nil).
func (c *Client) GetSession(ctx context.Context, sessionID, userID string) (*internal.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, internal.ErrNoIdentity
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, &internal.StoreError{Op: "get", Err: fmt.Errorf("empty session id")}
	}

	endpoint := c.baseURL + sessionsPath + "/" + url.PathEscape(sessionID) + "?" + url.Values{"user_id": {userID}}.Encode()
	resp, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, &internal.StoreError{Op: "get", SessionID: sessionID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		internal.LogDebug("Session %s not found", sessionID)
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &internal.StoreError{Op: "get", SessionID: sessionID, StatusCode: resp.StatusCode, Err: readErrorBody(resp)}
	}

	var session internal.Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, &internal.StoreError{Op: "get", SessionID: sessionID, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if session.ID == "" {
		session.ID = sessionID
	}
	c.normalizer.NormalizeSession(&session)
	return &session, nil
}

// Ping checks that the store answers HTTP at all
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.get(ctx, c.baseURL+"/")
	if err != nil {
		return &internal.StoreError{Op: "ping", Err: err}
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return &internal.StoreError{Op: "ping", StatusCode: resp.StatusCode, Err: fmt.Errorf("server error")}
	}
	return nil
}

func (c *Client) get(ctx context.Context, endpoint string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return c.httpClient.Do(req)
}

func readErrorBody(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return fmt.Errorf("%s", msg)
}
