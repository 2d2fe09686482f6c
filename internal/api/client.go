// Package api calls the MedChat backend over HTTP.
// This file contains the request dispatcher: bearer injection, per-request
// timeouts, and the 401 refresh-and-replay flow.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/medchat-dev/medchat/internal/log"
)

// DefaultTimeout bounds a single logical request, replay included.
const DefaultTimeout = 60 * time.Second

// Backend endpoint paths.
const (
	PathLogin         = "/auth/login"
	PathRegister      = "/auth/register"
	PathRefresh       = "/auth/refresh"
	PathLogout        = "/auth/logout"
	PathMe            = "/me"
	PathConversations = "/conversations"
	PathChat          = "/chat"
	PathChatImage     = "/chat-image"
)

// authPathSuffixes identify endpoints that never receive a bearer header and
// never trigger refresh-and-replay. Without this exemption a rejected refresh
// call would try to refresh itself.
var authPathSuffixes = []string{PathLogin, PathRegister, PathRefresh}

func isAuthPath(path string) bool {
	for _, s := range authPathSuffixes {
		if strings.Contains(path, s) {
			return true
		}
	}
	return false
}

// CredentialStore is the token state the dispatcher reads and updates.
// Implemented by auth.Credentials.
type CredentialStore interface {
	Access() string
	RefreshToken() string
	SetTokens(access, refresh string) error
	Clear() error
}

// Response is one completed HTTP exchange. The body is fully read before the
// dispatcher returns, so no connection state outlives the call.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Payload parses the body according to its Content-Type: decoded JSON when
// the header says JSON, the raw text otherwise, nil when the body is empty.
func (r *Response) Payload() any {
	if len(r.Body) == 0 {
		return nil
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		var v any
		if err := json.Unmarshal(r.Body, &v); err != nil {
			return nil
		}
		return v
	}
	return string(r.Body)
}

// APIError represents a non-2xx backend response.
type APIError struct {
	Status  int
	Payload any
}

func (e *APIError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("HTTP %d: %s", e.Status, msg)
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// Message pulls a human-readable detail out of the payload when present.
func (e *APIError) Message() string {
	switch p := e.Payload.(type) {
	case string:
		return p
	case map[string]any:
		for _, key := range []string{"detail", "error", "message"} {
			if s, ok := p[key].(string); ok {
				return s
			}
		}
	}
	return ""
}

// Client dispatches requests to the MedChat backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      CredentialStore

	// Timeout overrides DefaultTimeout when non-zero. A shorter deadline on
	// the caller's context still wins.
	Timeout time.Duration

	// Logger receives dispatch events when set.
	Logger *log.Logger

	refreshGroup singleflight.Group
}

// NewClient constructs a backend client around the given credential store.
func NewClient(baseURL string, creds CredentialStore) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		creds:      creds,
	}
}

// BaseURL returns the configured backend origin without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do performs one logical call: bearer injection for non-auth paths, timeout,
// and at most one refresh-and-replay after a 401. Transport failures return a
// nil Response; every received response is returned with its body consumed.
func (c *Client) do(ctx context.Context, method, path string, header http.Header, body []byte) (*Response, error) {
	url := path
	if !strings.HasPrefix(path, "http") {
		url = c.baseURL + path
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	authPath := isAuthPath(path)
	bearer := ""
	if !authPath && header.Get("Authorization") == "" {
		if tok := c.creds.Access(); tok != "" {
			bearer = "Bearer " + tok
		}
	}

	resp, err := c.attempt(ctx, method, url, header, bearer, body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	if resp.Status == http.StatusUnauthorized && !authPath {
		if c.RefreshAccess(ctx) {
			c.logEvent(log.LogEvent{Event: log.EventRequestRetry, Path: path})
			replay, err := c.attempt(ctx, method, url, header, "Bearer "+c.creds.Access(), body)
			if err == nil {
				return replay, nil
			}
			// Replay transport failure: surface the original 401.
		}
	}

	return resp, nil
}

// attempt issues a single HTTP request and drains the response body.
func (c *Client) attempt(ctx context.Context, method, url string, header http.Header, bearer string, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{Status: res.StatusCode, Header: res.Header, Body: data}, nil
}

// RefreshAccess mints a new access token from the stored refresh token.
// Returns false without a network call when no refresh token is present, and
// false when the backend rejects the refresh; the refresh token itself is
// never rotated. Concurrent callers share a single in-flight refresh.
func (c *Client) RefreshAccess(ctx context.Context) bool {
	v, _, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		return c.refreshOnce(ctx), nil
	})
	ok, _ := v.(bool)
	return ok
}

func (c *Client) refreshOnce(ctx context.Context) bool {
	refresh := c.creds.RefreshToken()
	if refresh == "" {
		return false
	}

	body, err := json.Marshal(map[string]string{"refresh_token": refresh})
	if err != nil {
		return false
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")

	resp, err := c.attempt(ctx, http.MethodPost, c.baseURL+PathRefresh, header, "", body)
	if err != nil || !resp.OK() {
		return false
	}

	var pair TokenPair
	if err := json.Unmarshal(resp.Body, &pair); err != nil || pair.AccessToken == "" {
		return false
	}
	if err := c.creds.SetTokens(pair.AccessToken, ""); err != nil {
		return false
	}

	c.logEvent(log.LogEvent{Event: log.EventTokenRefresh})
	return true
}

// doJSON marshals payload, performs the call, requires a 2xx status, and
// decodes the response into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any) error {
	var body []byte
	header := http.Header{}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = data
		header.Set("Content-Type", "application/json")
	}

	resp, err := c.do(ctx, method, path, header, body)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &APIError{Status: resp.Status, Payload: resp.Payload()}
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

func (c *Client) logEvent(event log.LogEvent) {
	if c.Logger != nil {
		_ = c.Logger.Append(event)
	}
}
