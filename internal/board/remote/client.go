// Package remote implements the remote settings service the settings
// synchronizer writes to.
//
// Client speaks the HTTP contract: PATCH {base}/users/{id}/settings with a
// JSON partial returns the full merged record, GET on the same path returns
// the stored record. Store is the same contract over a key-value store, and
// Handler serves any implementation over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mschirtzinger/beadboard/internal/board/settings"
)

// StatusError is returned for a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("settings service returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("settings service returned %d: %s", e.Code, e.Body)
}

// ClientConfig holds configuration for the HTTP client.
type ClientConfig struct {
	// BaseURL of the settings service, e.g. https://api.example.com/v1
	BaseURL string

	// Token is sent as a bearer token when set
	Token string

	// Timeout per request (default: 10s)
	Timeout time.Duration

	// HTTPClient overrides the transport (optional)
	HTTPClient *http.Client
}

// Client is an HTTP settings.Remote.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient creates a client for cfg.BaseURL.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL must be http or https (got %q)", base.Scheme)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{base: base, token: cfg.Token, http: hc}, nil
}

// UpdateSettings sends patch and returns the merged record.
func (c *Client) UpdateSettings(ctx context.Context, userID string, patch settings.Patch) (settings.BoardSettings, error) {
	body, err := json.Marshal(patch)
	if err != nil {
		return settings.BoardSettings{}, fmt.Errorf("failed to encode patch: %w", err)
	}
	return c.do(ctx, http.MethodPatch, userID, body)
}

// FetchSettings returns the stored record.
func (c *Client) FetchSettings(ctx context.Context, userID string) (settings.BoardSettings, error) {
	return c.do(ctx, http.MethodGet, userID, nil)
}

func (c *Client) settingsURL(userID string) string {
	return c.base.String() + "/users/" + url.PathEscape(userID) + "/settings"
}

func (c *Client) do(ctx context.Context, method, userID string, body []byte) (settings.BoardSettings, error) {
	if userID == "" {
		return settings.BoardSettings{}, fmt.Errorf("user id is required")
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.settingsURL(userID), reader)
	if err != nil {
		return settings.BoardSettings{}, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return settings.BoardSettings{}, fmt.Errorf("settings request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return settings.BoardSettings{}, fmt.Errorf("failed to read settings response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return settings.BoardSettings{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var record settings.BoardSettings
	if err := json.Unmarshal(data, &record); err != nil {
		return settings.BoardSettings{}, fmt.Errorf("failed to decode settings response: %w", err)
	}
	if err := record.Validate(); err != nil {
		return settings.BoardSettings{}, fmt.Errorf("settings service returned an invalid record: %w", err)
	}
	return record, nil
}
