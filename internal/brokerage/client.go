// Package brokerage is a thin REST client for the undocumented Robinhood
// API: quotes, positions, orders and the pathfinder login workflow. It owns
// the process-wide Authorization header; everything else is stateless.
package brokerage

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
)

const DefaultBaseURL = "https://api.robinhood.com"

type Client struct {
	base string
	http *http.Client

	mu       sync.Mutex
	authz    string
	loggedIn bool
}

func NewClient(base string) *Client {
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 16 * time.Second},
	}
}

// SetAuthorization installs the bearer credential used on all subsequent
// requests and marks the session logged in.
func (c *Client) SetAuthorization(tokenType, accessToken string) {
	c.mu.Lock()
	c.authz = tokenType + " " + accessToken
	c.loggedIn = true
	c.mu.Unlock()
}

func (c *Client) ClearAuthorization() {
	c.mu.Lock()
	c.authz = ""
	c.loggedIn = false
	c.mu.Unlock()
}

func (c *Client) LoggedIn() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loggedIn
}

func (c *Client) url(path string) string {
	return c.base + path
}

func (c *Client) do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	authz := c.authz
	c.mu.Unlock()
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "rhbridge/0.1 (+local)")
	return c.http.Do(req)
}

// getJSON issues a GET and decodes the body into out. The HTTP status is
// returned so callers can distinguish auth failures from decode noise.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) (int, error) {
	u := c.url(path)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
	}
	return resp.StatusCode, nil
}

// postForm submits form-encoded data and best-effort decodes the JSON body.
// The brokerage reports failures in the body of non-2xx responses, so the
// decoded map is returned even then; callers inspect its fields.
func (c *Client) postForm(ctx context.Context, path string, form url.Values) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.decodeBody(req)
}

// postJSON submits a JSON body, decoding the response like postForm.
func (c *Client) postJSON(ctx context.Context, path string, body any) (map[string]any, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.decodeBody(req)
}

func (c *Client) decodeBody(req *http.Request) (map[string]any, error) {
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s: status %d", req.URL.Path, resp.StatusCode)
	}
	return out, nil
}

func strField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return strings.TrimSpace(v)
}
