package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client calls a running daemon's admin API
type Client struct {
	base   *url.URL
	secret string
	http   *http.Client
}

// NewClient creates a client for addr ("host:port" or a full URL)
func NewClient(addr, secret string) (*Client, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	base, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid admin address %q: %w", addr, err)
	}
	if !strings.HasSuffix(base.Path, "/admin") {
		base = base.JoinPath("admin")
	}
	return &Client{
		base:   base,
		secret: secret,
		http:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Status fetches GET /status
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var out StatusResponse
	err := c.do(ctx, http.MethodGet, "status", &out)
	return out, err
}

// InvalidateResult is the body of an invalidate call
type InvalidateResult struct {
	Entity string `json:"entity"`
	Keys   int    `json:"keys"`
}

// Invalidate calls POST /entities/{entity}/invalidate
func (c *Client) Invalidate(ctx context.Context, entity string) (InvalidateResult, error) {
	var out InvalidateResult
	err := c.do(ctx, http.MethodPost, "entities/"+url.PathEscape(entity)+"/invalidate", &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base.JoinPath(path).String(), nil)
	if err != nil {
		return err
	}
	if c.secret != "" {
		req.Header.Set(SecretHeader, c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s %s: %s (%d)", method, path, e.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
