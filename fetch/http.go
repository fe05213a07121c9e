package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/event"
	"github.com/mrehmanbee22seecs/wasilahfignew-sub006/polling"
)

// maxSnapshotBytes caps a single snapshot response
const maxSnapshotBytes = 32 << 20

// HTTP fetches GET {baseURL}/{table} and expects a JSON array of records, or
// an object wrapping the array under "data"
type HTTP struct {
	base   *url.URL
	client *http.Client
	tables TableResolver
}

// NewHTTP creates an HTTP source. A nil client gets a 30s timeout client.
func NewHTTP(baseURL string, client *http.Client, tables TableResolver) (*HTTP, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", baseURL)
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if tables == nil {
		tables = DefaultTables
	}
	return &HTTP{base: u, client: client, tables: tables}, nil
}

func (h *HTTP) Fetcher(entity event.Entity) polling.Fetcher {
	endpoint := h.base.JoinPath(h.tables(entity)).String()
	return func(ctx context.Context) ([]event.Record, error) {
		return h.fetch(ctx, endpoint)
	}
}

func (h *HTTP) fetch(ctx context.Context, endpoint string) ([]event.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", endpoint, resp.Status)
	}

	body = []byte(strings.TrimSpace(string(body)))
	if len(body) > 0 && body[0] == '{' {
		var envelope struct {
			Data []event.Record `json:"data"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		return envelope.Data, nil
	}

	var records []event.Record
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return records, nil
}

func (h *HTTP) Close() error {
	h.client.CloseIdleConnections()
	return nil
}
