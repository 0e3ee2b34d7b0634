package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/psaab/erconf/pkg/poll"
)

// Client calls the erscraped HTTP API.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// NewClient returns a client for the API at baseURL ("http://host:8000").
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// get fetches path and decodes the envelope's data into v.
func (c *Client) get(ctx context.Context, path string, query url.Values, v any) error {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("GET %s: %s: bad response: %w", path, resp.Status, err)
	}
	if !env.Success {
		return fmt.Errorf("GET %s: %s: %s", path, resp.Status, env.Error)
	}
	if v == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}

// History lists the archived snapshots, latest first.
func (c *Client) History(ctx context.Context) ([]SnapshotInfo, error) {
	var list []SnapshotInfo
	err := c.get(ctx, "/api/v1/config/history", nil, &list)
	return list, err
}

// Snapshot returns the canonical text of snapshot n.
func (c *Client) Snapshot(ctx context.Context, n int) (string, error) {
	var snap SnapshotResponse
	if err := c.get(ctx, "/api/v1/config/snapshot/"+strconv.Itoa(n), nil, &snap); err != nil {
		return "", err
	}
	return snap.Config, nil
}

// Compare returns the diff from snapshot from to snapshot to.
func (c *Client) Compare(ctx context.Context, from, to int, unified bool) (*CompareResponse, error) {
	q := url.Values{}
	q.Set("from", strconv.Itoa(from))
	q.Set("to", strconv.Itoa(to))
	if unified {
		q.Set("format", "unified")
	}
	var resp CompareResponse
	if err := c.get(ctx, "/api/v1/config/compare", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LoadBalance returns the last polled load-balance status.
func (c *Client) LoadBalance(ctx context.Context) (*poll.LoadBalance, error) {
	var lb poll.LoadBalance
	if err := c.get(ctx, "/api/v1/load-balance", nil, &lb); err != nil {
		return nil, err
	}
	return &lb, nil
}

// Events returns up to n recent events, newest first.
func (c *Client) Events(ctx context.Context, n int) ([]EventEntry, error) {
	q := url.Values{}
	q.Set("n", strconv.Itoa(n))
	var entries []EventEntry
	err := c.get(ctx, "/api/v1/events", q, &entries)
	return entries, err
}
