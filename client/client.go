package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/keystone-labs/idemgw"
)

// Response is the outcome of an idempotent request. IsCached marks
// responses served from the local cache without a network call.
type Response struct {
	Body     json.RawMessage
	IsCached bool
	StoredAt time.Time
}

// Client makes idempotent POST requests. Identical payloads within the
// cache window are answered locally; everything else goes to the server
// with the Idempotency-Key header set to the payload's content hash, so
// both sides derive the same key.
type Client struct {
	httpClient *http.Client
	cache      *Cache
	headerName string
}

// New creates a Client over cache. httpClient may be nil, in which case
// http.DefaultClient is used.
func New(httpClient *http.Client, cache *Cache) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		cache:      cache,
		headerName: idemgw.DefaultKeyHeader,
	}
}

// SetKeyHeader overrides the header name carrying the idempotency key.
func (c *Client) SetKeyHeader(name string) {
	c.headerName = name
}

// Cache exposes the underlying deduplication cache for introspection.
func (c *Client) Cache() *Cache {
	return c.cache
}

// Post submits payload to url at most once per cache window. A cache hit
// suppresses the network call entirely.
func (c *Client) Post(ctx context.Context, url string, payload []byte) (*Response, error) {
	key := idemgw.ContentKey(payload)

	if body, storedAt, ok := c.cache.Get(key); ok {
		return &Response{Body: body, IsCached: true, StoredAt: storedAt}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(c.headerName, key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("post %s: unexpected status %d", url, resp.StatusCode)
	}

	c.cache.Put(key, body)
	return &Response{Body: body, IsCached: false, StoredAt: time.Now()}, nil
}
