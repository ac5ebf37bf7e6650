package client

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/keystone-labs/idemgw"
)

// cacheCountKey tracks the number of live entries so Count never needs a
// full scan.
const cacheCountKey = "idempotent-cache-count"

// entry is the stored JSON shape: the raw response plus the storage
// timestamp in Unix milliseconds.
type entry struct {
	Response  json.RawMessage `json:"response"`
	Timestamp int64           `json:"timestamp"`
}

// Cache is the client-side deduplication cache. Keys are content hashes
// of request payloads (idemgw.ContentKey); entries expire after a fixed
// window and are evicted lazily on read.
type Cache struct {
	storage Storage
	ttl     time.Duration
	now     func() time.Time
}

// NewCache creates a cache over storage with the given expiry window.
func NewCache(storage Storage, ttl time.Duration) *Cache {
	return &Cache{storage: storage, ttl: ttl, now: time.Now}
}

// Get returns the cached response for key along with its storage time.
// Expired entries are deleted and reported as absent.
func (c *Cache) Get(key string) (json.RawMessage, time.Time, bool) {
	raw, ok := c.storage.Get(key)
	if !ok {
		return nil, time.Time{}, false
	}

	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		// Corrupt entry: drop it and treat as a miss.
		c.storage.Delete(key)
		c.adjustCount(-1)
		return nil, time.Time{}, false
	}

	storedAt := time.UnixMilli(e.Timestamp)
	if c.now().Sub(storedAt) > c.ttl {
		c.storage.Delete(key)
		c.adjustCount(-1)
		return nil, time.Time{}, false
	}
	return e.Response, storedAt, true
}

// Put stores response under key with the current timestamp.
func (c *Cache) Put(key string, response json.RawMessage) {
	_, existed := c.storage.Get(key)
	raw, err := json.Marshal(entry{Response: response, Timestamp: c.now().UnixMilli()})
	if err != nil {
		return
	}
	c.storage.Set(key, string(raw))
	if !existed {
		c.adjustCount(1)
	}
}

// Count returns the tracked number of live entries.
func (c *Cache) Count() int {
	raw, ok := c.storage.Get(cacheCountKey)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Clear removes every cache entry and resets the counter.
func (c *Cache) Clear() {
	for _, key := range c.storage.Keys() {
		if strings.HasPrefix(key, idemgw.ContentKeyPrefix) {
			c.storage.Delete(key)
		}
	}
	c.storage.Set(cacheCountKey, "0")
}

func (c *Cache) adjustCount(delta int) {
	n := c.Count() + delta
	if n < 0 {
		n = 0
	}
	c.storage.Set(cacheCountKey, strconv.Itoa(n))
}
