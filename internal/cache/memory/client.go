// Package memory is an in-process Cache implementation used by tests and
// by local/dev runs without a Redis instance. It mirrors the semantics of
// internal/cache/redis.Client closely enough to exercise the same callers.
package memory

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/oggyb/bulksms/internal/cache"
)

var ErrNotFound = errors.New("memory cache: key not found")

type entry struct {
	value   string
	expires time.Time // zero means no expiry
}

// Client is a mutex-guarded in-memory key/value store.
type Client struct {
	mu   sync.Mutex
	data map[string]entry
}

func New() *Client {
	return &Client{data: make(map[string]entry)}
}

func (c *Client) Ping(ctx context.Context) error { return nil }

func (c *Client) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = entry{value: value, expires: expiryOf(ttl)}
	return nil
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[key]
	if !ok || expired(e) {
		return "", ErrNotFound
	}
	return e.value, nil
}

func (c *Client) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	return c.addInt(key, 1)
}

func (c *Client) Decr(ctx context.Context, key string) (int64, error) {
	return c.addInt(key, -1)
}

func (c *Client) addInt(key string, delta int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int64
	if e, ok := c.data[key]; ok && !expired(e) {
		parsed, err := strconv.ParseInt(e.value, 10, 64)
		if err == nil {
			n = parsed
		}
	}
	n += delta
	c.data[key] = entry{value: strconv.FormatInt(n, 10)}
	return n, nil
}

func (c *Client) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.data[key]; ok && !expired(e) {
		return false, nil
	}
	c.data[key] = entry{value: value, expires: expiryOf(ttl)}
	return true, nil
}

func expiryOf(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

func expired(e entry) bool {
	return !e.expires.IsZero() && time.Now().After(e.expires)
}

var _ cache.Cache = (*Client)(nil)
