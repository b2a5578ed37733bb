package server

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/matst80/slask-grid/pkg/common/jsoncompat"
	"github.com/redis/go-redis/v9"
)

type LocalEntry struct {
	Expires time.Time
	Data    []byte
}

// Cache keeps rendered responses in redis with a short lived in-process
// layer in front. Keys carry the session revision, so invalidation is just
// letting old keys age out.
type Cache struct {
	mu       sync.Mutex
	client   *redis.Client
	ctx      context.Context
	memCache map[string]LocalEntry
}

func NewCache(addr, password string, db int) *Cache {
	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Cache{client: rdb, ctx: ctx, memCache: make(map[string]LocalEntry)}
}

func (c *Cache) GetRaw(key string) ([]byte, bool) {
	c.mu.Lock()
	local, found := c.memCache[key]
	if found && time.Now().Before(local.Expires) {
		c.mu.Unlock()
		return local.Data, true
	}
	if found {
		delete(c.memCache, key)
	}
	c.mu.Unlock()

	data, err := c.client.Get(c.ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	c.mu.Lock()
	c.memCache[key] = LocalEntry{Expires: time.Now().Add(time.Minute), Data: data}
	c.mu.Unlock()
	return data, true
}

func (c *Cache) SetRaw(key string, data []byte, expiration time.Duration) error {
	c.mu.Lock()
	c.memCache[key] = LocalEntry{Expires: time.Now().Add(expiration), Data: data}
	c.mu.Unlock()
	return c.client.Set(c.ctx, key, data, expiration).Err()
}

func (c *Cache) Get(key string, out any) error {
	data, ok := c.GetRaw(key)
	if !ok {
		return redis.Nil
	}
	return jsoncompat.Unmarshal(data, out)
}

func (c *Cache) Set(key string, value any, expiration time.Duration) error {
	data, err := jsoncompat.Marshal(value)
	if err != nil {
		return err
	}
	return c.SetRaw(key, data, expiration)
}

func (c *Cache) Close() {
	c.client.Close()
}

// cacheWriter collects a response body while it streams to the client.
// Nothing is stored until Flush, a half written response never lands in the
// cache.
type cacheWriter struct {
	key      string
	duration time.Duration
	buf      bytes.Buffer
	cache    *Cache
}

func newCacheWriter(cache *Cache, key string, duration time.Duration) *cacheWriter {
	return &cacheWriter{key: key, duration: duration, cache: cache}
}

func (cw *cacheWriter) Write(p []byte) (n int, err error) {
	return cw.buf.Write(p)
}

func (cw *cacheWriter) Flush() {
	if cw.buf.Len() == 0 {
		return
	}
	cw.cache.SetRaw(cw.key, cw.buf.Bytes(), cw.duration)
}
