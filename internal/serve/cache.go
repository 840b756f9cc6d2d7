package serve

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultCacheTTL keeps responses fresh relative to the shortest
// ingestion cadence.
const DefaultCacheTTL = 10 * time.Second

// Cache is an optional Redis-backed response cache for the read
// interface. Failures degrade to a cache miss, never to an error.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewCache wraps an existing Redis client.
func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{rdb: rdb, ttl: ttl}
}

func cacheKey(req Request) string {
	sources := make([]string, len(req.Sources))
	for i, s := range req.Sources {
		sources[i] = string(s)
	}
	return fmt.Sprintf("pulsefeed:context:%s:%s:%d:%d",
		req.Asset, strings.Join(sources, ","), req.Since.Unix(), req.Until.Unix())
}

// Get returns a cached aggregate if present.
func (c *Cache) Get(ctx context.Context, req Request) (Aggregate, bool) {
	var out Aggregate
	data, err := c.rdb.Get(ctx, cacheKey(req)).Bytes()
	if err == redis.Nil {
		return out, false
	}
	if err != nil {
		log.Warn().Err(err).Msg("context cache read failed")
		return out, false
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, false
	}
	return out, true
}

// Put stores an aggregate under the request key.
func (c *Cache) Put(ctx context.Context, req Request, agg Aggregate) {
	data, err := json.Marshal(agg)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, cacheKey(req), data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("context cache write failed")
	}
}
