package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedFeed wraps a Feed with a read-through Redis cache.
//
// Inside a batch run many users share watchlist symbols; caching keeps the
// aggregator from re-fetching the same symbol's feed for every user. Cache
// failures are never fatal: a miss or a broken Redis degrades to the inner
// feed.
type CachedFeed struct {
	inner Feed
	rdb   *redis.Client
	ttl   time.Duration
}

const (
	companyKeyPrefix = "notifier:news:company:"
	generalKey       = "notifier:news:general"
)

// NewCachedFeed wraps inner with a Redis cache. ttl bounds staleness; a
// zero ttl defaults to 15 minutes.
func NewCachedFeed(inner Feed, rdb *redis.Client, ttl time.Duration) *CachedFeed {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &CachedFeed{inner: inner, rdb: rdb, ttl: ttl}
}

func (c *CachedFeed) CompanyNews(ctx context.Context, symbol string, from, to time.Time) ([]Article, error) {
	key := fmt.Sprintf("%s%s:%s:%s", companyKeyPrefix, symbol, from.Format("2006-01-02"), to.Format("2006-01-02"))

	if cached, ok := c.lookup(ctx, key); ok {
		return cached, nil
	}

	articles, err := c.inner.CompanyNews(ctx, symbol, from, to)
	if err != nil {
		return nil, err
	}

	c.fill(ctx, key, articles)
	return articles, nil
}

func (c *CachedFeed) GeneralNews(ctx context.Context) ([]Article, error) {
	if cached, ok := c.lookup(ctx, generalKey); ok {
		return cached, nil
	}

	articles, err := c.inner.GeneralNews(ctx)
	if err != nil {
		return nil, err
	}

	c.fill(ctx, generalKey, articles)
	return articles, nil
}

func (c *CachedFeed) lookup(ctx context.Context, key string) ([]Article, bool) {
	raw, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		slog.Warn("news cache lookup failed", "key", key, "error", err)
		return nil, false
	}

	var articles []Article
	if err := json.Unmarshal([]byte(raw), &articles); err != nil {
		slog.Warn("news cache entry corrupt", "key", key, "error", err)
		return nil, false
	}
	return articles, true
}

func (c *CachedFeed) fill(ctx context.Context, key string, articles []Article) {
	raw, err := json.Marshal(articles)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		slog.Warn("news cache fill failed", "key", key, "error", err)
	}
}
