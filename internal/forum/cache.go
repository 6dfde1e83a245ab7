package forum

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores search results by key.
type Cache interface {
	Get(ctx context.Context, key string) (Result, bool, error)
	Set(ctx context.Context, key string, r Result, ttl time.Duration) error
}

// CachedSearcher serves repeated queries from a Cache. Cache failures are
// logged and never fail a search.
type CachedSearcher struct {
	next   Searcher
	cache  Cache
	ttl    time.Duration
	logger *log.Logger
}

// NewCachedSearcher decorates next with cache.
func NewCachedSearcher(next Searcher, cache Cache, ttl time.Duration, logger *log.Logger) *CachedSearcher {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &CachedSearcher{next: next, cache: cache, ttl: ttl, logger: logger}
}

func (s *CachedSearcher) Search(ctx context.Context, q Query) (Result, error) {
	key := CacheKey(q)
	if r, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Printf("cache get %s: %v", key, err)
	} else if ok {
		r.Cached = true
		return r, nil
	}
	r, err := s.next.Search(ctx, q)
	if err != nil {
		return r, err
	}
	// Partial results are not cached so a later run can fill the gaps.
	if len(r.Partial) == 0 {
		if err := s.cache.Set(ctx, key, r, s.ttl); err != nil {
			s.logger.Printf("cache set %s: %v", key, err)
		}
	}
	return r, nil
}

// CacheKey hashes the order-insensitive, case-folded query.
func CacheKey(q Query) string {
	fold := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				out = append(out, s)
			}
		}
		sort.Strings(out)
		return out
	}
	norm := Query{Keywords: fold(q.Keywords), Scopes: fold(q.Scopes), Window: q.Window}
	b, _ := json.Marshal(norm)
	sum := sha256.Sum256(b)
	return "ideascope:forum:" + hex.EncodeToString(sum[:16])
}

// RedisCache is a Cache backed by redis string keys holding JSON.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(rdb *redis.Client) *RedisCache { return &RedisCache{rdb: rdb} }

// Conn opens and pings a redis client.
func Conn(ctx context.Context, host, port, pass string, db int, timeout time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", host, port),
		DialTimeout: timeout,
		Password:    pass,
		DB:          db,
	})
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, err
	}
	if pong != "PONG" {
		return nil, fmt.Errorf("expected PONG, got %s", pong)
	}
	return client, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (Result, bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}
	var r Result
	if err := json.Unmarshal(raw, &r); err != nil {
		return Result{}, false, fmt.Errorf("decode cached result: %w", err)
	}
	return r, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, r Result, ttl time.Duration) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, b, ttl).Err()
}
