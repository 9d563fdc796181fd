package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	cacheKeyPrefix  = "scorebook:catalogue:"
	defaultCacheTTL = time.Minute
	maxCachedBody   = 2 << 20
)

// CachedResponse is a stored upstream response.
type CachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// ResponseCache stores catalogue responses.
type ResponseCache interface {
	Get(ctx context.Context, key string) (*CachedResponse, bool, error)
	Set(ctx context.Context, key string, resp *CachedResponse, ttl time.Duration) error
}

// RedisCache implements [ResponseCache] with go-redis.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache connects to the redis URL (redis://host:port/db) and pings it.
func NewRedisCache(ctx context.Context, rawURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisCache{rdb: rdb}, nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

// Get returns the cached response; a miss is not an error. Undecodable entries count as misses.
func (c *RedisCache) Get(ctx context.Context, key string) (*CachedResponse, bool, error) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var resp CachedResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		return nil, false, nil
	}
	return &resp, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, resp *CachedResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

// Close releases the connection pool.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}

// cacheable reports whether r is an anonymous catalogue read.
func cacheable(r *http.Request) bool {
	if r.Method != http.MethodGet || r.Header.Get("Authorization") != "" {
		return false
	}
	return r.URL.Path == "/api/songs" || strings.HasPrefix(r.URL.Path, "/api/songs/")
}

// CatalogueCacheKey is the cache key of r.
func CatalogueCacheKey(r *http.Request) string {
	return cacheKeyPrefix + r.URL.RequestURI()
}

// bodyRecorder tees the response so it can be cached once complete.
type bodyRecorder struct {
	http.ResponseWriter
	status   int
	buf      bytes.Buffer
	overflow bool
}

func (b *bodyRecorder) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
	b.ResponseWriter.WriteHeader(code)
}

func (b *bodyRecorder) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	if !b.overflow {
		if b.buf.Len()+len(p) > maxCachedBody {
			b.overflow = true
			b.buf.Reset()
		} else {
			b.buf.Write(p)
		}
	}
	return b.ResponseWriter.Write(p)
}

func (b *bodyRecorder) Unwrap() http.ResponseWriter { return b.ResponseWriter }

// CatalogueCache serves anonymous GET /api/songs responses from cache. Only 200 responses are stored;
// authenticated requests bypass the cache entirely. Cache failures fall through to next.
func CatalogueCache(cache ResponseCache, ttl time.Duration, logger *log.Logger) Middleware {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cacheable(r) {
				next.ServeHTTP(w, r)
				return
			}

			key := CatalogueCacheKey(r)
			cached, ok, err := cache.Get(r.Context(), key)
			if err != nil {
				logger.Warn("catalogue cache read failed", "key", key, "err", err)
			}
			if ok {
				if cached.ContentType != "" {
					w.Header().Set("Content-Type", cached.ContentType)
				}
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(cached.Status)
				w.Write(cached.Body)
				return
			}

			w.Header().Set("X-Cache", "MISS")
			rec := &bodyRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			if rec.status != http.StatusOK || rec.overflow {
				return
			}
			resp := &CachedResponse{
				Status:      http.StatusOK,
				ContentType: w.Header().Get("Content-Type"),
				Body:        bytes.Clone(rec.buf.Bytes()),
			}
			if err := cache.Set(context.WithoutCancel(r.Context()), key, resp, ttl); err != nil {
				logger.Warn("catalogue cache write failed", "key", key, "err", err)
			}
		})
	}
}
