package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// Counter counts hits per key in fixed windows.
type Counter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RedisCounter shares windows across API replicas.
type RedisCounter struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisCounter(client *redis.Client, prefix string) *RedisCounter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisCounter{client: client, prefix: prefix, now: time.Now}
}

func (c *RedisCounter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	slot := c.now().UnixNano() / int64(window)
	k := fmt.Sprintf("%s:%s:%d", c.prefix, key, slot)

	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("rate limit counter: %w", err)
	}
	return incr.Val() <= int64(limit), nil
}

type bucket struct {
	count int
	until time.Time
}

// MemoryCounter is the single-process fallback when no redis is configured.
type MemoryCounter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{buckets: make(map[string]*bucket), now: time.Now}
}

func (c *MemoryCounter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if len(c.buckets) > 10000 {
		for k, b := range c.buckets {
			if now.After(b.until) {
				delete(c.buckets, k)
			}
		}
	}
	b, ok := c.buckets[key]
	if !ok || now.After(b.until) {
		b = &bucket{until: now.Add(window)}
		c.buckets[key] = b
	}
	if b.count >= limit {
		return false, nil
	}
	b.count++
	return true, nil
}

// RateLimit allows limit requests per client IP and window on one route.
// Counter errors fail open. onLimited may be nil.
func RateLimit(counter Counter, route string, limit int, per time.Duration, onLimited func(route string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIPForRateLimit(r)
			ok, err := counter.Allow(r.Context(), route+":"+ip, limit, per)
			if err != nil {
				zerolog.Ctx(r.Context()).Warn().Err(err).Str("route", route).Msg("rate limiter unavailable")
			}
			if !ok {
				if onLimited != nil {
					onLimited(route)
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(per.Seconds())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"too many requests"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIPForRateLimit(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}
