// Package ratelimit provides fixed-window (Redis) and token-bucket
// (in-process) request limiters behind one interface.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"blogpilot/internal/cache"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits or rejects a request identified by key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// RedisLimiter counts requests per key in fixed windows shared by every
// API instance.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, limit: limit, window: window, prefix: prefix, now: time.Now}
}

// NewRedisClient parses url and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	windowStart := now.Truncate(l.window)
	k := l.prefix + key + ":" + strconv.FormatInt(windowStart.Unix(), 10)

	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit incr: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("ratelimit expire: %w", err)
		}
	}
	d := Decision{Limit: l.limit, Remaining: l.limit - int(count)}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if int(count) > l.limit {
		d.RetryAfter = windowStart.Add(l.window).Sub(now)
		return d, nil
	}
	d.Allowed = true
	return d, nil
}

// LocalLimiter keeps one token bucket per key in process memory. Idle
// buckets are evicted after ten minutes.
type LocalLimiter struct {
	buckets *cache.TTL[string, *rate.Limiter]
	rate    rate.Limit
	burst   int
}

// NewLocalLimiter allows perMinute requests per key per minute.
func NewLocalLimiter(perMinute int) *LocalLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &LocalLimiter{
		buckets: cache.NewTTL[string, *rate.Limiter](10000, 10*time.Minute, cache.StringKey),
		rate:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   perMinute,
	}
}

func (l *LocalLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	lim, err := l.buckets.GetOrLoad(ctx, key, func(context.Context) (*rate.Limiter, error) {
		return rate.NewLimiter(l.rate, l.burst), nil
	})
	if err != nil {
		return Decision{}, err
	}
	r := lim.Reserve()
	if delay := r.Delay(); delay > 0 {
		r.Cancel()
		return Decision{Limit: l.burst, RetryAfter: delay}, nil
	}
	return Decision{Allowed: true, Limit: l.burst, Remaining: int(lim.Tokens())}, nil
}
