// Package ratelimit limits requests per client key.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter decides whether one more request for key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type entry struct {
	limiter     *rate.Limiter
	windowStart time.Time
}

// Memory is a fixed window per key: max requests, then nothing until the
// window that started with the key's first request ends. Keys whose window
// has ended are dropped on sweep.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*entry
	max     int
	window  time.Duration
	now     func() time.Time

	lastSweep time.Time
}

// NewMemory creates an in-process limiter.
func NewMemory(max int, window time.Duration) *Memory {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Hour
	}
	return &Memory{
		entries: make(map[string]*entry),
		max:     max,
		window:  window,
		now:     time.Now,
	}
}

func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if now.Sub(m.lastSweep) >= m.window {
		m.sweep(now)
	}

	e, ok := m.entries[key]
	if !ok || now.Sub(e.windowStart) >= m.window {
		// zero refill: the bucket only empties within a window
		e = &entry{limiter: rate.NewLimiter(0, m.max), windowStart: now}
		m.entries[key] = e
	}
	return e.limiter.AllowN(now, 1), nil
}

// Len returns the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// an expired window restarts on the next request, so dropping it loses nothing
func (m *Memory) sweep(now time.Time) {
	for k, e := range m.entries {
		if now.Sub(e.windowStart) >= m.window {
			delete(m.entries, k)
		}
	}
	m.lastSweep = now
}

// Redis is a fixed-window counter shared between instances.
type Redis struct {
	client redis.UniversalClient
	prefix string
	max    int64
	window time.Duration
}

// NewRedis creates a Redis-backed limiter. prefix separates routes.
func NewRedis(client redis.UniversalClient, prefix string, max int, window time.Duration) *Redis {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Hour
	}
	return &Redis{client: client, prefix: prefix, max: int64(max), window: window}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	k := fmt.Sprintf("ratelimit:%s:%s", r.prefix, key)

	n, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("incr %s: %w", k, err)
	}
	if n == 1 {
		if err := r.client.PExpire(ctx, k, r.window).Err(); err != nil {
			return false, fmt.Errorf("expire %s: %w", k, err)
		}
	}
	return n <= r.max, nil
}
