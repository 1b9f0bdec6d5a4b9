// Package ratelimit provides fixed-window request counters keyed by requester.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

type window struct {
	start time.Time
	count int
}

// Memory is an in-process limiter. It only bounds traffic seen by one instance.
type Memory struct {
	mu        sync.Mutex
	windows   map[string]*window
	limit     int
	size      time.Duration
	now       func() time.Time
	lastSweep time.Time
}

func NewMemory(limit int, size time.Duration) *Memory {
	return &Memory{
		windows: make(map[string]*window),
		limit:   limit,
		size:    size,
		now:     time.Now,
	}
}

func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweep(now)

	w, ok := m.windows[key]
	if !ok || !now.Before(w.start.Add(m.size)) {
		w = &window{start: now}
		m.windows[key] = w
	}

	d := Decision{Limit: m.limit, ResetAt: w.start.Add(m.size)}
	if w.count >= m.limit {
		return d, nil
	}
	w.count++
	d.Allowed = true
	d.Remaining = m.limit - w.count
	return d, nil
}

// sweep drops expired windows at most once per window length.
func (m *Memory) sweep(now time.Time) {
	if now.Sub(m.lastSweep) < m.size {
		return
	}
	m.lastSweep = now
	for k, w := range m.windows {
		if !now.Before(w.start.Add(m.size)) {
			delete(m.windows, k)
		}
	}
}

// Redis shares counters across instances. Each window is its own key,
// aligned to multiples of the window length.
type Redis struct {
	client redis.Cmdable
	limit  int
	size   time.Duration
	prefix string
	now    func() time.Time
}

func NewRedis(client redis.Cmdable, prefix string, limit int, size time.Duration) *Redis {
	return &Redis{client: client, limit: limit, size: size, prefix: prefix, now: time.Now}
}

func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	now := r.now()
	start := now.Truncate(r.size)
	k := fmt.Sprintf("%s:%s:%d", r.prefix, key, start.Unix())

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.PExpire(ctx, k, r.size)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("rate limit %s: %w", key, err)
	}

	count := int(incr.Val())
	d := Decision{
		Allowed: count <= r.limit,
		Limit:   r.limit,
		ResetAt: start.Add(r.size),
	}
	if d.Allowed {
		d.Remaining = r.limit - count
	}
	return d, nil
}
