package ratelimiter

import (
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// FixedWindowRateLimiter counts hits per key and lets at most limit of them
// through in every window. Keys are chat user ids.
type FixedWindowRateLimiter struct {
	sync.Mutex
	clients map[string]window
	limit   int
	window  time.Duration
	now     func() time.Time
}

func NewFixedWindowLimiter(limit int, w time.Duration) *FixedWindowRateLimiter {
	return &FixedWindowRateLimiter{
		clients: make(map[string]window),
		limit:   limit,
		window:  w,
		now:     time.Now,
	}
}

func (rl *FixedWindowRateLimiter) Allow(key string) (bool, time.Duration) {
	rl.Lock()
	defer rl.Unlock()

	now := rl.now()
	c, exists := rl.clients[key]
	if !exists || !now.Before(c.resetAt) {
		rl.clients[key] = window{count: 1, resetAt: now.Add(rl.window)}
		return true, 0
	}

	if c.count < rl.limit {
		c.count++
		rl.clients[key] = c
		return true, 0
	}

	return false, c.resetAt.Sub(now)
}

// Cleanup drops every window that has already ended and reports how many
// were removed.
func (rl *FixedWindowRateLimiter) Cleanup() int {
	rl.Lock()
	defer rl.Unlock()

	now := rl.now()
	removed := 0
	for key, c := range rl.clients {
		if !now.Before(c.resetAt) {
			delete(rl.clients, key)
			removed++
		}
	}
	return removed
}
