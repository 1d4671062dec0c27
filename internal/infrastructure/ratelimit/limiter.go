package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config describes one token bucket: Capacity tokens at most, refilled at
// RefillRate tokens per second.
type Config struct {
	RefillRate float64
	Capacity   int
	// IdleTTL evicts buckets not touched for this long. Zero keeps them forever.
	IdleTTL time.Duration
}

// KeyedLimiter holds one lazily created token bucket per identity. Refill is
// computed on access; there is no background timer per bucket.
type KeyedLimiter struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewKeyedLimiter(cfg Config) *KeyedLimiter {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1
	}
	if cfg.RefillRate < 0 {
		cfg.RefillRate = 0
	}
	return &KeyedLimiter{
		cfg:      cfg,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

// Consume takes n tokens from key's bucket if available.
func (l *KeyedLimiter) Consume(key string, n int) bool {
	now := l.now()
	return l.bucket(key, now).AllowN(now, n)
}

func (l *KeyedLimiter) Allow(key string) bool {
	return l.Consume(key, 1)
}

// Tokens reports the tokens currently available to key.
func (l *KeyedLimiter) Tokens(key string) float64 {
	now := l.now()
	return l.bucket(key, now).TokensAt(now)
}

// RetryAfter is the time until one token is available for key.
func (l *KeyedLimiter) RetryAfter(key string) time.Duration {
	if l.cfg.RefillRate <= 0 {
		return time.Duration(0)
	}
	missing := 1 - l.Tokens(key)
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / l.cfg.RefillRate * float64(time.Second))
}

// Evict drops buckets idle longer than IdleTTL and returns how many were removed.
func (l *KeyedLimiter) Evict() int {
	if l.cfg.IdleTTL <= 0 {
		return 0
	}
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, v := range l.visitors {
		if now.Sub(v.lastSeen) > l.cfg.IdleTTL {
			delete(l.visitors, key)
			removed++
		}
	}
	return removed
}

func (l *KeyedLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

func (l *KeyedLimiter) bucket(key string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(l.cfg.RefillRate), l.cfg.Capacity)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter
}
