package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/finaiflow/identity/internal/identity/cache"
	"github.com/finaiflow/identity/pkg/slogx"
)

// Rule caps how many requests an identifier may make per fixed window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts requests per (identifier, endpoint) in a fixed window backed
// by the shared cache, so the count holds across instances when redis backs
// the cache. A cache failure never blocks a request; availability beats
// strictness here, and the failure is logged.
type Limiter struct {
	Cache cache.Cache
	Clock func() time.Time // defaults to time.Now
}

func NewLimiter(c cache.Cache) *Limiter {
	return &Limiter{Cache: c}
}

func (l *Limiter) now() time.Time {
	if l.Clock != nil {
		return l.Clock()
	}
	return time.Now()
}

// Allow records one request for identifier against endpoint and reports
// whether it is within rule.
func (l *Limiter) Allow(ctx context.Context, identifier, endpoint string, rule Rule) Decision {
	if rule.Limit <= 0 || rule.Window <= 0 {
		return Decision{Allowed: true, Remaining: 1}
	}

	now := l.now()
	windowIndex := now.UnixNano() / int64(rule.Window)
	key := fmt.Sprintf("rl:%s:%s:%d", identifier, endpoint, windowIndex)

	count, err := l.Cache.Increment(ctx, key, rule.Window)
	if err != nil {
		// Fail open: an unreachable cache must not take logins down with it.
		slogx.FromContext(ctx).Warn("rate limiter cache unavailable, allowing request",
			slog.String("endpoint", endpoint),
			slog.Any("error", err),
		)
		return Decision{Allowed: true, Remaining: rule.Limit}
	}

	if count > int64(rule.Limit) {
		windowEnd := time.Unix(0, (windowIndex+1)*int64(rule.Window))
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: windowEnd.Sub(now),
		}
	}

	return Decision{Allowed: true, Remaining: rule.Limit - int(count)}
}
