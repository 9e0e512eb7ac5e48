// Package server implements per-connection frame throttling that protects
// the shared session from a flooding client.
package server

import (
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter is a token bucket holding capacity tokens that refill fully
// once per interval.
type rateLimiter struct {
	limiter *rate.Limiter
}

func newRateLimiter(capacity int, interval time.Duration) *rateLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	perSecond := rate.Limit(float64(capacity) / interval.Seconds())
	return &rateLimiter{limiter: rate.NewLimiter(perSecond, capacity)}
}

func (rl *rateLimiter) allow() bool {
	return rl.limiter.Allow()
}
