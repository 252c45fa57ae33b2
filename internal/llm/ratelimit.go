package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RateLimiter is a token bucket shared across pipeline invocations so
// bursts of expense entries stay under the provider's requests-per-
// minute quota. Tokens are replenished lazily on acquisition; there is
// no background goroutine and nothing to shut down.
type RateLimiter struct {
	lastUpdate time.Time
	interval   time.Duration
	tokens     float64
	capacity   float64
	mu         sync.Mutex
}

// NewRateLimiter creates a limiter allowing requestsPerMinute model
// calls, starting with a full bucket. Zero or negative means the
// default of 60.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}

	return &RateLimiter{
		interval:   time.Minute / time.Duration(requestsPerMinute),
		tokens:     float64(requestsPerMinute),
		capacity:   float64(requestsPerMinute),
		lastUpdate: time.Now(),
	}
}

// Wait blocks until a token is available or the context is canceled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	for {
		if rl.tryAcquire() {
			return nil
		}

		timer := time.NewTimer(rl.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limiter canceled: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

// tryAcquire replenishes the bucket for the time elapsed since the last
// acquisition and takes a token if one is available.
func (rl *RateLimiter) tryAcquire() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.tokens += float64(now.Sub(rl.lastUpdate)) / float64(rl.interval)
	if rl.tokens > rl.capacity {
		rl.tokens = rl.capacity
	}
	rl.lastUpdate = now

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}
