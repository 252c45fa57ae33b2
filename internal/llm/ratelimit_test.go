package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter(t *testing.T) {
	t.Run("tokens available up to capacity", func(t *testing.T) {
		rl := NewRateLimiter(5)

		for i := 0; i < 5; i++ {
			assert.True(t, rl.tryAcquire(), "expected tryAcquire to succeed for attempt %d", i+1)
		}

		assert.False(t, rl.tryAcquire(), "expected tryAcquire to fail after tokens exhausted")
	})

	t.Run("wait succeeds while tokens remain", func(t *testing.T) {
		rl := NewRateLimiter(3)

		ctx := context.Background()
		for i := 0; i < 3; i++ {
			require.NoError(t, rl.Wait(ctx))
		}
	})

	t.Run("tokens replenish over time", func(t *testing.T) {
		// 6000 per minute refills a token every 10ms.
		rl := NewRateLimiter(6000)
		for rl.tryAcquire() {
		}

		time.Sleep(25 * time.Millisecond)
		assert.True(t, rl.tryAcquire(), "expected a token after the refill interval elapsed")
	})

	t.Run("bucket does not overfill", func(t *testing.T) {
		rl := NewRateLimiter(6000)
		time.Sleep(30 * time.Millisecond)

		acquired := 0
		for rl.tryAcquire() {
			acquired++
		}
		assert.LessOrEqual(t, acquired, 6000)
	})

	t.Run("context cancellation", func(t *testing.T) {
		rl := NewRateLimiter(1)

		require.NoError(t, rl.Wait(context.Background()))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error)
		go func() {
			done <- rl.Wait(ctx)
		}()

		time.Sleep(10 * time.Millisecond)
		cancel()

		err := <-done
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limiter canceled")
	})

	t.Run("default rate limit", func(t *testing.T) {
		rl := NewRateLimiter(0)

		for i := 0; i < 50; i++ {
			require.True(t, rl.tryAcquire(), "expected default rate limit to allow many requests")
		}
	})
}
