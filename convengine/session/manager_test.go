package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestManagerExclusiveOwnership(t *testing.T) {
	m := NewManager()

	// Two goroutines mutating a shared counter under the same session lock
	// must serialize; interleaving would lose increments.
	const workers = 8
	const perWorker = 100
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				release := m.Checkout("sess_shared")
				counter++
				release()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker, counter)
}

func TestManagerSessionsIndependent(t *testing.T) {
	m := NewManager()

	releaseA := m.Checkout("sess_a")
	defer releaseA()

	// A different session must not block behind sess_a.
	done := make(chan struct{})
	go func() {
		release := m.Checkout("sess_b")
		release()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("independent session blocked")
	}
}

func TestManagerReleaseIdempotent(t *testing.T) {
	m := NewManager()
	release := m.Checkout("sess_a")
	release()
	release() // second call must be a no-op, not an unlock of someone else

	release2 := m.Checkout("sess_a")
	release2()
}

func TestManagerCleanupStale(t *testing.T) {
	m := NewManager()

	release := m.Checkout("sess_idle")
	release()
	assert.Equal(t, 1, m.Active())

	// Nothing is stale yet.
	assert.Zero(t, m.CleanupStale(time.Hour))

	// With zero retention everything idle is stale.
	assert.Equal(t, 1, m.CleanupStale(0))
	assert.Zero(t, m.Active())
}

func TestManagerCleanupSkipsInFlight(t *testing.T) {
	m := NewManager()
	release := m.Checkout("sess_busy")
	defer release()

	assert.Zero(t, m.CleanupStale(0))
	assert.Equal(t, 1, m.Active())
}

func TestCleanupLoopStops(t *testing.T) {
	m := NewManager()
	stop := m.StartCleanupLoop(CleanupConfig{
		Interval:         10 * time.Millisecond,
		SessionRetention: 0,
	}, NewRateLimiter(DefaultRateLimitConfig()))

	release := m.Checkout("sess_x")
	release()
	time.Sleep(50 * time.Millisecond)
	stop()

	assert.Zero(t, m.Active())
}

func TestRateLimiter(t *testing.T) {
	t.Run("enforces minute budget", func(t *testing.T) {
		r := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 3})
		for i := 0; i < 3; i++ {
			assert.True(t, r.Allow("sess_a"))
		}
		assert.False(t, r.Allow("sess_a"))
	})

	t.Run("sessions have separate budgets", func(t *testing.T) {
		r := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 1})
		assert.True(t, r.Allow("sess_a"))
		assert.False(t, r.Allow("sess_a"))
		assert.True(t, r.Allow("sess_b"))
	})

	t.Run("zero budget disables the window", func(t *testing.T) {
		r := NewRateLimiter(RateLimitConfig{})
		for i := 0; i < 100; i++ {
			assert.True(t, r.Allow("sess_a"))
		}
	})

	t.Run("cleanup keeps active windows", func(t *testing.T) {
		r := NewRateLimiter(DefaultRateLimitConfig())
		r.Allow("sess_a")
		r.CleanupExpired()

		r.mu.Lock()
		_, ok := r.windows["sess_a"]
		r.mu.Unlock()
		assert.True(t, ok)
	})
}
