package session

import (
	"sync"
	"time"
)

// RateLimitConfig defines the per-session model-call budget.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute"`
	RequestsPerHour   int `json:"requests_per_hour"`
}

// DefaultRateLimitConfig returns sensible defaults for interactive chat.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 20,
		RequestsPerHour:   200,
	}
}

// RateLimiter tracks per-session sliding windows over the configured
// budgets. Thread-safe.
type RateLimiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	windows map[string]*sessionWindows
}

type sessionWindows struct {
	minute *slidingWindow
	hour   *slidingWindow
}

// NewRateLimiter creates a rate limiter with the given budgets. Zero or
// negative budgets disable the corresponding window.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{cfg: cfg, windows: make(map[string]*sessionWindows)}
}

// Allow records an attempt for the session and reports whether it fits the
// budget. A denied attempt is not counted against the window.
func (r *RateLimiter) Allow(sessionID string) bool {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[sessionID]
	if !ok {
		w = &sessionWindows{
			minute: newSlidingWindow(60),
			hour:   newSlidingWindow(3600),
		}
		r.windows[sessionID] = w
	}

	if r.cfg.RequestsPerMinute > 0 && w.minute.count(now) >= r.cfg.RequestsPerMinute {
		return false
	}
	if r.cfg.RequestsPerHour > 0 && w.hour.count(now) >= r.cfg.RequestsPerHour {
		return false
	}

	w.minute.record(now)
	w.hour.record(now)
	return true
}

// CleanupExpired drops sessions whose windows are empty.
func (r *RateLimiter) CleanupExpired() {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, w := range r.windows {
		if w.minute.count(now) == 0 && w.hour.count(now) == 0 {
			delete(r.windows, id)
		}
	}
}

// slidingWindow is a bucketed sliding-window counter. Sub-buckets keep the
// count accurate without storing every timestamp.
type slidingWindow struct {
	windowSeconds int64
	bucketCount   int64
	buckets       map[int64]int
	total         int
}

func newSlidingWindow(windowSeconds int64) *slidingWindow {
	return &slidingWindow{
		windowSeconds: windowSeconds,
		bucketCount:   10,
		buckets:       make(map[int64]int),
	}
}

func (w *slidingWindow) bucketFor(t time.Time) int64 {
	bucketSize := w.windowSeconds / w.bucketCount
	if bucketSize == 0 {
		bucketSize = 1
	}
	return t.Unix() / bucketSize
}

func (w *slidingWindow) prune(t time.Time) {
	minBucket := w.bucketFor(t) - w.bucketCount
	for b, n := range w.buckets {
		if b < minBucket {
			w.total -= n
			delete(w.buckets, b)
		}
	}
}

func (w *slidingWindow) record(t time.Time) {
	w.prune(t)
	w.buckets[w.bucketFor(t)]++
	w.total++
}

func (w *slidingWindow) count(t time.Time) int {
	w.prune(t)
	return w.total
}
