// Package session enforces the engine's concurrency model: a conversation
// record is exclusively owned by the in-flight request that checked its
// session out, and per-session model calls run under a sliding-window rate
// budget. Different sessions never contend with each other beyond map access.
package session

import (
	"sync"
	"time"
)

// Manager hands out per-session exclusive ownership. Checkout blocks until
// the previous turn for the same session has checked back in, which gives
// in-order turn processing per session while leaving distinct sessions fully
// parallel.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	lock     chan struct{}
	lastSeen time.Time
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*entry)}
}

// Checkout acquires exclusive ownership of the session and returns the
// release function. The caller must call release exactly once, when the turn
// is fully processed and saved.
func (m *Manager) Checkout(sessionID string) (release func()) {
	m.mu.Lock()
	e, ok := m.sessions[sessionID]
	if !ok {
		e = &entry{lock: make(chan struct{}, 1)}
		m.sessions[sessionID] = e
	}
	e.lastSeen = time.Now()
	m.mu.Unlock()

	e.lock <- struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() { <-e.lock })
	}
}

// Active reports the number of tracked sessions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// CleanupStale drops session entries idle longer than retention. Entries
// with a turn in flight are kept. Returns the number of dropped entries.
func (m *Manager) CleanupStale(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)

	m.mu.Lock()
	defer m.mu.Unlock()
	dropped := 0
	for id, e := range m.sessions {
		if e.lastSeen.After(cutoff) {
			continue
		}
		select {
		case e.lock <- struct{}{}:
			<-e.lock
			delete(m.sessions, id)
			dropped++
		default:
			// Turn in flight; skip.
		}
	}
	return dropped
}

// CleanupConfig holds the background cleanup parameters.
type CleanupConfig struct {
	// Interval is how often to run cleanup.
	Interval time.Duration
	// SessionRetention is how long idle session entries are kept.
	SessionRetention time.Duration
}

// DefaultCleanupConfig returns the defaults.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		Interval:         5 * time.Minute,
		SessionRetention: time.Hour,
	}
}

// StartCleanupLoop starts a background goroutine that periodically drops
// stale session entries and expired rate windows. Returns a stop function.
func (m *Manager) StartCleanupLoop(cfg CleanupConfig, limiter *RateLimiter) func() {
	if cfg.Interval == 0 {
		cfg = DefaultCleanupConfig()
	}

	ticker := time.NewTicker(cfg.Interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				m.CleanupStale(cfg.SessionRetention)
				if limiter != nil {
					limiter.CleanupExpired()
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() { close(done) }
}
