// Package store defines the persistence collaborator for conversation
// records and provides an in-memory implementation for tests and
// single-process deployments.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/bloomline-ai/promoflow/convengine/record"
)

// ErrNotFound is returned when no record exists for a session id.
var ErrNotFound = errors.New("store: session not found")

// Store loads and saves conversation records by session id. Implementations
// must be safe for concurrent use across sessions; per-session write ordering
// is the engine's responsibility.
type Store interface {
	Load(ctx context.Context, sessionID string) (*record.ConversationRecord, error)
	Save(ctx context.Context, rec *record.ConversationRecord) error
	Delete(ctx context.Context, sessionID string) error
}

// Memory is a map-backed Store. Records are deep-cloned on the way in and
// out so callers never alias stored state.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*record.ConversationRecord
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]*record.ConversationRecord)}
}

// Load implements Store.
func (m *Memory) Load(ctx context.Context, sessionID string) (*record.ConversationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return rec.Clone(), nil
}

// Save implements Store.
func (m *Memory) Save(ctx context.Context, rec *record.ConversationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.SessionID] = rec.Clone()
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, sessionID)
	return nil
}

// Len reports the number of stored sessions.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
