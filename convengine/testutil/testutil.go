// Package testutil provides shared test utilities and mocks.
//
// All mocks in this package are designed for testing the conversation engine
// components in isolation without requiring external dependencies.
package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bloomline-ai/promoflow/convengine/record"
)

// =============================================================================
// MOCK GENERATOR
// =============================================================================

// MockGenerator implements llm.Generator for testing.
// Configure responses by user-context substring, script them in order, or set
// a DefaultResponse.
type MockGenerator struct {
	// Responses maps user-context substrings to responses.
	// First matching substring wins.
	Responses map[string]string

	// Script returns responses in order, one per call, before falling back
	// to Responses/DefaultResponse once exhausted.
	Script []string

	// DefaultResponse is returned when nothing else matches.
	DefaultResponse string

	// Delay simulates model latency.
	Delay time.Duration

	// Error causes Generate to return this error.
	Error error

	// Calls records all calls for assertion.
	Calls []GeneratorCall

	// GenerateFunc allows custom generation logic.
	// If set, this is called instead of Script/Responses.
	GenerateFunc func(ctx context.Context, systemPrompt, userContext string) (string, error)

	mu       sync.Mutex
	scriptAt int
}

// GeneratorCall records a single model call for assertion.
type GeneratorCall struct {
	SystemPrompt string
	UserContext  string
}

// NewMockGenerator creates a MockGenerator with sensible defaults.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{
		Responses:       make(map[string]string),
		DefaultResponse: "네, 알겠습니다. 조금 더 자세히 알려주시겠어요? [[NEED_MORE_INFO]]",
	}
}

// Generate implements llm.Generator.
func (m *MockGenerator) Generate(ctx context.Context, systemPrompt, userContext string) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, GeneratorCall{SystemPrompt: systemPrompt, UserContext: userContext})
	customFunc := m.GenerateFunc
	var scripted string
	hasScripted := false
	if m.scriptAt < len(m.Script) {
		scripted = m.Script[m.scriptAt]
		m.scriptAt++
		hasScripted = true
	}
	m.mu.Unlock()

	if customFunc != nil {
		return customFunc(ctx, systemPrompt, userContext)
	}

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if m.Error != nil {
		return "", m.Error
	}

	if hasScripted {
		return scripted, nil
	}

	for substr, response := range m.Responses {
		if strings.Contains(userContext, substr) {
			return response, nil
		}
	}

	return m.DefaultResponse, nil
}

// WithResponse adds a substring-based response.
func (m *MockGenerator) WithResponse(substr, response string) *MockGenerator {
	m.Responses[substr] = response
	return m
}

// WithScript sets an ordered response script.
func (m *MockGenerator) WithScript(responses ...string) *MockGenerator {
	m.Script = responses
	return m
}

// WithError configures the mock to return an error.
func (m *MockGenerator) WithError(err error) *MockGenerator {
	m.Error = err
	return m
}

// WithDelay adds latency simulation.
func (m *MockGenerator) WithDelay(d time.Duration) *MockGenerator {
	m.Delay = d
	return m
}

// CallCount returns the number of calls (thread-safe).
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent call, or a zero value when none happened.
func (m *MockGenerator) LastCall() GeneratorCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return GeneratorCall{}
	}
	return m.Calls[len(m.Calls)-1]
}

// =============================================================================
// MOCK RETRIEVER
// =============================================================================

// MockRetriever implements stages.Retriever for testing.
type MockRetriever struct {
	// Result is returned for every query.
	Result string

	// Error causes Retrieve to fail.
	Error error

	mu      sync.Mutex
	Queries []string
}

// Retrieve implements stages.Retriever.
func (m *MockRetriever) Retrieve(ctx context.Context, query string) (string, error) {
	m.mu.Lock()
	m.Queries = append(m.Queries, query)
	m.mu.Unlock()
	if m.Error != nil {
		return "", m.Error
	}
	return m.Result, nil
}

// QueryCount returns the number of retrieval calls (thread-safe).
func (m *MockRetriever) QueryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Queries)
}

// =============================================================================
// RECORD BUILDERS
// =============================================================================

// NewRecord builds a marketing-handler record at the given stage with the
// given collected fields.
func NewRecord(stage record.Stage, fields map[string]string) *record.ConversationRecord {
	rec := record.New("sess_test", "user_test", record.HandlerMarketing)
	rec.CurrentStage = stage
	rec.MergeFields(fields)
	return rec
}
