// Package llm abstracts language model providers behind a small Generator
// interface so the conversation engine can run against OpenAI, a cache, or a
// scripted mock interchangeably.
package llm

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors returned by generators. Callers branch on these to decide
// whether a failure is recoverable within the current turn.
var (
	// ErrTimeout indicates the model call exceeded its deadline.
	ErrTimeout = errors.New("llm: generation timed out")

	// ErrRateLimited indicates the call was rejected before reaching the
	// provider because the local rate limiter denied it.
	ErrRateLimited = errors.New("llm: rate limit exceeded")
)

// Generator produces a model completion for a system prompt plus user context.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userContext string) (string, error)
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func(ctx context.Context, systemPrompt, userContext string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, systemPrompt, userContext string) (string, error) {
	return f(ctx, systemPrompt, userContext)
}

// WithTimeout wraps a generator so every call runs under the given deadline.
// A deadline overrun surfaces as ErrTimeout rather than a raw context error.
func WithTimeout(g Generator, timeout time.Duration) Generator {
	return GeneratorFunc(func(ctx context.Context, systemPrompt, userContext string) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		out, err := g.Generate(ctx, systemPrompt, userContext)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return "", ErrTimeout
			}
			return "", err
		}
		return out, nil
	})
}

// Denied returns a generator that fails every call with the given error.
// The engine substitutes it for the real generator when a session is over
// its rate budget, so the stage node's recoverable-failure path handles the
// denial like any other transient model fault.
func Denied(err error) Generator {
	return GeneratorFunc(func(context.Context, string, string) (string, error) {
		return "", err
	})
}
