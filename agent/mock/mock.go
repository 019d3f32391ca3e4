// Package mock provides a scriptable Agent for tests.
package mock

import (
	"context"
	"errors"
	"sync"
)

// ErrExhausted is returned once a scripted response list runs out.
var ErrExhausted = errors.New("no more responses configured")

// Call records a single Complete invocation.
type Call struct {
	Prompt string
	Model  string
}

// Handler produces a completion for a prompt.
type Handler func(ctx context.Context, prompt, model string) (string, error)

// MockAgent implements agent.Agent with a configurable handler and records
// every call it receives.
type MockAgent struct {
	mu      sync.Mutex
	handler Handler
	calls   []Call
}

// Option configures a MockAgent.
type Option func(*MockAgent)

// WithHandler sets the function that answers each call.
func WithHandler(h Handler) Option {
	return func(m *MockAgent) { m.handler = h }
}

// WithResponses answers successive calls with the given responses, then
// fails with ErrExhausted.
func WithResponses(responses ...string) Option {
	return func(m *MockAgent) {
		var (
			mu sync.Mutex
			i  int
		)
		m.handler = func(context.Context, string, string) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			if i >= len(responses) {
				return "", ErrExhausted
			}
			r := responses[i]
			i++
			return r, nil
		}
	}
}

// WithError fails every call with err.
func WithError(err error) Option {
	return func(m *MockAgent) {
		m.handler = func(context.Context, string, string) (string, error) {
			return "", err
		}
	}
}

// NewMockAgent creates a MockAgent. Without options every call returns an
// empty string.
func NewMockAgent(opts ...Option) *MockAgent {
	m := &MockAgent{
		handler: func(context.Context, string, string) (string, error) { return "", nil },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MockAgent) Complete(ctx context.Context, prompt, model string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Prompt: prompt, Model: model})
	h := m.handler
	m.mu.Unlock()

	return h(ctx, prompt, model)
}

// Calls returns a copy of the recorded calls.
func (m *MockAgent) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}
