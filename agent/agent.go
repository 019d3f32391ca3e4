// Package agent adapts external text-completion engines to the single
// synchronous call the negotiation runtime depends on.
//
// Agents are created from configuration via New. Each call is bounded by the
// caller's context; adapters surface a deadline as ErrEngineTimeout and any
// other transport or process failure as ErrEngineUnavailable.
//
//	a, err := agent.New(&cfg)
//	text, err := a.Complete(ctx, prompt, "llama2")
package agent

import (
	"context"
	"fmt"
)

// Agent completes a prompt with the named model. Implementations hold no
// per-call state and must be safe for concurrent use.
type Agent interface {
	Complete(ctx context.Context, prompt, model string) (string, error)
}

// Func adapts an ordinary function to the Agent interface.
type Func func(ctx context.Context, prompt, model string) (string, error)

func (f Func) Complete(ctx context.Context, prompt, model string) (string, error) {
	return f(ctx, prompt, model)
}

// New creates an Agent for the configured provider.
func New(cfg *Config) (Agent, error) {
	switch cfg.Provider {
	case ProviderOllama:
		return NewOllama(cfg.BaseURL, nil), nil
	case ProviderOllamaCLI:
		return NewOllamaCLI(cfg.Binary), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}
