// Package turn generates the next utterance of a negotiation: it cues the
// completion engine with the transcript and a speaker label, then sanitizes
// the raw completion into clean dialogue text.
package turn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tailored-agentic-units/parley/agent"
	"github.com/tailored-agentic-units/parley/core/protocol"
	"github.com/tailored-agentic-units/parley/transcript"
)

// Generation failures. ErrEmptyGeneration is recoverable: the engine
// answered but produced no dialogue.
var (
	ErrGeneration        = errors.New("generation failed")
	ErrGenerationTimeout = errors.New("generation timed out")
	ErrEmptyGeneration   = errors.New("empty generation")
)

// Engine produces turns with a single completion call each. It never
// retries; retry policy belongs to the caller.
type Engine struct {
	agent   agent.Agent
	timeout time.Duration
}

// New creates an Engine. A positive timeout bounds every engine call.
func New(a agent.Agent, timeout time.Duration) *Engine {
	return &Engine{agent: a, timeout: timeout}
}

// Next generates the utterance text for speaker following t. The caller
// appends the result under speaker's label.
func (e *Engine) Next(ctx context.Context, t []protocol.Utterance, speaker, model string) (string, error) {
	prompt := transcript.Cue(t, speaker)

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	raw, err := e.agent.Complete(callCtx, prompt, model)
	if err != nil {
		if errors.Is(err, agent.ErrEngineTimeout) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s: %w", ErrGenerationTimeout, speaker, err)
		}
		return "", fmt.Errorf("%w: %s: %w", ErrGeneration, speaker, err)
	}

	text := Sanitize(raw, speaker)
	if text == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyGeneration, speaker)
	}

	return text, nil
}
