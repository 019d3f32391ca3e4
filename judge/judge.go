// Package judge asks the completion engine whether a negotiation has
// concluded. Its verdict is advisory: anything other than a clear "yes",
// including a failed call, means the negotiation continues.
package judge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tailored-agentic-units/parley/agent"
	"github.com/tailored-agentic-units/parley/core/protocol"
	"github.com/tailored-agentic-units/parley/transcript"
)

const question = "Based on the following dialogue, has the negotiation concluded? " +
	"Answer with 'yes' or 'no' only, do not write any extra response."

// Prompt renders the classification prompt for t.
func Prompt(t []protocol.Utterance) string {
	return fmt.Sprintf("%s\n\nDialogue: %s\n\nHas the negotiation concluded?", question, transcript.Render(t))
}

// IsClassification reports whether prompt was produced by Prompt. The
// orchestrator sends turn and classification prompts through the same
// Agent; this lets a test double or a routing Agent tell them apart.
func IsClassification(prompt string) bool {
	return strings.HasPrefix(prompt, question)
}

// Parse interprets an engine answer. Only an answer containing "yes"
// (case-insensitive) counts as concluded.
func Parse(answer string) bool {
	return strings.Contains(strings.ToLower(answer), "yes")
}

// Judge classifies transcripts with one engine call each.
type Judge struct {
	agent   agent.Agent
	timeout time.Duration
}

// New creates a Judge. A positive timeout bounds every engine call.
func New(a agent.Agent, timeout time.Duration) *Judge {
	return &Judge{agent: a, timeout: timeout}
}

// HasConcluded reports whether the negotiation in t has concluded. When the
// engine call fails it returns false together with the failure, which
// callers may log but must not act on.
func (j *Judge) HasConcluded(ctx context.Context, t []protocol.Utterance, model string) (bool, error) {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	answer, err := j.agent.Complete(ctx, Prompt(t), model)
	if err != nil {
		return false, fmt.Errorf("classification failed: %w", err)
	}
	return Parse(answer), nil
}
