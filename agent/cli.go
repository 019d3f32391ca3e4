package agent

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

type cliAgent struct {
	binary string
}

// NewOllamaCLI creates an Agent that runs `<binary> run <model>` with the
// prompt on stdin and returns the decoded stdout.
func NewOllamaCLI(binary string) Agent {
	if binary == "" {
		binary = defaultBinary
	}
	return &cliAgent{binary: binary}
}

func (a *cliAgent) Complete(ctx context.Context, prompt, model string) (string, error) {
	cmd := exec.CommandContext(ctx, a.binary, "run", model)
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", classify(ctx, ctx.Err())
		}
		msg := strings.TrimSpace(Decode(stderr.Bytes()))
		return "", fmt.Errorf("%w: %s: %v: %s", ErrEngineUnavailable, a.binary, err, msg)
	}

	return strings.TrimSpace(Decode(stdout.Bytes())), nil
}
