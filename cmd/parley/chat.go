package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/parley/core/protocol"
	"github.com/tailored-agentic-units/parley/negotiation"
	"github.com/tailored-agentic-units/parley/scenario"
	"github.com/tailored-agentic-units/parley/server"
	"github.com/tailored-agentic-units/parley/transcript"
)

// chatter is the interactive session surface shared by the in-process
// orchestrator and the remote client.
type chatter interface {
	Start(ctx context.Context, req negotiation.Request) (string, error)
	Continue(ctx context.Context, id, message string) (*negotiation.Reply, error)
	Get(ctx context.Context, id string) ([]protocol.Utterance, protocol.Status, error)
}

type localChat struct {
	*negotiation.Orchestrator
}

func (l localChat) Get(_ context.Context, id string) ([]protocol.Utterance, protocol.Status, error) {
	sess, err := l.Orchestrator.Get(id)
	if err != nil {
		return nil, "", err
	}
	return sess.Transcript, sess.Status, nil
}

func newChatCommand(a *app) *cobra.Command {
	var (
		item   string
		model  string
		name   string
		remote string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Negotiate interactively as the opening party",
		Long: `chat starts an interactive session. Each line you type is sent as the
opening party's message and the engine answers for the counterpart.
The session ends when the engine judges it concluded, on an empty reply,
or at end of input.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if item == "" {
				return errors.New("--item is required")
			}

			var c chatter
			if remote != "" {
				c = server.NewClient(http.DefaultClient, remote)
			} else {
				o, err := a.orchestrator(model)
				if err != nil {
					return err
				}
				c = localChat{o}
			}

			metadata := map[string]string{transcript.SubjectItem: item}
			if name != "" {
				metadata[scenario.MetadataKey] = name
			}
			return chat(cmd.Context(), c, negotiation.Request{Metadata: metadata, Model: model},
				cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&item, "item", "i", "", "item to negotiate")
	cmd.Flags().StringVarP(&model, "model", "m", "", "engine model (defaults to config default_model)")
	cmd.Flags().StringVar(&name, "scenario", "", "scenario name (defaults to "+scenario.DefaultName+")")
	cmd.Flags().StringVar(&remote, "remote", "", "base URL of a parley server to chat through")
	return cmd
}

func chat(ctx context.Context, c chatter, req negotiation.Request, in io.Reader, out io.Writer) error {
	id, err := c.Start(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, styles.muted.Render("session "+id+" started; end input to leave"))

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, styles.prompt.Render("> "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		reply, err := c.Continue(ctx, id, line)
		if err != nil {
			return err
		}

		t, status, err := c.Get(ctx, id)
		if err != nil {
			return err
		}
		if last := t[len(t)-1]; reply.Text != "" && !last.IsSetup() {
			printUtterance(out, last, 1)
		}

		if status.IsTerminal() {
			printStatus(out, status, "")
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	fmt.Fprintln(out)
	return nil
}
