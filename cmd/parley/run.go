package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/parley/negotiation"
	"github.com/tailored-agentic-units/parley/scenario"
	"github.com/tailored-agentic-units/parley/server"
	"github.com/tailored-agentic-units/parley/transcript"
)

type runner interface {
	Run(ctx context.Context, req negotiation.Request) (*negotiation.Result, error)
}

func newRunCommand(a *app) *cobra.Command {
	var (
		items    []string
		model    string
		name     string
		remote   string
		parallel int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run autonomous negotiations, one per item",
		Example: `  parley run --item "vintage watch"
  parley run --item compass --item sextant --parallel 2 --model mistral`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(items) == 0 {
				return errors.New("at least one --item is required")
			}
			if parallel < 1 {
				return fmt.Errorf("--parallel must be positive, got %d", parallel)
			}

			var r runner
			if remote != "" {
				r = server.NewClient(http.DefaultClient, remote)
			} else {
				o, err := a.orchestrator(model, &progress{w: cmd.ErrOrStderr(), total: len(items)})
				if err != nil {
					return err
				}
				r = o
			}

			results, err := runAll(cmd.Context(), r, items, model, name, parallel)
			out := cmd.OutOrStdout()
			for i, res := range results {
				if res == nil {
					continue
				}
				if i > 0 {
					fmt.Fprintln(out)
				}
				printResult(out, res)
			}
			return err
		},
	}

	cmd.Flags().StringArrayVarP(&items, "item", "i", nil, "item to negotiate (repeatable)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "engine model (defaults to config default_model)")
	cmd.Flags().StringVar(&name, "scenario", "", "scenario name (defaults to "+scenario.DefaultName+")")
	cmd.Flags().StringVar(&remote, "remote", "", "base URL of a parley server to run against")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 1, "negotiations to run concurrently")
	return cmd
}

// runAll runs one negotiation per item on a bounded pool. Results keep the
// order of items; a failed item leaves a nil slot and its error is joined
// into the returned error.
func runAll(ctx context.Context, r runner, items []string, model, name string, parallel int) ([]*negotiation.Result, error) {
	results := make([]*negotiation.Result, len(items))

	p := pool.New().WithContext(ctx).WithMaxGoroutines(parallel)
	for i, item := range items {
		p.Go(func(ctx context.Context) error {
			metadata := map[string]string{transcript.SubjectItem: item}
			if name != "" {
				metadata[scenario.MetadataKey] = name
			}

			res, err := r.Run(ctx, negotiation.Request{Metadata: metadata, Model: model})
			if err != nil {
				return fmt.Errorf("%s: %w", item, err)
			}
			results[i] = res
			return nil
		})
	}

	return results, p.Wait()
}
