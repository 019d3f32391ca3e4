package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/parley/scenario"
)

func newScenariosCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List available negotiation scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store := scenario.NewStore(&a.cfg.Scenario)

			names, err := store.List(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, name := range names {
				sc, err := store.Load(cmd.Context(), name)
				if err != nil {
					return err
				}
				line := styles.header.Render(name)
				if name == scenario.DefaultName {
					line += styles.muted.Render(" (default)")
				}
				fmt.Fprintln(out, line)
				for _, p := range sc.Participants {
					fmt.Fprintln(out, styles.text.Render(p.Name))
				}
			}
			return nil
		},
	}
}
