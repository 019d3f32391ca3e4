package main

import (
	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/parley/server"
)

func newServeCommand(a *app) *cobra.Command {
	cfg := server.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the negotiation session API over Connect RPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := a.orchestrator("")
			if err != nil {
				return err
			}
			return server.Serve(cmd.Context(), &cfg, o, a.logger)
		},
	}

	cmd.Flags().StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	return cmd
}
