package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/parley/negotiation"
	"github.com/tailored-agentic-units/parley/observability"
)

// app carries state shared by subcommands once the root pre-run has loaded
// configuration.
type app struct {
	configFile string
	verbose    bool

	cfg    *negotiation.Config
	logger *slog.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "parley",
		Short: "Simulated two-party negotiations driven by a completion engine",
		Long: `parley plays both sides of a negotiation against a completion engine,
asks the engine after each turn whether the deal is done, and stops on a
conclusion, an empty reply, or the step budget. It can also let you take
the buyer's side interactively or serve sessions over Connect RPC.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}

	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "config file (JSON, YAML, or TOML)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging to stderr")

	root.AddCommand(
		newServeCommand(a),
		newRunCommand(a),
		newChatCommand(a),
		newScenariosCommand(a),
	)
	return root
}

func (a *app) init() error {
	level := slog.LevelInfo
	if a.verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := negotiation.LoadConfig(a.configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg
	return nil
}

// orchestrator builds an in-process orchestrator that logs through the
// app's logger and forwards events to any extra observers.
func (a *app) orchestrator(model string, extra ...observability.Observer) (*negotiation.Orchestrator, error) {
	cfg := *a.cfg
	if model != "" {
		cfg.DefaultModel = model
	}
	obs := observability.NewMultiObserver(append([]observability.Observer{observability.NewSlogObserver(a.logger)}, extra...)...)
	return negotiation.New(&cfg, negotiation.WithObserver(obs))
}
