package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"RiskGraph/internal/di"
	"RiskGraph/pkg/config"
)

// standaloneAnnotation marks commands that work on files only and never open
// the graph backend.
const standaloneAnnotation = "riskctl/standalone"

// rootOptions carries the persistent flags and the wiring built from them.
type rootOptions struct {
	configPath string
	seedFile   string
	backend    string

	cli *di.CLI
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "riskctl",
		Short:         "Operate the risk propagation and scenario engine",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[standaloneAnnotation] == "true" {
				return nil
			}
			return opts.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.cli == nil {
				return nil
			}
			err := opts.cli.Close()
			opts.cli = nil
			return err
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config/config.yaml", "path to the YAML configuration")
	root.PersistentFlags().StringVar(&opts.seedFile, "seed", "", "seed fixture for the memory backend (overrides graph.seed_file)")
	root.PersistentFlags().StringVar(&opts.backend, "backend", "", "graph backend: memory or memgraph (overrides graph.backend)")

	root.AddCommand(
		newRecomputeCmd(opts),
		newPropagateCmd(opts),
		newDollarizeCmd(opts),
		newNormalizeCmd(opts),
		newSnapshotCmd(opts),
		newDiffCmd(),
		newExportScoresCmd(opts),
		newScenarioCmd(opts),
		newAnalyticsCmd(opts),
		newNeighborhoodCmd(opts),
		newImportSeedCmd(opts),
		newQueueStatsCmd(opts),
	)
	return root
}

func (o *rootOptions) init(cmd *cobra.Command) error {
	cfg, err := config.LoadWithEnv(o.configPath)
	if err != nil {
		return err
	}
	if o.seedFile != "" {
		cfg.Graph.SeedFile = o.seedFile
	}
	if o.backend != "" {
		cfg.Graph.Backend = o.backend
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	// stdout is reserved for command output
	if cfg.Log.Output == "stdout" {
		cfg.Log.Output = "stderr"
	}

	cli, err := di.InitializeCLI(cfg)
	if err != nil {
		return err
	}
	o.cli = cli

	// the memory store starts from the fixture on every invocation
	if cfg.Graph.Backend == "memory" && cfg.Risk.RecomputeOnStart {
		if _, err := cli.Engine.Recompute(cmd.Context(), 0); err != nil {
			_ = cli.Close()
			o.cli = nil
			return fmt.Errorf("initial recompute: %w", err)
		}
	}
	return nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
