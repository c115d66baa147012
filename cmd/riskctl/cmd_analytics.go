package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"RiskGraph/internal/domain/models"
)

func newAnalyticsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Read-only aggregates over the current network",
	}

	var threshold float64
	sectors := &cobra.Command{
		Use:   "sectors",
		Short: "Share of dollarized risk per sector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.cli.Analytics.SectorConcentration(cmd.Context(), threshold)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	sectors.Flags().Float64Var(&threshold, "threshold", -1, "flag sectors above this share (negative uses the configured value)")

	var topN int
	critical := &cobra.Command{
		Use:   "critical",
		Short: "Companies and blockholders with the most ownership edges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.cli.Analytics.CriticalNodes(cmd.Context(), topN)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	critical.Flags().IntVar(&topN, "top", 0, "result size (0 uses the configured value)")

	var (
		kind string
		n    int
	)
	top := &cobra.Command{
		Use:   "top",
		Short: "Highest dollarized risk by node kind",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, ok := models.ParseOwnerKind(kind)
			if !ok {
				return fmt.Errorf("%w: unknown kind %q", models.ErrInvalidScenario, kind)
			}
			res, err := opts.cli.Analytics.TopRisks(cmd.Context(), k, n)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	top.Flags().StringVar(&kind, "kind", "company", "company or blockholder")
	top.Flags().IntVarP(&n, "n", "n", 10, "result size")

	var factorN int
	factors := &cobra.Command{
		Use:   "factors",
		Short: "Risk factors ranked by dollarized exposure",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.cli.Analytics.RiskFactorExposure(cmd.Context(), factorN)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	factors.Flags().IntVarP(&factorN, "n", "n", 15, "result size")

	catalog := &cobra.Command{
		Use:   "catalog",
		Short: "Ids and names usable as scenario operands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.cli.Analytics.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}

	cmd.AddCommand(sectors, critical, top, factors, catalog)
	return cmd
}

func newNeighborhoodCmd(opts *rootOptions) *cobra.Command {
	var (
		kind  string
		depth int
	)
	cmd := &cobra.Command{
		Use:   "neighborhood <id>",
		Short: "Ownership and exposure edges around one company or blockholder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, ok := models.ParseOwnerKind(kind)
			if !ok {
				return fmt.Errorf("unknown kind %q", kind)
			}
			res, err := opts.cli.Engine.Neighborhood(cmd.Context(), k, args[0], depth)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "company", "company or blockholder")
	cmd.Flags().IntVar(&depth, "depth", 0, "ownership hops to follow")
	return cmd
}

func newImportSeedCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import-seed <seed.json>",
		Short: "Load a JSON network fixture into Memgraph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.cli.Import(cmd.Context(), args[0]); err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{"imported": args[0]})
		},
	}
}

func newQueueStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "queue-stats",
		Short: "Depth of the Redis scenario queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return queueStats(cmd.Context(), cmd, opts)
		},
	}
}

func queueStats(ctx context.Context, cmd *cobra.Command, opts *rootOptions) error {
	if opts.cli.Queue == nil {
		return fmt.Errorf("redis queue is not enabled")
	}
	pending, retry, dead, err := opts.cli.Queue.Depth(ctx)
	if err != nil {
		return err
	}
	return printJSON(cmd, map[string]int64{"pending": pending, "retry": retry, "dead": dead})
}
