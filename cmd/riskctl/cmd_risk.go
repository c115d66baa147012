package main

import (
	"github.com/spf13/cobra"

	"RiskGraph/internal/domain/models"
	"RiskGraph/internal/services/riskengine"
	"RiskGraph/internal/services/snapshot"
)

type dollarizeOutput struct {
	Companies      int     `json:"companies"`
	Blockholders   int     `json:"blockholders"`
	RiskFactors    int     `json:"risk_factors"`
	PortfolioTotal float64 `json:"portfolio_total"`
}

func toDollarizeOutput(r riskengine.DollarizationResult) dollarizeOutput {
	return dollarizeOutput{
		Companies:      r.Companies,
		Blockholders:   r.Blockholders,
		RiskFactors:    r.RiskFactors,
		PortfolioTotal: r.PortfolioTotal,
	}
}

func newRecomputeCmd(opts *rootOptions) *cobra.Command {
	var maxIterations int
	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Propagate, dollarize and normalize in one pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.cli.Runner.Recompute(cmd.Context(), maxIterations)
			if err != nil {
				return err
			}
			return printJSON(cmd, struct {
				Propagation   *models.PropagationSummary `json:"propagation"`
				Dollarization dollarizeOutput            `json:"dollarization"`
				Normalized    int                        `json:"normalized"`
			}{res.Propagation.Summary(), toDollarizeOutput(res.Dollarization), res.Normalized})
		},
	}
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "propagation round limit (0 uses the configured value)")
	return cmd
}

func newPropagateCmd(opts *rootOptions) *cobra.Command {
	var maxIterations int
	cmd := &cobra.Command{
		Use:   "propagate",
		Short: "Recompute total risk through the ownership network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.cli.Runner.ComputeTotalRisk(cmd.Context(), maxIterations)
			if err != nil {
				return err
			}
			return printJSON(cmd, res.Summary())
		},
	}
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "propagation round limit (0 uses the configured value)")
	return cmd
}

func newDollarizeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dollarize",
		Short: "Convert total risk into dollar amounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.cli.Runner.DollarizeRisk(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, toDollarizeOutput(res))
		},
	}
}

func newNormalizeCmd(opts *rootOptions) *cobra.Command {
	var maxScore float64
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Scale dollarized company risk onto [0, max-score]",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := opts.cli.Runner.NormalizeRisk(cmd.Context(), maxScore)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]int{"normalized": n})
		},
	}
	cmd.Flags().Float64Var(&maxScore, "max-score", 100, "upper bound of the normalized scale")
	return cmd
}

func newSnapshotCmd(opts *rootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Capture dollarized company risk",
		Long:  "Prints the snapshot, or writes it to --out as JSON.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				snap, err := opts.cli.Engine.Snapshot(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd, snap)
			}
			snap, err := opts.cli.Engine.ExportSnapshot(cmd.Context(), out)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{"path": out, "companies": len(snap.Records)})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the snapshot to this file")
	return cmd
}

func newDiffCmd() *cobra.Command {
	var (
		out           string
		reportRemoved bool
	)
	cmd := &cobra.Command{
		Use:         "diff <before.json> <after.json>",
		Short:       "Compare two snapshot files",
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{standaloneAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := snapshot.DiffFiles(args[0], args[1], snapshot.DiffOptions{ReportRemoved: reportRemoved})
			if err != nil {
				return err
			}
			if out != "" {
				if err := snapshot.WriteDiffCSV(out, report); err != nil {
					return err
				}
			}
			return printJSON(cmd, report)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "also write the report as CSV")
	cmd.Flags().BoolVar(&reportRemoved, "report-removed", false, "list companies missing from the after snapshot")
	return cmd
}

func newExportScoresCmd(opts *rootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export-scores",
		Short: "Write companies and blockholders ranked by dollarized risk as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scores, err := opts.cli.Engine.ExportRiskScores(cmd.Context(), out)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]interface{}{"path": out, "rows": len(scores)})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "risk_scores.csv", "destination CSV file")
	return cmd
}
