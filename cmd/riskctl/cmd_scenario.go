package main

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"RiskGraph/internal/domain/models"
	applogger "RiskGraph/pkg/logger"
)

var validate = validator.New()

type scenarioFlags struct {
	reportRemoved bool
	enqueue       bool
}

func (f *scenarioFlags) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.reportRemoved, "report-removed", false, "list companies that disappear in the diff")
	cmd.Flags().BoolVar(&f.enqueue, "enqueue", false, "hand the request to the service through the Redis queue instead of running it here")
}

func newScenarioCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Run a what-if scenario through the pipeline",
		Long: "Each scenario snapshots the network, applies the mutation, recomputes risk,\n" +
			"snapshots again and writes the diff to the configured output directory.",
	}
	cmd.AddCommand(
		newAcquisitionCmd(opts),
		newDivestitureCmd(opts),
		newRiskEventCmd(opts),
	)
	return cmd
}

func newAcquisitionCmd(opts *rootOptions) *cobra.Command {
	var (
		req   models.AcquisitionRequest
		pct   float64
		flags scenarioFlags
	)
	cmd := &cobra.Command{
		Use:   "acquisition",
		Short: "Replace every owner of the target with the acquirer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Percent = &pct
			if err := validate.Struct(req); err != nil {
				return fmt.Errorf("%w: %v", models.ErrInvalidScenario, err)
			}
			p := req.Params()
			return opts.runScenario(cmd, flags, models.ScenarioRequest{
				Kind:          models.ScenarioAcquisition,
				Acquisition:   &p,
				ReportRemoved: flags.reportRemoved,
			})
		},
	}
	cmd.Flags().StringVar(&req.AcquirerID, "acquirer", "", "acquiring company id")
	cmd.Flags().StringVar(&req.TargetID, "target", "", "acquired company id")
	cmd.Flags().Float64Var(&pct, "percent", 0, "ownership fraction of the new edge, in [0,1]")
	_ = cmd.MarkFlagRequired("acquirer")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("percent")
	flags.bind(cmd)
	return cmd
}

func newDivestitureCmd(opts *rootOptions) *cobra.Command {
	var (
		req   models.DivestitureRequest
		flags scenarioFlags
	)
	cmd := &cobra.Command{
		Use:   "divestiture",
		Short: "Remove one ownership edge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validate.Struct(req); err != nil {
				return fmt.Errorf("%w: %v", models.ErrInvalidScenario, err)
			}
			p := req.Params()
			return opts.runScenario(cmd, flags, models.ScenarioRequest{
				Kind:          models.ScenarioDivestiture,
				Divestiture:   &p,
				ReportRemoved: flags.reportRemoved,
			})
		},
	}
	cmd.Flags().StringVar(&req.OwnerKind, "owner-kind", "company", "owner kind: company or blockholder")
	cmd.Flags().StringVar(&req.OwnerID, "owner", "", "owner id")
	cmd.Flags().StringVar(&req.TargetID, "target", "", "owned company id")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("target")
	flags.bind(cmd)
	return cmd
}

func newRiskEventCmd(opts *rootOptions) *cobra.Command {
	var (
		req        models.RiskEventRequest
		multiplier float64
		flags      scenarioFlags
	)
	cmd := &cobra.Command{
		Use:   "risk-event",
		Short: "Scale exposure weights to one risk factor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Multiplier = &multiplier
			if err := validate.Struct(req); err != nil {
				return fmt.Errorf("%w: %v", models.ErrInvalidScenario, err)
			}
			p := req.Params()
			return opts.runScenario(cmd, flags, models.ScenarioRequest{
				Kind:          models.ScenarioRiskEvent,
				RiskEvent:     &p,
				ReportRemoved: flags.reportRemoved,
			})
		},
	}
	cmd.Flags().StringVar(&req.Factor, "factor", "", "risk factor name")
	cmd.Flags().Float64Var(&multiplier, "multiplier", 1, "weight multiplier; results are clamped to [0, 1]")
	cmd.Flags().StringVar(&req.CompanyID, "company", "", "only exposures of this company")
	cmd.Flags().StringVar(&req.Sector, "sector", "", "only companies in this sector")
	cmd.Flags().StringVar(&req.Location, "location", "", "only companies at this location")
	cmd.Flags().StringVar(&req.Scope, "scope", "", "all or filtered; derived from the filters when empty")
	_ = cmd.MarkFlagRequired("factor")
	_ = cmd.MarkFlagRequired("multiplier")
	flags.bind(cmd)
	return cmd
}

func (o *rootOptions) runScenario(cmd *cobra.Command, flags scenarioFlags, req models.ScenarioRequest) error {
	if flags.enqueue {
		id, err := o.cli.Enqueue(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]string{"message_id": id, "scenario": req.Describe()})
	}

	out, err := o.cli.Runner.Run(cmd.Context(), req)
	if err != nil {
		return err
	}
	if out.Applied {
		if err := o.cli.Analytics.Invalidate(cmd.Context()); err != nil {
			o.cli.Logger.Warn("invalidate analytics cache", applogger.Error(err))
		}
	}
	return printJSON(cmd, out)
}
