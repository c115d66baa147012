// Package scenario implements the what-if operators over a graph transaction.
package scenario

import (
	"context"
	"fmt"
	"math"
	"time"

	"RiskGraph/internal/domain/models"
	"RiskGraph/internal/domain/repository"
	applogger "RiskGraph/pkg/logger"
)

type Simulator struct {
	logger *applogger.Logger
	now    func() time.Time
}

type Option func(*Simulator)

// WithClock overrides the clock used to stamp the ownership year.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

func NewSimulator(logger *applogger.Logger, opts ...Option) *Simulator {
	s := &Simulator{logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Acquisition replaces every owner of the target with the acquirer. It
// returns false when either company is missing.
func (s *Simulator) Acquisition(ctx context.Context, tx repository.GraphTx, p models.AcquisitionParams) (bool, error) {
	if p.AcquirerID == "" || p.TargetID == "" {
		return false, fmt.Errorf("%w: acquirer and target are required", models.ErrInvalidScenario)
	}
	if p.AcquirerID == p.TargetID {
		return false, fmt.Errorf("%w: company %q cannot acquire itself", models.ErrInvalidScenario, p.TargetID)
	}
	if math.IsNaN(p.Percent) || p.Percent < 0 || p.Percent > 1 {
		return false, fmt.Errorf("%w: percent %v outside [0,1]", models.ErrInvalidScenario, p.Percent)
	}

	for _, id := range []string{p.AcquirerID, p.TargetID} {
		ok, err := tx.CompanyExists(ctx, id)
		if err != nil {
			return false, fmt.Errorf("lookup company %s: %w", id, err)
		}
		if !ok {
			s.logger.Warn("acquisition skipped: company not found",
				applogger.String("company_id", id),
				applogger.Error(models.ErrNotFound),
			)
			return false, nil
		}
	}

	removed, err := tx.DeleteOwnersOf(ctx, p.TargetID)
	if err != nil {
		return false, fmt.Errorf("delete owners of %s: %w", p.TargetID, err)
	}
	if err := tx.MergeOwnership(ctx, models.KindCompany, p.AcquirerID, p.TargetID, p.Percent, s.now().Year()); err != nil {
		return false, fmt.Errorf("merge ownership %s->%s: %w", p.AcquirerID, p.TargetID, err)
	}
	if err := tx.SetCompanyRole(ctx, p.TargetID, models.RoleAcquired); err != nil {
		return false, fmt.Errorf("set role of %s: %w", p.TargetID, err)
	}

	s.logger.Info("acquisition applied",
		applogger.String("acquirer_id", p.AcquirerID),
		applogger.String("target_id", p.TargetID),
		applogger.Float64("percent", p.Percent),
		applogger.Int("replaced_owners", removed),
	)
	return true, nil
}

// Divestiture removes owner→target. When the target is left without owners
// its role goes back to company.
func (s *Simulator) Divestiture(ctx context.Context, tx repository.GraphTx, p models.DivestitureParams) (bool, error) {
	kind := p.OwnerKind
	if kind == "" {
		kind = models.KindCompany
	}
	if !kind.IsOwner() {
		return false, fmt.Errorf("%w: owner kind %q", models.ErrInvalidScenario, kind)
	}
	if p.OwnerID == "" || p.TargetID == "" {
		return false, fmt.Errorf("%w: owner and target are required", models.ErrInvalidScenario)
	}

	deleted, err := tx.DeleteOwnership(ctx, kind, p.OwnerID, p.TargetID)
	if err != nil {
		return false, fmt.Errorf("delete ownership %s->%s: %w", p.OwnerID, p.TargetID, err)
	}
	if !deleted {
		s.logger.Warn("divestiture skipped: ownership not found",
			applogger.String("owner_kind", string(kind)),
			applogger.String("owner_id", p.OwnerID),
			applogger.String("target_id", p.TargetID),
		)
		return false, nil
	}

	remaining, err := tx.CountOwners(ctx, p.TargetID)
	if err != nil {
		return false, fmt.Errorf("count owners of %s: %w", p.TargetID, err)
	}
	if remaining == 0 {
		if err := tx.SetCompanyRole(ctx, p.TargetID, models.RoleCompany); err != nil {
			return false, fmt.Errorf("reset role of %s: %w", p.TargetID, err)
		}
	}

	s.logger.Info("divestiture applied",
		applogger.String("owner_id", p.OwnerID),
		applogger.String("target_id", p.TargetID),
		applogger.Int("remaining_owners", remaining),
	)
	return true, nil
}

// RiskEvent scales matching exposure weights and clamps them to [0,1]. The
// returned count is 0 when nothing matched.
func (s *Simulator) RiskEvent(ctx context.Context, tx repository.GraphTx, p models.RiskEventParams) (int, error) {
	if p.Factor == "" {
		return 0, fmt.Errorf("%w: risk factor is required", models.ErrInvalidScenario)
	}
	if math.IsNaN(p.Multiplier) || math.IsInf(p.Multiplier, 0) {
		return 0, fmt.Errorf("%w: multiplier must be finite", models.ErrInvalidScenario)
	}
	scope, err := p.ResolveScope()
	if err != nil {
		return 0, err
	}
	filter := p.Filter
	if scope == models.ScopeAll {
		filter = models.ExposureFilter{}
	}

	matches, err := tx.FindExposures(ctx, p.Factor, filter)
	if err != nil {
		return 0, fmt.Errorf("find exposures to %s: %w", p.Factor, err)
	}
	if len(matches) == 0 {
		s.logger.Warn("risk event matched no exposure",
			applogger.String("factor", p.Factor),
			applogger.String("scope", string(scope)),
		)
		return 0, nil
	}

	for i := range matches {
		matches[i].Weight = Clamp01(matches[i].Weight * p.Multiplier)
	}
	updated, err := tx.UpdateExposureWeights(ctx, p.Factor, matches)
	if err != nil {
		return 0, fmt.Errorf("update exposures to %s: %w", p.Factor, err)
	}

	s.logger.Info("risk event applied",
		applogger.String("factor", p.Factor),
		applogger.Float64("multiplier", p.Multiplier),
		applogger.String("scope", string(scope)),
		applogger.Int("updated", updated),
	)
	return updated, nil
}

func Clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
