package service

import (
	"context"

	"RiskGraph/internal/domain/models"
	"RiskGraph/internal/domain/repository"
)

// ScenarioSimulator applies structural mutations through a store transaction.
// It never recomputes risk.
type ScenarioSimulator interface {
	Acquisition(ctx context.Context, tx repository.GraphTx, p models.AcquisitionParams) (bool, error)
	Divestiture(ctx context.Context, tx repository.GraphTx, p models.DivestitureParams) (bool, error)
	RiskEvent(ctx context.Context, tx repository.GraphTx, p models.RiskEventParams) (int, error)
}
