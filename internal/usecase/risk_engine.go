package usecase

import (
	"context"
	"fmt"
	"time"

	"RiskGraph/internal/domain/models"
	"RiskGraph/internal/domain/repository"
	"RiskGraph/internal/domain/service"
	"RiskGraph/internal/graph"
	"RiskGraph/internal/services/portfolio"
	"RiskGraph/internal/services/riskengine"
	"RiskGraph/internal/services/snapshot"
	applogger "RiskGraph/pkg/logger"
)

// RiskEngineConfig carries the engine defaults.
type RiskEngineConfig struct {
	MaxIterations          int
	NormalizeMaxScore      float64
	ConcentrationThreshold float64
	TopNCritical           int
}

// RecomputeResult is the outcome of propagate + dollarize + normalize.
type RecomputeResult struct {
	Propagation   riskengine.PropagationResult
	Dollarization riskengine.DollarizationResult
	Normalized    int
}

// RiskEngine is the caller-facing engine. Every write operation loads the
// network, computes on the detached copy and saves the risk fields back.
type RiskEngine struct {
	store      repository.GraphStore
	propagator *riskengine.Propagator
	simulator  service.ScenarioSimulator
	metrics    repository.Metrics
	logger     *applogger.Logger
	cfg        RiskEngineConfig
	now        func() time.Time
}

func NewRiskEngine(
	store repository.GraphStore,
	propagator *riskengine.Propagator,
	simulator service.ScenarioSimulator,
	metrics repository.Metrics,
	logger *applogger.Logger,
	cfg RiskEngineConfig,
) *RiskEngine {
	if cfg.NormalizeMaxScore <= 0 {
		cfg.NormalizeMaxScore = 100
	}
	if cfg.ConcentrationThreshold <= 0 {
		cfg.ConcentrationThreshold = portfolio.DefaultConcentrationThreshold
	}
	if cfg.TopNCritical <= 0 {
		cfg.TopNCritical = portfolio.DefaultTopN
	}
	return &RiskEngine{
		store:      store,
		propagator: propagator,
		simulator:  simulator,
		metrics:    metrics,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// ComputeTotalRisk runs the propagation fixpoint and stores the result.
// Non-convergence is reported in the result, not as an error.
func (e *RiskEngine) ComputeTotalRisk(ctx context.Context, maxIterations int) (riskengine.PropagationResult, error) {
	var res riskengine.PropagationResult
	err := e.compute(ctx, "propagate", func(g *graph.Graph) error {
		var err error
		res, err = e.propagate(ctx, g, maxIterations)
		return err
	})
	return res, err
}

// DollarizeRisk converts the stored total risk into dollar exposure.
func (e *RiskEngine) DollarizeRisk(ctx context.Context) (riskengine.DollarizationResult, error) {
	var res riskengine.DollarizationResult
	err := e.compute(ctx, "dollarize", func(g *graph.Graph) error {
		var err error
		res, err = e.dollarize(ctx, g)
		return err
	})
	return res, err
}

// NormalizeRisk rescales total risk to [0, maxScore]. A non-positive
// maxScore uses the configured scale.
func (e *RiskEngine) NormalizeRisk(ctx context.Context, maxScore float64) (int, error) {
	if maxScore <= 0 {
		maxScore = e.cfg.NormalizeMaxScore
	}
	var n int
	err := e.compute(ctx, "normalize", func(g *graph.Graph) error {
		n = riskengine.Normalize(g, maxScore)
		return nil
	})
	return n, err
}

// Recompute runs propagation, dollarization and normalization on one load
// and saves once.
func (e *RiskEngine) Recompute(ctx context.Context, maxIterations int) (RecomputeResult, error) {
	var res RecomputeResult
	err := e.compute(ctx, "recompute", func(g *graph.Graph) error {
		var err error
		if res.Propagation, err = e.propagate(ctx, g, maxIterations); err != nil {
			return err
		}
		if res.Dollarization, err = e.dollarize(ctx, g); err != nil {
			return err
		}
		res.Normalized = riskengine.Normalize(g, e.cfg.NormalizeMaxScore)
		return nil
	})
	return res, err
}

func (e *RiskEngine) propagate(ctx context.Context, g *graph.Graph, maxIterations int) (riskengine.PropagationResult, error) {
	if maxIterations <= 0 {
		maxIterations = e.cfg.MaxIterations
	}
	res, err := e.propagator.Propagate(ctx, g, maxIterations)
	if err != nil {
		return res, fmt.Errorf("propagate risk: %w", err)
	}
	e.metrics.RecordPropagation(res.Iterations, res.Converged, res.Duration.Seconds())
	return res, nil
}

func (e *RiskEngine) dollarize(ctx context.Context, g *graph.Graph) (riskengine.DollarizationResult, error) {
	res, err := riskengine.Dollarize(ctx, g)
	if err != nil {
		return res, fmt.Errorf("dollarize risk: %w", err)
	}
	e.metrics.RecordPortfolioRisk(res.PortfolioTotal)
	return res, nil
}

// compute loads, applies fn and saves the risk fields when fn succeeds.
func (e *RiskEngine) compute(ctx context.Context, op string, fn func(g *graph.Graph) error) error {
	start := time.Now()
	defer func() { e.metrics.RecordLatency(op, time.Since(start).Seconds()) }()

	g, err := e.store.Load(ctx)
	if err != nil {
		e.metrics.RecordError("load")
		return fmt.Errorf("load graph: %w", err)
	}
	if err := fn(g); err != nil {
		e.metrics.RecordError(op)
		return err
	}
	if err := e.store.SaveRisk(ctx, g); err != nil {
		e.metrics.RecordError("save")
		return fmt.Errorf("save risk: %w", err)
	}
	return nil
}

// SimulateAcquisition applies the acquisition without recomputing risk.
func (e *RiskEngine) SimulateAcquisition(ctx context.Context, p models.AcquisitionParams) (bool, error) {
	var applied bool
	err := e.store.Mutate(ctx, func(ctx context.Context, tx repository.GraphTx) error {
		var err error
		applied, err = e.simulator.Acquisition(ctx, tx, p)
		return err
	})
	return applied, err
}

// SimulateDivestiture removes one ownership edge without recomputing risk.
func (e *RiskEngine) SimulateDivestiture(ctx context.Context, p models.DivestitureParams) (bool, error) {
	var applied bool
	err := e.store.Mutate(ctx, func(ctx context.Context, tx repository.GraphTx) error {
		var err error
		applied, err = e.simulator.Divestiture(ctx, tx, p)
		return err
	})
	return applied, err
}

// SimulateRiskEvent scales exposure weights without recomputing risk.
func (e *RiskEngine) SimulateRiskEvent(ctx context.Context, p models.RiskEventParams) (int, error) {
	var n int
	err := e.store.Mutate(ctx, func(ctx context.Context, tx repository.GraphTx) error {
		var err error
		n, err = e.simulator.RiskEvent(ctx, tx, p)
		return err
	})
	return n, err
}

// Snapshot projects the stored companies.
func (e *RiskEngine) Snapshot(ctx context.Context) (models.Snapshot, error) {
	g, err := e.store.Load(ctx)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("load graph: %w", err)
	}
	return snapshot.Project(g, e.now()), nil
}

// ExportSnapshot writes the current snapshot to path.
func (e *RiskEngine) ExportSnapshot(ctx context.Context, path string) (models.Snapshot, error) {
	snap, err := e.Snapshot(ctx)
	if err != nil {
		return snap, err
	}
	if err := snapshot.Write(path, snap); err != nil {
		return snap, err
	}
	e.logger.Info("snapshot exported", applogger.String("path", path), applogger.Int("companies", len(snap.Records)))
	return snap, nil
}

// GenerateDiff compares two snapshot files.
func (e *RiskEngine) GenerateDiff(beforePath, afterPath string, opts snapshot.DiffOptions) (models.DiffReport, error) {
	report, err := snapshot.DiffFiles(beforePath, afterPath, opts)
	if err != nil {
		e.metrics.RecordError("diff")
		return report, err
	}
	return report, nil
}

// ComputeSectorConcentration flags sectors above threshold. A negative
// threshold uses the configured one.
func (e *RiskEngine) ComputeSectorConcentration(ctx context.Context, threshold float64) (models.SectorConcentration, error) {
	if threshold < 0 {
		threshold = e.cfg.ConcentrationThreshold
	}
	g, err := e.store.Load(ctx)
	if err != nil {
		return models.SectorConcentration{}, fmt.Errorf("load graph: %w", err)
	}
	return portfolio.SectorConcentration(g, threshold), nil
}

func (e *RiskEngine) GetCriticalNodesByDegree(ctx context.Context, topN int) ([]models.CriticalNode, error) {
	if topN <= 0 {
		topN = e.cfg.TopNCritical
	}
	g, err := e.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}
	return portfolio.CriticalNodesByDegree(g, topN), nil
}

func (e *RiskEngine) TopRisks(ctx context.Context, kind models.NodeKind, n int) ([]models.RankedRisk, error) {
	g, err := e.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}
	return portfolio.TopRisks(g, kind, n), nil
}

func (e *RiskEngine) RiskFactorExposure(ctx context.Context, n int) ([]models.RankedRisk, error) {
	g, err := e.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}
	return portfolio.RiskFactorExposure(g, n), nil
}

func (e *RiskEngine) Catalog(ctx context.Context) (models.Catalog, error) {
	g, err := e.store.Load(ctx)
	if err != nil {
		return models.Catalog{}, fmt.Errorf("load graph: %w", err)
	}
	return portfolio.Catalog(g), nil
}

func (e *RiskEngine) Neighborhood(ctx context.Context, kind models.NodeKind, id string, depth int) (models.Neighborhood, error) {
	g, err := e.store.Load(ctx)
	if err != nil {
		return models.Neighborhood{}, fmt.Errorf("load graph: %w", err)
	}
	return portfolio.Neighborhood(g, kind, id, depth)
}

// ExportRiskScores writes every company and blockholder ranked by
// dollarized risk as CSV.
func (e *RiskEngine) ExportRiskScores(ctx context.Context, path string) ([]models.RankedRisk, error) {
	g, err := e.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load graph: %w", err)
	}
	scores := portfolio.RiskScores(g)
	if err := snapshot.WriteRiskScoresCSV(path, scores); err != nil {
		return nil, err
	}
	e.logger.Info("risk scores exported", applogger.String("path", path), applogger.Int("rows", len(scores)))
	return scores, nil
}

func (e *RiskEngine) Health(ctx context.Context) error {
	return e.store.Health(ctx)
}
