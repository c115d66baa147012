package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"RiskGraph/internal/domain/models"
	"RiskGraph/internal/domain/repository"
	"RiskGraph/internal/services/riskengine"
	"RiskGraph/internal/services/snapshot"
	"RiskGraph/pkg/cache"
	applogger "RiskGraph/pkg/logger"
)

const (
	beforeSnapshotFile = "snapshot_before.json"
	afterSnapshotFile  = "snapshot_after.json"
	diffReportFile     = "diff_report.csv"
)

// AnalyticsCachePattern matches every cached analytics aggregate.
var AnalyticsCachePattern = cache.Pattern(analyticsKeyPrefix)

type ScenarioRunnerConfig struct {
	OutputDir     string
	LockKey       string
	LockTTL       time.Duration
	MaxIterations int
}

// ScenarioRunner executes the mutation pipeline:
// lock, snapshot, mutate, recompute, snapshot, diff, archive, publish.
type ScenarioRunner struct {
	engine    *RiskEngine
	store     repository.GraphStore
	locks     cache.Service
	archive   repository.SnapshotArchive
	publisher repository.OutcomePublisher
	metrics   repository.Metrics
	logger    *applogger.Logger
	cfg       ScenarioRunnerConfig
	validate  *validator.Validate
	newID     func() string
	now       func() time.Time
}

func NewScenarioRunner(
	engine *RiskEngine,
	store repository.GraphStore,
	locks cache.Service,
	archive repository.SnapshotArchive,
	publisher repository.OutcomePublisher,
	metrics repository.Metrics,
	logger *applogger.Logger,
	cfg ScenarioRunnerConfig,
) *ScenarioRunner {
	if cfg.OutputDir == "" {
		cfg.OutputDir = "output"
	}
	if cfg.LockKey == "" {
		cfg.LockKey = "scenario:pipeline"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	return &ScenarioRunner{
		engine:    engine,
		store:     store,
		locks:     locks,
		archive:   archive,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
		validate:  validator.New(),
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// Run executes one scenario end to end. An operand that does not exist is
// not an error: the outcome reports Applied=false and the graph is untouched.
func (r *ScenarioRunner) Run(ctx context.Context, req models.ScenarioRequest) (*models.ScenarioOutcome, error) {
	if err := r.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidScenario, err)
	}

	var out *models.ScenarioOutcome
	err := r.exclusive(ctx, func() error {
		var err error
		out, err = r.run(ctx, req)
		return err
	})
	return out, err
}

// Recompute runs propagation, dollarization and normalization under the
// pipeline lock.
func (r *ScenarioRunner) Recompute(ctx context.Context, maxIterations int) (RecomputeResult, error) {
	var res RecomputeResult
	err := r.exclusive(ctx, func() error {
		var err error
		res, err = r.engine.Recompute(ctx, maxIterations)
		return err
	})
	return res, err
}

func (r *ScenarioRunner) ComputeTotalRisk(ctx context.Context, maxIterations int) (riskengine.PropagationResult, error) {
	var res riskengine.PropagationResult
	err := r.exclusive(ctx, func() error {
		var err error
		res, err = r.engine.ComputeTotalRisk(ctx, maxIterations)
		return err
	})
	return res, err
}

func (r *ScenarioRunner) DollarizeRisk(ctx context.Context) (riskengine.DollarizationResult, error) {
	var res riskengine.DollarizationResult
	err := r.exclusive(ctx, func() error {
		var err error
		res, err = r.engine.DollarizeRisk(ctx)
		return err
	})
	return res, err
}

func (r *ScenarioRunner) NormalizeRisk(ctx context.Context, maxScore float64) (int, error) {
	var n int
	err := r.exclusive(ctx, func() error {
		var err error
		n, err = r.engine.NormalizeRisk(ctx, maxScore)
		return err
	})
	return n, err
}

// exclusive runs fn while holding the pipeline lock. Every caller-facing
// write to the stored risk goes through it.
func (r *ScenarioRunner) exclusive(ctx context.Context, fn func() error) error {
	locked, err := r.locks.TryLock(ctx, r.cfg.LockKey, r.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("acquire pipeline lock: %w", err)
	}
	if !locked {
		return models.ErrPipelineBusy
	}
	defer func() {
		if err := r.locks.Unlock(context.Background(), r.cfg.LockKey); err != nil {
			r.logger.Warn("release pipeline lock", applogger.Error(err))
		}
	}()
	return fn()
}

func (r *ScenarioRunner) run(ctx context.Context, req models.ScenarioRequest) (*models.ScenarioOutcome, error) {
	out := &models.ScenarioOutcome{
		RunID:       r.newID(),
		Kind:        req.Kind,
		Description: req.Describe(),
		StartedAt:   r.now(),
	}
	log := r.logger.With(applogger.String("run_id", out.RunID), applogger.String("kind", string(req.Kind)))
	dir := filepath.Join(r.cfg.OutputDir, out.RunID)

	before, err := r.capture(ctx, out.RunID, "before", filepath.Join(dir, beforeSnapshotFile))
	if err != nil {
		r.metrics.RecordError("scenario")
		return nil, err
	}
	out.BeforePath = filepath.Join(dir, beforeSnapshotFile)

	if err := r.store.Mutate(ctx, func(ctx context.Context, tx repository.GraphTx) error {
		return r.apply(ctx, tx, req, out)
	}); err != nil {
		r.metrics.RecordError("scenario")
		return nil, fmt.Errorf("apply %s: %w", req.Kind, err)
	}
	r.metrics.RecordScenario(string(req.Kind), out.Applied)

	if !out.Applied {
		log.Warn("scenario not applied", applogger.String("scenario", out.Description))
		out.Diff = &models.DiffReport{}
		out.FinishedAt = r.now()
		r.publish(ctx, log, out)
		return out, nil
	}

	recomputed, err := r.engine.Recompute(ctx, r.cfg.MaxIterations)
	if err != nil {
		r.metrics.RecordError("scenario")
		return nil, fmt.Errorf("recompute after %s: %w", req.Kind, err)
	}
	out.Propagation = recomputed.Propagation.Summary()

	after, err := r.capture(ctx, out.RunID, "after", filepath.Join(dir, afterSnapshotFile))
	if err != nil {
		r.metrics.RecordError("scenario")
		return nil, err
	}
	out.AfterPath = filepath.Join(dir, afterSnapshotFile)

	report := snapshot.Diff(before.Records, after.Records, snapshot.DiffOptions{ReportRemoved: req.ReportRemoved})
	out.Diff = &report
	out.DiffPath = filepath.Join(dir, diffReportFile)
	if err := snapshot.WriteDiffCSV(out.DiffPath, report); err != nil {
		r.metrics.RecordError("scenario")
		return nil, err
	}
	if err := r.archive.StoreDiff(ctx, out.RunID, req.Kind, report); err != nil {
		log.Error("archive diff", applogger.Error(err))
	}

	if err := r.locks.DeleteByPattern(ctx, AnalyticsCachePattern); err != nil {
		log.Warn("invalidate analytics cache", applogger.Error(err))
	}

	out.FinishedAt = r.now()
	log.Info("scenario completed",
		applogger.String("scenario", out.Description),
		applogger.Int("updated_edges", out.UpdatedEdges),
		applogger.Int("changed_companies", len(report.Rows)),
		applogger.Int("iterations", out.Propagation.Iterations),
		applogger.Bool("converged", out.Propagation.Converged),
		applogger.Duration("elapsed", out.FinishedAt.Sub(out.StartedAt)),
	)
	r.publish(ctx, log, out)
	return out, nil
}

func (r *ScenarioRunner) apply(ctx context.Context, tx repository.GraphTx, req models.ScenarioRequest, out *models.ScenarioOutcome) error {
	sim := r.engine.simulator
	switch req.Kind {
	case models.ScenarioAcquisition:
		ok, err := sim.Acquisition(ctx, tx, *req.Acquisition)
		if err != nil {
			return err
		}
		out.Applied = ok
		if ok {
			out.UpdatedEdges = 1
		}
	case models.ScenarioDivestiture:
		ok, err := sim.Divestiture(ctx, tx, *req.Divestiture)
		if err != nil {
			return err
		}
		out.Applied = ok
		if ok {
			out.UpdatedEdges = 1
		}
	case models.ScenarioRiskEvent:
		n, err := sim.RiskEvent(ctx, tx, *req.RiskEvent)
		if err != nil {
			return err
		}
		out.Applied = n > 0
		out.UpdatedEdges = n
	default:
		return fmt.Errorf("%w: unknown kind %q", models.ErrInvalidScenario, req.Kind)
	}
	return nil
}

// capture writes the current snapshot to path and archives it. Archive
// failures are logged; the file is the source of truth for the diff.
func (r *ScenarioRunner) capture(ctx context.Context, runID, label, path string) (models.Snapshot, error) {
	snap, err := r.engine.ExportSnapshot(ctx, path)
	if err != nil {
		return snap, fmt.Errorf("%s snapshot: %w", label, err)
	}
	if err := r.archive.StoreSnapshot(ctx, runID, label, snap); err != nil {
		r.logger.Error("archive snapshot",
			applogger.String("run_id", runID),
			applogger.String("label", label),
			applogger.Error(err),
		)
	}
	return snap, nil
}

func (r *ScenarioRunner) publish(ctx context.Context, log *applogger.Logger, out *models.ScenarioOutcome) {
	if err := r.publisher.Publish(ctx, out); err != nil {
		log.Error("publish scenario outcome", applogger.Error(err))
	}
}
