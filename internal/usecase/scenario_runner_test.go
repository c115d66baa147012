package usecase

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RiskGraph/internal/domain/models"
	"RiskGraph/internal/services/riskengine"
	"RiskGraph/internal/services/scenario"
	pkgkafka "RiskGraph/pkg/kafka"
	applogger "RiskGraph/pkg/logger"
)

func recomputed(t *testing.T) *harness {
	t.Helper()
	h := newHarness(t)
	_, err := h.engine.Recompute(context.Background(), 0)
	require.NoError(t, err)
	return h
}

func TestScenarioRunner_RiskEvent(t *testing.T) {
	h := recomputed(t)
	ctx := context.Background()
	require.NoError(t, h.cache.Set(ctx, "analytics:catalog", "stale", 0))

	out, err := h.runner.Run(ctx, models.ScenarioRequest{
		Kind: models.ScenarioRiskEvent,
		RiskEvent: &models.RiskEventParams{
			Factor:     "Flood",
			Multiplier: 2,
			Filter:     models.ExposureFilter{Sector: "Energy"},
		},
	})
	require.NoError(t, err)

	assert.True(t, out.Applied)
	assert.Equal(t, 1, out.UpdatedEdges)
	require.NotNil(t, out.Propagation)
	assert.True(t, out.Propagation.Converged)
	require.NotNil(t, out.Diff)
	require.Len(t, out.Diff.Rows, 1)
	row := out.Diff.Rows[0]
	assert.Equal(t, "C1", row.ID)
	assert.InDelta(t, 30.0, row.RiskBefore, 1e-9)
	assert.InDelta(t, 60.0, row.RiskAfter, 1e-9)
	assert.InDelta(t, 30.0, row.Delta, 1e-9)

	for _, p := range []string{out.BeforePath, out.AfterPath, out.DiffPath} {
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}

	assert.Equal(t, []string{"before", "after"}, h.archive.snapshots)
	require.Len(t, h.archive.diffs, 1)
	require.Len(t, h.publisher.outcomes, 1)
	assert.Equal(t, out.RunID, h.publisher.outcomes[0].RunID)

	ok, err := h.cache.Exists(ctx, "analytics:catalog")
	require.NoError(t, err)
	assert.False(t, ok, "analytics cache must be invalidated")

	locked, err := h.cache.Exists(ctx, "scenario:pipeline")
	require.NoError(t, err)
	assert.False(t, locked, "lock must be released")
}

func TestScenarioRunner_AcquisitionReplacesOwners(t *testing.T) {
	h := recomputed(t)

	out, err := h.runner.Run(context.Background(), models.ScenarioRequest{
		Kind:        models.ScenarioAcquisition,
		Acquisition: &models.AcquisitionParams{AcquirerID: "C2", TargetID: "C1", Percent: 0.4},
	})
	require.NoError(t, err)
	assert.True(t, out.Applied)

	c1 := h.node(t, models.KindCompany, "C1")
	assert.Equal(t, models.RoleAcquired, c1.Role)

	b1 := h.node(t, models.KindBlockholder, "B1")
	assert.Zero(t, b1.TotalRisk)

	// C2 = 0.6 + 0.4 × 0.3
	require.Len(t, out.Diff.Rows, 1)
	assert.Equal(t, "C2", out.Diff.Rows[0].ID)
	assert.InDelta(t, 7.2, out.Diff.Rows[0].RiskAfter, 1e-9)
	assert.InDelta(t, 1.2, out.Diff.Rows[0].Delta, 1e-9)
}

func TestScenarioRunner_DivestitureResetsRole(t *testing.T) {
	h := recomputed(t)
	ctx := context.Background()

	_, err := h.runner.Run(ctx, models.ScenarioRequest{
		Kind:        models.ScenarioAcquisition,
		Acquisition: &models.AcquisitionParams{AcquirerID: "C2", TargetID: "C1", Percent: 1},
	})
	require.NoError(t, err)

	out, err := h.runner.Run(ctx, models.ScenarioRequest{
		Kind:        models.ScenarioDivestiture,
		Divestiture: &models.DivestitureParams{OwnerID: "C2", TargetID: "C1"},
	})
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, models.RoleCompany, h.node(t, models.KindCompany, "C1").Role)
}

func TestScenarioRunner_NotApplied(t *testing.T) {
	h := recomputed(t)

	out, err := h.runner.Run(context.Background(), models.ScenarioRequest{
		Kind:        models.ScenarioAcquisition,
		Acquisition: &models.AcquisitionParams{AcquirerID: "C2", TargetID: "C9", Percent: 0.5},
	})
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.Nil(t, out.Propagation)
	assert.Empty(t, out.AfterPath)
	assert.Empty(t, out.Diff.Rows)
	assert.Len(t, h.publisher.outcomes, 1)
}

func TestScenarioRunner_Busy(t *testing.T) {
	h := recomputed(t)
	ctx := context.Background()

	ok, err := h.cache.TryLock(ctx, "scenario:pipeline", 0)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.runner.Run(ctx, models.ScenarioRequest{
		Kind:      models.ScenarioRiskEvent,
		RiskEvent: &models.RiskEventParams{Factor: "Flood", Multiplier: 2},
	})
	assert.ErrorIs(t, err, models.ErrPipelineBusy)
	assert.Empty(t, h.publisher.outcomes)
}

func TestScenarioRunner_RecomputeSharesPipelineLock(t *testing.T) {
	h := recomputed(t)
	ctx := context.Background()
	logger := applogger.NewNop()

	gated := newGatedStore(h.store)
	engine := NewRiskEngine(gated, riskengine.NewPropagator(riskengine.Config{}, logger),
		scenario.NewSimulator(logger), h.metrics, logger, RiskEngineConfig{})
	runner := NewScenarioRunner(engine, gated, h.cache, h.archive, h.publisher, h.metrics, logger,
		ScenarioRunnerConfig{OutputDir: t.TempDir()})

	done := make(chan error, 1)
	go func() {
		_, err := runner.Recompute(ctx, 0)
		done <- err
	}()
	<-gated.entered

	flood := models.ScenarioRequest{
		Kind: models.ScenarioRiskEvent,
		RiskEvent: &models.RiskEventParams{
			Factor:     "Flood",
			Multiplier: 2,
			Filter:     models.ExposureFilter{Sector: "Energy"},
		},
	}
	_, err := runner.Run(ctx, flood)
	assert.ErrorIs(t, err, models.ErrPipelineBusy)
	_, err = runner.NormalizeRisk(ctx, 0)
	assert.ErrorIs(t, err, models.ErrPipelineBusy)

	close(gated.release)
	require.NoError(t, <-done)

	out, err := runner.Run(ctx, flood)
	require.NoError(t, err)
	assert.True(t, out.Applied)

	c1 := h.node(t, models.KindCompany, "C1")
	assert.InDelta(t, 0.6, c1.DirectRisk, 1e-9)
	assert.InDelta(t, 60.0, c1.DollarizedRisk, 1e-9)

	res, err := runner.Recompute(ctx, 0)
	require.NoError(t, err)
	assert.True(t, res.Propagation.Converged)
	assert.InDelta(t, 60.0, h.node(t, models.KindCompany, "C1").DollarizedRisk, 1e-9)

	locked, err := h.cache.Exists(ctx, "scenario:pipeline")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestScenarioRunner_InvalidRequests(t *testing.T) {
	h := recomputed(t)
	ctx := context.Background()

	cases := map[string]models.ScenarioRequest{
		"missing params": {Kind: models.ScenarioAcquisition},
		"unknown kind":   {Kind: "merger"},
		"percent range": {
			Kind:        models.ScenarioAcquisition,
			Acquisition: &models.AcquisitionParams{AcquirerID: "C2", TargetID: "C1", Percent: 1.5},
		},
		"contradictory scope": {
			Kind: models.ScenarioRiskEvent,
			RiskEvent: &models.RiskEventParams{
				Factor: "Flood", Multiplier: 2, Scope: models.ScopeAll,
				Filter: models.ExposureFilter{Sector: "Energy"},
			},
		},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.runner.Run(ctx, req)
			assert.ErrorIs(t, err, models.ErrInvalidScenario)
		})
	}

	// graph untouched
	assert.InDelta(t, 0.3, h.node(t, models.KindCompany, "C1").TotalRisk, 1e-12)
}

func TestKafkaScenarioHandler(t *testing.T) {
	h := recomputed(t)
	handler := NewKafkaScenarioHandler("riskgraph.scenarios", h.runner, h.metrics, applogger.NewNop())
	assert.Equal(t, "riskgraph.scenarios", handler.Topic())

	err := handler.Handle(context.Background(), []byte("{not json"))
	assert.True(t, pkgkafka.IsPermanent(err))

	err = handler.Handle(context.Background(), []byte(`{"kind":"acquisition"}`))
	assert.True(t, pkgkafka.IsPermanent(err))
	assert.ErrorIs(t, err, models.ErrInvalidScenario)

	err = handler.Handle(context.Background(), []byte(`{"kind":"acquisition","acquisition":{"acquirer_id":"C2","target_id":"C1"}}`))
	assert.True(t, pkgkafka.IsPermanent(err), "percent has no default")
	assert.ErrorIs(t, err, models.ErrInvalidScenario)

	body, err := json.Marshal(models.ScenarioRequest{
		Kind:      models.ScenarioRiskEvent,
		RiskEvent: &models.RiskEventParams{Factor: "Flood", Multiplier: 0.5},
	})
	require.NoError(t, err)
	require.NoError(t, handler.Handle(context.Background(), body))
	require.Len(t, h.publisher.outcomes, 1)
	assert.Equal(t, 2, h.publisher.outcomes[0].UpdatedEdges)
}

func TestAnalyticsService_CachesUntilInvalidated(t *testing.T) {
	h := recomputed(t)
	ctx := context.Background()

	first, err := h.analytics.TopRisks(ctx, models.KindCompany, 5)
	require.NoError(t, err)
	require.Len(t, first, 2)

	_, err = h.engine.SimulateRiskEvent(ctx, models.RiskEventParams{Factor: "Flood", Multiplier: 0})
	require.NoError(t, err)
	_, err = h.engine.Recompute(ctx, 0)
	require.NoError(t, err)

	cached, err := h.analytics.TopRisks(ctx, models.KindCompany, 5)
	require.NoError(t, err)
	assert.Equal(t, first, cached)

	require.NoError(t, h.analytics.Invalidate(ctx))
	fresh, err := h.analytics.TopRisks(ctx, models.KindCompany, 5)
	require.NoError(t, err)
	assert.Empty(t, fresh)

	conc, err := h.analytics.SectorConcentration(ctx, 0.3)
	require.NoError(t, err)
	assert.Zero(t, conc.PortfolioTotal)
}

func TestScenarioJob_SharesKafkaIntake(t *testing.T) {
	h := recomputed(t)
	job := NewScenarioJob(NewKafkaScenarioHandler("unused", h.runner, h.metrics, applogger.NewNop()))
	assert.Equal(t, ScenarioJobType, job.Type())

	assert.True(t, pkgkafka.IsPermanent(job.Handle(context.Background(), []byte(`[]`))))

	err := job.Handle(context.Background(), []byte(
		`{"kind":"divestiture","divestiture":{"owner_kind":"Blockholder","owner_id":"B1","target_id":"C1"}}`))
	require.NoError(t, err)
	require.Len(t, h.publisher.outcomes, 1)
	assert.True(t, h.publisher.outcomes[0].Applied)
}
