package usecase

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RiskGraph/internal/domain/models"
	"RiskGraph/internal/services/snapshot"
)

func TestRiskEngine_Recompute(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.engine.Recompute(ctx, 0)
	require.NoError(t, err)
	assert.True(t, res.Propagation.Converged)
	assert.Equal(t, 3, res.Normalized)
	assert.InDelta(t, 36.0, res.Dollarization.PortfolioTotal, 1e-9)

	c1 := h.node(t, models.KindCompany, "C1")
	assert.InDelta(t, 0.3, c1.TotalRisk, 1e-12)
	assert.InDelta(t, 30.0, c1.DollarizedRisk, 1e-9)
	assert.InDelta(t, 50.0, c1.NormalizedRisk, 1e-9)

	b1 := h.node(t, models.KindBlockholder, "B1")
	assert.InDelta(t, 0.15, b1.TotalRisk, 1e-12)
	assert.InDelta(t, 15.0, b1.DollarizedRisk, 1e-9)

	flood := h.node(t, models.KindRiskFactor, "Flood")
	assert.InDelta(t, 12.6, flood.DollarizedRisk, 1e-9)
}

func TestRiskEngine_StepByStep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.ComputeTotalRisk(ctx, 15)
	require.NoError(t, err)
	assert.Zero(t, h.node(t, models.KindCompany, "C1").DollarizedRisk)

	_, err = h.engine.DollarizeRisk(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, h.node(t, models.KindCompany, "C1").DollarizedRisk, 1e-9)

	n, err := h.engine.NormalizeRisk(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.InDelta(t, 10.0, h.node(t, models.KindCompany, "C2").NormalizedRisk, 1e-9)
}

func TestRiskEngine_SimulateDoesNotRecompute(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.Recompute(ctx, 0)
	require.NoError(t, err)

	n, err := h.engine.SimulateRiskEvent(ctx, models.RiskEventParams{Factor: "Flood", Multiplier: 0})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.InDelta(t, 0.3, h.node(t, models.KindCompany, "C1").TotalRisk, 1e-12)

	_, err = h.engine.ComputeTotalRisk(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, h.node(t, models.KindCompany, "C1").TotalRisk)
}

func TestRiskEngine_SnapshotExportAndDiff(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dir := t.TempDir()

	_, err := h.engine.Recompute(ctx, 0)
	require.NoError(t, err)
	before := filepath.Join(dir, "before.json")
	snap, err := h.engine.ExportSnapshot(ctx, before)
	require.NoError(t, err)
	require.Len(t, snap.Records, 2)
	assert.Equal(t, "C1", snap.Records[0].ID)

	applied, err := h.engine.SimulateDivestiture(ctx, models.DivestitureParams{
		OwnerKind: models.KindBlockholder, OwnerID: "B1", TargetID: "C1",
	})
	require.NoError(t, err)
	assert.True(t, applied)
	_, err = h.engine.SimulateRiskEvent(ctx, models.RiskEventParams{
		Factor: "Flood", Multiplier: 2, Filter: models.ExposureFilter{CompanyID: "C1"},
	})
	require.NoError(t, err)
	_, err = h.engine.Recompute(ctx, 0)
	require.NoError(t, err)

	after := filepath.Join(dir, "after.json")
	_, err = h.engine.ExportSnapshot(ctx, after)
	require.NoError(t, err)

	report, err := h.engine.GenerateDiff(before, after, snapshot.DiffOptions{})
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, "C1", report.Rows[0].ID)
	assert.InDelta(t, 30.0, report.Rows[0].Delta, 1e-9)

	_, err = h.engine.GenerateDiff(filepath.Join(dir, "missing.json"), after, snapshot.DiffOptions{})
	assert.ErrorIs(t, err, models.ErrMalformedSnapshot)
}

func TestRiskEngine_Analytics(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.Recompute(ctx, 0)
	require.NoError(t, err)

	conc, err := h.engine.ComputeSectorConcentration(ctx, -1)
	require.NoError(t, err)
	require.Len(t, conc.Sectors, 2)
	assert.Equal(t, "Energy", conc.Sectors[0].Sector)
	assert.True(t, conc.Sectors[0].Overexposed)
	assert.False(t, conc.Sectors[1].Overexposed)

	conc, err = h.engine.ComputeSectorConcentration(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, conc.Threshold)
	assert.Len(t, conc.Overexposed(), 2)

	nodes, err := h.engine.GetCriticalNodesByDegree(ctx, 0)
	require.NoError(t, err)
	require.NotEmpty(t, nodes)
	assert.Equal(t, "C1", nodes[0].ID)
	assert.Equal(t, 2, nodes[0].Degree)

	top, err := h.engine.TopRisks(ctx, models.KindCompany, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "C1", top[0].ID)

	factors, err := h.engine.RiskFactorExposure(ctx, 5)
	require.NoError(t, err)
	require.Len(t, factors, 1)
	assert.InDelta(t, 12.6, factors[0].DollarizedRisk, 1e-9)

	cat, err := h.engine.Catalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Energy", "Tech"}, cat.Sectors)

	_, err = h.engine.Neighborhood(ctx, models.KindCompany, "nope", 0)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRiskEngine_ExportRiskScores(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.Recompute(ctx, 0)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "scores.csv")
	scores, err := h.engine.ExportRiskScores(ctx, path)
	require.NoError(t, err)
	require.Len(t, scores, 3)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"Node Name", "Dollarized Risk"}, rows[0])
	assert.Equal(t, []string{"Acme", "30.00"}, rows[1])
	assert.Equal(t, []string{"Fund", "15.00"}, rows[2])
	assert.Equal(t, []string{"Beta", "6.00"}, rows[3])
}
