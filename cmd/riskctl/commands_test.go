package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RiskGraph/internal/di"
	"RiskGraph/internal/domain/models"
)

const testSeed = `{
  "companies": [
    {"id": "C1", "name": "Acme", "sector": "Energy", "location": "TX", "market_cap": 100},
    {"id": "C2", "name": "Beta", "sector": "Tech", "location": "CA", "market_cap": 10}
  ],
  "blockholders": [{"id": "B1", "name": "Fund"}],
  "ownerships": [{"owner_kind": "Blockholder", "owner_id": "B1", "target_id": "C1", "percent": 0.5}],
  "exposures": [
    {"company_id": "C1", "factor": "Flood", "weight": 0.3},
    {"company_id": "C2", "factor": "Flood", "weight": 0.6}
  ]
}`

type harness struct {
	dir    string
	config string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	seed := filepath.Join(dir, "seed.json")
	require.NoError(t, os.WriteFile(seed, []byte(testSeed), 0o644))

	cfg := "log:\n  level: error\n  output: stderr\n" +
		"metrics:\n  enabled: false\n" +
		"graph:\n  backend: memory\n  seed_file: " + seed + "\n" +
		"scenario:\n  output_dir: " + filepath.Join(dir, "out") + "\n"
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))

	for _, k := range []string{"GRAPH_BACKEND", "GRAPH_SEED_FILE", "REDIS_ADDR", "KAFKA_BROKERS", "CLICKHOUSE_HOST"} {
		t.Setenv(k, "")
	}
	return &harness{dir: dir, config: path}
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--config", h.config}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRecompute(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "recompute")
	require.NoError(t, err)

	var res struct {
		Dollarization struct {
			PortfolioTotal float64 `json:"portfolio_total"`
			Companies      int     `json:"companies"`
		} `json:"dollarization"`
		Normalized int `json:"normalized"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.InDelta(t, 36.0, res.Dollarization.PortfolioTotal, 1e-9)
	assert.Equal(t, 2, res.Dollarization.Companies)
	assert.Equal(t, 3, res.Normalized)
}

func TestRiskEventScenarioAndDiff(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "scenario", "risk-event", "--factor", "Flood", "--multiplier", "0", "--company", "C1")
	require.NoError(t, err)

	var outcome models.ScenarioOutcome
	require.NoError(t, json.Unmarshal([]byte(out), &outcome))
	require.True(t, outcome.Applied)
	require.NotNil(t, outcome.Diff)
	assert.Equal(t, 1, outcome.UpdatedEdges)

	deltas := map[string]float64{}
	for _, r := range outcome.Diff.Rows {
		deltas[r.ID] = r.Delta
	}
	assert.InDelta(t, -30.0, deltas["C1"], 1e-9)
	assert.FileExists(t, outcome.DiffPath)

	csvPath := filepath.Join(h.dir, "diff.csv")
	out, err = h.run(t, "diff", outcome.BeforePath, outcome.AfterPath, "--out", csvPath)
	require.NoError(t, err)

	var report models.DiffReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, outcome.Diff.Rows, report.Rows)
	assert.FileExists(t, csvPath)
}

func TestScenarioValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "scenario", "acquisition", "--acquirer", "C1", "--target", "C1", "--percent", "0.5")
	assert.ErrorIs(t, err, models.ErrInvalidScenario)

	_, err = h.run(t, "scenario", "acquisition", "--acquirer", "C2", "--target", "C1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "percent")

	_, err = h.run(t, "scenario", "risk-event", "--factor", "Flood", "--multiplier", "-1")
	assert.ErrorIs(t, err, models.ErrInvalidScenario)

	_, err = h.run(t, "scenario", "divestiture", "--owner", "B1")
	assert.Error(t, err)
}

func TestUnknownDivestitureIsNotApplied(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "scenario", "divestiture", "--owner", "C2", "--target", "C1")
	require.NoError(t, err)

	var outcome models.ScenarioOutcome
	require.NoError(t, json.Unmarshal([]byte(out), &outcome))
	assert.False(t, outcome.Applied)
	assert.Empty(t, outcome.AfterPath)
}

func TestAnalyticsAndSnapshot(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "analytics", "top", "--kind", "company", "-n", "1")
	require.NoError(t, err)
	var top []models.RankedRisk
	require.NoError(t, json.Unmarshal([]byte(out), &top))
	require.Len(t, top, 1)
	assert.Equal(t, "C1", top[0].ID)

	out, err = h.run(t, "analytics", "catalog")
	require.NoError(t, err)
	var catalog models.Catalog
	require.NoError(t, json.Unmarshal([]byte(out), &catalog))
	assert.Equal(t, []string{"Flood"}, catalog.RiskFactors)

	snapPath := filepath.Join(h.dir, "snap.json")
	_, err = h.run(t, "snapshot", "--out", snapPath)
	require.NoError(t, err)
	assert.FileExists(t, snapPath)

	_, err = h.run(t, "analytics", "top", "--kind", "factor")
	assert.Error(t, err)
}

func TestBackendSpecificCommands(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "neighborhood", "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = h.run(t, "import-seed", filepath.Join(h.dir, "seed.json"))
	assert.ErrorIs(t, err, di.ErrImportUnsupported)

	_, err = h.run(t, "queue-stats")
	assert.EqualError(t, err, "redis queue is not enabled")

	_, err = h.run(t, "scenario", "risk-event", "--factor", "Flood", "--multiplier", "2", "--enqueue")
	assert.Error(t, err)
}

func TestMissingConfig(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "recompute"})
	assert.Error(t, cmd.Execute())
}
