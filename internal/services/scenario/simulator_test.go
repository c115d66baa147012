package scenario

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RiskGraph/internal/domain/models"
	domrepo "RiskGraph/internal/domain/repository"
	"RiskGraph/internal/graph"
	"RiskGraph/internal/repository"
	applogger "RiskGraph/pkg/logger"
)

func fixedClock() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }

func newFixture(t *testing.T) (*repository.MemoryGraphStore, *Simulator) {
	t.Helper()
	seed := models.GraphSeed{
		Companies: []models.Company{
			{ID: "T", Name: "Target", Sector: "Energy", Location: "TX"},
			{ID: "X", Name: "X Corp", Sector: "Energy", Location: "CA"},
			{ID: "Z", Name: "Zed", Sector: "Tech", Location: "TX"},
		},
		Blockholders: []models.Blockholder{{ID: "Y", Name: "Y Fund"}},
		Ownerships: []models.Ownership{
			{OwnerID: "X", TargetID: "T", Percent: 0.3, Year: 2019},
			{OwnerKind: models.KindBlockholder, OwnerID: "Y", TargetID: "T", Percent: 0.2, Year: 2020},
		},
		Exposures: []models.Exposure{
			{CompanyID: "T", Factor: "Flood", Weight: 0.5},
			{CompanyID: "X", Factor: "Flood", Weight: 0.9},
			{CompanyID: "Z", Factor: "Flood", Weight: 0.4},
			{CompanyID: "Z", Factor: "Heat", Weight: 0.1},
		},
	}
	g, err := graph.FromSeed(seed)
	require.NoError(t, err)
	return repository.NewMemoryGraphStore(g, applogger.NewNop()), NewSimulator(applogger.NewNop(), WithClock(fixedClock))
}

func mutate(t *testing.T, s *repository.MemoryGraphStore, fn func(ctx context.Context, tx domrepo.GraphTx) error) error {
	t.Helper()
	return s.Mutate(context.Background(), fn)
}

func load(t *testing.T, s *repository.MemoryGraphStore) *graph.Graph {
	t.Helper()
	g, err := s.Load(context.Background())
	require.NoError(t, err)
	return g
}

func weight(t *testing.T, g *graph.Graph, company, factor string) float64 {
	t.Helper()
	cid, ok := g.Lookup(models.KindCompany, company)
	require.True(t, ok)
	fid, ok := g.Lookup(models.KindRiskFactor, factor)
	require.True(t, ok)
	for _, ei := range g.ExposuresOf(cid) {
		if e := g.Exposure(ei); e.Factor == fid {
			return e.Weight
		}
	}
	t.Fatalf("no exposure %s->%s", company, factor)
	return 0
}

func TestAcquisition_ReplacesAllOwners(t *testing.T) {
	store, sim := newFixture(t)

	var ok bool
	require.NoError(t, mutate(t, store, func(ctx context.Context, tx domrepo.GraphTx) error {
		var err error
		ok, err = sim.Acquisition(ctx, tx, models.AcquisitionParams{AcquirerID: "Z", TargetID: "T", Percent: 0.6})
		return err
	}))
	require.True(t, ok)

	g := load(t, store)
	tid, _ := g.Lookup(models.KindCompany, "T")
	zid, _ := g.Lookup(models.KindCompany, "Z")
	in := g.OwnsIn(tid)
	require.Len(t, in, 1)
	e := g.Owns(in[0])
	assert.Equal(t, zid, e.From)
	assert.Equal(t, 0.6, e.Percent)
	assert.Equal(t, 2025, e.Year)
	assert.Equal(t, models.RoleAcquired, g.Node(tid).Role)
}

func TestAcquisition_MissingCompanyIsNoop(t *testing.T) {
	store, sim := newFixture(t)

	for _, p := range []models.AcquisitionParams{
		{AcquirerID: "nope", TargetID: "T", Percent: 0.6},
		{AcquirerID: "Z", TargetID: "nope", Percent: 0.6},
		{AcquirerID: "Y", TargetID: "T", Percent: 0.6}, // blockholder is not a company
	} {
		var ok bool
		require.NoError(t, mutate(t, store, func(ctx context.Context, tx domrepo.GraphTx) error {
			var err error
			ok, err = sim.Acquisition(ctx, tx, p)
			return err
		}))
		assert.False(t, ok)
	}

	g := load(t, store)
	tid, _ := g.Lookup(models.KindCompany, "T")
	assert.Len(t, g.OwnsIn(tid), 2)
	assert.Equal(t, models.RoleCompany, g.Node(tid).Role)
}

func TestAcquisition_RejectsInvalidPercent(t *testing.T) {
	store, sim := newFixture(t)

	for _, pct := range []float64{-0.1, 1.5} {
		err := mutate(t, store, func(ctx context.Context, tx domrepo.GraphTx) error {
			_, err := sim.Acquisition(ctx, tx, models.AcquisitionParams{AcquirerID: "Z", TargetID: "T", Percent: pct})
			return err
		})
		assert.ErrorIs(t, err, models.ErrInvalidScenario)
	}
}

func TestAcquisition_RollsBackWhenLaterStepFails(t *testing.T) {
	store, sim := newFixture(t)
	boom := errors.New("downstream failure")

	err := mutate(t, store, func(ctx context.Context, tx domrepo.GraphTx) error {
		if _, err := sim.Acquisition(ctx, tx, models.AcquisitionParams{AcquirerID: "Z", TargetID: "T", Percent: 0.6}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	g := load(t, store)
	tid, _ := g.Lookup(models.KindCompany, "T")
	assert.Len(t, g.OwnsIn(tid), 2)
	assert.Equal(t, models.RoleCompany, g.Node(tid).Role)
}

func TestDivestiture_LastOwnerResetsRole(t *testing.T) {
	store, sim := newFixture(t)
	require.NoError(t, mutate(t, store, func(ctx context.Context, tx domrepo.GraphTx) error {
		_, err := sim.Acquisition(ctx, tx, models.AcquisitionParams{AcquirerID: "Z", TargetID: "T", Percent: 1})
		return err
	}))

	var ok bool
	require.NoError(t, mutate(t, store, func(ctx context.Context, tx domrepo.GraphTx) error {
		var err error
		ok, err = sim.Divestiture(ctx, tx, models.DivestitureParams{OwnerID: "Z", TargetID: "T"})
		return err
	}))
	require.True(t, ok)

	g := load(t, store)
	tid, _ := g.Lookup(models.KindCompany, "T")
	assert.Empty(t, g.OwnsIn(tid))
	assert.Equal(t, models.RoleCompany, g.Node(tid).Role)
}

func TestDivestiture_KeepsRoleWhileOwnersRemain(t *testing.T) {
	store, sim := newFixture(t)
	require.NoError(t, mutate(t, store, func(ctx context.Context, tx domrepo.GraphTx) error {
		return tx.SetCompanyRole(ctx, "T", models.RoleAcquired)
	}))

	require.NoError(t, mutate(t, store, func(ctx context.Context, tx domrepo.GraphTx) error {
		ok, err := sim.Divestiture(ctx, tx, models.DivestitureParams{OwnerKind: models.KindBlockholder, OwnerID: "Y", TargetID: "T"})
		assert.True(t, ok)
		return err
	}))

	g := load(t, store)
	tid, _ := g.Lookup(models.KindCompany, "T")
	assert.Len(t, g.OwnsIn(tid), 1)
	assert.Equal(t, models.RoleAcquired, g.Node(tid).Role)
}

func TestDivestiture_MissingEdge(t *testing.T) {
	store, sim := newFixture(t)

	require.NoError(t, mutate(t, store, func(ctx context.Context, tx domrepo.GraphTx) error {
		// Y is a blockholder; looked up as a company it does not own T.
		ok, err := sim.Divestiture(ctx, tx, models.DivestitureParams{OwnerID: "Y", TargetID: "T"})
		assert.False(t, ok)
		return err
	}))
}

func TestRiskEvent_MultipliesAndClamps(t *testing.T) {
	cases := []struct {
		name       string
		multiplier float64
		wantT      float64
		wantX      float64
	}{
		{name: "scale", multiplier: 1.2, wantT: 0.6, wantX: 1.0},
		{name: "zero", multiplier: 0, wantT: 0, wantX: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, sim := newFixture(t)
			var n int
			require.NoError(t, mutate(t, store, func(ctx context.Context, tx domrepo.GraphTx) error {
				var err error
				n, err = sim.RiskEvent(ctx, tx, models.RiskEventParams{Factor: "Flood", Multiplier: tc.multiplier})
				return err
			}))
			assert.Equal(t, 3, n)

			g := load(t, store)
			assert.InDelta(t, tc.wantT, weight(t, g, "T", "Flood"), 1e-12)
			assert.InDelta(t, tc.wantX, weight(t, g, "X", "Flood"), 1e-12)
			assert.InDelta(t, 0.1, weight(t, g, "Z", "Heat"), 1e-12, "other factors untouched")
		})
	}
}

func TestRiskEvent_FiltersAreConjunctive(t *testing.T) {
	store, sim := newFixture(t)

	var n int
	require.NoError(t, mutate(t, store, func(ctx context.Context, tx domrepo.GraphTx) error {
		var err error
		n, err = sim.RiskEvent(ctx, tx, models.RiskEventParams{
			Factor:     "Flood",
			Multiplier: 2,
			Filter:     models.ExposureFilter{Sector: "Energy", Location: "TX"},
		})
		return err
	}))
	assert.Equal(t, 1, n)

	g := load(t, store)
	assert.InDelta(t, 1.0, weight(t, g, "T", "Flood"), 1e-12)
	assert.InDelta(t, 0.9, weight(t, g, "X", "Flood"), 1e-12)
	assert.InDelta(t, 0.4, weight(t, g, "Z", "Flood"), 1e-12)
}

func TestRiskEvent_NoMatchIsNoop(t *testing.T) {
	store, sim := newFixture(t)

	require.NoError(t, mutate(t, store, func(ctx context.Context, tx domrepo.GraphTx) error {
		n, err := sim.RiskEvent(ctx, tx, models.RiskEventParams{Factor: "Meteor", Multiplier: 2})
		assert.Zero(t, n)
		return err
	}))
}

func TestRiskEvent_ScopeContradictions(t *testing.T) {
	store, sim := newFixture(t)

	bad := []models.RiskEventParams{
		{Factor: "Flood", Multiplier: 2, Scope: models.ScopeAll, Filter: models.ExposureFilter{Sector: "Energy"}},
		{Factor: "Flood", Multiplier: 2, Scope: models.ScopeFiltered},
		{Factor: "Flood", Multiplier: 2, Scope: "some"},
		{Factor: "", Multiplier: 2},
	}
	for _, p := range bad {
		err := mutate(t, store, func(ctx context.Context, tx domrepo.GraphTx) error {
			_, err := sim.RiskEvent(ctx, tx, p)
			return err
		})
		assert.ErrorIs(t, err, models.ErrInvalidScenario)
	}
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-3))
	assert.Equal(t, 1.0, Clamp01(1.0000001))
	assert.Equal(t, 0.25, Clamp01(0.25))
}
