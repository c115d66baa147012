package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RiskGraph/internal/domain/models"
	domrepo "RiskGraph/internal/domain/repository"
	"RiskGraph/internal/graph"
	applogger "RiskGraph/pkg/logger"
)

func testSeed() models.GraphSeed {
	return models.GraphSeed{
		Companies: []models.Company{
			{ID: "C1", Name: "Acme", Sector: "Energy", Location: "TX", MarketCap: 100},
			{ID: "C2", Name: "Beta", Sector: "Tech", Location: "CA", MarketCap: 10},
		},
		Blockholders: []models.Blockholder{{ID: "B1", Name: "Fund"}},
		Ownerships: []models.Ownership{
			{OwnerKind: models.KindBlockholder, OwnerID: "B1", TargetID: "C1", Percent: 0.5},
		},
		Exposures: []models.Exposure{
			{CompanyID: "C1", Factor: "Flood", Weight: 0.3},
			{CompanyID: "C2", Factor: "Flood", Weight: 0.6},
		},
	}
}

func newTestStore(t *testing.T) *MemoryGraphStore {
	t.Helper()
	g, err := graph.FromSeed(testSeed())
	require.NoError(t, err)
	return NewMemoryGraphStore(g, applogger.NewNop())
}

func TestMemoryGraphStore_LoadIsDetached(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g, err := s.Load(ctx)
	require.NoError(t, err)
	c1, _ := g.Lookup(models.KindCompany, "C1")
	g.RemoveIncomingOwnership(c1)

	again, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, again.OwnsCount())
}

func TestMemoryGraphStore_SaveRiskCopiesDerivedFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g, err := s.Load(ctx)
	require.NoError(t, err)
	c1, _ := g.Lookup(models.KindCompany, "C1")
	g.Node(c1).TotalRisk = 0.3
	g.Node(c1).DollarizedRisk = 30
	g.Node(c1).Name = "ignored"
	require.NoError(t, s.SaveRisk(ctx, g))

	again, err := s.Load(ctx)
	require.NoError(t, err)
	n := again.Node(c1)
	assert.Equal(t, 0.3, n.TotalRisk)
	assert.Equal(t, 30.0, n.DollarizedRisk)
	assert.Equal(t, "Acme", n.Name)
}

func TestMemoryGraphStore_MutateRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Mutate(ctx, func(ctx context.Context, tx domrepo.GraphTx) error {
		n, err := tx.DeleteOwnersOf(ctx, "C1")
		require.NoError(t, err)
		require.Equal(t, 1, n)
		require.NoError(t, tx.SetCompanyRole(ctx, "C1", models.RoleAcquired))
		return boom
	})
	require.ErrorIs(t, err, boom)

	g, err := s.Load(ctx)
	require.NoError(t, err)
	c1, _ := g.Lookup(models.KindCompany, "C1")
	assert.Len(t, g.OwnsIn(c1), 1)
	assert.Equal(t, models.RoleCompany, g.Node(c1).Role)
}

func TestMemoryGraphStore_FindExposuresAppliesFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		filter models.ExposureFilter
		want   []string
	}{
		{name: "no filter", want: []string{"C1", "C2"}},
		{name: "company", filter: models.ExposureFilter{CompanyID: "C2"}, want: []string{"C2"}},
		{name: "sector", filter: models.ExposureFilter{Sector: "Energy"}, want: []string{"C1"}},
		{name: "and combined", filter: models.ExposureFilter{Sector: "Energy", Location: "CA"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.NoError(t, s.Mutate(ctx, func(ctx context.Context, tx domrepo.GraphTx) error {
				matches, err := tx.FindExposures(ctx, "Flood", tc.filter)
				if err != nil {
					return err
				}
				var got []string
				for _, m := range matches {
					got = append(got, m.CompanyID)
				}
				assert.Equal(t, tc.want, got)
				return nil
			}))
		})
	}
}

func TestMemoryGraphStore_UnknownFactorMatchesNothing(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Mutate(context.Background(), func(ctx context.Context, tx domrepo.GraphTx) error {
		matches, err := tx.FindExposures(ctx, "Meteor", models.ExposureFilter{})
		assert.Empty(t, matches)
		return err
	}))
}

func TestMemoryGraphStore_WriteBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state", "seed.json")
	g, err := graph.FromSeed(testSeed())
	require.NoError(t, err)
	s := NewMemoryGraphStore(g, applogger.NewNop(), WithWriteBack(path))

	require.NoError(t, s.Mutate(context.Background(), func(ctx context.Context, tx domrepo.GraphTx) error {
		_, err := tx.DeleteOwnership(ctx, models.KindBlockholder, "B1", "C1")
		return err
	}))

	_, err = os.Stat(path)
	require.NoError(t, err)
	reloaded, err := NewMemoryGraphStoreFromFile(path, applogger.NewNop())
	require.NoError(t, err)
	rg, err := reloaded.Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rg.OwnsCount())
}

func TestNewMemoryGraphStoreFromFile_Missing(t *testing.T) {
	_, err := NewMemoryGraphStoreFromFile(filepath.Join(t.TempDir(), "nope.json"), applogger.NewNop())
	assert.Error(t, err)
}
