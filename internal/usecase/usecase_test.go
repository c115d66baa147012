package usecase

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"RiskGraph/internal/domain/models"
	"RiskGraph/internal/graph"
	memrepo "RiskGraph/internal/repository"
	"RiskGraph/internal/services/riskengine"
	"RiskGraph/internal/services/scenario"
	"RiskGraph/pkg/cache"
	applogger "RiskGraph/pkg/logger"
	"RiskGraph/pkg/metrics"
)

func fixtureSeed() models.GraphSeed {
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

type recordingArchive struct {
	mu        sync.Mutex
	snapshots []string
	diffs     []models.DiffReport
}

func (a *recordingArchive) Init(ctx context.Context) error { return nil }

func (a *recordingArchive) StoreSnapshot(ctx context.Context, runID, label string, snap models.Snapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.snapshots = append(a.snapshots, label)
	return nil
}

func (a *recordingArchive) StoreDiff(ctx context.Context, runID string, kind models.ScenarioKind, report models.DiffReport) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.diffs = append(a.diffs, report)
	return nil
}

func (a *recordingArchive) Health(ctx context.Context) error { return nil }
func (a *recordingArchive) Close() error                     { return nil }

type recordingPublisher struct {
	mu       sync.Mutex
	outcomes []*models.ScenarioOutcome
}

func (p *recordingPublisher) Publish(ctx context.Context, o *models.ScenarioOutcome) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes = append(p.outcomes, o)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type harness struct {
	store     *memrepo.MemoryGraphStore
	engine    *RiskEngine
	runner    *ScenarioRunner
	analytics *AnalyticsService
	cache     *cache.MemoryCache
	archive   *recordingArchive
	publisher *recordingPublisher
	metrics   *metrics.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	g, err := graph.FromSeed(fixtureSeed())
	require.NoError(t, err)

	logger := applogger.NewNop()
	h := &harness{
		store:     memrepo.NewMemoryGraphStore(g, logger),
		cache:     cache.NewMemoryCache(),
		archive:   &recordingArchive{},
		publisher: &recordingPublisher{},
		metrics:   metrics.NewWithRegistry(prometheus.NewRegistry()),
	}
	t.Cleanup(func() { _ = h.cache.Close() })

	h.engine = NewRiskEngine(
		h.store,
		riskengine.NewPropagator(riskengine.Config{}, logger),
		scenario.NewSimulator(logger),
		h.metrics,
		logger,
		RiskEngineConfig{},
	)
	h.runner = NewScenarioRunner(h.engine, h.store, h.cache, h.archive, h.publisher, h.metrics, logger,
		ScenarioRunnerConfig{OutputDir: t.TempDir()})
	h.analytics = NewAnalyticsService(h.engine, h.cache, 0)
	return h
}

func (h *harness) node(t *testing.T, kind models.NodeKind, key string) graph.Node {
	t.Helper()
	g, err := h.store.Load(context.Background())
	require.NoError(t, err)
	id, ok := g.Lookup(kind, key)
	require.True(t, ok, "%s %s", kind, key)
	return *g.Node(id)
}

// gatedStore blocks the first Load after reading the graph until release is
// closed, holding a recompute between its load and its save.
type gatedStore struct {
	*memrepo.MemoryGraphStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedStore(s *memrepo.MemoryGraphStore) *gatedStore {
	return &gatedStore{MemoryGraphStore: s, entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *gatedStore) Load(ctx context.Context) (*graph.Graph, error) {
	g, err := s.MemoryGraphStore.Load(ctx)
	s.once.Do(func() {
		close(s.entered)
		<-s.release
	})
	return g, err
}
