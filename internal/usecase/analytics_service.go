package usecase

import (
	"context"
	"time"

	"RiskGraph/internal/domain/models"
	"RiskGraph/pkg/cache"
)

const analyticsKeyPrefix = "analytics"

// AnalyticsService serves read-only aggregates through the cache. Entries are
// dropped by the scenario pipeline and by RiskHandler after a recompute.
type AnalyticsService struct {
	engine *RiskEngine
	cache  cache.Service
	ttl    time.Duration
}

func NewAnalyticsService(engine *RiskEngine, c cache.Service, ttl time.Duration) *AnalyticsService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &AnalyticsService{engine: engine, cache: c, ttl: ttl}
}

func (s *AnalyticsService) SectorConcentration(ctx context.Context, threshold float64) (models.SectorConcentration, error) {
	key := cache.Key(analyticsKeyPrefix, "sectors", threshold)
	return cache.GetOrLoad(ctx, s.cache, key, s.ttl, func(ctx context.Context) (models.SectorConcentration, error) {
		return s.engine.ComputeSectorConcentration(ctx, threshold)
	})
}

func (s *AnalyticsService) CriticalNodes(ctx context.Context, topN int) ([]models.CriticalNode, error) {
	key := cache.Key(analyticsKeyPrefix, "critical", topN)
	return cache.GetOrLoad(ctx, s.cache, key, s.ttl, func(ctx context.Context) ([]models.CriticalNode, error) {
		return s.engine.GetCriticalNodesByDegree(ctx, topN)
	})
}

func (s *AnalyticsService) TopRisks(ctx context.Context, kind models.NodeKind, n int) ([]models.RankedRisk, error) {
	key := cache.Key(analyticsKeyPrefix, "top", kind, n)
	return cache.GetOrLoad(ctx, s.cache, key, s.ttl, func(ctx context.Context) ([]models.RankedRisk, error) {
		return s.engine.TopRisks(ctx, kind, n)
	})
}

func (s *AnalyticsService) RiskFactorExposure(ctx context.Context, n int) ([]models.RankedRisk, error) {
	key := cache.Key(analyticsKeyPrefix, "factors", n)
	return cache.GetOrLoad(ctx, s.cache, key, s.ttl, func(ctx context.Context) ([]models.RankedRisk, error) {
		return s.engine.RiskFactorExposure(ctx, n)
	})
}

func (s *AnalyticsService) Catalog(ctx context.Context) (models.Catalog, error) {
	return cache.GetOrLoad(ctx, s.cache, cache.Key(analyticsKeyPrefix, "catalog"), s.ttl, s.engine.Catalog)
}

// Invalidate drops every cached aggregate.
func (s *AnalyticsService) Invalidate(ctx context.Context) error {
	return s.cache.DeleteByPattern(ctx, AnalyticsCachePattern)
}
