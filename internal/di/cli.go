package di

import (
	"context"
	"errors"
	"fmt"

	"RiskGraph/internal/domain/repository"
	internalrepo "RiskGraph/internal/repository"
	"RiskGraph/internal/usecase"
	"RiskGraph/pkg/config"
	applogger "RiskGraph/pkg/logger"
	"RiskGraph/pkg/metrics"
	"RiskGraph/pkg/queue"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrImportUnsupported is returned by Import on a backend without bulk import.
var ErrImportUnsupported = errors.New("seed import needs the memgraph backend")

// CLI bundles what the operator commands run against. Unlike the service it
// holds no HTTP server and no consumers.
type CLI struct {
	Logger    *applogger.Logger
	Store     repository.GraphStore
	Engine    *usecase.RiskEngine
	Runner    *usecase.ScenarioRunner
	Analytics *usecase.AnalyticsService
	// Queue is a producer-only Redis queue, nil unless redis.queue is enabled.
	Queue *queue.RedisQueue

	closers []func() error
}

// InitializeCLI builds the engine and the scenario pipeline from cfg.
func InitializeCLI(cfg *config.Config) (*CLI, error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, err
	}
	c := &CLI{Logger: logger}

	// one-shot process: metrics are recorded on a private registry and dropped
	m := ProvideMetricsRecorder(metrics.NewWithRegistry(prometheus.NewRegistry()))
	mg, err := ProvideMemgraphClient(cfg)
	if err != nil {
		return nil, err
	}
	if c.Store, err = ProvideGraphStore(cfg, mg, logger); err != nil {
		return nil, err
	}
	c.closers = append(c.closers, c.Store.Close)

	rc, err := ProvideRedisCache(cfg)
	if err != nil {
		return nil, c.fail(err)
	}
	locks, err := ProvideCache(cfg, rc)
	if err != nil {
		return nil, c.fail(err)
	}
	c.closers = append(c.closers, locks.Close)
	if rc != nil {
		c.closers = append(c.closers, rc.Close)
	}

	producer, err := ProvideKafkaProducer(cfg)
	if err != nil {
		return nil, c.fail(err)
	}
	publisher := ProvideOutcomePublisher(cfg, producer)
	c.closers = append(c.closers, publisher.Close)

	ch, err := ProvideClickHouseClient(cfg)
	if err != nil {
		return nil, c.fail(err)
	}
	if ch != nil {
		c.closers = append(c.closers, ch.Close)
	}
	archive, err := ProvideSnapshotArchive(ch)
	if err != nil {
		return nil, c.fail(err)
	}

	c.Engine = ProvideRiskEngine(cfg, c.Store, m, logger)
	c.Runner = ProvideScenarioRunner(cfg, c.Engine, c.Store, locks, archive, publisher, m, logger)
	c.Analytics = ProvideAnalyticsService(cfg, c.Engine, locks)

	if rc != nil && cfg.Redis.Queue.Enabled {
		q, err := queue.NewRedisPublisher(logger, rc.Client(), queue.WithKeyPrefix(cfg.Redis.Queue.Prefix))
		if err != nil {
			return nil, c.fail(err)
		}
		c.Queue = q
		c.closers = append([]func() error{func() error { return q.Stop(context.Background()) }}, c.closers...)
	}
	return c, nil
}

// Import loads a seed fixture into the configured backend.
func (c *CLI) Import(ctx context.Context, path string) error {
	importer, ok := c.Store.(*internalrepo.MemgraphGraphStore)
	if !ok {
		return ErrImportUnsupported
	}
	seed, err := internalrepo.LoadSeedFile(path)
	if err != nil {
		return err
	}
	return importer.Import(ctx, seed)
}

// Enqueue hands a scenario request to the service through the Redis queue.
func (c *CLI) Enqueue(ctx context.Context, payload interface{}) (string, error) {
	if c.Queue == nil {
		return "", fmt.Errorf("redis queue is not enabled")
	}
	return c.Queue.Enqueue(ctx, usecase.ScenarioJobType, payload)
}

// Close releases everything InitializeCLI opened.
func (c *CLI) Close() error {
	var errs []error
	for _, fn := range c.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *CLI) fail(err error) error {
	_ = c.Close()
	return err
}
