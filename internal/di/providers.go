package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"RiskGraph/internal/domain/models"
	"RiskGraph/internal/domain/repository"
	"RiskGraph/internal/handler/api"
	internalrepo "RiskGraph/internal/repository"
	"RiskGraph/internal/service/ratelimit"
	"RiskGraph/internal/services/riskengine"
	"RiskGraph/internal/services/scenario"
	"RiskGraph/internal/usecase"
	"RiskGraph/pkg/cache"
	pkgch "RiskGraph/pkg/clickhouse"
	"RiskGraph/pkg/config"
	pkgkafka "RiskGraph/pkg/kafka"
	applogger "RiskGraph/pkg/logger"
	"RiskGraph/pkg/memgraph"
	"RiskGraph/pkg/metrics"
	"RiskGraph/pkg/queue"
	"RiskGraph/pkg/server"
)

// ProvideLogger creates the application logger from the log section.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideMetricsRecorder exposes the recorder through the domain interface.
func ProvideMetricsRecorder(r *metrics.Recorder) repository.Metrics {
	return r
}

// ProvideMemgraphClient connects to Memgraph when it is the configured backend.
func ProvideMemgraphClient(cfg *config.Config) (*memgraph.Client, error) {
	if cfg.Graph.Backend != "memgraph" {
		return nil, nil
	}
	m := cfg.Graph.Memgraph
	ctx, cancel := context.WithTimeout(context.Background(), m.ConnectTimeout+5*time.Second)
	defer cancel()

	client, err := memgraph.NewClient(ctx,
		memgraph.WithURI(m.URI),
		memgraph.WithCredentials(m.User, m.Password),
		memgraph.WithDatabase(m.Database),
		memgraph.WithPoolSize(m.MaxConnectionPoolSize),
		memgraph.WithConnectTimeout(m.ConnectTimeout),
		memgraph.WithBatchSize(m.BatchSize),
	)
	if err != nil {
		if errors.Is(err, memgraph.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %v", models.ErrConnectionFailure, err)
		}
		return nil, fmt.Errorf("memgraph client: %w", err)
	}
	return client, nil
}

// ProvideGraphStore selects the graph backend.
func ProvideGraphStore(cfg *config.Config, client *memgraph.Client, logger *applogger.Logger) (repository.GraphStore, error) {
	if client != nil {
		logger.Info("graph store: memgraph", applogger.String("uri", cfg.Graph.Memgraph.URI))
		return internalrepo.NewMemgraphGraphStore(client, logger), nil
	}

	var opts []internalrepo.MemoryStoreOption
	if cfg.Graph.WriteBack && cfg.Graph.SeedFile != "" {
		opts = append(opts, internalrepo.WithWriteBack(cfg.Graph.SeedFile))
	}
	store, err := internalrepo.NewMemoryGraphStoreFromFile(cfg.Graph.SeedFile, logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("memory graph store: %w", err)
	}
	logger.Info("graph store: memory", applogger.String("seed_file", cfg.Graph.SeedFile))
	return store, nil
}

// ProvideRedisCache connects to Redis when enabled.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if !cfg.Redis.Enabled {
		return nil, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return rc, nil
}

// ProvideCache returns the pipeline lock and analytics cache: layered over
// Redis when available, in process otherwise.
func ProvideCache(cfg *config.Config, rc *cache.RedisCache) (cache.Service, error) {
	if rc == nil {
		return cache.NewMemoryCache(), nil
	}
	lc, err := cache.NewLayeredCache(rc, cache.WithLocalTTL(cfg.Cache.LocalTTL))
	if err != nil {
		return nil, fmt.Errorf("layered cache: %w", err)
	}
	return lc, nil
}

// ProvideKafkaProducer creates a Kafka producer when Kafka is enabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideOutcomePublisher publishes scenario outcomes to Kafka, or drops them.
func ProvideOutcomePublisher(cfg *config.Config, producer *pkgkafka.Producer) repository.OutcomePublisher {
	if producer == nil {
		return internalrepo.NoopOutcomePublisher{}
	}
	return internalrepo.NewKafkaOutcomePublisher(producer, cfg.Kafka.OutcomeTopic)
}

// ProvideClickHouseClient creates a ClickHouse client and its schema when enabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideSnapshotArchive archives snapshots and diffs in ClickHouse, or discards them.
func ProvideSnapshotArchive(client *pkgch.Client) (repository.SnapshotArchive, error) {
	if client == nil {
		return internalrepo.NoopSnapshotArchive{}, nil
	}
	archive := internalrepo.NewClickHouseSnapshotArchive(client.DB(), client.Database())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := archive.Init(ctx); err != nil {
		return nil, err
	}
	return archive, nil
}

// ProvideRiskEngine assembles the propagator, the simulator and the engine.
func ProvideRiskEngine(
	cfg *config.Config,
	store repository.GraphStore,
	m repository.Metrics,
	logger *applogger.Logger,
) *usecase.RiskEngine {
	propagator := riskengine.NewPropagator(riskengine.Config{
		MaxIterations:     cfg.Risk.MaxIterations,
		Epsilon:           cfg.Risk.Epsilon,
		Workers:           cfg.Risk.Workers,
		ParallelThreshold: cfg.Risk.ParallelThreshold,
	}, logger)
	return usecase.NewRiskEngine(store, propagator, scenario.NewSimulator(logger), m, logger, usecase.RiskEngineConfig{
		MaxIterations:          cfg.Risk.MaxIterations,
		NormalizeMaxScore:      cfg.Risk.NormalizeMaxScore,
		ConcentrationThreshold: cfg.Risk.ConcentrationThreshold,
		TopNCritical:           cfg.Risk.TopNCritical,
	})
}

// ProvideScenarioRunner creates the mutation pipeline.
func ProvideScenarioRunner(
	cfg *config.Config,
	engine *usecase.RiskEngine,
	store repository.GraphStore,
	locks cache.Service,
	archive repository.SnapshotArchive,
	publisher repository.OutcomePublisher,
	m repository.Metrics,
	logger *applogger.Logger,
) *usecase.ScenarioRunner {
	return usecase.NewScenarioRunner(engine, store, locks, archive, publisher, m, logger, usecase.ScenarioRunnerConfig{
		OutputDir:     cfg.Scenario.OutputDir,
		LockKey:       cfg.Scenario.LockKey,
		LockTTL:       cfg.Scenario.LockTTL,
		MaxIterations: cfg.Risk.MaxIterations,
	})
}

// ProvideAnalyticsService creates the cached analytics facade.
func ProvideAnalyticsService(cfg *config.Config, engine *usecase.RiskEngine, c cache.Service) *usecase.AnalyticsService {
	return usecase.NewAnalyticsService(engine, c, cfg.Cache.AnalyticsTTL)
}

// ProvideKafkaConsumer creates the scenario intake consumer when Kafka is enabled.
func ProvideKafkaConsumer(cfg *config.Config, m repository.Metrics, logger *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
		pkgkafka.WithConsumerLogger(logger.With(applogger.String("component", "kafka_consumer"))),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.WithConsumerHook(pkgkafka.NewHookChain(
		pkgkafka.TraceHook{},
		usecase.NewScenarioConsumerHook(m, logger),
	))
	return consumer, nil
}

// ProvideScenarioHandler decodes scenario requests from Kafka and the Redis queue.
func ProvideScenarioHandler(
	cfg *config.Config,
	runner *usecase.ScenarioRunner,
	m repository.Metrics,
	logger *applogger.Logger,
) *usecase.KafkaScenarioHandler {
	return usecase.NewKafkaScenarioHandler(cfg.Kafka.ScenarioTopic, runner, m, logger)
}

// ProvideScenarioQueue creates the Redis list intake when enabled.
func ProvideScenarioQueue(
	cfg *config.Config,
	rc *cache.RedisCache,
	handler *usecase.KafkaScenarioHandler,
	logger *applogger.Logger,
) *queue.RedisQueue {
	if rc == nil || !cfg.Redis.Queue.Enabled {
		return nil
	}
	q := cfg.Redis.Queue
	return queue.NewRedisConsumer(
		logger,
		&queue.QueueConfig{
			Workers:    q.Workers,
			RetryLimit: q.RetryLimit,
			RetryDelay: q.RetryDelay,
			Retryable:  func(err error) bool { return !pkgkafka.IsPermanent(err) },
		},
		rc.Client(),
		[]queue.Job{usecase.NewScenarioJob(handler)},
		queue.WithKeyPrefix(q.Prefix),
	)
}

// ProvideHTTPHandler creates the echo routes.
func ProvideHTTPHandler(
	cfg *config.Config,
	logger *applogger.Logger,
	engine *usecase.RiskEngine,
	runner *usecase.ScenarioRunner,
	analytics *usecase.AnalyticsService,
) *api.RiskEchoHandler {
	return api.NewRiskEchoHandler(logger, engine, runner, analytics, ratelimit.New(),
		cfg.Server.ScenarioRatePerSec, cfg.Server.ScenarioBurst)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	logger *applogger.Logger,
	runner *usecase.ScenarioRunner,
	handler *api.RiskEchoHandler,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaScenarioHandler,
	q *queue.RedisQueue,
	producer *pkgkafka.Producer,
	store repository.GraphStore,
	archive repository.SnapshotArchive,
	publisher repository.OutcomePublisher,
	c cache.Service,
	rc *cache.RedisCache,
	chClient *pkgch.Client,
) *server.App {
	if producer != nil && cfg.Kafka.LogTopic != "" {
		logger.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Kafka.LogCollector.FlushInterval,
			CountThreshold: cfg.Kafka.LogCollector.CountThreshold,
			Topic:          cfg.Kafka.LogTopic,
			Publisher:      producer,
		})
	}
	app := server.New(cfg, logger, runner, handler)
	if consumer != nil {
		app.WithKafka(consumer, kh)
	}
	if q != nil {
		app.WithQueue(q)
	}

	// closed in registration order on shutdown
	app.OnClose("outcome publisher", publisher.Close)
	app.OnClose("snapshot archive", archive.Close)
	if chClient != nil {
		app.OnClose("clickhouse", chClient.Close)
	}
	app.OnClose("cache", c.Close)
	if rc != nil {
		app.OnClose("redis", rc.Close)
	}
	app.OnClose("graph store", store.Close)
	return app
}
