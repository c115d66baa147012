//go:build wireinject
// +build wireinject

package di

import (
	"RiskGraph/pkg/config"
	"RiskGraph/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,

		// Metrics
		ProvideMetrics,
		ProvideMetricsRecorder,

		// Infrastructure clients
		ProvideMemgraphClient,
		ProvideRedisCache,
		ProvideKafkaProducer,
		ProvideClickHouseClient,
		ProvideKafkaConsumer,

		// Repositories
		ProvideGraphStore,
		ProvideCache,
		ProvideOutcomePublisher,
		ProvideSnapshotArchive,

		// Use cases
		ProvideRiskEngine,
		ProvideScenarioRunner,
		ProvideAnalyticsService,
		ProvideScenarioHandler,
		ProvideScenarioQueue,

		// Transport and application server
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
