//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"SwingDesk/pkg/config"
	"SwingDesk/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideLedger,
		ProvideCache,
		ProvideStateStore,
		ProvideKafkaTopics,
		ProvideKafkaProducer,
		ProvideClickHouseClient,
		ProvideOutcomeConsumer,

		// Repositories and providers
		ProvideNotifier,
		ProvideMarketGateway,
		ProvideOutcomeSink,

		// Domain services
		ProvideDetectors,
		ProvideSignalAggregator,
		ProvideWeightBook,
		ProvideOutcomeTracker,

		// Use cases
		ProvideCandles,
		ProvideScreening,
		ProvideSuggestions,
		ProvidePositions,
		ProvideCalibrator,
		ProvideReconciler,
		ProvideOutcomeEventsHandler,

		// HTTP and application server
		ProvideDeskHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
