//go:build wireinject
// +build wireinject

package di

import (
	"SignalCoord/pkg/config"
	"SignalCoord/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideCache,
		ProvideArbiter,

		// Repositories
		ProvideReliabilityStore,
		ProvideDecisionHub,
		ProvideDecisionBus,

		// Use cases
		ProvideCoordinator,
		ProvideIntakePipeline,
		ProvideCycleRunner,

		// HTTP
		ProvideHTTPHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
