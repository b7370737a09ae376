//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"github.com/carmandale/SPY-tracker-sub000/pkg/config"
	"github.com/carmandale/SPY-tracker-sub000/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire generates the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideLocation,
		ProvideMetrics,

		// Infrastructure clients
		ProvideSQLiteClient,
		ProvideCache,
		ProvideQuoteStream,
		ProvideAudit,

		// Repositories and provider clients
		ProvideRecordStore,
		ProvideMarketData,
		ProvideForecaster,

		// Use cases
		ProvideCalibration,
		ProvideScorer,
		ProvideMorningForecast,
		ProvideCheckpointCapture,
		ProvideSimulator,
		ProvideSuggestionEngine,

		// Scheduler, HTTP surface, application
		ProvideScheduler,
		ProvideHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return &server.App{}, nil
}
