package service

import (
	"context"

	"github.com/carmandale/SPY-tracker-sub000/internal/domain/models"
)

// MarketData wraps the external market-data source. All three calls may
// fail or return no data; "no data" surfaces as models.ErrNotFound,
// transport failure as models.ErrProviderUnavailable.
type MarketData interface {
	// OfficialCheckpointPrice returns the authoritative recorded price for
	// the exact checkpoint minute on date, not whatever the market is
	// doing right now.
	OfficialCheckpointPrice(ctx context.Context, date models.Date, cp models.Checkpoint) (float64, error)

	// LivePrice returns a best-effort current quote.
	LivePrice(ctx context.Context) (float64, error)

	// RecentHistory returns up to days daily bars, oldest first.
	RecentHistory(ctx context.Context, days int) ([]models.DailyBar, error)
}

// Forecaster wraps the external forecasting service. Responses are
// untrusted and validated before use; malformed payloads come back as
// models.ErrValidation.
type Forecaster interface {
	Forecast(ctx context.Context, req *models.ForecastRequest) (*models.DayForecast, error)
}
