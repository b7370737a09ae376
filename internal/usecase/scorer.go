package usecase

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/carmandale/SPY-tracker-sub000/internal/domain/models"
	drepo "github.com/carmandale/SPY-tracker-sub000/internal/domain/repository"
	"github.com/carmandale/SPY-tracker-sub000/pkg/logger"
)

// Scorer derives the close-of-day accuracy fields. Realized extremes are
// the min and max over the captured checkpoint prices, so they understate
// the true intraday range; the calibration layer consumes them
// consistently, which is what matters.
type Scorer struct {
	store       drepo.RecordStore
	metrics     drepo.Metrics
	calibration *Calibration
	log         *logger.Logger
}

func NewScorer(store drepo.RecordStore, metrics drepo.Metrics, calibration *Calibration, log *logger.Logger) *Scorer {
	return &Scorer{
		store:       store,
		metrics:     metrics,
		calibration: calibration,
		log:         log.With("scorer"),
	}
}

// Run scores the record for date. Prerequisites are a claimed band and a
// captured close; anything less is models.ErrNotReady and the caller
// retries later. Re-running on a scored record recomputes the same
// values, so Run is idempotent.
func (u *Scorer) Run(ctx context.Context, date models.Date) error {
	rec, err := u.store.Get(ctx, date)
	if err != nil {
		return err
	}

	band, ok := rec.Band()
	if !ok || !rec.Locked {
		return fmt.Errorf("no locked band for %s: %w", date, models.ErrNotReady)
	}
	closePrice, ok := rec.ClosePrice()
	if !ok {
		return fmt.Errorf("no close capture for %s: %w", date, models.ErrNotReady)
	}

	realizedLow, realizedHigh := realizedExtremes(rec)
	rangeHit := realizedLow >= band.Low && realizedHigh <= band.High
	absErr := math.Abs(closePrice - band.Mid())

	if err := u.store.SetScore(ctx, date, realizedLow, realizedHigh, rangeHit, absErr, time.Now().UTC()); err != nil {
		u.metrics.RecordError("score_write")
		return err
	}

	if u.calibration != nil {
		u.calibration.Invalidate(ctx)
	}

	u.log.Info("scored",
		logger.String("date", date.String()),
		logger.Float64("realizedLow", realizedLow),
		logger.Float64("realizedHigh", realizedHigh),
		logger.Bool("rangeHit", rangeHit),
		logger.Float64("absErrorToClose", absErr))
	return nil
}

// realizedExtremes scans every populated checkpoint slot.
func realizedExtremes(rec *models.PredictionRecord) (low, high float64) {
	first := true
	for _, cp := range models.Checkpoints() {
		slot, ok := rec.Checkpoints[cp]
		if !ok {
			continue
		}
		if first || slot.Price < low {
			low = slot.Price
		}
		if first || slot.Price > high {
			high = slot.Price
		}
		first = false
	}
	return low, high
}
