package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/carmandale/SPY-tracker-sub000/internal/domain/models"
	drepo "github.com/carmandale/SPY-tracker-sub000/internal/domain/repository"
	dservice "github.com/carmandale/SPY-tracker-sub000/internal/domain/service"
	"github.com/carmandale/SPY-tracker-sub000/pkg/logger"
)

// SimulationParams selects the backfill range. Days counts trading days
// ending at EndDate; Lookback is how many prior bars the forecaster sees
// per simulated day.
type SimulationParams struct {
	EndDate  models.Date
	Days     int
	Lookback int
}

// historyBufferFactor oversizes the history fetch so weekends and
// holidays still leave enough trading days.
const historyBufferFactor = 3

// Simulator replays the forecast-capture-score pipeline over past
// trading days. Each simulated day gets a forecast built from only the
// bars before it, a locked band on a record tagged simulation, checkpoint
// prices derived from that day's bar, and a regular score. Existing
// records are never touched, so a backfill cannot corrupt live history.
type Simulator struct {
	store      drepo.RecordStore
	market     dservice.MarketData
	forecaster dservice.Forecaster
	scorer     *Scorer
	metrics    drepo.Metrics
	symbol     string
	tick       float64
	log        *logger.Logger
}

func NewSimulator(
	store drepo.RecordStore,
	market dservice.MarketData,
	forecaster dservice.Forecaster,
	scorer *Scorer,
	metrics drepo.Metrics,
	symbol string,
	tick float64,
	log *logger.Logger,
) *Simulator {
	return &Simulator{
		store:      store,
		market:     market,
		forecaster: forecaster,
		scorer:     scorer,
		metrics:    metrics,
		symbol:     symbol,
		tick:       tick,
		log:        log.With("simulator"),
	}
}

// Run simulates p.Days trading days ending at p.EndDate, oldest first.
func (u *Simulator) Run(ctx context.Context, p SimulationParams) (*models.SimulationReport, error) {
	if p.Days < 1 || p.Lookback < 1 {
		return nil, fmt.Errorf("days and lookback must be positive: %w", models.ErrValidation)
	}

	bars, err := u.market.RecentHistory(ctx, p.Days*historyBufferFactor+p.Lookback)
	if err != nil {
		return nil, fmt.Errorf("simulation history: %w", err)
	}
	var usable []models.DailyBar
	for _, bar := range bars {
		if bar.Date <= p.EndDate {
			usable = append(usable, bar)
		}
	}
	// One bar of context before the earliest simulated day is the floor.
	if len(usable) < p.Days+1 {
		return nil, fmt.Errorf("need %d trading days before %s, have %d: %w",
			p.Days+1, p.EndDate, len(usable), models.ErrNotReady)
	}

	first := len(usable) - p.Days
	report := &models.SimulationReport{
		StartDate:     usable[first].Date,
		EndDate:       usable[len(usable)-1].Date,
		DaysRequested: p.Days,
	}

	var hits, within1, within2 int
	var absErrSum float64
	for i := first; i < len(usable); i++ {
		day, err := u.simulateDay(ctx, usable, i, p.Lookback)
		if err != nil {
			u.metrics.RecordError("simulation_day")
			u.log.Warn("simulation day skipped",
				logger.String("date", usable[i].Date.String()),
				logger.Error(err))
			report.Skipped = append(report.Skipped, models.SkippedDay{
				Date:   usable[i].Date,
				Reason: err.Error(),
			})
			continue
		}
		report.Days = append(report.Days, *day)
		if day.RangeHit {
			hits++
		}
		if day.AbsErrorToClose <= 1.0 {
			within1++
		}
		if day.AbsErrorToClose <= 2.0 {
			within2++
		}
		absErrSum += day.AbsErrorToClose
	}

	report.DaysSimulated = len(report.Days)
	if n := report.DaysSimulated; n > 0 {
		report.RangeHitRate = float64(hits) / float64(n)
		report.MeanAbsError = absErrSum / float64(n)
		report.WithinOneDollar = float64(within1) / float64(n)
		report.WithinTwoDollars = float64(within2) / float64(n)
	}
	report.Grade = simulationGrade(report.MeanAbsError, report.DaysSimulated)

	u.log.Info("simulation finished",
		logger.String("start", report.StartDate.String()),
		logger.String("end", report.EndDate.String()),
		logger.Int("simulated", report.DaysSimulated),
		logger.Int("skipped", len(report.Skipped)),
		logger.Float64("hitRate", report.RangeHitRate),
		logger.String("grade", report.Grade))
	return report, nil
}

// simulateDay runs one backdated day. bars[idx] is the day under
// simulation; only bars strictly before it reach the forecaster.
func (u *Simulator) simulateDay(ctx context.Context, bars []models.DailyBar, idx, lookback int) (*models.SimulationDay, error) {
	bar := bars[idx]

	ctxStart := idx - lookback
	if ctxStart < 0 {
		ctxStart = 0
	}
	forecast, err := u.forecaster.Forecast(ctx, &models.ForecastRequest{
		Symbol:  u.symbol,
		Date:    bar.Date,
		History: bars[ctxStart:idx],
	})
	if err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}

	band := models.BandFromForecast(forecast, u.tick)
	rec := &models.PredictionRecord{
		Date:      bar.Date,
		PredLow:   &band.Low,
		PredHigh:  &band.High,
		Bias:      forecast.Bias,
		VolCtx:    volCtxFromBand(band),
		DayType:   forecast.DayType,
		Sentiment: forecast.Sentiment,
		Source:    models.SourceSimulation,
		Locked:    true,
	}
	if err := u.store.Create(ctx, rec); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, fmt.Errorf("record already exists: %w", err)
		}
		return nil, fmt.Errorf("create record: %w", err)
	}

	for cp, price := range checkpointsFromBar(bar) {
		if err := u.store.SetCheckpoint(ctx, bar.Date, cp, price, models.ProvenanceOfficial, false); err != nil {
			return nil, fmt.Errorf("set %s: %w", cp, err)
		}
	}
	if err := u.scorer.Run(ctx, bar.Date); err != nil {
		return nil, fmt.Errorf("score: %w", err)
	}

	scored, err := u.store.Get(ctx, bar.Date)
	if err != nil {
		return nil, err
	}
	day := &models.SimulationDay{Date: bar.Date, Band: band, Close: bar.Close}
	if scored.RangeHit != nil {
		day.RangeHit = *scored.RangeHit
	}
	if scored.AbsErrorToClose != nil {
		day.AbsErrorToClose = *scored.AbsErrorToClose
	}
	return day, nil
}

// checkpointsFromBar approximates the intraday checkpoints from a daily
// bar: noon as the mid-range, mid-afternoon weighted toward the low.
// preMarket has no daily-bar analogue and stays empty.
func checkpointsFromBar(bar models.DailyBar) map[models.Checkpoint]float64 {
	return map[models.Checkpoint]float64{
		models.CheckpointOpen:         bar.Open,
		models.CheckpointNoon:         (bar.High + bar.Low) / 2,
		models.CheckpointMidAfternoon: bar.High*0.3 + bar.Low*0.7,
		models.CheckpointClose:        bar.Close,
	}
}

// simulationGrade buckets the mean absolute error to the close.
func simulationGrade(meanAbsErr float64, days int) string {
	if days == 0 {
		return "n/a"
	}
	switch {
	case meanAbsErr <= 1.0:
		return "A"
	case meanAbsErr <= 1.5:
		return "B"
	case meanAbsErr <= 2.0:
		return "C"
	case meanAbsErr <= 3.0:
		return "D"
	default:
		return "F"
	}
}
