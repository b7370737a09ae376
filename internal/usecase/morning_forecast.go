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

const historyDays = 20

// MorningForecast produces the day's predicted band before the open. It
// creates the day's record, asks the forecasting service for per-checkpoint
// predictions, derives the band and claims it onto the record. Once
// claimed, the band is locked; a second run on the same date reports
// models.ErrConflict and changes nothing.
type MorningForecast struct {
	store      drepo.RecordStore
	market     dservice.MarketData
	forecaster dservice.Forecaster
	metrics    drepo.Metrics
	symbol     string
	tick       float64
	log        *logger.Logger
}

func NewMorningForecast(
	store drepo.RecordStore,
	market dservice.MarketData,
	forecaster dservice.Forecaster,
	metrics drepo.Metrics,
	symbol string,
	tick float64,
	log *logger.Logger,
) *MorningForecast {
	return &MorningForecast{
		store:      store,
		market:     market,
		forecaster: forecaster,
		metrics:    metrics,
		symbol:     symbol,
		tick:       tick,
		log:        log.With("morning-forecast"),
	}
}

// Run executes the forecast flow for date. The record row is created
// first, unlocked and bandless, so a failed forecast still leaves a row
// checkpoint captures can attach to; the band is claimed onto it only
// when a valid forecast arrives.
func (u *MorningForecast) Run(ctx context.Context, date models.Date) error {
	if err := u.ensureRecord(ctx, date); err != nil {
		return err
	}

	req := &models.ForecastRequest{Symbol: u.symbol, Date: date}

	history, err := u.market.RecentHistory(ctx, historyDays)
	if err != nil {
		// The forecaster can still reason without history; degrade rather
		// than skip the day.
		u.log.Warn("history unavailable", logger.String("date", date.String()), logger.Error(err))
		u.metrics.RecordError("forecast_history")
	} else {
		req.History = history
	}

	if live, err := u.market.LivePrice(ctx); err == nil {
		req.LivePrice = live
		u.metrics.RecordLastPrice(live)
	}

	forecast, err := u.forecaster.Forecast(ctx, req)
	if err != nil {
		u.metrics.RecordError("forecast_fetch")
		return fmt.Errorf("forecast for %s: %w", date, err)
	}

	band := models.BandFromForecast(forecast, u.tick)
	claim := &models.BandClaim{
		Band:      band,
		Bias:      forecast.Bias,
		VolCtx:    volCtxFromBand(band),
		DayType:   forecast.DayType,
		Sentiment: forecast.Sentiment,
		Source:    models.SourceForecast,
	}
	if err := u.store.ClaimBand(ctx, date, claim); err != nil {
		if errors.Is(err, models.ErrConflict) || errors.Is(err, models.ErrLocked) {
			u.log.Info("band already claimed", logger.String("date", date.String()))
		}
		return err
	}

	u.log.Info("band claimed",
		logger.String("date", date.String()),
		logger.Float64("low", band.Low),
		logger.Float64("high", band.High),
		logger.String("bias", forecast.Bias))
	return nil
}

func (u *MorningForecast) ensureRecord(ctx context.Context, date models.Date) error {
	err := u.store.Create(ctx, &models.PredictionRecord{Date: date})
	if err != nil && !errors.Is(err, models.ErrConflict) {
		return fmt.Errorf("create record for %s: %w", date, err)
	}
	return nil
}

// volCtxFromBand buckets the band width into a coarse volatility label.
func volCtxFromBand(b models.Band) string {
	widthPct := b.Width() / b.Mid() * 100
	switch {
	case widthPct < 0.6:
		return "low"
	case widthPct < 1.2:
		return "normal"
	default:
		return "elevated"
	}
}
