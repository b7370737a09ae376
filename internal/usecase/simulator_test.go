package usecase

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/carmandale/SPY-tracker-sub000/internal/domain/models"
	"github.com/carmandale/SPY-tracker-sub000/pkg/logger"
)

func simBars() []models.DailyBar {
	return []models.DailyBar{
		{Date: "2026-02-24", Open: 579.0, High: 581.0, Low: 578.0, Close: 580.5},
		{Date: "2026-02-25", Open: 580.5, High: 582.5, Low: 579.5, Close: 581.0},
		{Date: "2026-02-26", Open: 581.0, High: 583.0, Low: 580.0, Close: 582.0},
		{Date: "2026-02-27", Open: 582.0, High: 584.0, Low: 581.0, Close: 581.5},
		// The two simulated days: one inside the forecast band, one above it.
		{Date: "2026-03-02", Open: 582.0, High: 585.0, Low: 581.5, Close: 584.0},
		{Date: "2026-03-03", Open: 588.0, High: 590.0, Low: 587.0, Close: 589.0},
	}
}

func newSimulator(store *memStore, market *fakeMarket, fc *fakeForecaster) *Simulator {
	scorer := NewScorer(store, nopMetrics{}, nil, logger.Nop())
	return NewSimulator(store, market, fc, scorer, nopMetrics{}, "SPY", 0.25, logger.Nop())
}

func TestSimulatorBackfillsAndScores(t *testing.T) {
	store := newMemStore()
	market := &fakeMarket{history: simBars()}
	fc := &fakeForecaster{forecast: validForecast()}
	ctx := context.Background()

	report, err := newSimulator(store, market, fc).Run(ctx, SimulationParams{
		EndDate: "2026-03-03", Days: 2, Lookback: 3,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if report.DaysSimulated != 2 || len(report.Skipped) != 0 {
		t.Fatalf("simulated = %d, skipped = %v", report.DaysSimulated, report.Skipped)
	}
	if report.StartDate != "2026-03-02" || report.EndDate != "2026-03-03" {
		t.Errorf("period = %s..%s", report.StartDate, report.EndDate)
	}

	// Band [581.25, 586.00]: 03-02 realizes inside it, 03-03 gaps above.
	if report.RangeHitRate != 0.5 {
		t.Errorf("hitRate = %.2f, want 0.50", report.RangeHitRate)
	}
	// Mid 583.625: errors 0.375 and 5.375, mean 2.875, grade D.
	if math.Abs(report.MeanAbsError-2.875) > 1e-9 {
		t.Errorf("meanAbsError = %.4f, want 2.8750", report.MeanAbsError)
	}
	if report.WithinOneDollar != 0.5 || report.WithinTwoDollars != 0.5 {
		t.Errorf("within bands = %.2f/%.2f, want 0.50/0.50", report.WithinOneDollar, report.WithinTwoDollars)
	}
	if report.Grade != "D" {
		t.Errorf("grade = %q, want D", report.Grade)
	}

	rec, err := store.Get(ctx, "2026-03-02")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Source != models.SourceSimulation || !rec.Locked {
		t.Errorf("record source=%q locked=%v, want simulation/locked", rec.Source, rec.Locked)
	}
	if !rec.Scored() {
		t.Error("simulated record not scored")
	}
	if _, ok := rec.Checkpoints[models.CheckpointPreMarket]; ok {
		t.Error("daily bars cannot produce a preMarket capture")
	}
	if cp := rec.Checkpoints[models.CheckpointClose]; cp.Price != 584.0 {
		t.Errorf("close = %.2f, want 584.00", cp.Price)
	}
}

func TestSimulatorForecasterSeesOnlyPriorBars(t *testing.T) {
	store := newMemStore()
	market := &fakeMarket{history: simBars()}
	fc := &fakeForecaster{forecast: validForecast()}

	if _, err := newSimulator(store, market, fc).Run(context.Background(), SimulationParams{
		EndDate: "2026-03-03", Days: 2, Lookback: 3,
	}); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(fc.reqs) != 2 {
		t.Fatalf("forecaster calls = %d, want 2", len(fc.reqs))
	}
	for _, req := range fc.reqs {
		if len(req.History) != 3 {
			t.Errorf("history for %s has %d bars, want 3", req.Date, len(req.History))
		}
		for _, bar := range req.History {
			if bar.Date >= req.Date {
				t.Errorf("history for %s leaks bar %s", req.Date, bar.Date)
			}
		}
	}
}

func TestSimulatorSkipsExistingRecord(t *testing.T) {
	store := newMemStore()
	market := &fakeMarket{history: simBars()}
	fc := &fakeForecaster{forecast: validForecast()}
	ctx := context.Background()

	if err := store.Create(ctx, &models.PredictionRecord{Date: "2026-03-03", Source: models.SourceHuman}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	report, err := newSimulator(store, market, fc).Run(ctx, SimulationParams{
		EndDate: "2026-03-03", Days: 2, Lookback: 3,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.DaysSimulated != 1 {
		t.Fatalf("simulated = %d, want 1", report.DaysSimulated)
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Date != "2026-03-03" {
		t.Fatalf("skipped = %+v", report.Skipped)
	}

	// The human row survives untouched.
	rec, _ := store.Get(ctx, "2026-03-03")
	if rec.Source != models.SourceHuman || rec.Locked {
		t.Errorf("existing record mutated: source=%q locked=%v", rec.Source, rec.Locked)
	}
}

func TestSimulatorForecastFailureSkipsDay(t *testing.T) {
	store := newMemStore()
	market := &fakeMarket{history: simBars()}
	fc := &fakeForecaster{err: models.ErrProviderUnavailable}

	report, err := newSimulator(store, market, fc).Run(context.Background(), SimulationParams{
		EndDate: "2026-03-03", Days: 2, Lookback: 3,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.DaysSimulated != 0 || len(report.Skipped) != 2 {
		t.Fatalf("simulated = %d, skipped = %d", report.DaysSimulated, len(report.Skipped))
	}
	if report.Grade != "n/a" {
		t.Errorf("grade = %q, want n/a", report.Grade)
	}
}

func TestSimulatorInsufficientHistory(t *testing.T) {
	store := newMemStore()
	market := &fakeMarket{history: simBars()[:2]}
	fc := &fakeForecaster{forecast: validForecast()}

	_, err := newSimulator(store, market, fc).Run(context.Background(), SimulationParams{
		EndDate: "2026-03-03", Days: 5, Lookback: 3,
	})
	if !errors.Is(err, models.ErrNotReady) {
		t.Fatalf("got %v, want ErrNotReady", err)
	}
}

func TestSimulatorIgnoresBarsAfterEndDate(t *testing.T) {
	store := newMemStore()
	market := &fakeMarket{history: simBars()}
	fc := &fakeForecaster{forecast: validForecast()}

	report, err := newSimulator(store, market, fc).Run(context.Background(), SimulationParams{
		EndDate: "2026-02-27", Days: 2, Lookback: 1,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.StartDate != "2026-02-26" || report.EndDate != "2026-02-27" {
		t.Fatalf("period = %s..%s, want 2026-02-26..2026-02-27", report.StartDate, report.EndDate)
	}
	if _, err := store.Get(context.Background(), "2026-03-02"); !errors.Is(err, models.ErrNotFound) {
		t.Error("simulated a day past the end date")
	}
}
