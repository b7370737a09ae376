package usecase

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/carmandale/SPY-tracker-sub000/internal/domain/models"
	"github.com/carmandale/SPY-tracker-sub000/pkg/cache"
	"github.com/carmandale/SPY-tracker-sub000/pkg/logger"
)

// seedScored inserts n scored records, most recent last. hits marks which
// of them (oldest first) landed inside the band.
func seedScored(t *testing.T, store *memStore, hits []bool, absErrs []float64) {
	t.Helper()
	ctx := context.Background()

	for i, hit := range hits {
		date := models.Date(fmt.Sprintf("2026-03-%02d", i+2))
		if err := store.Create(ctx, &models.PredictionRecord{Date: date}); err != nil {
			t.Fatalf("create %s: %v", date, err)
		}
		if err := store.ClaimBand(ctx, date, &models.BandClaim{
			Band: models.Band{Low: 580, High: 587}, Source: models.SourceForecast,
		}); err != nil {
			t.Fatalf("claim %s: %v", date, err)
		}
		if err := store.SetCheckpoint(ctx, date, models.CheckpointClose, 583.50, models.ProvenanceOfficial, false); err != nil {
			t.Fatalf("close %s: %v", date, err)
		}
		if err := store.SetScore(ctx, date, 581, 586, hit, absErrs[i], time.Now()); err != nil {
			t.Fatalf("score %s: %v", date, err)
		}
	}
}

func newCalibration(store *memStore, c cache.Service) *Calibration {
	return NewCalibration(store, c, time.Minute, nopMetrics{}, logger.Nop())
}

func TestCalibrationEmptyWindow(t *testing.T) {
	cal := newCalibration(newMemStore(), nil)

	report, err := cal.Report(context.Background(), 20)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.SampleCount != 0 || report.WindowSize != 20 {
		t.Errorf("counts = %d/%d", report.SampleCount, report.WindowSize)
	}
	if report.Grade != "n/a" {
		t.Errorf("grade = %q, want n/a", report.Grade)
	}
	if report.Trend != models.TrendSteady {
		t.Errorf("trend = %q", report.Trend)
	}
	if report.Tip == "" {
		t.Error("empty window should still carry a tip")
	}
}

func TestCalibrationPartialWindow(t *testing.T) {
	store := newMemStore()
	seedScored(t, store, []bool{true, false, true}, []float64{2.0, 5.0, 3.0})
	cal := newCalibration(store, nil)

	report, err := cal.Report(context.Background(), 20)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if report.SampleCount != 3 {
		t.Errorf("sampleCount = %d, want 3", report.SampleCount)
	}
	if math.Abs(report.HitRate-2.0/3.0) > 1e-9 {
		t.Errorf("hitRate = %v, want 2/3", report.HitRate)
	}
	if report.MedianAbsError != 3.0 {
		t.Errorf("medianAbsError = %v, want 3.0", report.MedianAbsError)
	}
	// 2/3 lands in the B bucket.
	if report.Grade != "B" {
		t.Errorf("grade = %q, want B", report.Grade)
	}
	// Three samples cannot establish a trend.
	if report.Trend != models.TrendSteady {
		t.Errorf("trend = %q, want steady", report.Trend)
	}
}

func TestCalibrationGradeBuckets(t *testing.T) {
	cases := []struct {
		hitRate float64
		want    string
	}{
		{0.90, "A"}, {0.80, "A"},
		{0.79, "B"}, {0.65, "B"},
		{0.64, "C"}, {0.50, "C"},
		{0.49, "D"}, {0.40, "D"},
		{0.39, "F"}, {0.0, "F"},
	}
	for _, tc := range cases {
		if got := grade(tc.hitRate); got != tc.want {
			t.Errorf("grade(%v) = %q, want %q", tc.hitRate, got, tc.want)
		}
	}
}

func TestCalibrationTips(t *testing.T) {
	// Persistent misses ask for wider bands.
	if tip := tip(0.40, 0.003); tip != "bands are missing often; widen the predicted range" {
		t.Errorf("widen tip = %q", tip)
	}
	// Near-perfect hits with tiny errors ask for tighter bands.
	if tip := tip(0.90, 0.004); tip != "bands are comfortably wide; tighten the predicted range" {
		t.Errorf("narrow tip = %q", tip)
	}
	// Near-perfect hits with real errors stay as they are.
	if tip := tip(0.90, 0.02); tip != "calibration looks healthy; keep the current band width" {
		t.Errorf("healthy tip = %q", tip)
	}
}

func TestCalibrationTrend(t *testing.T) {
	// Most recent first, as RecentScored returns them.
	mk := func(hits ...bool) []*models.PredictionRecord {
		out := make([]*models.PredictionRecord, len(hits))
		for i, h := range hits {
			hit := h
			out[i] = &models.PredictionRecord{RangeHit: &hit}
		}
		return out
	}

	if got := trend(mk(true, true, false, false)); got != models.TrendImproving {
		t.Errorf("improving: got %q", got)
	}
	if got := trend(mk(false, false, true, true)); got != models.TrendDegrading {
		t.Errorf("degrading: got %q", got)
	}
	if got := trend(mk(true, false, true, false)); got != models.TrendSteady {
		t.Errorf("steady: got %q", got)
	}
	if got := trend(mk(true, true, false)); got != models.TrendSteady {
		t.Errorf("short window: got %q", got)
	}
}

func TestCalibrationWindowLimits(t *testing.T) {
	store := newMemStore()
	// Five days: the three most recent hit, the two oldest missed.
	seedScored(t, store, []bool{false, false, true, true, true}, []float64{5, 5, 2, 2, 2})
	cal := newCalibration(store, nil)

	full, err := cal.Report(context.Background(), 20)
	if err != nil {
		t.Fatalf("full report: %v", err)
	}
	if full.SampleCount != 5 || math.Abs(full.HitRate-0.6) > 1e-9 {
		t.Errorf("full = %d samples hitRate %v", full.SampleCount, full.HitRate)
	}

	recent, err := cal.Report(context.Background(), 3)
	if err != nil {
		t.Fatalf("recent report: %v", err)
	}
	if recent.SampleCount != 3 || recent.HitRate != 1.0 {
		t.Errorf("recent = %d samples hitRate %v", recent.SampleCount, recent.HitRate)
	}
}

func TestCalibrationCacheAndInvalidate(t *testing.T) {
	store := newMemStore()
	seedScored(t, store, []bool{true}, []float64{2})
	cal := newCalibration(store, cache.NewMemoryCache())
	ctx := context.Background()

	first, err := cal.Report(ctx, 20)
	if err != nil {
		t.Fatalf("first report: %v", err)
	}
	if first.SampleCount != 1 {
		t.Fatalf("sampleCount = %d", first.SampleCount)
	}

	// A new scored day is invisible until the cache is invalidated.
	if err := store.Create(ctx, &models.PredictionRecord{Date: "2026-03-10"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.ClaimBand(ctx, "2026-03-10", &models.BandClaim{
		Band: models.Band{Low: 580, High: 587}, Source: models.SourceForecast,
	}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.SetScore(ctx, "2026-03-10", 578, 586, false, 4, time.Now()); err != nil {
		t.Fatalf("score: %v", err)
	}

	stale, err := cal.Report(ctx, 20)
	if err != nil {
		t.Fatalf("stale report: %v", err)
	}
	if stale.SampleCount != 1 {
		t.Fatalf("cache missed: sampleCount = %d", stale.SampleCount)
	}

	cal.Invalidate(ctx)
	fresh, err := cal.Report(ctx, 20)
	if err != nil {
		t.Fatalf("fresh report: %v", err)
	}
	if fresh.SampleCount != 2 {
		t.Fatalf("after invalidate: sampleCount = %d", fresh.SampleCount)
	}
}
