package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/carmandale/SPY-tracker-sub000/internal/domain/models"
	drepo "github.com/carmandale/SPY-tracker-sub000/internal/domain/repository"
	"github.com/carmandale/SPY-tracker-sub000/pkg/cache"
	"github.com/carmandale/SPY-tracker-sub000/pkg/logger"
)

// Grade buckets on rolling hit rate.
const (
	gradeA = 0.80
	gradeB = 0.65
	gradeC = 0.50
	gradeD = 0.40
)

// Tip thresholds: persistent misses mean the band is too tight, a
// near-perfect hit rate with tiny errors means it is wastefully wide.
const (
	tipWidenBelow     = 0.55
	tipNarrowAbove    = 0.85
	tipNarrowMaxErr   = 0.005 // median error as a fraction of close
	trendDeadBand     = 0.05
)

// Calibration computes the rolling accuracy report. Reports are derived
// from scored records on every read and cached; the scorer invalidates
// the cache, so a report can lag a new score only until that happens.
type Calibration struct {
	store   drepo.RecordStore
	cache   cache.Service
	ttl     time.Duration
	metrics drepo.Metrics
	log     *logger.Logger
}

func NewCalibration(store drepo.RecordStore, c cache.Service, ttl time.Duration, metrics drepo.Metrics, log *logger.Logger) *Calibration {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Calibration{
		store:   store,
		cache:   c,
		ttl:     ttl,
		metrics: metrics,
		log:     log.With("calibration"),
	}
}

// Report returns the calibration summary over the last window scored
// days. Fewer scored days than the window is fine: the report says so via
// SampleCount and grades what exists.
func (u *Calibration) Report(ctx context.Context, window int) (*models.CalibrationReport, error) {
	key := cacheKey(window)
	if u.cache != nil {
		var cached models.CalibrationReport
		if err := u.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	records, err := u.store.RecentScored(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("calibration window %d: %w", window, err)
	}

	report := buildReport(window, records)

	if u.cache != nil {
		if err := u.cache.Set(ctx, key, report, u.ttl); err != nil {
			u.metrics.RecordError("calibration_cache")
			u.log.Warn("cache set failed", logger.Error(err))
		}
	}
	return report, nil
}

// Invalidate drops every cached window. Called after each scoring run.
func (u *Calibration) Invalidate(ctx context.Context) {
	if u.cache == nil {
		return
	}
	if err := u.cache.DeleteByPattern(ctx, "calibration:*"); err != nil {
		u.metrics.RecordError("calibration_cache")
		u.log.Warn("cache invalidation failed", logger.Error(err))
	}
}

func cacheKey(window int) string {
	return fmt.Sprintf("calibration:window:%d", window)
}

// buildReport computes hit rate, median error, grade, trend and tip from
// scored records ordered most recent first.
func buildReport(window int, records []*models.PredictionRecord) *models.CalibrationReport {
	report := &models.CalibrationReport{
		WindowSize:  window,
		SampleCount: len(records),
		Trend:       models.TrendSteady,
	}
	if len(records) == 0 {
		report.Grade = "n/a"
		report.Tip = "no scored days yet; capture and score a few sessions first"
		return report
	}

	var (
		hits      int
		absErrs   []float64
		errFracs  []float64
	)
	for _, rec := range records {
		if rec.RangeHit != nil && *rec.RangeHit {
			hits++
		}
		if rec.AbsErrorToClose != nil {
			absErrs = append(absErrs, *rec.AbsErrorToClose)
			if closePrice, ok := rec.ClosePrice(); ok && closePrice > 0 {
				errFracs = append(errFracs, *rec.AbsErrorToClose/closePrice)
			}
		}
	}

	report.HitRate = float64(hits) / float64(len(records))
	report.MedianAbsError = median(absErrs)
	report.Grade = grade(report.HitRate)
	report.Trend = trend(records)
	report.Tip = tip(report.HitRate, median(errFracs))
	return report
}

func grade(hitRate float64) string {
	switch {
	case hitRate >= gradeA:
		return "A"
	case hitRate >= gradeB:
		return "B"
	case hitRate >= gradeC:
		return "C"
	case hitRate >= gradeD:
		return "D"
	default:
		return "F"
	}
}

func tip(hitRate, medianErrFrac float64) string {
	switch {
	case hitRate < tipWidenBelow:
		return "bands are missing often; widen the predicted range"
	case hitRate > tipNarrowAbove && medianErrFrac <= tipNarrowMaxErr:
		return "bands are comfortably wide; tighten the predicted range"
	default:
		return "calibration looks healthy; keep the current band width"
	}
}

// trend splits the window into the newer and older halves and compares
// hit rates. Records arrive most recent first. A gap below the dead band
// reads as steady; fewer than four samples cannot establish a trend.
func trend(records []*models.PredictionRecord) models.Trend {
	if len(records) < 4 {
		return models.TrendSteady
	}

	half := len(records) / 2
	newer := hitRateOf(records[:half])
	older := hitRateOf(records[len(records)-half:])

	switch {
	case newer-older > trendDeadBand:
		return models.TrendImproving
	case older-newer > trendDeadBand:
		return models.TrendDegrading
	default:
		return models.TrendSteady
	}
}

func hitRateOf(records []*models.PredictionRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	hits := 0
	for _, rec := range records {
		if rec.RangeHit != nil && *rec.RangeHit {
			hits++
		}
	}
	return float64(hits) / float64(len(records))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
