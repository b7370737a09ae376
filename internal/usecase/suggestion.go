package usecase

import (
	"context"
	"fmt"
	"math"

	"github.com/carmandale/SPY-tracker-sub000/internal/domain/models"
	drepo "github.com/carmandale/SPY-tracker-sub000/internal/domain/repository"
)

// SuggestionParams tune the engine. Zero values fall back to defaults.
type SuggestionParams struct {
	// DefaultVol stands in for an implied-volatility feed.
	DefaultVol float64
	// StrikeStep is the strike granularity offsets snap to.
	StrikeStep float64
	// SymmetricHitRate is the calibration hit rate at or above which a
	// neutral bias earns a symmetric structure.
	SymmetricHitRate float64
	// WingWidth is the distance between short and long strikes.
	WingWidth float64
}

func (p *SuggestionParams) defaults() {
	if p.DefaultVol <= 0 {
		p.DefaultVol = 0.15
	}
	if p.StrikeStep <= 0 {
		p.StrikeStep = 1.0
	}
	if p.SymmetricHitRate <= 0 {
		p.SymmetricHitRate = 0.65
	}
	if p.WingWidth <= 0 {
		p.WingWidth = 5.0
	}
}

var horizonDays = map[models.Horizon]int{
	models.HorizonSameDay:  0,
	models.HorizonOneWeek:  7,
	models.HorizonOneMonth: 30,
}

// SuggestionEngine derives candidate option structures from a day's band,
// its bias and the rolling calibration. BuildSuggestions is a pure
// function; Suggest merely loads its inputs.
type SuggestionEngine struct {
	store       drepo.RecordStore
	calibration *Calibration
	params      SuggestionParams
}

func NewSuggestionEngine(store drepo.RecordStore, calibration *Calibration, params SuggestionParams) *SuggestionEngine {
	params.defaults()
	return &SuggestionEngine{
		store:       store,
		calibration: calibration,
		params:      params,
	}
}

// Suggest loads the day's record and the calibration report and builds
// suggestions. A day without a claimed band has nothing to suggest from
// and returns models.ErrNotReady.
func (u *SuggestionEngine) Suggest(ctx context.Context, date models.Date, window int) ([]models.StructureSuggestion, error) {
	rec, err := u.store.Get(ctx, date)
	if err != nil {
		return nil, err
	}
	band, ok := rec.Band()
	if !ok {
		return nil, fmt.Errorf("no band for %s: %w", date, models.ErrNotReady)
	}

	report, err := u.calibration.Report(ctx, window)
	if err != nil {
		return nil, err
	}

	return BuildSuggestions(band, rec.Bias, report, u.params), nil
}

// BuildSuggestions emits one suggestion per horizon. No I/O, no clock:
// identical inputs always produce identical output.
func BuildSuggestions(band models.Band, bias string, cal *models.CalibrationReport, params SuggestionParams) []models.StructureSuggestion {
	params.defaults()
	spot := band.Mid()

	suggestions := make([]models.StructureSuggestion, 0, len(models.Horizons()))
	for _, horizon := range models.Horizons() {
		days := horizonDays[horizon]

		expectedMove := expectedMove(spot, band, params.DefaultVol, days)
		structure := chooseStructure(bias, cal, params)
		shortOffset := snapUp(expectedMove, params.StrikeStep)
		longOffset := shortOffset + params.WingWidth

		suggestions = append(suggestions, models.StructureSuggestion{
			Horizon:        horizon,
			DaysToExpiry:   days,
			Structure:      structure,
			ExpectedMove:   round2(expectedMove),
			ShortOffset:    shortOffset,
			LongOffset:     longOffset,
			TargetCredit:   targetCredit(structure, params.WingWidth, cal.HitRate),
			ManagementNote: managementNote(structure, horizon),
		})
	}
	return suggestions
}

// expectedMove approximates price * vol * sqrt(dte/365). Same-day expiry
// has no overnight variance left, so the band half-width stands in.
func expectedMove(spot float64, band models.Band, vol float64, days int) float64 {
	if days <= 0 {
		return band.Width() / 2
	}
	return spot * vol * math.Sqrt(float64(days)/365)
}

// chooseStructure picks symmetric when the bias is neutral and the
// calibration says bands have been trustworthy, directional otherwise.
func chooseStructure(bias string, cal *models.CalibrationReport, params SuggestionParams) models.Structure {
	if (bias == "" || bias == "neutral") && cal.HitRate >= params.SymmetricHitRate {
		return models.StructureIronCondor
	}
	if bias == "bearish" {
		return models.StructureCallSpread
	}
	return models.StructurePutSpread
}

// targetCredit estimates receivable premium as a share of the wing,
// richer when calibration is weak since strikes then sit closer to spot.
func targetCredit(structure models.Structure, wing, hitRate float64) float64 {
	share := 0.30
	if hitRate < 0.50 {
		share = 0.35
	}
	if structure == models.StructureIronCondor {
		share *= 2 // both sides collect
	}
	return round2(wing * share)
}

func managementNote(structure models.Structure, horizon models.Horizon) string {
	if horizon == models.HorizonSameDay {
		return "close or roll before the last hour; no overnight risk"
	}
	if structure == models.StructureIronCondor {
		return "take profit at 50% of credit; exit if either short strike is breached"
	}
	return "take profit at 50% of credit; exit on a close beyond the short strike"
}

// snapUp rounds distance up to the strike step, never down: a short
// strike inside the expected move would be closer than the model allows.
func snapUp(distance, step float64) float64 {
	if step <= 0 {
		return distance
	}
	return math.Ceil(distance/step) * step
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
