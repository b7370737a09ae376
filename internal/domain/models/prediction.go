package models

import (
	"fmt"
	"math"
	"time"
)

// Date is a calendar trading date in "2006-01-02" form. Records are keyed
// by it; using the civil date instead of a time.Time keeps timezone
// handling at the scheduler boundary.
type Date string

const dateLayout = "2006-01-02"

// DateOf returns the civil date of t in t's location.
func DateOf(t time.Time) Date {
	return Date(t.Format(dateLayout))
}

// ParseDate validates s as a calendar date.
func ParseDate(s string) (Date, error) {
	if _, err := time.Parse(dateLayout, s); err != nil {
		return "", fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date(s), nil
}

// Time returns midnight of the date in loc.
func (d Date) Time(loc *time.Location) time.Time {
	t, _ := time.ParseInLocation(dateLayout, string(d), loc)
	return t
}

func (d Date) String() string { return string(d) }

// Checkpoint names a fixed time-of-day at which a reference price is
// captured.
type Checkpoint string

const (
	CheckpointPreMarket    Checkpoint = "preMarket"
	CheckpointOpen         Checkpoint = "open"
	CheckpointNoon         Checkpoint = "noon"
	CheckpointMidAfternoon Checkpoint = "midAfternoon"
	CheckpointClose        Checkpoint = "close"
)

// Checkpoints lists all capture checkpoints in intraday order.
func Checkpoints() []Checkpoint {
	return []Checkpoint{
		CheckpointPreMarket,
		CheckpointOpen,
		CheckpointNoon,
		CheckpointMidAfternoon,
		CheckpointClose,
	}
}

// ForecastCheckpoints lists the checkpoints the forecasting service
// predicts. preMarket is captured but never forecast.
func ForecastCheckpoints() []Checkpoint {
	return []Checkpoint{
		CheckpointOpen,
		CheckpointNoon,
		CheckpointMidAfternoon,
		CheckpointClose,
	}
}

// ValidCheckpoint reports whether name is a known checkpoint.
func ValidCheckpoint(name string) bool {
	for _, cp := range Checkpoints() {
		if string(cp) == name {
			return true
		}
	}
	return false
}

// Provenance tags where a captured price came from.
type Provenance string

const (
	ProvenanceOfficial     Provenance = "official"
	ProvenanceLiveFallback Provenance = "liveFallback"
)

// Source tags who created a prediction record.
type Source string

const (
	SourceHuman      Source = "human"
	SourceForecast   Source = "forecastService"
	SourceSimulation Source = "simulation"
)

// Band is the predicted [low, high] price interval for a trading day.
type Band struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Valid reports whether the band is well formed (high strictly above low).
func (b Band) Valid() bool { return b.High > b.Low && b.Low > 0 }

// Mid returns the band midpoint.
func (b Band) Mid() float64 { return (b.Low + b.High) / 2 }

// Width returns the band width in price points.
func (b Band) Width() float64 { return b.High - b.Low }

// CheckpointPrice is one captured slot of a record: the price and the
// provenance that produced it.
type CheckpointPrice struct {
	Price      float64    `json:"price"`
	Provenance Provenance `json:"provenance"`
}

// PredictionRecord is the day-keyed row holding the morning band, the
// captured checkpoint prices and the derived accuracy fields. Exactly one
// exists per calendar date; the store enforces that with a unique
// constraint.
type PredictionRecord struct {
	Date Date `json:"date"`

	// Band and categorical context. Immutable once Locked.
	PredLow  *float64 `json:"predLow"`
	PredHigh *float64 `json:"predHigh"`
	Bias     string   `json:"bias"`
	VolCtx   string   `json:"volCtx"`
	DayType  string   `json:"dayType"`

	KeyLevels []float64 `json:"keyLevels,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	Sentiment string    `json:"sentiment,omitempty"`

	Source Source `json:"source"`
	Locked bool   `json:"locked"`

	// Captured prices by checkpoint. Absent entries render as "no data
	// yet", never as a fabricated value.
	Checkpoints map[Checkpoint]CheckpointPrice `json:"checkpoints"`

	// Derived by the scorer.
	RealizedLow      *float64   `json:"realizedLow"`
	RealizedHigh     *float64   `json:"realizedHigh"`
	RangeHit         *bool      `json:"rangeHit"`
	AbsErrorToClose  *float64   `json:"absErrorToClose"`
	ScoredAt         *time.Time `json:"scoredAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Band returns the predicted band, or false when not set.
func (r *PredictionRecord) Band() (Band, bool) {
	if r.PredLow == nil || r.PredHigh == nil {
		return Band{}, false
	}
	return Band{Low: *r.PredLow, High: *r.PredHigh}, true
}

// Scored reports whether the close-of-day scorer has run on this record.
func (r *PredictionRecord) Scored() bool {
	return r.RealizedLow != nil && r.RealizedHigh != nil && r.RangeHit != nil
}

// ClosePrice returns the captured close, or false when missing.
func (r *PredictionRecord) ClosePrice() (float64, bool) {
	cp, ok := r.Checkpoints[CheckpointClose]
	if !ok {
		return 0, false
	}
	return cp.Price, true
}

// RoundToTick snaps price to the instrument's minimum tick.
func RoundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Round(price/tick) * tick
}

// DailyBar is one day of OHLC history fed to the forecasting service and
// used for the capture sanity band.
type DailyBar struct {
	Date   Date    `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// BandClaim is the payload written when a band is claimed onto an
// existing unlocked row.
type BandClaim struct {
	Band      Band
	Bias      string
	VolCtx    string
	DayType   string
	Sentiment string
	Notes     string
	Source    Source
}

// CaptureOutcome classifies one checkpoint capture attempt.
type CaptureOutcome string

const (
	CaptureStored   CaptureOutcome = "stored"
	CaptureSkipped  CaptureOutcome = "skipped"
	CaptureRejected CaptureOutcome = "rejected"
)

// CaptureEvent is the audit row emitted on every capture attempt. It is
// what makes "how often did we fall back to the live quote" answerable
// after the fact.
type CaptureEvent struct {
	Date       Date           `json:"date"`
	Checkpoint Checkpoint     `json:"checkpoint"`
	Price      float64        `json:"price"`
	Provenance Provenance     `json:"provenance"`
	Outcome    CaptureOutcome `json:"outcome"`
	Reason     string         `json:"reason,omitempty"`
	Forced     bool           `json:"forced,omitempty"`
	CapturedAt time.Time      `json:"capturedAt"`
}

// CaptureResult is what the capture job returns to its trigger.
type CaptureResult struct {
	Date       Date           `json:"date"`
	Checkpoint Checkpoint     `json:"checkpoint"`
	Outcome    CaptureOutcome `json:"outcome"`
	Price      float64        `json:"price,omitempty"`
	Provenance Provenance     `json:"provenance,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}
