package models

// HTTP request DTOs for the tracker API. Bound by echo, defaulted by
// creasty/defaults and checked by go-playground/validator.

// CalibrationRequest selects the rolling window.
type CalibrationRequest struct {
	Window int `query:"window" default:"20" validate:"gte=1,lte=250"`
}

// SuggestionsRequest tunes the suggestion engine per call.
type SuggestionsRequest struct {
	Window int `query:"window" default:"20" validate:"gte=1,lte=250"`
}

// TriggerRequest carries options for a manual job run.
type TriggerRequest struct {
	// Date overrides the trading date, defaulting to today in the market
	// timezone. Administrative re-runs for past days pass it explicitly.
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	// Force allows a re-capture to overwrite an already captured slot.
	Force bool `json:"force"`
}

// SimulationRequest drives a historical backfill run.
type SimulationRequest struct {
	// EndDate is the last trading day to simulate, defaulting to today in
	// the market timezone.
	EndDate  string `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
	Days     int    `json:"days" default:"10" validate:"gte=1,lte=60"`
	Lookback int    `json:"lookback" default:"5" validate:"gte=1,lte=40"`
}

// JobStatusResponse is one entry of the scheduler introspection listing.
type JobStatusResponse struct {
	Name        string `json:"name"`
	NextRun     string `json:"nextRun,omitempty"`
	LastRun     string `json:"lastRun,omitempty"`
	LastOutcome string `json:"lastOutcome,omitempty"`
}
