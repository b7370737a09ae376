package models

// ForecastRequest is the payload sent to the forecasting service: the
// target date plus the market context the model reasons over.
type ForecastRequest struct {
	Symbol    string     `json:"symbol"`
	Date      Date       `json:"date"`
	LivePrice float64    `json:"livePrice,omitempty"`
	History   []DailyBar `json:"history"`
}

// CheckpointForecast is one per-checkpoint entry of a forecast payload.
// The service is untrusted input; every field is validated before anything
// derived from it is persisted.
type CheckpointForecast struct {
	Checkpoint string  `json:"checkpoint" validate:"required,oneof=open noon midAfternoon close"`
	Price      float64 `json:"price" validate:"required,gt=0"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
	Rationale  string  `json:"rationale" validate:"max=200"`
}

// DayForecast is the validated response of the forecasting service: one
// prediction per forecast checkpoint plus a qualitative sentiment summary.
type DayForecast struct {
	Date        Date                 `json:"date"`
	Checkpoints []CheckpointForecast `json:"checkpoints" validate:"required,len=4,dive"`
	Sentiment   string               `json:"sentiment" validate:"max=2000"`
	Bias        string               `json:"bias" validate:"omitempty,oneof=bullish bearish neutral"`
	DayType     string               `json:"dayType" validate:"max=40"`
}

// BandFromForecast derives the predicted band as the min/max of the
// per-checkpoint forecasts, snapped to the instrument tick. A degenerate
// flat forecast is widened by one tick so the band invariant
// (high > low) always holds.
func BandFromForecast(f *DayForecast, tick float64) Band {
	var low, high float64
	for i, cp := range f.Checkpoints {
		if i == 0 || cp.Price < low {
			low = cp.Price
		}
		if i == 0 || cp.Price > high {
			high = cp.Price
		}
	}
	low = RoundToTick(low, tick)
	high = RoundToTick(high, tick)
	if high <= low {
		high = low + tick
	}
	return Band{Low: low, High: high}
}
