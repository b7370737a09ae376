package models

// Trend compares the newer half of the calibration window against the
// older half.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendSteady    Trend = "steady"
	TrendDegrading Trend = "degrading"
)

// CalibrationReport is the rolling accuracy summary over the last N scored
// days. It is never stored; it is recomputed from record history on every
// read (behind an invalidated cache), so it can never drift from the rows
// it derives from.
type CalibrationReport struct {
	WindowSize     int     `json:"windowSize"`
	SampleCount    int     `json:"sampleCount"`
	HitRate        float64 `json:"hitRate"`
	MedianAbsError float64 `json:"medianAbsError"`
	Tip            string  `json:"tip"`
	Grade          string  `json:"grade"`
	Trend          Trend   `json:"trend"`
}
