package models

// SimulationDay is one backdated trading day the simulator predicted and
// scored against the historical bar.
type SimulationDay struct {
	Date            Date    `json:"date"`
	Band            Band    `json:"band"`
	Close           float64 `json:"close"`
	RangeHit        bool    `json:"rangeHit"`
	AbsErrorToClose float64 `json:"absErrorToClose"`
}

// SkippedDay records a simulation date that produced no record and why.
type SkippedDay struct {
	Date   Date   `json:"date"`
	Reason string `json:"reason"`
}

// SimulationReport aggregates a backfill run. Rates are fractions over
// the simulated days; WithinOneDollar and WithinTwoDollars count days
// whose close landed that near the band midpoint.
type SimulationReport struct {
	StartDate        Date            `json:"startDate"`
	EndDate          Date            `json:"endDate"`
	DaysRequested    int             `json:"daysRequested"`
	DaysSimulated    int             `json:"daysSimulated"`
	RangeHitRate     float64         `json:"rangeHitRate"`
	MeanAbsError     float64         `json:"meanAbsError"`
	WithinOneDollar  float64         `json:"withinOneDollar"`
	WithinTwoDollars float64         `json:"withinTwoDollars"`
	Grade            string          `json:"grade"`
	Days             []SimulationDay `json:"days"`
	Skipped          []SkippedDay    `json:"skipped,omitempty"`
}
