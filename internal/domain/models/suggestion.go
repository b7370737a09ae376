package models

// Horizon is one of the three fixed option tenors suggestions are built
// for.
type Horizon string

const (
	HorizonSameDay  Horizon = "sameDay"
	HorizonOneWeek  Horizon = "oneWeek"
	HorizonOneMonth Horizon = "oneMonth"
)

// Horizons lists the tenors in order of expiry.
func Horizons() []Horizon {
	return []Horizon{HorizonSameDay, HorizonOneWeek, HorizonOneMonth}
}

// Structure names the option structure a suggestion proposes.
type Structure string

const (
	StructureIronCondor Structure = "ironCondor"
	StructurePutSpread  Structure = "putSpread"
	StructureCallSpread Structure = "callSpread"
)

// StructureSuggestion is one candidate option structure derived from the
// predicted band, the stated bias and the rolling calibration. Offsets are
// distances from spot in price points, snapped to the strike step.
type StructureSuggestion struct {
	Horizon        Horizon   `json:"horizon"`
	DaysToExpiry   int       `json:"daysToExpiry"`
	Structure      Structure `json:"structure"`
	ExpectedMove   float64   `json:"expectedMove"`
	ShortOffset    float64   `json:"shortOffset"`
	LongOffset     float64   `json:"longOffset"`
	TargetCredit   float64   `json:"targetCredit"`
	ManagementNote string    `json:"managementNote"`
}
