package domain

// Opportunity is one scored buy-on-origin / sell-on-destination candidate.
// It is an immutable value, produced once per poll and never persisted.
type Opportunity struct {
	Origin          string
	Destination     string
	Currency        string
	ProfitEstimate  float64 // in the quote asset
	Size            float64 // whole currency units; 0 when below the minimum order size
	OriginRate      float64 // origin ask
	DestinationRate float64 // destination bid
	SpreadPct       float64
}

// Actionable reports whether the opportunity is worth executing.
func (o Opportunity) Actionable(minSpreadPct float64) bool {
	return o.ProfitEstimate > 0 && o.SpreadPct >= minSpreadPct
}
