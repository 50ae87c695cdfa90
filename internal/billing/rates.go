package billing

import "github.com/gdprop/waterbill/internal/storage"

// Fixed charge category names.
const (
	CategoryWaterRate  = "Water Rate"
	CategorySewerRate  = "Sewer Rate"
	CategoryWaterBase  = "Water Base"
	CategoryStormwater = "Stormwater"
	CategorySewerBase  = "Sewer Base"
	CategoryRiverFund  = "Clean River Fund"
)

// PropertyChampion is billed at double the flat per-day charges. The
// per-CCF rates are never doubled.
const PropertyChampion = "Champion"

// RateSnapshot is the rate table read once at computation time. The engine
// never reaches into storage; callers hand it an explicit snapshot so the
// computation stays pure and testable.
type RateSnapshot struct {
	WaterRate  float64 // per CCF
	SewerRate  float64 // per CCF
	WaterBase  float64 // per day
	Stormwater float64 // per day
	SewerBase  float64 // per day
	RiverFund  float64 // per day
}

// SnapshotRates builds a RateSnapshot from rate table rows. A missing
// category resolves to 0; it never fails the bill.
func SnapshotRates(entries []storage.RateEntry) RateSnapshot {
	var s RateSnapshot
	for _, e := range entries {
		switch e.Category {
		case CategoryWaterRate:
			s.WaterRate = e.Rate
		case CategorySewerRate:
			s.SewerRate = e.Rate
		case CategoryWaterBase:
			s.WaterBase = e.Rate
		case CategoryStormwater:
			s.Stormwater = e.Rate
		case CategorySewerBase:
			s.SewerBase = e.Rate
		case CategoryRiverFund:
			s.RiverFund = e.Rate
		}
	}
	return s
}

// ForProperty returns the snapshot adjusted for the given property: Champion
// units pay double the four per-day rates. Everything else is unchanged.
func (s RateSnapshot) ForProperty(property string) RateSnapshot {
	if property != PropertyChampion {
		return s
	}
	out := s
	out.WaterBase *= 2
	out.Stormwater *= 2
	out.SewerBase *= 2
	out.RiverFund *= 2
	return out
}
