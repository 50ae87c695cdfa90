package billing

import (
	"errors"
	"fmt"
	"math"

	"github.com/gdprop/waterbill/internal/storage"
)

// GallonsPerCCF converts between the meter's gallons and the billing
// volume unit (hundred cubic feet).
const GallonsPerCCF = 748.0

// ErrMalformedInput marks structural problems with the engine's inputs.
// Missing data for an individual unit is never an error; see Compute.
var ErrMalformedInput = errors.New("malformed billing input")

// GallonsToCCF converts a gallons reading to CCF without rounding.
func GallonsToCCF(gallons float64) float64 {
	return gallons / GallonsPerCCF
}

// ComputedBill is the engine's output for one unit. All currency fields are
// raw float64 with no intermediate rounding; rounding to cents happens only
// at presentation time (see the render package).
type ComputedBill struct {
	TenantID     uint    `json:"tenant_id"`
	TenantName   string  `json:"tenant_name"`
	UnitNumber   string  `json:"unit_number"`
	Property     string  `json:"property"`
	Address      string  `json:"address"`
	PeriodStart  string  `json:"period_start"`
	PeriodEnd    string  `json:"period_end"`
	PeriodSource string  `json:"period_source,omitempty"` // "marker", "explicit" or "default"
	CCFUsage     float64 `json:"ccf_usage"`
	BillingDays  int     `json:"billing_days"`

	// Rate snapshot the bill was computed with (post property adjustment
	// for the per-day components).
	WaterRate float64 `json:"water_rate"`
	SewerRate float64 `json:"sewer_rate"`

	WaterUsage float64 `json:"water_usage"`
	SewerUsage float64 `json:"sewer_usage"`
	WaterBase  float64 `json:"water_base"`
	Stormwater float64 `json:"stormwater"`
	SewerBase  float64 `json:"sewer_base"`
	RiverFund  float64 `json:"river_fund"`

	NewCharges      float64 `json:"new_charges"`
	PreviousBalance float64 `json:"previous_balance"`
	TotalAmount     float64 `json:"total_amount"`
}

// Input carries everything Compute needs for one unit. The engine reads
// nothing else: no storage, no clock, no ambient state.
type Input struct {
	Unit            storage.UnitWithTenant
	CCFUsage        float64
	BillingDays     int
	Period          Period
	PeriodSource    string
	Rates           RateSnapshot
	PreviousBalance float64
}

// Compute produces one bill. Zero usage, a vacant unit or an all-zero rate
// snapshot degrade to zero-valued fields rather than failing.
func Compute(in Input) ComputedBill {
	rates := in.Rates.ForProperty(in.Unit.Property)
	days := float64(in.BillingDays)

	waterUsage := in.CCFUsage * rates.WaterRate
	sewerUsage := in.CCFUsage * rates.SewerRate
	waterBase := rates.WaterBase * days
	stormwater := rates.Stormwater * days
	sewerBase := rates.SewerBase * days
	riverFund := rates.RiverFund * days

	newCharges := waterUsage + sewerUsage + waterBase + stormwater + sewerBase + riverFund

	bill := ComputedBill{
		TenantName:      "No Tenant",
		UnitNumber:      in.Unit.UnitNumber,
		Property:        in.Unit.Property,
		Address:         in.Unit.Address,
		PeriodStart:     in.Period.StartString(),
		PeriodEnd:       in.Period.EndString(),
		PeriodSource:    in.PeriodSource,
		CCFUsage:        in.CCFUsage,
		BillingDays:     in.BillingDays,
		WaterRate:       rates.WaterRate,
		SewerRate:       rates.SewerRate,
		WaterUsage:      waterUsage,
		SewerUsage:      sewerUsage,
		WaterBase:       waterBase,
		Stormwater:      stormwater,
		SewerBase:       sewerBase,
		RiverFund:       riverFund,
		NewCharges:      newCharges,
		PreviousBalance: in.PreviousBalance,
		TotalAmount:     in.PreviousBalance + newCharges,
	}
	if in.Unit.TenantID != nil {
		bill.TenantID = *in.Unit.TenantID
	}
	if in.Unit.TenantName != nil && *in.Unit.TenantName != "" {
		bill.TenantName = *in.Unit.TenantName
	}
	return bill
}

// UsageByUnit maps unit number to CCF consumption for one billing run.
type UsageByUnit map[string]float64

// ComputeAll produces one bill per unit. Units without usage, tenants or
// rates degrade to zeros; the only failure mode is structural (nil unit
// list, non-positive billing days, non-finite usage), checked before any
// per-unit work begins.
func ComputeAll(units []storage.UnitWithTenant, usage UsageByUnit, period Period, periodSource string, rates RateSnapshot) ([]ComputedBill, error) {
	if units == nil {
		return nil, fmt.Errorf("%w: nil unit list", ErrMalformedInput)
	}
	days := period.Days()
	if days <= 0 {
		return nil, fmt.Errorf("%w: billing period yields %d days", ErrMalformedInput, days)
	}
	for unitNumber, ccf := range usage {
		if math.IsNaN(ccf) || math.IsInf(ccf, 0) {
			return nil, fmt.Errorf("%w: non-finite usage for unit %s", ErrMalformedInput, unitNumber)
		}
	}

	bills := make([]ComputedBill, 0, len(units))
	for _, u := range units {
		prev := 0.0
		if u.CurrentBalance != nil {
			prev = *u.CurrentBalance
		}
		bills = append(bills, Compute(Input{
			Unit:            u,
			CCFUsage:        usage[u.UnitNumber],
			BillingDays:     days,
			Period:          period,
			PeriodSource:    periodSource,
			Rates:           rates,
			PreviousBalance: prev,
		}))
	}
	return bills, nil
}

// SumGallonsToUsage converts summed per-unit gallons (the usage-store range
// path) into the per-unit CCF map the engine consumes.
func SumGallonsToUsage(rows []storage.UsageRow) UsageByUnit {
	totals := make(map[string]float64)
	for _, r := range rows {
		totals[r.UnitNumber] += r.Gallons
	}
	usage := make(UsageByUnit, len(totals))
	for unitNumber, gallons := range totals {
		usage[unitNumber] = GallonsToCCF(gallons)
	}
	return usage
}
