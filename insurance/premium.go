/*
premium.go - Premium calculator

PURPOSE:
  Prices a policy for a vehicle. Pure: no storage access, no side effects.
  The only hidden input of the formula, the current year, is taken from an
  injectable clock or passed explicitly to CalculateAt.

FORMULA:
  vehicleAge         = referenceYear - registrationYear
  vtMultiplier       = vehicleTypeMultiplier[vehicleType]  (missing key: 1.0)
  covMultiplier      = coverageMultiplier[coverageType]    (missing key: 1.0)
  ageRate            = ageDepreciationPctPerYear           (unset: 2)
  depreciationFactor = clamp(1 - vehicleAge*ageRate/100, 0.5, 1.0)
  finalAmount        = round2(base * vtMultiplier * covMultiplier * depreciationFactor)

DEFAULT TABLES (used when a table is unset):
  vehicle type:  two_wheeler 0.8, four_wheeler 1.0, commercial 1.5
  coverage:      third_party 0.6, comprehensive 1.0, own_damage 0.8

EXAMPLE:
  base 1000, four_wheeler, comprehensive, age 3  -> 1000 * 1.0 * 1.0 * 0.94 = 940.00
  same policy, age 30                            -> factor clamped to 0.5  = 500.00
*/
package insurance

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PRICING RULES
// =============================================================================

const DefaultAgeDepreciationPct = 2.0

var (
	minDepreciation = decimal.NewFromFloat(0.5)
	maxDepreciation = decimal.NewFromInt(1)
	hundred         = decimal.NewFromInt(100)
)

// PricingRules holds the typed rule tables of a policy.
// A nil table means "use the default table"; a missing key in a present
// table prices at 1.0.
type PricingRules struct {
	VehicleTypeMultiplier     map[VehicleType]float64  `json:"vehicleTypeMultiplier,omitempty"`
	AgeDepreciationPctPerYear *float64                 `json:"ageDepreciationPctPerYear,omitempty"`
	CoverageMultiplier        map[CoverageType]float64 `json:"coverageMultiplier,omitempty"`
}

// DefaultVehicleTypeMultiplier returns a fresh copy of the default table.
func DefaultVehicleTypeMultiplier() map[VehicleType]float64 {
	return map[VehicleType]float64{
		VehicleTwoWheeler:  0.8,
		VehicleFourWheeler: 1.0,
		VehicleCommercial:  1.5,
	}
}

// DefaultCoverageMultiplier returns a fresh copy of the default table.
func DefaultCoverageMultiplier() map[CoverageType]float64 {
	return map[CoverageType]float64{
		CoverageThirdParty:    0.6,
		CoverageComprehensive: 1.0,
		CoverageOwnDamage:     0.8,
	}
}

// DefaultPricingRules returns fully populated default rules.
func DefaultPricingRules() PricingRules {
	rate := DefaultAgeDepreciationPct
	return PricingRules{
		VehicleTypeMultiplier:     DefaultVehicleTypeMultiplier(),
		AgeDepreciationPctPerYear: &rate,
		CoverageMultiplier:        DefaultCoverageMultiplier(),
	}
}

// Normalize fills unset tables with defaults. Present tables are copied
// as-is so explicit admin overrides survive.
func (r PricingRules) Normalize() PricingRules {
	out := DefaultPricingRules()
	if len(r.VehicleTypeMultiplier) > 0 {
		out.VehicleTypeMultiplier = make(map[VehicleType]float64, len(r.VehicleTypeMultiplier))
		for k, v := range r.VehicleTypeMultiplier {
			if k.Valid() {
				out.VehicleTypeMultiplier[k] = v
			}
		}
	}
	if len(r.CoverageMultiplier) > 0 {
		out.CoverageMultiplier = make(map[CoverageType]float64, len(r.CoverageMultiplier))
		for k, v := range r.CoverageMultiplier {
			if k.Valid() {
				out.CoverageMultiplier[k] = v
			}
		}
	}
	if r.AgeDepreciationPctPerYear != nil {
		rate := *r.AgeDepreciationPctPerYear
		out.AgeDepreciationPctPerYear = &rate
	}
	return out
}

// Validate rejects negative multipliers and a negative age rate.
func (r PricingRules) Validate() error {
	ve := &ValidationError{}
	for k, v := range r.VehicleTypeMultiplier {
		if v < 0 {
			ve.Add("pricingRules.vehicleTypeMultiplier."+string(k), v, "must be greater than or equal to 0")
		}
	}
	for k, v := range r.CoverageMultiplier {
		if v < 0 {
			ve.Add("pricingRules.coverageMultiplier."+string(k), v, "must be greater than or equal to 0")
		}
	}
	if r.AgeDepreciationPctPerYear != nil && *r.AgeDepreciationPctPerYear < 0 {
		ve.Add("pricingRules.ageDepreciationPctPerYear", *r.AgeDepreciationPctPerYear, "must be greater than or equal to 0")
	}
	return ve.OrNil()
}

// =============================================================================
// BREAKDOWN
// =============================================================================

// Breakdown records every intermediate factor for audit and display.
type Breakdown struct {
	ReferenceYear             int             `json:"referenceYear"`
	VehicleAge                int             `json:"vehicleAge"`
	BaseAmount                decimal.Decimal `json:"baseAmount"`
	VehicleType               VehicleType     `json:"vehicleType"`
	VehicleTypeMultiplier     decimal.Decimal `json:"vehicleTypeMultiplier"`
	CoverageType              CoverageType    `json:"coverageType"`
	CoverageMultiplier        decimal.Decimal `json:"coverageMultiplier"`
	AgeDepreciationPctPerYear decimal.Decimal `json:"ageDepreciationPctPerYear"`
	RawDepreciation           decimal.Decimal `json:"rawDepreciation"`
	DepreciationFactor        decimal.Decimal `json:"depreciationFactor"`
	FinalAmount               decimal.Decimal `json:"finalAmount"`
}

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator prices policies. Now defaults to time.Now.
type Calculator struct {
	Now func() time.Time
}

// NewCalculator returns a calculator reading the wall clock.
func NewCalculator() *Calculator {
	return &Calculator{Now: time.Now}
}

// Calculate prices the policy for the vehicle as of the calculator's clock.
func (c *Calculator) Calculate(policy Policy, vehicle Vehicle) Breakdown {
	now := time.Now
	if c != nil && c.Now != nil {
		now = c.Now
	}
	return CalculateAt(policy, vehicle, now())
}

// CalculateAt prices the policy for the vehicle with ref as the reference date.
func CalculateAt(policy Policy, vehicle Vehicle, ref time.Time) Breakdown {
	rules := policy.PricingRules.Normalize()

	age := ref.Year() - vehicle.RegistrationYear

	vt := 1.0
	if m, ok := rules.VehicleTypeMultiplier[vehicle.VehicleType]; ok {
		vt = m
	}
	cov := 1.0
	if m, ok := rules.CoverageMultiplier[policy.CoverageType]; ok {
		cov = m
	}
	rate := decimal.NewFromFloat(*rules.AgeDepreciationPctPerYear)

	raw := maxDepreciation.Sub(decimal.NewFromInt(int64(age)).Mul(rate).Div(hundred))
	factor := decimal.Min(decimal.Max(raw, minDepreciation), maxDepreciation)

	vtDec := decimal.NewFromFloat(vt)
	covDec := decimal.NewFromFloat(cov)
	final := RoundMoney(policy.BaseAmount.Mul(vtDec).Mul(covDec).Mul(factor))
	if final.IsNegative() {
		final = decimal.Zero
	}

	return Breakdown{
		ReferenceYear:             ref.Year(),
		VehicleAge:                age,
		BaseAmount:                policy.BaseAmount,
		VehicleType:               vehicle.VehicleType,
		VehicleTypeMultiplier:     vtDec,
		CoverageType:              policy.CoverageType,
		CoverageMultiplier:        covDec,
		AgeDepreciationPctPerYear: rate,
		RawDepreciation:           raw,
		DepreciationFactor:        factor,
		FinalAmount:               final,
	}
}
