/*
Package factory provides JSON to Go policy conversion.

PURPOSE:
  Converts JSON policy definitions into insurance.PolicyInput values. Admin
  tooling and the HTTP API submit policies in this shape, and presets are
  kept as JSON so products can be changed without code changes.

JSON SCHEMA:
  {
    "name": "Comprehensive Gold",
    "description": "Own damage and third-party liability",
    "coverageType": "comprehensive",
    "durationMonths": 12,
    "baseAmount": 12000,
    "isActive": true,
    "pricingRules": {
      "vehicleTypeMultiplier": {"two_wheeler": 0.8, "four_wheeler": 1.0},
      "coverageMultiplier": [{"key": "comprehensive", "value": 1.0}],
      "ageDepreciationPctPerYear": 2
    }
  }

RULE MAPS:
  Both rule tables accept either an object or an array of {key, value}
  pairs. Both shapes normalize to the same typed map. Unknown keys are
  dropped; negative values are rejected by validation.

USAGE:
  f := factory.NewPolicyFactory()
  in, err := f.ParsePolicy(factory.ComprehensiveJSON("Comprehensive Gold", 12000))
  policy, err := catalog.CreatePolicy(ctx, insurance.System, in)

SEE ALSO:
  - insurance/premium.go: PricingRules and their defaults
  - insurance/catalog.go: PolicyInput validation
*/
package factory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/warp/motor-insurance/insurance"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of a policy.
type PolicyJSON struct {
	Name           string            `json:"name"`
	Description    string            `json:"description,omitempty"`
	CoverageType   string            `json:"coverageType"`
	DurationMonths int               `json:"durationMonths"`
	BaseAmount     float64           `json:"baseAmount"`
	IsActive       *bool             `json:"isActive,omitempty"`
	PricingRules   *PricingRulesJSON `json:"pricingRules,omitempty"`
}

// PricingRulesJSON represents the pricing rule tables.
type PricingRulesJSON struct {
	VehicleTypeMultiplier     RuleMap  `json:"vehicleTypeMultiplier,omitempty"`
	CoverageMultiplier        RuleMap  `json:"coverageMultiplier,omitempty"`
	AgeDepreciationPctPerYear *float64 `json:"ageDepreciationPctPerYear,omitempty"`
}

// RulePair is the array form of one rule table entry.
type RulePair struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// RuleMap is a rule table that decodes from either an object or an array
// of RulePair. It always encodes as an object.
type RuleMap map[string]float64

func (m *RuleMap) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*m = nil
		return nil
	}
	if len(data) > 0 && data[0] == '[' {
		var pairs []RulePair
		if err := json.Unmarshal(data, &pairs); err != nil {
			return fmt.Errorf("rule map: %w", err)
		}
		out := make(RuleMap, len(pairs))
		for _, p := range pairs {
			out[p.Key] = p.Value
		}
		*m = out
		return nil
	}
	var obj map[string]float64
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("rule map: %w", err)
	}
	*m = obj
	return nil
}

// Pairs returns the table as sorted {key, value} pairs.
func (m RuleMap) Pairs() []RulePair {
	out := make([]RulePair, 0, len(m))
	for k, v := range m {
		out = append(out, RulePair{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts JSON policies to engine inputs.
type PolicyFactory struct{}

// NewPolicyFactory creates a new policy factory.
func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// ParsePolicy parses a JSON string into a validated PolicyInput.
func (f *PolicyFactory) ParsePolicy(jsonStr string) (insurance.PolicyInput, error) {
	var pj PolicyJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return insurance.PolicyInput{}, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON converts PolicyJSON to a validated PolicyInput.
func (f *PolicyFactory) FromJSON(pj PolicyJSON) (insurance.PolicyInput, error) {
	in := insurance.PolicyInput{
		Name:           pj.Name,
		Description:    pj.Description,
		CoverageType:   insurance.CoverageType(pj.CoverageType),
		DurationMonths: pj.DurationMonths,
		BaseAmount:     pj.BaseAmount,
		IsActive:       pj.IsActive,
	}
	if pj.PricingRules != nil {
		in.PricingRules = parsePricingRules(*pj.PricingRules)
	}
	if err := in.Validate(); err != nil {
		return insurance.PolicyInput{}, err
	}
	return in, nil
}

// ToJSON converts a Policy to PolicyJSON.
func (f *PolicyFactory) ToJSON(p insurance.Policy) PolicyJSON {
	active := p.IsActive
	base, _ := p.BaseAmount.Float64()
	rules := p.PricingRules.Normalize()

	pj := PolicyJSON{
		Name:           p.Name,
		Description:    p.Description,
		CoverageType:   string(p.CoverageType),
		DurationMonths: p.DurationMonths,
		BaseAmount:     base,
		IsActive:       &active,
		PricingRules: &PricingRulesJSON{
			VehicleTypeMultiplier:     RuleMap{},
			CoverageMultiplier:        RuleMap{},
			AgeDepreciationPctPerYear: rules.AgeDepreciationPctPerYear,
		},
	}
	for k, v := range rules.VehicleTypeMultiplier {
		pj.PricingRules.VehicleTypeMultiplier[string(k)] = v
	}
	for k, v := range rules.CoverageMultiplier {
		pj.PricingRules.CoverageMultiplier[string(k)] = v
	}
	return pj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

// parsePricingRules keeps only known enum keys. Negative values pass
// through so validation can report them.
func parsePricingRules(rj PricingRulesJSON) insurance.PricingRules {
	var r insurance.PricingRules
	if len(rj.VehicleTypeMultiplier) > 0 {
		r.VehicleTypeMultiplier = make(map[insurance.VehicleType]float64)
		for k, v := range rj.VehicleTypeMultiplier {
			if vt := insurance.VehicleType(k); vt.Valid() {
				r.VehicleTypeMultiplier[vt] = v
			}
		}
	}
	if len(rj.CoverageMultiplier) > 0 {
		r.CoverageMultiplier = make(map[insurance.CoverageType]float64)
		for k, v := range rj.CoverageMultiplier {
			if ct := insurance.CoverageType(k); ct.Valid() {
				r.CoverageMultiplier[ct] = v
			}
		}
	}
	if rj.AgeDepreciationPctPerYear != nil {
		rate := *rj.AgeDepreciationPctPerYear
		r.AgeDepreciationPctPerYear = &rate
	}
	return r
}

// =============================================================================
// PRESET POLICIES
// =============================================================================

// ThirdPartyJSON returns a one-year third-party liability policy.
func ThirdPartyJSON(name string, baseAmount float64) string {
	return fmt.Sprintf(`{
		"name": %q,
		"description": "Mandatory third-party liability cover",
		"coverageType": "third_party",
		"durationMonths": 12,
		"baseAmount": %g
	}`, name, baseAmount)
}

// ComprehensiveJSON returns a one-year comprehensive policy with default
// pricing rules spelled out in array form.
func ComprehensiveJSON(name string, baseAmount float64) string {
	return fmt.Sprintf(`{
		"name": %q,
		"description": "Own damage and third-party liability",
		"coverageType": "comprehensive",
		"durationMonths": 12,
		"baseAmount": %g,
		"pricingRules": {
			"vehicleTypeMultiplier": [
				{"key": "two_wheeler", "value": 0.8},
				{"key": "four_wheeler", "value": 1.0},
				{"key": "commercial", "value": 1.5}
			],
			"ageDepreciationPctPerYear": 2
		}
	}`, name, baseAmount)
}

// OwnDamageJSON returns a multi-year own-damage policy with steeper
// depreciation.
func OwnDamageJSON(name string, baseAmount float64, months int) string {
	return fmt.Sprintf(`{
		"name": %q,
		"description": "Own damage cover",
		"coverageType": "own_damage",
		"durationMonths": %d,
		"baseAmount": %g,
		"pricingRules": {
			"vehicleTypeMultiplier": {"two_wheeler": 0.7, "four_wheeler": 1.0, "commercial": 1.8},
			"ageDepreciationPctPerYear": 3
		}
	}`, name, months, baseAmount)
}

// Presets returns the starter catalog used to seed an empty database.
func Presets() []string {
	return []string{
		ThirdPartyJSON("Third Party Basic", 2500),
		ComprehensiveJSON("Comprehensive Standard", 12000),
		OwnDamageJSON("Own Damage Plus", 9000, 24),
	}
}
