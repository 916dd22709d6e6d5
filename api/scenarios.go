/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
	Provides pre-built scenarios that populate the database with realistic
	data for demos and manual testing. Each scenario drives the engine
	services exactly like real clients do, so every record carries proper
	codes, notifications and metrics.

AVAILABLE SCENARIOS:
	new-customer:    Customer with a two-wheeler and an unpaid purchase
	active-policy:   Paid comprehensive cover on a car
	claim-review:    Active policy with a claim under review
	payment-failed:  Purchase whose payment failed, slot released

HOW SCENARIOS WORK:
 1. Ensure a preset policy of the needed coverage exists
 2. Create a customer with a unique email
 3. Register a vehicle with a unique plate
 4. Purchase and optionally pay, fail or claim

USAGE VIA API:
	POST /api/scenarios/load
	{"scenarioId": "claim-review"}

NOTE:
	Scenarios never reset data. Loading one twice creates a second,
	independent customer.

SEE ALSO:
  - handlers.go: Handler
  - factory/policy.go: Preset policy definitions
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/warp/motor-insurance/factory"
	"github.com/warp/motor-insurance/insurance"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ScenarioResultDTO lists what a scenario created.
type ScenarioResultDTO struct {
	ScenarioID string      `json:"scenarioId"`
	Customer   CustomerDTO `json:"customer"`
	Vehicle    VehicleDTO  `json:"vehicle"`
	Premium    *PremiumDTO `json:"premium,omitempty"`
	Claim      *ClaimDTO   `json:"claim,omitempty"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "new-customer",
		Name:        "New Customer",
		Description: "Two-wheeler with a third-party purchase awaiting payment",
	},
	{
		ID:          "active-policy",
		Name:        "Active Policy",
		Description: "Four-wheeler with paid comprehensive cover",
	},
	{
		ID:          "claim-review",
		Name:        "Claim Under Review",
		Description: "Active comprehensive cover with a claim moved to review",
	},
	{
		ID:          "payment-failed",
		Name:        "Payment Failed",
		Description: "Commercial vehicle whose payment failed; the vehicle can be insured again",
	},
}

type scenarioLoader func(ctx context.Context, h *Handler, caller insurance.Caller) (*ScenarioResultDTO, error)

var scenarioLoaders = map[string]scenarioLoader{
	"new-customer":   loadNewCustomerScenario,
	"active-policy":  loadActivePolicyScenario,
	"claim-review":   loadClaimReviewScenario,
	"payment-failed": loadPaymentFailedScenario,
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, "Scenarios retrieved", scenarios)
}

// LoadScenario loads a predefined scenario. Admin only.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	if !caller.IsAdmin() {
		writeError(w, http.StatusForbidden, "admin role required", nil)
		return
	}

	var req struct {
		ScenarioID string `json:"scenarioId"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	res, err := load(r.Context(), h, caller)
	if err != nil {
		h.writeDomainError(w, r, fmt.Errorf("load scenario %s: %w", req.ScenarioID, err))
		return
	}
	res.ScenarioID = req.ScenarioID
	writeOK(w, http.StatusCreated, "Scenario loaded", res)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadNewCustomerScenario(ctx context.Context, h *Handler, caller insurance.Caller) (*ScenarioResultDTO, error) {
	res, customer, vehicle, err := h.scenarioCustomer(ctx, caller, "Asha Rao", insurance.VehicleTwoWheeler, "Honda Activa", 2)
	if err != nil {
		return nil, err
	}
	p, err := h.scenarioPurchase(ctx, caller, customer, vehicle, insurance.CoverageThirdParty)
	if err != nil {
		return nil, err
	}
	dto := toPremiumDTO(p.Premium)
	res.Premium = &dto
	return res, nil
}

func loadActivePolicyScenario(ctx context.Context, h *Handler, caller insurance.Caller) (*ScenarioResultDTO, error) {
	res, _, premium, err := h.scenarioActivePolicy(ctx, caller, "Vikram Mehta")
	if err != nil {
		return nil, err
	}
	dto := toPremiumDTO(*premium)
	res.Premium = &dto
	return res, nil
}

func loadClaimReviewScenario(ctx context.Context, h *Handler, caller insurance.Caller) (*ScenarioResultDTO, error) {
	res, vehicle, premium, err := h.scenarioActivePolicy(ctx, caller, "Neha Kapoor")
	if err != nil {
		return nil, err
	}

	claim, err := h.Claims.Submit(ctx, caller, insurance.ClaimInput{
		CustomerID:     premium.CustomerID,
		PolicyID:       premium.PolicyID,
		VehicleID:      vehicle.ID,
		PremiumID:      premium.ID,
		Reason:         "Rear bumper damaged in a parking lot collision",
		SupportingDocs: []string{"photos/rear-bumper.jpg", "estimates/garage-quote.pdf"},
	})
	if err != nil {
		return nil, err
	}
	claim, err = h.Claims.Process(ctx, caller, claim.ID, insurance.ProcessClaimInput{
		Status:  insurance.ClaimUnderReview,
		Remarks: "Surveyor visit scheduled",
	})
	if err != nil {
		return nil, err
	}

	premiumDTO := toPremiumDTO(*premium)
	claimDTO := toClaimDTO(*claim)
	res.Premium = &premiumDTO
	res.Claim = &claimDTO
	return res, nil
}

func loadPaymentFailedScenario(ctx context.Context, h *Handler, caller insurance.Caller) (*ScenarioResultDTO, error) {
	res, customer, vehicle, err := h.scenarioCustomer(ctx, caller, "Ravi Transport Co", insurance.VehicleCommercial, "Tata Ace", 6)
	if err != nil {
		return nil, err
	}
	p, err := h.scenarioPurchase(ctx, caller, customer, vehicle, insurance.CoverageThirdParty)
	if err != nil {
		return nil, err
	}
	premium, err := h.Lifecycle.FailPayment(ctx, caller, p.Premium.ID, "Card declined by issuer")
	if err != nil {
		return nil, err
	}
	dto := toPremiumDTO(*premium)
	res.Premium = &dto
	return res, nil
}

// =============================================================================
// SCENARIO HELPERS
// =============================================================================

func (h *Handler) scenarioActivePolicy(ctx context.Context, caller insurance.Caller, name string) (*ScenarioResultDTO, *insurance.Vehicle, *insurance.Premium, error) {
	res, customer, vehicle, err := h.scenarioCustomer(ctx, caller, name, insurance.VehicleFourWheeler, "Maruti Swift", 3)
	if err != nil {
		return nil, nil, nil, err
	}
	p, err := h.scenarioPurchase(ctx, caller, customer, vehicle, insurance.CoverageComprehensive)
	if err != nil {
		return nil, nil, nil, err
	}
	premium, err := h.Lifecycle.ConfirmPayment(ctx, caller, p.Premium.ID, "TXN-"+uuid.NewString()[:8])
	if err != nil {
		return nil, nil, nil, err
	}
	return res, vehicle, premium, nil
}

// scenarioCustomer creates a customer and one vehicle aged ageYears.
func (h *Handler) scenarioCustomer(
	ctx context.Context,
	caller insurance.Caller,
	name string,
	vt insurance.VehicleType,
	model string,
	ageYears int,
) (*ScenarioResultDTO, *insurance.Customer, *insurance.Vehicle, error) {
	id := uuid.New()

	customer, err := h.Catalog.CreateCustomer(ctx, caller, insurance.CustomerInput{
		Name:  name,
		Email: fmt.Sprintf("demo+%x@example.com", id[:4]),
	})
	if err != nil {
		return nil, nil, nil, err
	}

	vehicle, err := h.Catalog.RegisterVehicle(ctx, caller, insurance.VehicleInput{
		CustomerID:       customer.ID,
		PlateNumber:      demoPlate(id),
		VehicleType:      vt,
		Model:            model,
		RegistrationYear: time.Now().UTC().Year() - ageYears,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	return &ScenarioResultDTO{
		Customer: toCustomerDTO(*customer),
		Vehicle:  toVehicleDTO(*vehicle),
	}, customer, vehicle, nil
}

func (h *Handler) scenarioPurchase(
	ctx context.Context,
	caller insurance.Caller,
	customer *insurance.Customer,
	vehicle *insurance.Vehicle,
	coverage insurance.CoverageType,
) (*insurance.Purchase, error) {
	policy, err := h.ensurePresetPolicy(ctx, caller, coverage)
	if err != nil {
		return nil, err
	}
	return h.Lifecycle.Purchase(ctx, caller, insurance.PurchaseInput{
		CustomerID: customer.ID,
		PolicyID:   policy.ID,
		VehicleID:  vehicle.ID,
	})
}

// ensurePresetPolicy returns an active policy of the coverage, creating the
// matching preset when none exists.
func (h *Handler) ensurePresetPolicy(ctx context.Context, caller insurance.Caller, coverage insurance.CoverageType) (*insurance.Policy, error) {
	page, err := h.Catalog.ListPolicies(ctx, caller,
		insurance.PolicyFilter{ActiveOnly: true, CoverageType: coverage},
		insurance.ListQuery{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(page.Items) > 0 {
		return &page.Items[0], nil
	}

	for _, preset := range factory.Presets() {
		in, err := h.PolicyFactory.ParsePolicy(preset)
		if err != nil {
			return nil, err
		}
		if in.CoverageType == coverage {
			return h.Catalog.CreatePolicy(ctx, caller, in)
		}
	}
	return nil, fmt.Errorf("no preset policy for coverage %s", coverage)
}

// demoPlate derives a valid registration plate such as MH12AB3456 from id.
func demoPlate(id uuid.UUID) string {
	return fmt.Sprintf("MH%02d%c%c%04d",
		int(id[0])%100,
		'A'+rune(id[1]%26),
		'A'+rune(id[2]%26),
		(int(id[3])<<8|int(id[4]))%10000)
}
