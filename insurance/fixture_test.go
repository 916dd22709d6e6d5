package insurance_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warp/motor-insurance/insurance"
	"github.com/warp/motor-insurance/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	admin = insurance.Caller{CallerID: "admin-1", Role: insurance.RoleAdmin}
	staff = insurance.Caller{CallerID: "staff-1", Role: insurance.RoleStaff}
)

func customerCaller(c *insurance.Customer) insurance.Caller {
	return insurance.Caller{CallerID: "user-" + c.ID, Role: insurance.RoleCustomer, CustomerID: c.ID}
}

// testClock is a settable clock shared by every service of a fixture.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	ctx           context.Context
	store         insurance.TxStore
	clock         *testClock
	catalog       *insurance.Catalog
	lifecycle     *insurance.Lifecycle
	claims        *insurance.Claims
	notifications *insurance.Notifications
}

func newFixture(t *testing.T, extra ...insurance.Option) *fixture {
	t.Helper()
	return newFixtureOn(t, memory.New(), extra...)
}

// newFixtureOn builds the services over store; extra options are applied
// after the clock and logger.
func newFixtureOn(t *testing.T, store insurance.TxStore, extra ...insurance.Option) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)}
	opts := append([]insurance.Option{
		insurance.WithClock(clock.Now),
		insurance.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, extra...)
	return &fixture{
		ctx:           context.Background(),
		store:         store,
		clock:         clock,
		catalog:       insurance.NewCatalog(store, opts...),
		lifecycle:     insurance.NewLifecycle(store, opts...),
		claims:        insurance.NewClaims(store, opts...),
		notifications: insurance.NewNotifications(store, opts...),
	}
}

func (f *fixture) policy(t *testing.T, name string, coverage insurance.CoverageType, months int) *insurance.Policy {
	t.Helper()
	p, err := f.catalog.CreatePolicy(f.ctx, admin, insurance.PolicyInput{
		Name:           name,
		CoverageType:   coverage,
		DurationMonths: months,
		BaseAmount:     1000,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) customer(t *testing.T, name, email string) *insurance.Customer {
	t.Helper()
	c, err := f.catalog.CreateCustomer(f.ctx, staff, insurance.CustomerInput{Name: name, Email: email})
	require.NoError(t, err)
	return c
}

func (f *fixture) vehicle(t *testing.T, customerID, plate string, year int) *insurance.Vehicle {
	t.Helper()
	v, err := f.catalog.RegisterVehicle(f.ctx, staff, insurance.VehicleInput{
		CustomerID:       customerID,
		PlateNumber:      plate,
		VehicleType:      insurance.VehicleFourWheeler,
		Model:            "Hyundai i20",
		RegistrationYear: year,
	})
	require.NoError(t, err)
	return v
}

// insured is a customer with one vehicle and a purchase of a 12-month
// comprehensive policy.
type insured struct {
	customer *insurance.Customer
	caller   insurance.Caller
	vehicle  *insurance.Vehicle
	policy   *insurance.Policy
	purchase *insurance.Purchase
}

func (f *fixture) purchase(t *testing.T) *insured {
	t.Helper()
	policy := f.policy(t, "Comprehensive Standard", insurance.CoverageComprehensive, 12)
	cust := f.customer(t, "Priya Sharma", "priya@example.com")
	veh := f.vehicle(t, cust.ID, "MH12AB1234", 2022)
	caller := customerCaller(cust)

	p, err := f.lifecycle.Purchase(f.ctx, caller, insurance.PurchaseInput{
		CustomerID: cust.ID,
		PolicyID:   policy.ID,
		VehicleID:  veh.ID,
	})
	require.NoError(t, err)
	return &insured{customer: cust, caller: caller, vehicle: veh, policy: policy, purchase: p}
}

// paid is purchase followed by a confirmed payment.
func (f *fixture) paid(t *testing.T) *insured {
	t.Helper()
	in := f.purchase(t)
	_, err := f.lifecycle.ConfirmPayment(f.ctx, in.caller, in.purchase.Premium.ID, "TXN-1")
	require.NoError(t, err)
	return in
}

func (in *insured) purchaseInput() insurance.PurchaseInput {
	return insurance.PurchaseInput{
		CustomerID: in.customer.ID,
		PolicyID:   in.policy.ID,
		VehicleID:  in.vehicle.ID,
	}
}

func (in *insured) claimInput() insurance.ClaimInput {
	return insurance.ClaimInput{
		CustomerID: in.customer.ID,
		PolicyID:   in.policy.ID,
		VehicleID:  in.vehicle.ID,
		PremiumID:  in.purchase.Premium.ID,
		Reason:     "Front bumper damaged in a collision",
	}
}
