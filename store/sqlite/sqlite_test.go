package sqlite_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/motor-insurance/insurance"
	"github.com/warp/motor-insurance/store/sqlite"
)

var (
	admin = insurance.Caller{CallerID: "admin-1", Role: insurance.RoleAdmin}
	staff = insurance.Caller{CallerID: "staff-1", Role: insurance.RoleStaff}
	start = time.Date(2025, time.June, 1, 10, 0, 0, 0, time.UTC)
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// seeded is the minimum graph the renewal and claim tables reference.
type seeded struct {
	customer *insurance.Customer
	vehicle  *insurance.Vehicle
	policy   *insurance.Policy
	purchase *insurance.Purchase
}

func seed(t *testing.T, store *sqlite.Store) seeded {
	t.Helper()
	ctx := context.Background()
	clock := func() time.Time { return start }
	catalog := insurance.NewCatalog(store, insurance.WithClock(clock))
	lifecycle := insurance.NewLifecycle(store, insurance.WithClock(clock))

	policy, err := catalog.CreatePolicy(ctx, admin, insurance.PolicyInput{
		Name:           "Comprehensive Standard",
		CoverageType:   insurance.CoverageComprehensive,
		DurationMonths: 12,
		BaseAmount:     1000,
	})
	require.NoError(t, err)
	cust, err := catalog.CreateCustomer(ctx, staff, insurance.CustomerInput{Name: "Priya Sharma", Email: "priya@example.com"})
	require.NoError(t, err)
	veh, err := catalog.RegisterVehicle(ctx, staff, insurance.VehicleInput{
		CustomerID:       cust.ID,
		PlateNumber:      "MH12AB1234",
		VehicleType:      insurance.VehicleFourWheeler,
		Model:            "Hyundai i20",
		RegistrationYear: 2022,
	})
	require.NoError(t, err)
	purchase, err := lifecycle.Purchase(ctx, staff, insurance.PurchaseInput{
		CustomerID: cust.ID,
		PolicyID:   policy.ID,
		VehicleID:  veh.ID,
	})
	require.NoError(t, err)
	return seeded{customer: cust, vehicle: veh, policy: policy, purchase: purchase}
}

// =============================================================================
// SEQUENCES
// =============================================================================

func TestNextSequence_Concurrent_NoDuplicates(t *testing.T) {
	// GIVEN
	store := newTestStore(t)
	ctx := context.Background()

	// WHEN: 100 goroutines draw from the same counter
	const n = 100
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]bool)
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := store.NextSequence(ctx, insurance.CounterPremium)
			assert.NoError(t, err)
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	// THEN: Exactly 1..100
	assert.Len(t, seen, n)
	for i := int64(1); i <= n; i++ {
		assert.True(t, seen[i], "missing %d", i)
	}
}

func TestNextSequence_CountersAreIndependent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a, err := store.NextSequence(ctx, insurance.CounterPolicy)
	require.NoError(t, err)
	b, err := store.NextSequence(ctx, insurance.CounterClaim)
	require.NoError(t, err)

	assert.Equal(t, int64(1), a)
	assert.Equal(t, int64(1), b)
}

func TestCurrentSequence_ReadsWithoutAdvancing(t *testing.T) {
	// GIVEN: One counter used twice and one never used
	store := newTestStore(t)
	ctx := context.Background()
	for range 2 {
		_, err := store.NextSequence(ctx, insurance.CounterPremium)
		require.NoError(t, err)
	}

	// WHEN: Reading them repeatedly
	for range 3 {
		cur, err := store.CurrentSequence(ctx, insurance.CounterPremium)
		require.NoError(t, err)
		assert.Equal(t, int64(2), cur)
	}
	unused, err := store.CurrentSequence(ctx, insurance.CounterClaim)
	require.NoError(t, err)

	// THEN: Nothing was consumed
	assert.Equal(t, int64(0), unused)
	next, err := store.NextSequence(ctx, insurance.CounterPremium)
	require.NoError(t, err)
	assert.Equal(t, int64(3), next)
	first, err := store.NextSequence(ctx, insurance.CounterClaim)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)
}

func TestWithTx_Error_RollsBackSequence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx insurance.Store) error {
		_, err := tx.NextSequence(ctx, insurance.CounterPolicy)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	n, err := store.NextSequence(ctx, insurance.CounterPolicy)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

// =============================================================================
// UNIQUE KEYS
// =============================================================================

func TestCreatePolicy_NameTakenIgnoringCase_Conflict(t *testing.T) {
	store := newTestStore(t)
	s := seed(t, store)
	dup := *s.policy
	dup.ID = "other"
	dup.Code = "POL-00099"
	dup.Name = "COMPREHENSIVE standard"

	err := store.CreatePolicy(context.Background(), dup)

	assert.ErrorIs(t, err, insurance.ErrConflict)
}

func TestCreateRenewal_LiveSlotTaken_Conflict(t *testing.T) {
	// GIVEN: A pending renewal for the vehicle's comprehensive slot
	store := newTestStore(t)
	s := seed(t, store)
	ctx := context.Background()

	// WHEN: A second live renewal is inserted for the same slot
	r := s.purchase.Renewal
	r.ID = "second"
	r.Code = "REN-00099"
	err := store.CreateRenewal(ctx, r)

	// THEN
	assert.ErrorIs(t, err, insurance.ErrConflict)

	holder, err := store.SlotHolder(ctx, s.vehicle.ID, insurance.CoverageComprehensive)
	require.NoError(t, err)
	assert.Equal(t, s.purchase.Renewal.ID, holder.ID)
}

func TestSlotHolder_FreedByRejection(t *testing.T) {
	store := newTestStore(t)
	s := seed(t, store)
	ctx := context.Background()

	err := store.TransitionRenewal(ctx, s.purchase.Renewal.ID,
		[]insurance.RenewalStatus{insurance.RenewalPending}, insurance.RenewalRejected, "declined", start)
	require.NoError(t, err)

	_, err = store.SlotHolder(ctx, s.vehicle.ID, insurance.CoverageComprehensive)
	assert.ErrorIs(t, err, insurance.ErrNotFound)
}

// =============================================================================
// CONDITIONAL UPDATES
// =============================================================================

func TestMarkPremiumPaid_SecondCall_InvalidState(t *testing.T) {
	// GIVEN
	store := newTestStore(t)
	s := seed(t, store)
	ctx := context.Background()
	id := s.purchase.Premium.ID

	// WHEN
	require.NoError(t, store.MarkPremiumPaid(ctx, id, start, "TXN-1"))
	err := store.MarkPremiumPaid(ctx, id, start.Add(time.Hour), "TXN-2")

	// THEN: The first payment is kept
	assert.ErrorIs(t, err, insurance.ErrInvalidState)
	p, err := store.GetPremium(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, insurance.PaymentPaid, p.PaymentStatus)
	assert.Equal(t, "TXN-1", p.TransactionRef)
	require.NotNil(t, p.PaymentDate)
	assert.True(t, start.Equal(*p.PaymentDate))
}

func TestMarkPremiumPaid_Missing_NotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.MarkPremiumPaid(context.Background(), "missing", start, "TXN-1")

	assert.ErrorIs(t, err, insurance.ErrNotFound)
}

func TestTransitionRenewal_WrongFromStatus_InvalidState(t *testing.T) {
	store := newTestStore(t)
	s := seed(t, store)

	err := store.TransitionRenewal(context.Background(), s.purchase.Renewal.ID,
		[]insurance.RenewalStatus{insurance.RenewalApproved}, insurance.RenewalExpired, "", start)

	assert.ErrorIs(t, err, insurance.ErrInvalidState)
}

func TestExpireRenewals_OnlyPastExpiry(t *testing.T) {
	store := newTestStore(t)
	s := seed(t, store)
	ctx := context.Background()
	expiry := s.purchase.Renewal.ExpiryDate

	before, err := store.ExpireRenewals(ctx, expiry.Add(-time.Second))
	require.NoError(t, err)
	after, err := store.ExpireRenewals(ctx, expiry.Add(time.Second))
	require.NoError(t, err)
	again, err := store.ExpireRenewals(ctx, expiry.Add(time.Hour))
	require.NoError(t, err)

	assert.Empty(t, before)
	require.Len(t, after, 1)
	assert.Equal(t, insurance.RenewalExpired, after[0].Status)
	assert.Empty(t, again)
}

func TestMarkReminderSent_OnlyOnce(t *testing.T) {
	store := newTestStore(t)
	s := seed(t, store)
	ctx := context.Background()
	id := s.purchase.Renewal.ID
	require.NoError(t, store.TransitionRenewal(ctx, id,
		[]insurance.RenewalStatus{insurance.RenewalPending}, insurance.RenewalApproved, "", start))

	due, err := store.DueReminders(ctx, start, s.purchase.Renewal.ExpiryDate)
	require.NoError(t, err)
	require.Len(t, due, 1)

	first, err := store.MarkReminderSent(ctx, id, start)
	require.NoError(t, err)
	second, err := store.MarkReminderSent(ctx, id, start)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	due, err = store.DueReminders(ctx, start, s.purchase.Renewal.ExpiryDate)
	require.NoError(t, err)
	assert.Empty(t, due)
}

// =============================================================================
// ROUND TRIP AND LISTS
// =============================================================================

func TestPremium_RoundTripKeepsMoneyAndBreakdown(t *testing.T) {
	store := newTestStore(t)
	s := seed(t, store)

	p, err := store.GetPremium(context.Background(), s.purchase.Premium.ID)

	require.NoError(t, err)
	assert.Equal(t, "940.00", p.CalculatedAmount.StringFixed(2))
	assert.Equal(t, 3, p.Breakdown.VehicleAge)
	assert.Equal(t, "0.94", p.Breakdown.DepreciationFactor.StringFixed(2))
	assert.Equal(t, insurance.CoverageComprehensive, p.CoverageType)
	assert.True(t, start.Equal(p.CreatedAt))
}

func TestPolicy_RoundTripKeepsPricingRules(t *testing.T) {
	store := newTestStore(t)
	s := seed(t, store)

	p, err := store.GetPolicy(context.Background(), s.policy.ID)

	require.NoError(t, err)
	assert.Equal(t, insurance.DefaultVehicleTypeMultiplier(), p.PricingRules.VehicleTypeMultiplier)
	require.NotNil(t, p.PricingRules.AgeDepreciationPctPerYear)
	assert.Equal(t, 2.0, *p.PricingRules.AgeDepreciationPctPerYear)
}

func TestListVehicles_SearchAndPaging(t *testing.T) {
	store := newTestStore(t)
	s := seed(t, store)
	ctx := context.Background()
	for i, plate := range []string{"KA01AA0001", "KA01AA0002"} {
		require.NoError(t, store.CreateVehicle(ctx, insurance.Vehicle{
			ID:               plate,
			Code:             insurance.Code(insurance.PrefixVehicle, int64(100+i)),
			CustomerID:       s.customer.ID,
			PlateNumber:      plate,
			VehicleType:      insurance.VehicleTwoWheeler,
			Model:            "Honda Activa",
			RegistrationYear: 2021,
			CreatedAt:        start.Add(time.Duration(i+1) * time.Minute),
		}))
	}

	all, total, err := store.ListVehicles(ctx, insurance.VehicleFilter{CustomerID: s.customer.ID}, insurance.ListQuery{Limit: 2})
	require.NoError(t, err)
	found, foundTotal, err := store.ListVehicles(ctx, insurance.VehicleFilter{}, insurance.ListQuery{Search: "ka01"})
	require.NoError(t, err)

	assert.Equal(t, 3, total)
	require.Len(t, all, 2)
	assert.Equal(t, "KA01AA0002", all[0].PlateNumber)
	assert.Equal(t, 2, foundTotal)
	assert.Len(t, found, 2)
}

func TestVehicleUsage_CountsPendingPremium(t *testing.T) {
	store := newTestStore(t)
	s := seed(t, store)

	usage, err := store.VehicleUsage(context.Background(), s.vehicle.ID)

	require.NoError(t, err)
	assert.Equal(t, insurance.VehicleUsage{PendingPremiums: 1}, usage)
	assert.True(t, usage.InUse())
}

func TestNotifications_MarkAllReadAndCount(t *testing.T) {
	store := newTestStore(t)
	s := seed(t, store)
	ctx := context.Background()
	for i := range 2 {
		require.NoError(t, store.CreateNotification(ctx, insurance.Notification{
			ID:             "n" + string(rune('a'+i)),
			Code:           insurance.Code(insurance.PrefixNotification, int64(100+i)),
			CustomerID:     s.customer.ID,
			Type:           insurance.NotifyGeneral,
			Title:          "Hello",
			Message:        "Welcome",
			SentAt:         start,
			DeliveryStatus: insurance.DeliverySent,
		}))
	}

	before, err := store.CountUnread(ctx, s.customer.ID)
	require.NoError(t, err)
	updated, err := store.MarkAllNotificationsRead(ctx, s.customer.ID, start)
	require.NoError(t, err)
	after, err := store.CountUnread(ctx, s.customer.ID)
	require.NoError(t, err)

	// two general notifications plus the payment-due one from the purchase
	assert.Equal(t, 3, before)
	assert.Equal(t, 3, updated)
	assert.Equal(t, 0, after)
}

func TestClaimStats_SumsAmountsExactly(t *testing.T) {
	// GIVEN: Approved amounts that a float sum cannot represent
	store := newTestStore(t)
	ctx := context.Background()
	s := seed(t, store)
	amounts := map[string]string{"c1": "45035996273704.97", "c2": "0.01", "c3": ""}
	for id, a := range amounts {
		c := insurance.Claim{
			ID:         id,
			Code:       "CLM-" + id,
			CustomerID: s.customer.ID,
			PolicyID:   s.policy.ID,
			VehicleID:  s.vehicle.ID,
			PremiumID:  s.purchase.Premium.ID,
			Reason:     "Front bumper damaged in a collision",
			ClaimDate:  start,
			Status:     insurance.ClaimPending,
			CreatedAt:  start,
			UpdatedAt:  start,
		}
		if a != "" {
			m := decimal.RequireFromString(a)
			c.ClaimAmount = &m
			c.Status = insurance.ClaimApproved
		}
		require.NoError(t, store.CreateClaim(ctx, c))
	}

	// WHEN
	stats, err := store.ClaimStats(ctx)

	// THEN
	require.NoError(t, err)
	byStatus := make(map[insurance.ClaimStatus]insurance.ClaimStat)
	for _, st := range stats {
		byStatus[st.Status] = st
	}
	assert.Equal(t, 2, byStatus[insurance.ClaimApproved].Count)
	assert.Equal(t, "45035996273704.98", byStatus[insurance.ClaimApproved].TotalAmount.StringFixed(2))
	assert.Equal(t, 1, byStatus[insurance.ClaimPending].Count)
	assert.True(t, byStatus[insurance.ClaimPending].TotalAmount.IsZero())
}
