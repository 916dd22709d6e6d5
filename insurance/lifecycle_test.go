package insurance_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/motor-insurance/insurance"
)

// =============================================================================
// PURCHASE
// =============================================================================

func TestPurchase_CreatesPendingPremiumAndRenewal(t *testing.T) {
	// GIVEN: A customer with a three-year-old car
	f := newFixture(t)

	// WHEN: Buying a 12-month comprehensive policy
	in := f.purchase(t)
	p := in.purchase

	// THEN: Premium and renewal are pending and linked
	assert.Equal(t, "PREM-00001", p.Premium.Code)
	assert.Equal(t, "REN-00001", p.Renewal.Code)
	assert.Equal(t, insurance.PaymentPending, p.Premium.PaymentStatus)
	assert.Nil(t, p.Premium.PaymentDate)
	assert.Equal(t, "940.00", p.Premium.CalculatedAmount.StringFixed(2))
	assert.Equal(t, 3, p.Premium.Breakdown.VehicleAge)

	assert.Equal(t, insurance.RenewalPending, p.Renewal.Status)
	assert.Equal(t, insurance.KindPurchase, p.Renewal.Kind)
	assert.Equal(t, p.Premium.ID, p.Renewal.PremiumID)
	assert.Equal(t, insurance.CoverageComprehensive, p.Renewal.CoverageType)
	assert.Equal(t, f.clock.Now().AddDate(1, 0, 0), p.Renewal.ExpiryDate)

	stored, err := f.lifecycle.GetPremium(f.ctx, in.caller, p.Premium.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Premium.Code, stored.Code)
}

func TestPurchase_InactivePolicy_InvalidState(t *testing.T) {
	// GIVEN: A deactivated policy
	f := newFixture(t)
	policy := f.policy(t, "Old Product", insurance.CoverageThirdParty, 12)
	_, err := f.catalog.SetPolicyActive(f.ctx, admin, policy.ID, false)
	require.NoError(t, err)
	cust := f.customer(t, "Ravi", "ravi@example.com")
	veh := f.vehicle(t, cust.ID, "KA01AB1234", 2020)

	// WHEN
	_, err = f.lifecycle.Purchase(f.ctx, customerCaller(cust), insurance.PurchaseInput{
		CustomerID: cust.ID, PolicyID: policy.ID, VehicleID: veh.ID,
	})

	// THEN
	require.Error(t, err)
	assert.True(t, insurance.IsInvalidState(err))
}

func TestPurchase_UnknownPolicy_NotFound(t *testing.T) {
	f := newFixture(t)
	cust := f.customer(t, "Ravi", "ravi@example.com")
	veh := f.vehicle(t, cust.ID, "KA01AB1234", 2020)

	_, err := f.lifecycle.Purchase(f.ctx, customerCaller(cust), insurance.PurchaseInput{
		CustomerID: cust.ID, PolicyID: "missing", VehicleID: veh.ID,
	})

	assert.True(t, insurance.IsNotFound(err))
}

func TestPurchase_VehicleOfAnotherCustomer_InvalidState(t *testing.T) {
	// GIVEN: Two customers; the vehicle belongs to the second
	f := newFixture(t)
	policy := f.policy(t, "Comprehensive", insurance.CoverageComprehensive, 12)
	alice := f.customer(t, "Alice", "alice@example.com")
	bob := f.customer(t, "Bob", "bob@example.com")
	bobsCar := f.vehicle(t, bob.ID, "DL03CD5678", 2021)

	// WHEN: Alice buys cover for Bob's car
	_, err := f.lifecycle.Purchase(f.ctx, customerCaller(alice), insurance.PurchaseInput{
		CustomerID: alice.ID, PolicyID: policy.ID, VehicleID: bobsCar.ID,
	})

	// THEN
	assert.True(t, insurance.IsInvalidState(err))
}

func TestPurchase_ActingForAnotherCustomer_Forbidden(t *testing.T) {
	f := newFixture(t)
	policy := f.policy(t, "Comprehensive", insurance.CoverageComprehensive, 12)
	alice := f.customer(t, "Alice", "alice@example.com")
	bob := f.customer(t, "Bob", "bob@example.com")
	bobsCar := f.vehicle(t, bob.ID, "DL03CD5678", 2021)

	_, err := f.lifecycle.Purchase(f.ctx, customerCaller(alice), insurance.PurchaseInput{
		CustomerID: bob.ID, PolicyID: policy.ID, VehicleID: bobsCar.ID,
	})

	assert.Equal(t, insurance.KindForbidden, insurance.KindOf(err))
}

func TestPurchase_MissingFields_ValidationError(t *testing.T) {
	f := newFixture(t)

	_, err := f.lifecycle.Purchase(f.ctx, staff, insurance.PurchaseInput{})

	var ve *insurance.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Fields, 3)
}

func TestPurchase_SlotHeld_Conflict(t *testing.T) {
	// GIVEN: A pending comprehensive purchase
	f := newFixture(t)
	in := f.purchase(t)

	// WHEN: Buying comprehensive again for the same vehicle
	_, err := f.lifecycle.Purchase(f.ctx, in.caller, in.purchaseInput())

	// THEN: The slot is held
	assert.True(t, insurance.IsConflict(err))

	// AND: A different coverage type is still allowed
	tp := f.policy(t, "Third Party", insurance.CoverageThirdParty, 12)
	_, err = f.lifecycle.Purchase(f.ctx, in.caller, insurance.PurchaseInput{
		CustomerID: in.customer.ID, PolicyID: tp.ID, VehicleID: in.vehicle.ID,
	})
	require.NoError(t, err)
}

func TestPurchase_SlotHeldByPaidCoverage_Conflict(t *testing.T) {
	f := newFixture(t)
	in := f.paid(t)

	_, err := f.lifecycle.SubmitRenewal(f.ctx, in.caller, in.purchaseInput())

	assert.True(t, insurance.IsConflict(err))
}

func TestPurchase_Concurrent_ExactlyOneWins(t *testing.T) {
	// GIVEN: A vehicle with no coverage
	f := newFixture(t)
	policy := f.policy(t, "Comprehensive", insurance.CoverageComprehensive, 12)
	cust := f.customer(t, "Alice", "alice@example.com")
	veh := f.vehicle(t, cust.ID, "MH01AA0001", 2023)
	input := insurance.PurchaseInput{CustomerID: cust.ID, PolicyID: policy.ID, VehicleID: veh.ID}

	// WHEN: Ten purchases race for the same slot
	const n = 10
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.lifecycle.Purchase(f.ctx, customerCaller(cust), input)
		}()
	}
	wg.Wait()

	// THEN: One succeeds, the rest conflict
	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t, insurance.IsConflict(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, wins)

	page, err := f.lifecycle.ListRenewals(f.ctx, staff, insurance.RenewalFilter{}, insurance.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Info.TotalRecords)
}

func TestQuote_DoesNotPersist(t *testing.T) {
	f := newFixture(t)
	policy := f.policy(t, "Comprehensive", insurance.CoverageComprehensive, 12)
	cust := f.customer(t, "Alice", "alice@example.com")
	veh := f.vehicle(t, cust.ID, "MH01AA0001", 2022)

	b, err := f.lifecycle.Quote(f.ctx, customerCaller(cust), policy.ID, veh.ID)
	require.NoError(t, err)
	assert.Equal(t, "940.00", b.FinalAmount.StringFixed(2))

	page, err := f.lifecycle.ListPremiums(f.ctx, staff, insurance.PremiumFilter{}, insurance.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Info.TotalRecords)
}

// =============================================================================
// PAYMENT
// =============================================================================

func TestConfirmPayment_MarksPaidAndApprovesRenewal(t *testing.T) {
	// GIVEN: A pending purchase
	f := newFixture(t)
	in := f.purchase(t)

	// WHEN
	premium, err := f.lifecycle.ConfirmPayment(f.ctx, in.caller, in.purchase.Premium.ID, "TXN-42")

	// THEN
	require.NoError(t, err)
	assert.Equal(t, insurance.PaymentPaid, premium.PaymentStatus)
	require.NotNil(t, premium.PaymentDate)
	assert.Equal(t, f.clock.Now(), *premium.PaymentDate)
	assert.Equal(t, "TXN-42", premium.TransactionRef)

	renewal, err := f.lifecycle.GetRenewal(f.ctx, in.caller, in.purchase.Renewal.ID)
	require.NoError(t, err)
	assert.Equal(t, insurance.RenewalApproved, renewal.Status)
}

func TestConfirmPayment_Twice_InvalidStateAndDateUnchanged(t *testing.T) {
	// GIVEN: A paid premium
	f := newFixture(t)
	in := f.paid(t)
	first, err := f.lifecycle.GetPremium(f.ctx, in.caller, in.purchase.Premium.ID)
	require.NoError(t, err)

	// WHEN: Confirming again an hour later
	f.clock.Advance(time.Hour)
	_, err = f.lifecycle.ConfirmPayment(f.ctx, in.caller, in.purchase.Premium.ID, "TXN-2")

	// THEN
	assert.True(t, insurance.IsInvalidState(err))
	after, err := f.lifecycle.GetPremium(f.ctx, in.caller, in.purchase.Premium.ID)
	require.NoError(t, err)
	require.NotNil(t, after.PaymentDate)
	assert.Equal(t, *first.PaymentDate, *after.PaymentDate)
	assert.Equal(t, "TXN-1", after.TransactionRef)
}

func TestConfirmPayment_Unknown_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.lifecycle.ConfirmPayment(f.ctx, staff, "missing", "")

	assert.True(t, insurance.IsNotFound(err))
}

func TestFailPayment_ReleasesSlot(t *testing.T) {
	// GIVEN: A pending purchase
	f := newFixture(t)
	in := f.purchase(t)

	// WHEN: Staff record a failed payment
	premium, err := f.lifecycle.FailPayment(f.ctx, staff, in.purchase.Premium.ID, "card declined")

	// THEN: Premium failed, renewal rejected
	require.NoError(t, err)
	assert.Equal(t, insurance.PaymentFailed, premium.PaymentStatus)
	renewal, err := f.lifecycle.GetRenewal(f.ctx, staff, in.purchase.Renewal.ID)
	require.NoError(t, err)
	assert.Equal(t, insurance.RenewalRejected, renewal.Status)

	// AND: Paying the failed premium is refused
	_, err = f.lifecycle.ConfirmPayment(f.ctx, in.caller, in.purchase.Premium.ID, "TXN-late")
	assert.True(t, insurance.IsInvalidState(err))

	// AND: The vehicle can be insured again
	_, err = f.lifecycle.Purchase(f.ctx, in.caller, in.purchaseInput())
	require.NoError(t, err)
}

func TestFailPayment_Customer_Forbidden(t *testing.T) {
	f := newFixture(t)
	in := f.purchase(t)

	_, err := f.lifecycle.FailPayment(f.ctx, in.caller, in.purchase.Premium.ID, "nope")

	assert.Equal(t, insurance.KindForbidden, insurance.KindOf(err))
}

func TestFailPayment_AlreadyPaid_InvalidState(t *testing.T) {
	f := newFixture(t)
	in := f.paid(t)

	_, err := f.lifecycle.FailPayment(f.ctx, staff, in.purchase.Premium.ID, "chargeback")

	assert.True(t, insurance.IsInvalidState(err))
}

// =============================================================================
// ADMIN DECISIONS
// =============================================================================

func TestRejectRenewal_FreesSlotWithoutTouchingPremium(t *testing.T) {
	// GIVEN: A pending purchase
	f := newFixture(t)
	in := f.purchase(t)

	// WHEN: An admin rejects the renewal
	renewal, err := f.lifecycle.RejectRenewal(f.ctx, admin, in.purchase.Renewal.ID, "documents missing")

	// THEN
	require.NoError(t, err)
	assert.Equal(t, insurance.RenewalRejected, renewal.Status)
	assert.Equal(t, "documents missing", renewal.AdminRemarks)

	premium, err := f.lifecycle.GetPremium(f.ctx, admin, in.purchase.Premium.ID)
	require.NoError(t, err)
	assert.Equal(t, insurance.PaymentPending, premium.PaymentStatus)
}

func TestPurchase_AfterRejection_UnpaidPremiumBlocksUntilFailed(t *testing.T) {
	// GIVEN: A rejected purchase whose premium is still pending
	f := newFixture(t)
	in := f.purchase(t)
	_, err := f.lifecycle.RejectRenewal(f.ctx, admin, in.purchase.Renewal.ID, "documents missing")
	require.NoError(t, err)

	// WHEN: The customer buys the same policy again
	_, err = f.lifecycle.Purchase(f.ctx, in.caller, in.purchaseInput())

	// THEN: Refused, naming the unpaid premium
	require.True(t, insurance.IsConflict(err))
	assert.Contains(t, insurance.MessageOf(err), in.purchase.Premium.Code)
	page, err := f.lifecycle.ListPremiums(f.ctx, staff, insurance.PremiumFilter{Status: insurance.PaymentPending}, insurance.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Info.TotalRecords)

	// AND: Once staff fail the old premium the purchase goes through
	_, err = f.lifecycle.FailPayment(f.ctx, staff, in.purchase.Premium.ID, "renewal rejected")
	require.NoError(t, err)
	p, err := f.lifecycle.Purchase(f.ctx, in.caller, in.purchaseInput())
	require.NoError(t, err)
	assert.Equal(t, insurance.PaymentPending, p.Premium.PaymentStatus)
}

func TestPurchase_OtherPolicySameVehicle_NotBlockedByUnpaidPremium(t *testing.T) {
	// GIVEN: A rejected comprehensive purchase, premium still pending
	f := newFixture(t)
	in := f.purchase(t)
	_, err := f.lifecycle.RejectRenewal(f.ctx, admin, in.purchase.Renewal.ID, "")
	require.NoError(t, err)
	thirdParty := f.policy(t, "Third Party Basic", insurance.CoverageThirdParty, 12)

	// WHEN
	_, err = f.lifecycle.Purchase(f.ctx, in.caller, insurance.PurchaseInput{
		CustomerID: in.customer.ID,
		PolicyID:   thirdParty.ID,
		VehicleID:  in.vehicle.ID,
	})

	// THEN
	assert.NoError(t, err)
}

func TestApproveRenewal_OnlyPending(t *testing.T) {
	f := newFixture(t)
	in := f.paid(t)

	// Paid purchases are already approved
	_, err := f.lifecycle.ApproveRenewal(f.ctx, admin, in.purchase.Renewal.ID, "")

	assert.True(t, insurance.IsInvalidState(err))
}

func TestApproveRenewal_Staff_Forbidden(t *testing.T) {
	f := newFixture(t)
	in := f.purchase(t)

	_, err := f.lifecycle.ApproveRenewal(f.ctx, staff, in.purchase.Renewal.ID, "")

	assert.Equal(t, insurance.KindForbidden, insurance.KindOf(err))
}

// =============================================================================
// EXPIRY
// =============================================================================

func TestSweepExpired_IsIdempotent(t *testing.T) {
	// GIVEN: Paid coverage that has run out
	f := newFixture(t)
	in := f.paid(t)
	f.clock.Advance(366 * 24 * time.Hour)

	// WHEN: Sweeping twice
	first, err := f.lifecycle.SweepExpired(f.ctx, f.clock.Now())
	require.NoError(t, err)
	second, err := f.lifecycle.SweepExpired(f.ctx, f.clock.Now())
	require.NoError(t, err)

	// THEN: Only the first sweep changes anything
	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)

	renewal, err := f.lifecycle.GetRenewal(f.ctx, in.caller, in.purchase.Renewal.ID)
	require.NoError(t, err)
	assert.Equal(t, insurance.RenewalExpired, renewal.Status)

	page, err := f.notifications.List(f.ctx, in.caller, insurance.NotificationFilter{}, insurance.ListQuery{})
	require.NoError(t, err)
	expiry := 0
	for _, n := range page.Items {
		if n.Type == insurance.NotifyExpiry {
			expiry++
		}
	}
	assert.Equal(t, 1, expiry)
}

func TestSweepExpired_BeforeExpiry_NoChange(t *testing.T) {
	f := newFixture(t)
	f.paid(t)

	n, err := f.lifecycle.SweepExpired(f.ctx, f.clock.Now().AddDate(0, 6, 0))

	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSubmitRenewal_AfterLapse_Succeeds(t *testing.T) {
	// GIVEN: Expired coverage
	f := newFixture(t)
	in := f.paid(t)
	f.clock.Advance(400 * 24 * time.Hour)
	_, err := f.lifecycle.SweepExpired(f.ctx, f.clock.Now())
	require.NoError(t, err)

	// WHEN: The customer renews
	p, err := f.lifecycle.SubmitRenewal(f.ctx, in.caller, in.purchaseInput())

	// THEN: A fresh renewal window starts now, priced for the new year
	require.NoError(t, err)
	assert.Equal(t, insurance.KindRenewal, p.Renewal.Kind)
	assert.Equal(t, insurance.RenewalPending, p.Renewal.Status)
	assert.Equal(t, f.clock.Now(), p.Renewal.RenewalDate)
	assert.Equal(t, 2026, p.Premium.Breakdown.ReferenceYear)
	assert.Equal(t, "920.00", p.Premium.CalculatedAmount.StringFixed(2))
}

func TestSubmitRenewal_AfterUnpaidExpiry_Conflict(t *testing.T) {
	// GIVEN: A purchase never paid and swept as expired
	f := newFixture(t)
	in := f.purchase(t)
	f.clock.Advance(400 * 24 * time.Hour)
	n, err := f.lifecycle.SweepExpired(f.ctx, f.clock.Now())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// WHEN: The customer renews the same policy
	_, err = f.lifecycle.SubmitRenewal(f.ctx, in.caller, in.purchaseInput())

	// THEN: The stale premium must be settled first
	assert.True(t, insurance.IsConflict(err))
	_, err = f.lifecycle.ConfirmPayment(f.ctx, in.caller, in.purchase.Premium.ID, "TXN-late")
	assert.True(t, insurance.IsInvalidState(err))

	_, err = f.lifecycle.FailPayment(f.ctx, staff, in.purchase.Premium.ID, "coverage lapsed unpaid")
	require.NoError(t, err)
	p, err := f.lifecycle.SubmitRenewal(f.ctx, in.caller, in.purchaseInput())
	require.NoError(t, err)
	assert.Equal(t, insurance.KindRenewal, p.Renewal.Kind)
}

func TestSendReminders_OncePerRenewal(t *testing.T) {
	// GIVEN: Approved coverage expiring in five days
	f := newFixture(t)
	f.paid(t)
	f.clock.Advance(360 * 24 * time.Hour)

	// WHEN: Running reminders twice with a seven-day window
	first, err := f.lifecycle.SendReminders(f.ctx, f.clock.Now(), 7*24*time.Hour)
	require.NoError(t, err)
	second, err := f.lifecycle.SendReminders(f.ctx, f.clock.Now(), 7*24*time.Hour)
	require.NoError(t, err)

	// THEN
	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)
}

func TestSendReminders_OutsideWindow_Skipped(t *testing.T) {
	f := newFixture(t)
	f.paid(t)

	n, err := f.lifecycle.SendReminders(f.ctx, f.clock.Now(), 7*24*time.Hour)

	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
