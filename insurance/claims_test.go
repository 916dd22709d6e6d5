package insurance_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/motor-insurance/insurance"
)

func amount(v float64) *float64 { return &v }

// =============================================================================
// SUBMIT
// =============================================================================

func TestSubmitClaim_PendingPremium_Rejected(t *testing.T) {
	// GIVEN: A purchase that was never paid
	f := newFixture(t)
	in := f.purchase(t)

	// WHEN
	_, err := f.claims.Submit(f.ctx, in.caller, in.claimInput())

	// THEN: Refused, and nothing was written
	require.Error(t, err)
	assert.True(t, insurance.IsInvalidState(err))
	assert.Equal(t, "claims only on active paid policies", insurance.MessageOf(err))

	page, err := f.claims.ListClaims(f.ctx, staff, insurance.ClaimFilter{}, insurance.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Info.TotalRecords)
}

func TestSubmitClaim_PaidPremium_CreatesOnePendingClaim(t *testing.T) {
	// GIVEN: Active paid coverage
	f := newFixture(t)
	in := f.paid(t)
	input := in.claimInput()
	input.SupportingDocs = []string{"photos/front.jpg"}

	// WHEN
	claim, err := f.claims.Submit(f.ctx, in.caller, input)

	// THEN
	require.NoError(t, err)
	assert.Equal(t, "CLM-00001", claim.Code)
	assert.Equal(t, insurance.ClaimPending, claim.Status)
	assert.Nil(t, claim.ClaimAmount)
	assert.Equal(t, []string{"photos/front.jpg"}, claim.SupportingDocs)
	assert.Equal(t, f.clock.Now(), claim.ClaimDate)

	page, err := f.claims.ListClaims(f.ctx, in.caller, insurance.ClaimFilter{}, insurance.ListQuery{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, claim.ID, page.Items[0].ID)
}

func TestSubmitClaim_MismatchedVehicle_Rejected(t *testing.T) {
	f := newFixture(t)
	in := f.paid(t)
	other := f.vehicle(t, in.customer.ID, "MH12ZZ9999", 2024)
	input := in.claimInput()
	input.VehicleID = other.ID

	_, err := f.claims.Submit(f.ctx, in.caller, input)

	assert.True(t, insurance.IsInvalidState(err))
}

func TestSubmitClaim_UnknownPremium_Rejected(t *testing.T) {
	f := newFixture(t)
	in := f.paid(t)
	input := in.claimInput()
	input.PremiumID = "missing"

	_, err := f.claims.Submit(f.ctx, in.caller, input)

	assert.True(t, insurance.IsInvalidState(err))
}

func TestSubmitClaim_AfterExpiry_Rejected(t *testing.T) {
	// GIVEN: Coverage past its expiry date but not yet swept
	f := newFixture(t)
	in := f.paid(t)
	f.clock.Advance(367 * 24 * time.Hour)

	// WHEN
	_, err := f.claims.Submit(f.ctx, in.caller, in.claimInput())

	// THEN
	assert.True(t, insurance.IsInvalidState(err))
}

func TestSubmitClaim_ShortReason_ValidationError(t *testing.T) {
	f := newFixture(t)
	in := f.paid(t)
	input := in.claimInput()
	input.Reason = "  dent  "

	_, err := f.claims.Submit(f.ctx, in.caller, input)

	var ve *insurance.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Len(t, ve.Fields, 1)
	assert.Equal(t, "reason", ve.Fields[0].Field)
}

func TestSubmitClaim_ForAnotherCustomer_Forbidden(t *testing.T) {
	f := newFixture(t)
	in := f.paid(t)
	mallory := f.customer(t, "Mallory", "mallory@example.com")

	_, err := f.claims.Submit(f.ctx, customerCaller(mallory), in.claimInput())

	assert.Equal(t, insurance.KindForbidden, insurance.KindOf(err))
}

// =============================================================================
// PROCESS
// =============================================================================

func TestProcessClaim_ReviewThenApprove(t *testing.T) {
	// GIVEN: A pending claim
	f := newFixture(t)
	in := f.paid(t)
	claim, err := f.claims.Submit(f.ctx, in.caller, in.claimInput())
	require.NoError(t, err)

	// WHEN: Staff review it, then approve 12,500.50
	reviewed, err := f.claims.Process(f.ctx, staff, claim.ID, insurance.ProcessClaimInput{Status: insurance.ClaimUnderReview})
	require.NoError(t, err)
	assert.Equal(t, insurance.ClaimUnderReview, reviewed.Status)

	f.clock.Advance(48 * time.Hour)
	approved, err := f.claims.Process(f.ctx, admin, claim.ID, insurance.ProcessClaimInput{
		Status:  insurance.ClaimApproved,
		Amount:  amount(12500.5),
		Remarks: "surveyor confirmed",
	})

	// THEN
	require.NoError(t, err)
	assert.Equal(t, insurance.ClaimApproved, approved.Status)
	require.NotNil(t, approved.ClaimAmount)
	assert.Equal(t, "12500.50", approved.ClaimAmount.StringFixed(2))
	assert.Equal(t, admin.CallerID, approved.ProcessedBy)
	require.NotNil(t, approved.ProcessedDate)
	assert.Equal(t, f.clock.Now(), *approved.ProcessedDate)

	stored, err := f.claims.GetClaim(f.ctx, in.caller, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, insurance.ClaimApproved, stored.Status)
	assert.Equal(t, "surveyor confirmed", stored.AdminRemarks)
}

func TestProcessClaim_DecidedClaim_CannotReopen(t *testing.T) {
	f := newFixture(t)
	in := f.paid(t)
	claim, err := f.claims.Submit(f.ctx, in.caller, in.claimInput())
	require.NoError(t, err)
	_, err = f.claims.Process(f.ctx, staff, claim.ID, insurance.ProcessClaimInput{Status: insurance.ClaimRejected})
	require.NoError(t, err)

	_, err = f.claims.Process(f.ctx, staff, claim.ID, insurance.ProcessClaimInput{Status: insurance.ClaimApproved, Amount: amount(100)})

	assert.True(t, insurance.IsInvalidState(err))
}

func TestProcessClaim_ReviewTwice_InvalidState(t *testing.T) {
	f := newFixture(t)
	in := f.paid(t)
	claim, err := f.claims.Submit(f.ctx, in.caller, in.claimInput())
	require.NoError(t, err)
	_, err = f.claims.Process(f.ctx, staff, claim.ID, insurance.ProcessClaimInput{Status: insurance.ClaimUnderReview})
	require.NoError(t, err)

	_, err = f.claims.Process(f.ctx, staff, claim.ID, insurance.ProcessClaimInput{Status: insurance.ClaimUnderReview})

	assert.True(t, insurance.IsInvalidState(err))
}

func TestProcessClaim_ApproveWithoutAmount_ValidationError(t *testing.T) {
	f := newFixture(t)
	in := f.paid(t)
	claim, err := f.claims.Submit(f.ctx, in.caller, in.claimInput())
	require.NoError(t, err)

	_, err = f.claims.Process(f.ctx, staff, claim.ID, insurance.ProcessClaimInput{Status: insurance.ClaimApproved})

	assert.Equal(t, insurance.KindValidation, insurance.KindOf(err))
}

func TestProcessClaim_NegativeAmount_ValidationError(t *testing.T) {
	f := newFixture(t)
	in := f.paid(t)
	claim, err := f.claims.Submit(f.ctx, in.caller, in.claimInput())
	require.NoError(t, err)

	_, err = f.claims.Process(f.ctx, staff, claim.ID, insurance.ProcessClaimInput{Status: insurance.ClaimApproved, Amount: amount(-1)})

	assert.Equal(t, insurance.KindValidation, insurance.KindOf(err))
}

func TestProcessClaim_Customer_Forbidden(t *testing.T) {
	f := newFixture(t)
	in := f.paid(t)
	claim, err := f.claims.Submit(f.ctx, in.caller, in.claimInput())
	require.NoError(t, err)

	_, err = f.claims.Process(f.ctx, in.caller, claim.ID, insurance.ProcessClaimInput{Status: insurance.ClaimApproved, Amount: amount(1)})

	assert.Equal(t, insurance.KindForbidden, insurance.KindOf(err))
}

func TestProcessClaim_NotifiesCustomer(t *testing.T) {
	f := newFixture(t)
	in := f.paid(t)
	claim, err := f.claims.Submit(f.ctx, in.caller, in.claimInput())
	require.NoError(t, err)

	_, err = f.claims.Process(f.ctx, staff, claim.ID, insurance.ProcessClaimInput{Status: insurance.ClaimRejected, Remarks: "not covered"})
	require.NoError(t, err)

	page, err := f.notifications.List(f.ctx, in.caller, insurance.NotificationFilter{}, insurance.ListQuery{})
	require.NoError(t, err)
	require.NotEmpty(t, page.Items)
	latest := page.Items[0]
	assert.Equal(t, insurance.NotifyClaimUpdate, latest.Type)
	assert.Contains(t, latest.Message, "rejected")
	assert.Contains(t, latest.Message, "not covered")
}

// =============================================================================
// STATS
// =============================================================================

func TestClaimStats_GroupsByStatus(t *testing.T) {
	// GIVEN: Three claims: approved, rejected, pending
	f := newFixture(t)
	in := f.paid(t)
	var ids []string
	for range 3 {
		c, err := f.claims.Submit(f.ctx, in.caller, in.claimInput())
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}
	_, err := f.claims.Process(f.ctx, staff, ids[0], insurance.ProcessClaimInput{Status: insurance.ClaimApproved, Amount: amount(250.25)})
	require.NoError(t, err)
	_, err = f.claims.Process(f.ctx, staff, ids[1], insurance.ProcessClaimInput{Status: insurance.ClaimRejected})
	require.NoError(t, err)

	// WHEN
	stats, err := f.claims.Stats(f.ctx, staff)

	// THEN: Every status is listed in lifecycle order
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	require.Len(t, stats.ByStatus, 4)
	counts := map[insurance.ClaimStatus]int{}
	for i, s := range stats.ByStatus {
		assert.Equal(t, insurance.ClaimStatuses[i], s.Status)
		counts[s.Status] = s.Count
	}
	assert.Equal(t, 1, counts[insurance.ClaimPending])
	assert.Equal(t, 0, counts[insurance.ClaimUnderReview])
	assert.Equal(t, 1, counts[insurance.ClaimApproved])
	assert.Equal(t, 1, counts[insurance.ClaimRejected])
	assert.Equal(t, "250.25", stats.ApprovedAmount.StringFixed(2))
}

func TestClaimStats_Customer_Forbidden(t *testing.T) {
	f := newFixture(t)
	in := f.paid(t)

	_, err := f.claims.Stats(f.ctx, in.caller)

	assert.Equal(t, insurance.KindForbidden, insurance.KindOf(err))
}
