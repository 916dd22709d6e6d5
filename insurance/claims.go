/*
claims.go - Claim adjudication

PURPOSE:
  Customers file claims against paid coverage; staff and admins decide them.

STATE MACHINE:
  pending ──▶ under_review ──▶ approved | rejected
     └────────────────────────▶ approved | rejected

  approved and rejected are terminal. under_review cannot be re-entered.

ELIGIBILITY:
  A claim names a premium together with its customer, policy and vehicle.
  The premium must be paid and its coverage period must still be live
  (renewal not expired or rejected). A paid premium whose coverage lapsed
  does not back new claims.
*/
package insurance

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

const errNotClaimable = "claims only on active paid policies"

// ClaimInput files a claim.
type ClaimInput struct {
	CustomerID     string   `json:"customerId" validate:"required"`
	PolicyID       string   `json:"policyId" validate:"required"`
	VehicleID      string   `json:"vehicleId" validate:"required"`
	PremiumID      string   `json:"premiumId" validate:"required"`
	Reason         string   `json:"reason" validate:"required,min=10,max=1000"`
	SupportingDocs []string `json:"supportingDocs" validate:"max=10,dive,required,max=500"`
}

// ProcessClaimInput is an admin decision on a claim.
type ProcessClaimInput struct {
	Status  ClaimStatus `json:"status" validate:"required,oneof=under_review approved rejected"`
	Amount  *float64    `json:"claimAmount" validate:"omitempty,gte=0"`
	Remarks string      `json:"remarks" validate:"max=1000"`
}

// Claims adjudicates claims.
type Claims struct {
	deps
}

// NewClaims constructs a Claims service.
func NewClaims(store TxStore, opts ...Option) *Claims {
	return &Claims{deps: newDeps(store, opts)}
}

// Submit files a pending claim against a paid, live premium.
func (c *Claims) Submit(ctx context.Context, caller Caller, in ClaimInput) (*Claim, error) {
	in.Reason = strings.TrimSpace(in.Reason)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := requireOwner(caller, in.CustomerID); err != nil {
		return nil, err
	}

	var claim Claim
	err := c.store.WithTx(ctx, func(tx Store) error {
		premium, err := tx.GetPremium(ctx, in.PremiumID)
		if errors.Is(err, ErrNotFound) {
			return invalidState("claim", errNotClaimable)
		}
		if err != nil {
			return lookupErr("premium", in.PremiumID, err)
		}
		if premium.CustomerID != in.CustomerID || premium.PolicyID != in.PolicyID || premium.VehicleID != in.VehicleID {
			return invalidState("claim", errNotClaimable)
		}
		if premium.PaymentStatus != PaymentPaid {
			return invalidState("claim", errNotClaimable)
		}
		renewal, err := tx.GetRenewalByPremium(ctx, premium.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return lookupErr("renewal", "for premium "+premium.Code, err)
		}
		now := c.clock()
		if renewal == nil || !renewal.Status.HoldsCoverage() || now.After(renewal.ExpiryDate) {
			return invalidState("claim", errNotClaimable)
		}

		code, err := c.mintCode(ctx, tx, CounterClaim, PrefixClaim)
		if err != nil {
			return err
		}
		docs := in.SupportingDocs
		if docs == nil {
			docs = []string{}
		}
		claim = Claim{
			ID:             c.newID(),
			Code:           code,
			CustomerID:     in.CustomerID,
			PolicyID:       in.PolicyID,
			VehicleID:      in.VehicleID,
			PremiumID:      in.PremiumID,
			Reason:         in.Reason,
			SupportingDocs: docs,
			ClaimDate:      now,
			Status:         ClaimPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return tx.CreateClaim(ctx, claim)
	})
	if err != nil {
		return nil, err
	}

	c.metrics.IncrementClaimsSubmitted()
	c.logger.InfoContext(ctx, "claim submitted", "claim", claim.Code, "premium_id", claim.PremiumID)
	return &claim, nil
}

// Process records an admin decision. Decided claims cannot be reopened.
func (c *Claims) Process(ctx context.Context, caller Caller, claimID string, in ProcessClaimInput) (*Claim, error) {
	if err := requireStaff(caller); err != nil {
		return nil, err
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if in.Status == ClaimApproved && in.Amount == nil {
		ve := &ValidationError{}
		ve.Add("claimAmount", nil, "is required when approving a claim")
		return nil, ve
	}

	from := []ClaimStatus{ClaimPending, ClaimUnderReview}
	if in.Status == ClaimUnderReview {
		from = []ClaimStatus{ClaimPending}
	}

	var claim *Claim
	err := c.store.WithTx(ctx, func(tx Store) error {
		var err error
		claim, err = tx.GetClaim(ctx, claimID)
		if err != nil {
			return lookupErr("claim", claimID, err)
		}
		d := ClaimDecision{
			Status:      in.Status,
			Remarks:     in.Remarks,
			ProcessedAt: c.clock(),
			ProcessedBy: caller.CallerID,
		}
		if in.Status == ClaimApproved {
			amount := NewMoney(*in.Amount)
			d.Amount = &amount
		}
		err = tx.DecideClaim(ctx, claimID, from, d)
		if errors.Is(err, ErrInvalidState) {
			return invalidState("claim", "claim %s is %s and cannot move to %s", claim.Code, claim.Status, in.Status)
		}
		if err != nil {
			return fmt.Errorf("decide claim: %w", err)
		}
		claim.Status = d.Status
		claim.AdminRemarks = d.Remarks
		claim.ProcessedDate = &d.ProcessedAt
		claim.ProcessedBy = d.ProcessedBy
		claim.UpdatedAt = d.ProcessedAt
		if d.Amount != nil {
			claim.ClaimAmount = d.Amount
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.metrics.IncrementClaimsProcessed(string(claim.Status))
	c.logger.InfoContext(ctx, "claim processed", "claim", claim.Code, "status", claim.Status, "by", caller.CallerID)

	msg := fmt.Sprintf("Your claim %s is now %s.", claim.Code, strings.ReplaceAll(string(claim.Status), "_", " "))
	if claim.ClaimAmount != nil {
		msg += " Approved amount: " + claim.ClaimAmount.StringFixed(2) + "."
	}
	if claim.AdminRemarks != "" {
		msg += " Remarks: " + claim.AdminRemarks
	}
	c.notify(ctx, Notification{
		CustomerID: claim.CustomerID,
		PolicyID:   claim.PolicyID,
		Type:       NotifyClaimUpdate,
		Title:      "Claim " + claim.Code + " updated",
		Message:    msg,
	})
	return claim, nil
}

// GetClaim returns a claim the caller may see.
func (c *Claims) GetClaim(ctx context.Context, caller Caller, id string) (*Claim, error) {
	cl, err := c.store.GetClaim(ctx, id)
	if err != nil {
		return nil, lookupErr("claim", id, err)
	}
	if err := requireOwner(caller, cl.CustomerID); err != nil {
		return nil, err
	}
	return cl, nil
}

// ListClaims pages through claims, scoped to the caller.
func (c *Claims) ListClaims(ctx context.Context, caller Caller, f ClaimFilter, q ListQuery) (Page[Claim], error) {
	q = q.Normalize()
	f.CustomerID = ScopeCustomer(caller, f.CustomerID)
	items, total, err := c.store.ListClaims(ctx, f, q)
	if err != nil {
		return Page[Claim]{}, fmt.Errorf("list claims: %w", err)
	}
	return newPage(items, q, total), nil
}

// Stats aggregates claims by status. Staff only.
func (c *Claims) Stats(ctx context.Context, caller Caller) (*ClaimStats, error) {
	if err := requireStaff(caller); err != nil {
		return nil, err
	}
	rows, err := c.store.ClaimStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("claim stats: %w", err)
	}
	byStatus := make(map[ClaimStatus]ClaimStat, len(rows))
	for _, r := range rows {
		byStatus[r.Status] = r
	}
	out := &ClaimStats{}
	for _, s := range ClaimStatuses {
		row, ok := byStatus[s]
		if !ok {
			row = ClaimStat{Status: s}
		}
		row.TotalAmount = RoundMoney(row.TotalAmount)
		out.Total += row.Count
		out.ByStatus = append(out.ByStatus, row)
		if s == ClaimApproved {
			out.ApprovedAmount = row.TotalAmount
		}
	}
	return out, nil
}
