/*
lifecycle.go - Policy lifecycle engine

PURPOSE:
  Orchestrates the Premium (payment) and Renewal (coverage period) records of
  a vehicle's coverage, driven by purchase, payment, renewal and expiry.

STATE MACHINES:
  Premium:  pending ──▶ paid    (terminal success)
            pending ──▶ failed  (terminal failure, re-purchasable)

  Renewal:  pending ──▶ approved  (premium paid, or admin approval)
            pending ──▶ rejected  (admin rejection or failed payment, terminal)
            pending | approved ──▶ expired  (sweep once expiryDate < now, terminal)

COVERAGE SLOT:
  A (vehicle, coverage type) pair holds at most one pending/approved renewal.
  Storage enforces this with a unique key; the pre-check below only exists
  to produce a precise message. Expiry and rejection free the slot, which is
  what allows a lapsed policy to be renewed.

CONCURRENCY:
  No in-process locks. Payment confirmation is a conditional update
  (pending -> paid); when two confirmations race, the loser gets
  ErrInvalidState. The expiry sweep is a conditional bulk update and is
  idempotent.

SEE ALSO:
  - premium.go: pricing
  - claims.go: claims gated on paid coverage
*/
package insurance

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PurchaseInput identifies the customer, policy and vehicle of a purchase
// or renewal.
type PurchaseInput struct {
	CustomerID string `json:"customerId" validate:"required"`
	PolicyID   string `json:"policyId" validate:"required"`
	VehicleID  string `json:"vehicleId" validate:"required"`
}

// Purchase is the atomic result of a purchase or renewal.
type Purchase struct {
	Premium Premium
	Renewal Renewal
}

// Lifecycle drives premiums and renewals.
type Lifecycle struct {
	deps
}

// NewLifecycle constructs a Lifecycle.
func NewLifecycle(store TxStore, opts ...Option) *Lifecycle {
	return &Lifecycle{deps: newDeps(store, opts)}
}

// =============================================================================
// PURCHASE / RENEWAL
// =============================================================================

// Purchase buys a policy for a vehicle: creates a pending Premium and its
// pending Renewal as one atomic unit.
func (l *Lifecycle) Purchase(ctx context.Context, caller Caller, in PurchaseInput) (*Purchase, error) {
	return l.open(ctx, caller, in, KindPurchase)
}

// SubmitRenewal renews a policy for a vehicle. Same rules as Purchase; the
// prior coverage does not need to be active, so lapsed policies can renew.
func (l *Lifecycle) SubmitRenewal(ctx context.Context, caller Caller, in PurchaseInput) (*Purchase, error) {
	return l.open(ctx, caller, in, KindRenewal)
}

func (l *Lifecycle) open(ctx context.Context, caller Caller, in PurchaseInput, kind RenewalKind) (*Purchase, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if err := requireOwner(caller, in.CustomerID); err != nil {
		return nil, err
	}

	var out Purchase
	var policy *Policy
	err := l.store.WithTx(ctx, func(tx Store) error {
		var err error
		policy, err = tx.GetPolicy(ctx, in.PolicyID)
		if err != nil {
			return lookupErr("policy", in.PolicyID, err)
		}
		if !policy.IsActive {
			return invalidState("policy", "policy %s is not active", policy.Code)
		}
		vehicle, err := tx.GetVehicle(ctx, in.VehicleID)
		if err != nil {
			return lookupErr("vehicle", in.VehicleID, err)
		}
		if vehicle.CustomerID != in.CustomerID {
			return invalidState("vehicle", "vehicle %s is not owned by customer %s", vehicle.Code, in.CustomerID)
		}

		holder, err := tx.SlotHolder(ctx, vehicle.ID, policy.CoverageType)
		switch {
		case err == nil:
			return slotConflict(vehicle, policy.CoverageType, holder)
		case !errors.Is(err, ErrNotFound):
			return fmt.Errorf("check coverage slot: %w", err)
		}

		// A renewal that was rejected or expired before payment leaves its
		// premium pending; it must be failed before the policy is bought again.
		unpaid, n, err := tx.ListPremiums(ctx, PremiumFilter{
			CustomerID: in.CustomerID,
			VehicleID:  vehicle.ID,
			PolicyID:   policy.ID,
			Status:     PaymentPending,
		}, ListQuery{Limit: 1})
		if err != nil {
			return fmt.Errorf("check pending premiums: %w", err)
		}
		if n > 0 {
			return conflict("premium", "premium %s for %s on vehicle %s is still awaiting payment",
				unpaid[0].Code, policy.Name, vehicle.PlateNumber)
		}

		now := l.clock()
		breakdown := CalculateAt(*policy, *vehicle, now)

		premiumCode, err := l.mintCode(ctx, tx, CounterPremium, PrefixPremium)
		if err != nil {
			return err
		}
		renewalCode, err := l.mintCode(ctx, tx, CounterRenewal, PrefixRenewal)
		if err != nil {
			return err
		}

		out.Premium = Premium{
			ID:               l.newID(),
			Code:             premiumCode,
			PolicyID:         policy.ID,
			VehicleID:        vehicle.ID,
			CustomerID:       in.CustomerID,
			CoverageType:     policy.CoverageType,
			CalculatedAmount: breakdown.FinalAmount,
			Breakdown:        breakdown,
			PaymentStatus:    PaymentPending,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if err := tx.CreatePremium(ctx, out.Premium); err != nil {
			return fmt.Errorf("create premium: %w", err)
		}

		out.Renewal = Renewal{
			ID:           l.newID(),
			Code:         renewalCode,
			PolicyID:     policy.ID,
			PremiumID:    out.Premium.ID,
			VehicleID:    vehicle.ID,
			CustomerID:   in.CustomerID,
			CoverageType: policy.CoverageType,
			Kind:         kind,
			RenewalDate:  now,
			ExpiryDate:   now.AddDate(0, policy.DurationMonths, 0),
			Status:       RenewalPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		err = tx.CreateRenewal(ctx, out.Renewal)
		if errors.Is(err, ErrConflict) {
			return slotConflict(vehicle, policy.CoverageType, nil)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	l.metrics.IncrementPremiumsCreated(string(kind))
	l.logger.InfoContext(ctx, "premium created",
		"kind", kind,
		"premium", out.Premium.Code,
		"renewal", out.Renewal.Code,
		"amount", out.Premium.CalculatedAmount.StringFixed(2))

	ntype, title := NotifyPayment, "Payment due"
	if kind == KindRenewal {
		ntype, title = NotifyRenewal, "Renewal submitted"
	}
	l.notify(ctx, Notification{
		CustomerID: in.CustomerID,
		PolicyID:   policy.ID,
		Type:       ntype,
		Title:      title,
		Message: fmt.Sprintf("Premium %s for %s is %s and awaits payment.",
			out.Premium.Code, policy.Name, out.Premium.CalculatedAmount.StringFixed(2)),
	})
	return &out, nil
}

func slotConflict(v *Vehicle, coverage CoverageType, holder *Renewal) error {
	if holder != nil {
		return conflict("premium", "vehicle %s already has an active or pending %s policy (%s)",
			v.PlateNumber, coverage, holder.Code)
	}
	return conflict("premium", "vehicle %s already has an active or pending %s policy", v.PlateNumber, coverage)
}

// Quote prices a policy for a vehicle without writing anything.
func (l *Lifecycle) Quote(ctx context.Context, caller Caller, policyID, vehicleID string) (*Breakdown, error) {
	policy, err := l.store.GetPolicy(ctx, policyID)
	if err != nil {
		return nil, lookupErr("policy", policyID, err)
	}
	vehicle, err := l.store.GetVehicle(ctx, vehicleID)
	if err != nil {
		return nil, lookupErr("vehicle", vehicleID, err)
	}
	if err := requireOwner(caller, vehicle.CustomerID); err != nil {
		return nil, err
	}
	b := CalculateAt(*policy, *vehicle, l.clock())
	return &b, nil
}

// =============================================================================
// PAYMENT
// =============================================================================

// ConfirmPayment marks a pending premium paid and approves its renewal.
// A second confirmation fails with ErrInvalidState and leaves paymentDate
// untouched.
func (l *Lifecycle) ConfirmPayment(ctx context.Context, caller Caller, premiumID, transactionRef string) (*Premium, error) {
	var premium *Premium
	err := l.store.WithTx(ctx, func(tx Store) error {
		var err error
		premium, err = tx.GetPremium(ctx, premiumID)
		if err != nil {
			return lookupErr("premium", premiumID, err)
		}
		if err := requireOwner(caller, premium.CustomerID); err != nil {
			return err
		}
		switch premium.PaymentStatus {
		case PaymentPaid:
			return invalidState("premium", "premium %s is already paid", premium.Code)
		case PaymentFailed:
			return invalidState("premium", "premium %s payment failed; purchase the policy again", premium.Code)
		}

		renewal, err := tx.GetRenewalByPremium(ctx, premium.ID)
		if err != nil {
			return lookupErr("renewal", "for premium "+premium.Code, err)
		}
		if !renewal.Status.HoldsCoverage() {
			return invalidState("renewal", "renewal %s is %s and can no longer be paid", renewal.Code, renewal.Status)
		}

		now := l.clock()
		if err := tx.MarkPremiumPaid(ctx, premium.ID, now, transactionRef); err != nil {
			if errors.Is(err, ErrInvalidState) {
				return invalidState("premium", "premium %s is already paid", premium.Code)
			}
			return fmt.Errorf("mark premium paid: %w", err)
		}
		if renewal.Status == RenewalPending {
			if err := tx.TransitionRenewal(ctx, renewal.ID, []RenewalStatus{RenewalPending}, RenewalApproved, "", now); err != nil {
				return fmt.Errorf("approve renewal: %w", err)
			}
		}
		premium.PaymentStatus = PaymentPaid
		premium.PaymentDate = &now
		premium.TransactionRef = transactionRef
		premium.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.metrics.IncrementPaymentsConfirmed()
	l.logger.InfoContext(ctx, "payment confirmed", "premium", premium.Code, "transaction_ref", transactionRef)
	l.notify(ctx, Notification{
		CustomerID: premium.CustomerID,
		PolicyID:   premium.PolicyID,
		Type:       NotifyPayment,
		Title:      "Payment received",
		Message: fmt.Sprintf("Payment of %s for premium %s was received. Your coverage is active.",
			premium.CalculatedAmount.StringFixed(2), premium.Code),
	})
	return premium, nil
}

// FailPayment records a failed payment and releases the coverage slot by
// rejecting the pending renewal.
func (l *Lifecycle) FailPayment(ctx context.Context, caller Caller, premiumID, reason string) (*Premium, error) {
	if err := requireStaff(caller); err != nil {
		return nil, err
	}
	var premium *Premium
	err := l.store.WithTx(ctx, func(tx Store) error {
		var err error
		premium, err = tx.GetPremium(ctx, premiumID)
		if err != nil {
			return lookupErr("premium", premiumID, err)
		}
		now := l.clock()
		if err := tx.MarkPremiumFailed(ctx, premium.ID, now, reason); err != nil {
			if errors.Is(err, ErrInvalidState) {
				return invalidState("premium", "premium %s is %s, not pending", premium.Code, premium.PaymentStatus)
			}
			return fmt.Errorf("mark premium failed: %w", err)
		}
		renewal, err := tx.GetRenewalByPremium(ctx, premium.ID)
		if err != nil {
			return lookupErr("renewal", "for premium "+premium.Code, err)
		}
		err = tx.TransitionRenewal(ctx, renewal.ID, []RenewalStatus{RenewalPending}, RenewalRejected, "payment failed: "+reason, now)
		if err != nil && !errors.Is(err, ErrInvalidState) {
			return fmt.Errorf("reject renewal: %w", err)
		}
		premium.PaymentStatus = PaymentFailed
		premium.FailureReason = reason
		premium.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.metrics.IncrementPaymentsFailed()
	l.notify(ctx, Notification{
		CustomerID: premium.CustomerID,
		PolicyID:   premium.PolicyID,
		Type:       NotifyPayment,
		Title:      "Payment failed",
		Message:    fmt.Sprintf("Payment for premium %s failed: %s", premium.Code, reason),
	})
	return premium, nil
}

// GetPremium returns a premium the caller may see.
func (l *Lifecycle) GetPremium(ctx context.Context, caller Caller, id string) (*Premium, error) {
	p, err := l.store.GetPremium(ctx, id)
	if err != nil {
		return nil, lookupErr("premium", id, err)
	}
	if err := requireOwner(caller, p.CustomerID); err != nil {
		return nil, err
	}
	return p, nil
}

// ListPremiums pages through premiums, scoped to the caller.
func (l *Lifecycle) ListPremiums(ctx context.Context, caller Caller, f PremiumFilter, q ListQuery) (Page[Premium], error) {
	q = q.Normalize()
	f.CustomerID = ScopeCustomer(caller, f.CustomerID)
	items, total, err := l.store.ListPremiums(ctx, f, q)
	if err != nil {
		return Page[Premium]{}, fmt.Errorf("list premiums: %w", err)
	}
	return newPage(items, q, total), nil
}

// =============================================================================
// ADMIN RENEWAL DECISIONS
// =============================================================================

// ApproveRenewal approves a pending renewal. The premium is not touched.
func (l *Lifecycle) ApproveRenewal(ctx context.Context, caller Caller, renewalID, remarks string) (*Renewal, error) {
	return l.decideRenewal(ctx, caller, renewalID, RenewalApproved, remarks)
}

// RejectRenewal rejects a pending renewal. The premium is not touched.
func (l *Lifecycle) RejectRenewal(ctx context.Context, caller Caller, renewalID, remarks string) (*Renewal, error) {
	return l.decideRenewal(ctx, caller, renewalID, RenewalRejected, remarks)
}

func (l *Lifecycle) decideRenewal(ctx context.Context, caller Caller, id string, to RenewalStatus, remarks string) (*Renewal, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	var renewal *Renewal
	err := l.store.WithTx(ctx, func(tx Store) error {
		var err error
		renewal, err = tx.GetRenewal(ctx, id)
		if err != nil {
			return lookupErr("renewal", id, err)
		}
		now := l.clock()
		err = tx.TransitionRenewal(ctx, id, []RenewalStatus{RenewalPending}, to, remarks, now)
		if errors.Is(err, ErrInvalidState) {
			return invalidState("renewal", "renewal %s is %s, only pending renewals can be decided", renewal.Code, renewal.Status)
		}
		if err != nil {
			return fmt.Errorf("transition renewal: %w", err)
		}
		renewal.Status = to
		renewal.AdminRemarks = remarks
		renewal.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.metrics.IncrementRenewalsDecided(string(to))
	msg := fmt.Sprintf("Renewal %s was %s.", renewal.Code, to)
	if remarks != "" {
		msg += " Remarks: " + remarks
	}
	l.notify(ctx, Notification{
		CustomerID: renewal.CustomerID,
		PolicyID:   renewal.PolicyID,
		Type:       NotifyRenewal,
		Title:      "Renewal " + string(to),
		Message:    msg,
	})
	return renewal, nil
}

// GetRenewal returns a renewal the caller may see.
func (l *Lifecycle) GetRenewal(ctx context.Context, caller Caller, id string) (*Renewal, error) {
	r, err := l.store.GetRenewal(ctx, id)
	if err != nil {
		return nil, lookupErr("renewal", id, err)
	}
	if err := requireOwner(caller, r.CustomerID); err != nil {
		return nil, err
	}
	return r, nil
}

// ListRenewals pages through renewals, scoped to the caller.
func (l *Lifecycle) ListRenewals(ctx context.Context, caller Caller, f RenewalFilter, q ListQuery) (Page[Renewal], error) {
	q = q.Normalize()
	f.CustomerID = ScopeCustomer(caller, f.CustomerID)
	items, total, err := l.store.ListRenewals(ctx, f, q)
	if err != nil {
		return Page[Renewal]{}, fmt.Errorf("list renewals: %w", err)
	}
	return newPage(items, q, total), nil
}

// =============================================================================
// SCHEDULED TRANSITIONS
// =============================================================================

// SweepExpired moves every pending/approved renewal whose expiry date is
// before now to expired. Safe to run repeatedly and concurrently.
func (l *Lifecycle) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	expired, err := l.store.ExpireRenewals(ctx, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("expire renewals: %w", err)
	}
	for _, r := range expired {
		l.notify(ctx, Notification{
			CustomerID: r.CustomerID,
			PolicyID:   r.PolicyID,
			Type:       NotifyExpiry,
			Title:      "Policy expired",
			Message:    fmt.Sprintf("Coverage %s expired on %s. Submit a renewal to stay covered.", r.Code, r.ExpiryDate.Format("2006-01-02")),
		})
	}
	l.metrics.AddRenewalsExpired(len(expired))
	if len(expired) > 0 {
		l.logger.InfoContext(ctx, "renewals expired", "count", len(expired))
	}
	return len(expired), nil
}

// SendReminders notifies customers whose approved coverage expires within
// window. Each renewal is reminded at most once.
func (l *Lifecycle) SendReminders(ctx context.Context, now time.Time, window time.Duration) (int, error) {
	now = now.UTC()
	due, err := l.store.DueReminders(ctx, now, now.Add(window))
	if err != nil {
		return 0, fmt.Errorf("load due reminders: %w", err)
	}
	sent := 0
	for _, r := range due {
		won, err := l.store.MarkReminderSent(ctx, r.ID, now)
		if err != nil {
			l.logger.WarnContext(ctx, "reminder flag not set", "renewal", r.Code, "error", err)
			continue
		}
		if !won {
			continue
		}
		l.notify(ctx, Notification{
			CustomerID: r.CustomerID,
			PolicyID:   r.PolicyID,
			Type:       NotifyExpiry,
			Title:      "Policy expiring soon",
			Message:    fmt.Sprintf("Coverage %s expires on %s. Renew now to avoid a lapse.", r.Code, r.ExpiryDate.Format("2006-01-02")),
		})
		sent++
	}
	l.metrics.AddRemindersSent(sent)
	return sent, nil
}
