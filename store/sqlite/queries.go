package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/motor-insurance/insurance"
)

// =============================================================================
// SEQUENCES
// =============================================================================

// NextSequence atomically increments and returns the named counter.
func (q *queries) NextSequence(ctx context.Context, name string) (int64, error) {
	var n int64
	err := q.c.QueryRowContext(ctx, `
		INSERT INTO counters (name, sequence) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET sequence = counters.sequence + 1
		RETURNING sequence
	`, name).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next sequence %s: %w", name, err)
	}
	return n, nil
}

// CurrentSequence returns the last value handed out for the named counter
// without advancing it. An unused counter reads as zero.
func (q *queries) CurrentSequence(ctx context.Context, name string) (int64, error) {
	var n int64
	err := q.c.QueryRowContext(ctx, "SELECT sequence FROM counters WHERE name = ?", name).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("current sequence %s: %w", name, err)
	}
	return n, nil
}

// =============================================================================
// CUSTOMERS
// =============================================================================

func (q *queries) CreateCustomer(ctx context.Context, c insurance.Customer) error {
	_, err := q.c.ExecContext(ctx,
		"INSERT INTO customers (id, code, name, email, created_at) VALUES (?, ?, ?, ?, ?)",
		c.ID, c.Code, c.Name, c.Email, formatTime(c.CreatedAt))
	return insertErr("customer", err)
}

func (q *queries) GetCustomer(ctx context.Context, id string) (*insurance.Customer, error) {
	var (
		c         insurance.Customer
		createdAt string
	)
	err := q.c.QueryRowContext(ctx,
		"SELECT id, code, name, email, created_at FROM customers WHERE id = ?", id,
	).Scan(&c.ID, &c.Code, &c.Name, &c.Email, &createdAt)
	if err != nil {
		return nil, noRows(err)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// =============================================================================
// POLICIES
// =============================================================================

const policyCols = `id, code, name, description, coverage_type, duration_months, base_amount,
	pricing_rules_json, is_active, created_at, updated_at`

func (q *queries) CreatePolicy(ctx context.Context, p insurance.Policy) error {
	rules, err := json.Marshal(p.PricingRules)
	if err != nil {
		return fmt.Errorf("encode pricing rules: %w", err)
	}
	_, err = q.c.ExecContext(ctx, `
		INSERT INTO policies (id, code, name, name_key, description, coverage_type, duration_months,
			base_amount, pricing_rules_json, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Code, p.Name, strings.ToLower(p.Name), p.Description, p.CoverageType, p.DurationMonths,
		p.BaseAmount.String(), string(rules), p.IsActive, formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	return insertErr("policy", err)
}

func (q *queries) UpdatePolicy(ctx context.Context, p insurance.Policy) error {
	rules, err := json.Marshal(p.PricingRules)
	if err != nil {
		return fmt.Errorf("encode pricing rules: %w", err)
	}
	res, err := q.c.ExecContext(ctx, `
		UPDATE policies SET name = ?, name_key = ?, description = ?, coverage_type = ?,
			duration_months = ?, base_amount = ?, pricing_rules_json = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`, p.Name, strings.ToLower(p.Name), p.Description, p.CoverageType, p.DurationMonths,
		p.BaseAmount.String(), string(rules), p.IsActive, formatTime(p.UpdatedAt), p.ID)
	if err != nil {
		return insertErr("policy", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return insurance.ErrNotFound
	}
	return nil
}

func (q *queries) GetPolicy(ctx context.Context, id string) (*insurance.Policy, error) {
	p, err := scanPolicy(q.c.QueryRowContext(ctx, "SELECT "+policyCols+" FROM policies WHERE id = ?", id))
	if err != nil {
		return nil, noRows(err)
	}
	return &p, nil
}

func (q *queries) ListPolicies(ctx context.Context, f insurance.PolicyFilter, lq insurance.ListQuery) ([]insurance.Policy, int, error) {
	w := &where{}
	if f.ActiveOnly {
		w.add("is_active = TRUE")
	}
	if f.CoverageType != "" {
		w.add("coverage_type = ?", string(f.CoverageType))
	}
	w.search(lq.Search, "name", "code")
	return list(ctx, q.c, "policies", policyCols, "created_at", w, lq, scanPolicy)
}

func scanPolicy(s scanner) (insurance.Policy, error) {
	var (
		p                    insurance.Policy
		base, rules          string
		createdAt, updatedAt string
	)
	err := s.Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.CoverageType, &p.DurationMonths,
		&base, &rules, &p.IsActive, &createdAt, &updatedAt)
	if err != nil {
		return p, err
	}
	if p.BaseAmount, err = decimal.NewFromString(base); err != nil {
		return p, fmt.Errorf("parse base amount: %w", err)
	}
	if err := json.Unmarshal([]byte(rules), &p.PricingRules); err != nil {
		return p, fmt.Errorf("decode pricing rules: %w", err)
	}
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return p, err
	}
	p.UpdatedAt, err = parseTime(updatedAt)
	return p, err
}

// =============================================================================
// VEHICLES
// =============================================================================

const vehicleCols = `id, code, customer_id, plate_number, vehicle_type, model, registration_year, created_at`

func (q *queries) CreateVehicle(ctx context.Context, v insurance.Vehicle) error {
	_, err := q.c.ExecContext(ctx, `
		INSERT INTO vehicles (`+vehicleCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, v.ID, v.Code, v.CustomerID, v.PlateNumber, v.VehicleType, v.Model, v.RegistrationYear, formatTime(v.CreatedAt))
	return insertErr("vehicle", err)
}

func (q *queries) GetVehicle(ctx context.Context, id string) (*insurance.Vehicle, error) {
	v, err := scanVehicle(q.c.QueryRowContext(ctx, "SELECT "+vehicleCols+" FROM vehicles WHERE id = ?", id))
	if err != nil {
		return nil, noRows(err)
	}
	return &v, nil
}

func (q *queries) ListVehicles(ctx context.Context, f insurance.VehicleFilter, lq insurance.ListQuery) ([]insurance.Vehicle, int, error) {
	w := &where{}
	if f.CustomerID != "" {
		w.add("customer_id = ?", f.CustomerID)
	}
	w.search(lq.Search, "plate_number", "model", "code")
	return list(ctx, q.c, "vehicles", vehicleCols, "created_at", w, lq, scanVehicle)
}

// VehicleUsage counts the records that block a vehicle deletion.
func (q *queries) VehicleUsage(ctx context.Context, vehicleID string) (insurance.VehicleUsage, error) {
	var u insurance.VehicleUsage
	err := q.c.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM premiums WHERE vehicle_id = ? AND payment_status = 'paid'),
			(SELECT COUNT(*) FROM premiums WHERE vehicle_id = ? AND payment_status = 'pending'),
			(SELECT COUNT(*) FROM claims WHERE vehicle_id = ? AND status IN ('pending', 'under_review'))
	`, vehicleID, vehicleID, vehicleID).Scan(&u.PaidPremiums, &u.PendingPremiums, &u.OpenClaims)
	if err != nil {
		return u, fmt.Errorf("vehicle usage: %w", err)
	}
	return u, nil
}

func (q *queries) DeleteVehicle(ctx context.Context, id string) error {
	res, err := q.c.ExecContext(ctx, "DELETE FROM vehicles WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete vehicle: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return insurance.ErrNotFound
	}
	return nil
}

func scanVehicle(s scanner) (insurance.Vehicle, error) {
	var (
		v         insurance.Vehicle
		createdAt string
	)
	err := s.Scan(&v.ID, &v.Code, &v.CustomerID, &v.PlateNumber, &v.VehicleType, &v.Model, &v.RegistrationYear, &createdAt)
	if err != nil {
		return v, err
	}
	v.CreatedAt, err = parseTime(createdAt)
	return v, err
}

// =============================================================================
// PREMIUMS
// =============================================================================

const premiumCols = `id, code, policy_id, vehicle_id, customer_id, coverage_type, calculated_amount,
	breakdown_json, payment_status, payment_date, transaction_ref, failure_reason, created_at, updated_at`

func (q *queries) CreatePremium(ctx context.Context, p insurance.Premium) error {
	breakdown, err := json.Marshal(p.Breakdown)
	if err != nil {
		return fmt.Errorf("encode breakdown: %w", err)
	}
	_, err = q.c.ExecContext(ctx, `
		INSERT INTO premiums (`+premiumCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Code, p.PolicyID, p.VehicleID, p.CustomerID, p.CoverageType, p.CalculatedAmount.String(),
		string(breakdown), p.PaymentStatus, nullTime(p.PaymentDate), nullString(p.TransactionRef),
		nullString(p.FailureReason), formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	return insertErr("premium", err)
}

func (q *queries) GetPremium(ctx context.Context, id string) (*insurance.Premium, error) {
	p, err := scanPremium(q.c.QueryRowContext(ctx, "SELECT "+premiumCols+" FROM premiums WHERE id = ?", id))
	if err != nil {
		return nil, noRows(err)
	}
	return &p, nil
}

func (q *queries) ListPremiums(ctx context.Context, f insurance.PremiumFilter, lq insurance.ListQuery) ([]insurance.Premium, int, error) {
	w := &where{}
	if f.CustomerID != "" {
		w.add("customer_id = ?", f.CustomerID)
	}
	if f.VehicleID != "" {
		w.add("vehicle_id = ?", f.VehicleID)
	}
	if f.PolicyID != "" {
		w.add("policy_id = ?", f.PolicyID)
	}
	if f.Status != "" {
		w.add("payment_status = ?", string(f.Status))
	}
	w.search(lq.Search, "code", "transaction_ref")
	return list(ctx, q.c, "premiums", premiumCols, "created_at", w, lq, scanPremium)
}

// MarkPremiumPaid is the conditional pending -> paid update. Two concurrent
// confirmations cannot both match the WHERE clause.
func (q *queries) MarkPremiumPaid(ctx context.Context, id string, paidAt time.Time, transactionRef string) error {
	res, err := q.c.ExecContext(ctx, `
		UPDATE premiums SET payment_status = 'paid', payment_date = ?, transaction_ref = ?, updated_at = ?
		WHERE id = ? AND payment_status = 'pending'
	`, formatTime(paidAt), nullString(transactionRef), formatTime(paidAt), id)
	if err != nil {
		return fmt.Errorf("failed to mark premium paid: %w", err)
	}
	return q.conditional(ctx, res, "premiums", id)
}

func (q *queries) MarkPremiumFailed(ctx context.Context, id string, at time.Time, reason string) error {
	res, err := q.c.ExecContext(ctx, `
		UPDATE premiums SET payment_status = 'failed', failure_reason = ?, updated_at = ?
		WHERE id = ? AND payment_status = 'pending'
	`, nullString(reason), formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to mark premium failed: %w", err)
	}
	return q.conditional(ctx, res, "premiums", id)
}

func scanPremium(s scanner) (insurance.Premium, error) {
	var (
		p                      insurance.Premium
		amount, breakdown      string
		paymentDate            sql.NullString
		transactionRef, reason sql.NullString
		createdAt, updatedAt   string
	)
	err := s.Scan(&p.ID, &p.Code, &p.PolicyID, &p.VehicleID, &p.CustomerID, &p.CoverageType, &amount,
		&breakdown, &p.PaymentStatus, &paymentDate, &transactionRef, &reason, &createdAt, &updatedAt)
	if err != nil {
		return p, err
	}
	if p.CalculatedAmount, err = decimal.NewFromString(amount); err != nil {
		return p, fmt.Errorf("parse calculated amount: %w", err)
	}
	if err := json.Unmarshal([]byte(breakdown), &p.Breakdown); err != nil {
		return p, fmt.Errorf("decode breakdown: %w", err)
	}
	if p.PaymentDate, err = parseNullTime(paymentDate); err != nil {
		return p, err
	}
	p.TransactionRef = transactionRef.String
	p.FailureReason = reason.String
	if p.CreatedAt, err = parseTime(createdAt); err != nil {
		return p, err
	}
	p.UpdatedAt, err = parseTime(updatedAt)
	return p, err
}

// =============================================================================
// RENEWALS
// =============================================================================

const renewalCols = `id, code, policy_id, premium_id, vehicle_id, customer_id, coverage_type, kind,
	renewal_date, expiry_date, status, reminder_sent, reminder_sent_at, admin_remarks, created_at, updated_at`

// CreateRenewal fails with ErrConflict through idx_renewals_live_slot when
// the coverage slot is already held.
func (q *queries) CreateRenewal(ctx context.Context, r insurance.Renewal) error {
	_, err := q.c.ExecContext(ctx, `
		INSERT INTO renewals (`+renewalCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Code, r.PolicyID, r.PremiumID, r.VehicleID, r.CustomerID, r.CoverageType, r.Kind,
		formatTime(r.RenewalDate), formatTime(r.ExpiryDate), r.Status, r.ReminderSent,
		nullTime(r.ReminderSentAt), nullString(r.AdminRemarks), formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	return insertErr("renewal", err)
}

func (q *queries) GetRenewal(ctx context.Context, id string) (*insurance.Renewal, error) {
	return q.getRenewal(ctx, "id = ?", id)
}

func (q *queries) GetRenewalByPremium(ctx context.Context, premiumID string) (*insurance.Renewal, error) {
	return q.getRenewal(ctx, "premium_id = ?", premiumID)
}

func (q *queries) SlotHolder(ctx context.Context, vehicleID string, coverage insurance.CoverageType) (*insurance.Renewal, error) {
	return q.getRenewal(ctx, "vehicle_id = ? AND coverage_type = ? AND status IN ('pending', 'approved')",
		vehicleID, string(coverage))
}

func (q *queries) getRenewal(ctx context.Context, cond string, args ...any) (*insurance.Renewal, error) {
	r, err := scanRenewal(q.c.QueryRowContext(ctx, "SELECT "+renewalCols+" FROM renewals WHERE "+cond+" LIMIT 1", args...))
	if err != nil {
		return nil, noRows(err)
	}
	return &r, nil
}

func (q *queries) ListRenewals(ctx context.Context, f insurance.RenewalFilter, lq insurance.ListQuery) ([]insurance.Renewal, int, error) {
	w := &where{}
	if f.CustomerID != "" {
		w.add("customer_id = ?", f.CustomerID)
	}
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	w.search(lq.Search, "code", "admin_remarks")
	return list(ctx, q.c, "renewals", renewalCols, "created_at", w, lq, scanRenewal)
}

func (q *queries) TransitionRenewal(ctx context.Context, id string, from []insurance.RenewalStatus, to insurance.RenewalStatus, remarks string, at time.Time) error {
	args := []any{string(to), nullString(remarks), formatTime(at), id}
	args = append(args, toArgs(from)...)
	res, err := q.c.ExecContext(ctx, `
		UPDATE renewals SET status = ?, admin_remarks = COALESCE(?, admin_remarks), updated_at = ?
		WHERE id = ? AND status IN (`+placeholders(len(from))+`)
	`, args...)
	if err != nil {
		return insertErr("renewal transition", err)
	}
	return q.conditional(ctx, res, "renewals", id)
}

// ExpireRenewals is idempotent: rows already expired no longer match.
func (q *queries) ExpireRenewals(ctx context.Context, now time.Time) ([]insurance.Renewal, error) {
	ts := formatTime(now)
	items, err := queryAll(ctx, q.c, `
		UPDATE renewals SET status = 'expired', updated_at = ?
		WHERE status IN ('pending', 'approved') AND expiry_date < ?
		RETURNING `+renewalCols, []any{ts, ts}, scanRenewal)
	if err != nil {
		return nil, fmt.Errorf("failed to expire renewals: %w", err)
	}
	return items, nil
}

func (q *queries) DueReminders(ctx context.Context, from, until time.Time) ([]insurance.Renewal, error) {
	items, err := queryAll(ctx, q.c, `
		SELECT `+renewalCols+` FROM renewals
		WHERE status = 'approved' AND reminder_sent = FALSE AND expiry_date >= ? AND expiry_date <= ?
		ORDER BY expiry_date ASC
	`, []any{formatTime(from), formatTime(until)}, scanRenewal)
	if err != nil {
		return nil, fmt.Errorf("failed to load due reminders: %w", err)
	}
	return items, nil
}

func (q *queries) MarkReminderSent(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := q.c.ExecContext(ctx, `
		UPDATE renewals SET reminder_sent = TRUE, reminder_sent_at = ?, updated_at = ?
		WHERE id = ? AND reminder_sent = FALSE
	`, formatTime(at), formatTime(at), id)
	if err != nil {
		return false, fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func scanRenewal(s scanner) (insurance.Renewal, error) {
	var (
		r                       insurance.Renewal
		renewalDate, expiryDate string
		reminderSentAt, remarks sql.NullString
		createdAt, updatedAt    string
	)
	err := s.Scan(&r.ID, &r.Code, &r.PolicyID, &r.PremiumID, &r.VehicleID, &r.CustomerID, &r.CoverageType, &r.Kind,
		&renewalDate, &expiryDate, &r.Status, &r.ReminderSent, &reminderSentAt, &remarks, &createdAt, &updatedAt)
	if err != nil {
		return r, err
	}
	if r.RenewalDate, err = parseTime(renewalDate); err != nil {
		return r, err
	}
	if r.ExpiryDate, err = parseTime(expiryDate); err != nil {
		return r, err
	}
	if r.ReminderSentAt, err = parseNullTime(reminderSentAt); err != nil {
		return r, err
	}
	r.AdminRemarks = remarks.String
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return r, err
	}
	r.UpdatedAt, err = parseTime(updatedAt)
	return r, err
}

// =============================================================================
// CLAIMS
// =============================================================================

const claimCols = `id, code, customer_id, policy_id, vehicle_id, premium_id, reason, supporting_docs_json,
	claim_date, claim_amount, status, admin_remarks, processed_date, processed_by, created_at, updated_at`

func (q *queries) CreateClaim(ctx context.Context, c insurance.Claim) error {
	docs := c.SupportingDocs
	if docs == nil {
		docs = []string{}
	}
	docsJSON, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encode supporting docs: %w", err)
	}
	var amount sql.NullString
	if c.ClaimAmount != nil {
		amount = sql.NullString{String: c.ClaimAmount.String(), Valid: true}
	}
	_, err = q.c.ExecContext(ctx, `
		INSERT INTO claims (`+claimCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Code, c.CustomerID, c.PolicyID, c.VehicleID, c.PremiumID, c.Reason, string(docsJSON),
		formatTime(c.ClaimDate), amount, c.Status, nullString(c.AdminRemarks), nullTime(c.ProcessedDate),
		nullString(c.ProcessedBy), formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	return insertErr("claim", err)
}

func (q *queries) GetClaim(ctx context.Context, id string) (*insurance.Claim, error) {
	c, err := scanClaim(q.c.QueryRowContext(ctx, "SELECT "+claimCols+" FROM claims WHERE id = ?", id))
	if err != nil {
		return nil, noRows(err)
	}
	return &c, nil
}

func (q *queries) ListClaims(ctx context.Context, f insurance.ClaimFilter, lq insurance.ListQuery) ([]insurance.Claim, int, error) {
	w := &where{}
	if f.CustomerID != "" {
		w.add("customer_id = ?", f.CustomerID)
	}
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	w.search(lq.Search, "code", "reason")
	return list(ctx, q.c, "claims", claimCols, "created_at", w, lq, scanClaim)
}

// DecideClaim is conditional on the claim's current status.
func (q *queries) DecideClaim(ctx context.Context, id string, from []insurance.ClaimStatus, d insurance.ClaimDecision) error {
	var amount sql.NullString
	if d.Amount != nil {
		amount = sql.NullString{String: d.Amount.String(), Valid: true}
	}
	at := formatTime(d.ProcessedAt)
	args := []any{string(d.Status), amount, nullString(d.Remarks), at, nullString(d.ProcessedBy), at, id}
	args = append(args, toArgs(from)...)
	res, err := q.c.ExecContext(ctx, `
		UPDATE claims SET status = ?, claim_amount = COALESCE(?, claim_amount), admin_remarks = ?,
			processed_date = ?, processed_by = ?, updated_at = ?
		WHERE id = ? AND status IN (`+placeholders(len(from))+`)
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to decide claim: %w", err)
	}
	return q.conditional(ctx, res, "claims", id)
}

// ClaimStats aggregates claims per status in a single query. Amounts are
// stored as decimal text and summed with decimal math, never as REAL.
func (q *queries) ClaimStats(ctx context.Context) ([]insurance.ClaimStat, error) {
	return queryAll(ctx, q.c, `
		SELECT status, COUNT(*), COALESCE(GROUP_CONCAT(claim_amount, ','), '')
		FROM claims GROUP BY status
	`, nil, func(s scanner) (insurance.ClaimStat, error) {
		var (
			st      insurance.ClaimStat
			amounts string
		)
		if err := s.Scan(&st.Status, &st.Count, &amounts); err != nil {
			return st, err
		}
		st.TotalAmount = decimal.Zero
		if amounts == "" {
			return st, nil
		}
		for _, a := range strings.Split(amounts, ",") {
			m, err := decimal.NewFromString(a)
			if err != nil {
				return st, fmt.Errorf("parse claim amount %q: %w", a, err)
			}
			st.TotalAmount = st.TotalAmount.Add(m)
		}
		st.TotalAmount = insurance.RoundMoney(st.TotalAmount)
		return st, nil
	})
}

func scanClaim(s scanner) (insurance.Claim, error) {
	var (
		c                     insurance.Claim
		docs, claimDate       string
		amount, remarks       sql.NullString
		processedDate, byWhom sql.NullString
		createdAt, updatedAt  string
	)
	err := s.Scan(&c.ID, &c.Code, &c.CustomerID, &c.PolicyID, &c.VehicleID, &c.PremiumID, &c.Reason, &docs,
		&claimDate, &amount, &c.Status, &remarks, &processedDate, &byWhom, &createdAt, &updatedAt)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal([]byte(docs), &c.SupportingDocs); err != nil {
		return c, fmt.Errorf("decode supporting docs: %w", err)
	}
	if c.ClaimDate, err = parseTime(claimDate); err != nil {
		return c, err
	}
	if amount.Valid {
		m, err := decimal.NewFromString(amount.String)
		if err != nil {
			return c, fmt.Errorf("parse claim amount: %w", err)
		}
		c.ClaimAmount = &m
	}
	c.AdminRemarks = remarks.String
	if c.ProcessedDate, err = parseNullTime(processedDate); err != nil {
		return c, err
	}
	c.ProcessedBy = byWhom.String
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return c, err
	}
	c.UpdatedAt, err = parseTime(updatedAt)
	return c, err
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

const notificationCols = `id, code, customer_id, policy_id, type, title, message, sent_at, is_read, read_at, delivery_status`

func (q *queries) CreateNotification(ctx context.Context, n insurance.Notification) error {
	_, err := q.c.ExecContext(ctx, `
		INSERT INTO notifications (`+notificationCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.Code, n.CustomerID, nullString(n.PolicyID), n.Type, n.Title, n.Message,
		formatTime(n.SentAt), n.IsRead, nullTime(n.ReadAt), n.DeliveryStatus)
	return insertErr("notification", err)
}

func (q *queries) GetNotification(ctx context.Context, id string) (*insurance.Notification, error) {
	n, err := scanNotification(q.c.QueryRowContext(ctx, "SELECT "+notificationCols+" FROM notifications WHERE id = ?", id))
	if err != nil {
		return nil, noRows(err)
	}
	return &n, nil
}

func (q *queries) ListNotifications(ctx context.Context, f insurance.NotificationFilter, lq insurance.ListQuery) ([]insurance.Notification, int, error) {
	w := &where{}
	if f.CustomerID != "" {
		w.add("customer_id = ?", f.CustomerID)
	}
	if f.UnreadOnly {
		w.add("is_read = FALSE")
	}
	w.search(lq.Search, "title", "message")
	return list(ctx, q.c, "notifications", notificationCols, "sent_at", w, lq, scanNotification)
}

func (q *queries) MarkNotificationRead(ctx context.Context, id string, at time.Time) error {
	res, err := q.c.ExecContext(ctx,
		"UPDATE notifications SET is_read = TRUE, read_at = ? WHERE id = ? AND is_read = FALSE",
		formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if err := q.conditional(ctx, res, "notifications", id); err != nil && !errors.Is(err, insurance.ErrInvalidState) {
		return err
	}
	return nil
}

func (q *queries) MarkAllNotificationsRead(ctx context.Context, customerID string, at time.Time) (int, error) {
	res, err := q.c.ExecContext(ctx,
		"UPDATE notifications SET is_read = TRUE, read_at = ? WHERE customer_id = ? AND is_read = FALSE",
		formatTime(at), customerID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (q *queries) CountUnread(ctx context.Context, customerID string) (int, error) {
	w := &where{}
	w.add("is_read = FALSE")
	if customerID != "" {
		w.add("customer_id = ?", customerID)
	}
	var n int
	err := q.c.QueryRowContext(ctx, "SELECT COUNT(*) FROM notifications"+w.String(), w.args...).Scan(&n)
	return n, err
}

func scanNotification(s scanner) (insurance.Notification, error) {
	var (
		n        insurance.Notification
		policyID sql.NullString
		sentAt   string
		readAt   sql.NullString
	)
	err := s.Scan(&n.ID, &n.Code, &n.CustomerID, &policyID, &n.Type, &n.Title, &n.Message,
		&sentAt, &n.IsRead, &readAt, &n.DeliveryStatus)
	if err != nil {
		return n, err
	}
	n.PolicyID = policyID.String
	if n.SentAt, err = parseTime(sentAt); err != nil {
		return n, err
	}
	n.ReadAt, err = parseNullTime(readAt)
	return n, err
}
