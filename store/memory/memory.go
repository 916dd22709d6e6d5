// Package memory provides an in-memory insurance.TxStore for tests and demos.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/warp/motor-insurance/insurance"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps every entity in maps guarded by one mutex. It enforces the
// same unique keys and conditional updates as the SQL store.
type Memory struct {
	view
	mu sync.Mutex
}

var _ insurance.TxStore = (*Memory)(nil)

func New() *Memory {
	m := &Memory{}
	m.view = view{d: newData(), mu: &m.mu}
	return m
}

// WithTx executes fn within a transaction.
// Simulated with a snapshot + rollback on error; the lock is held for the
// whole of fn so transactions are serialized.
func (m *Memory) WithTx(_ context.Context, fn func(insurance.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.d.clone()
	if err := fn(&view{d: m.d}); err != nil {
		*m.d = *snapshot
		return err
	}
	return nil
}

type data struct {
	counters      map[string]int64
	customers     map[string]insurance.Customer
	policies      map[string]insurance.Policy
	vehicles      map[string]insurance.Vehicle
	premiums      map[string]insurance.Premium
	renewals      map[string]insurance.Renewal
	claims        map[string]insurance.Claim
	notifications map[string]insurance.Notification
}

func newData() *data {
	return &data{
		counters:      make(map[string]int64),
		customers:     make(map[string]insurance.Customer),
		policies:      make(map[string]insurance.Policy),
		vehicles:      make(map[string]insurance.Vehicle),
		premiums:      make(map[string]insurance.Premium),
		renewals:      make(map[string]insurance.Renewal),
		claims:        make(map[string]insurance.Claim),
		notifications: make(map[string]insurance.Notification),
	}
}

func (d *data) clone() *data {
	return &data{
		counters:      cloneMap(d.counters),
		customers:     cloneMap(d.customers),
		policies:      cloneMap(d.policies),
		vehicles:      cloneMap(d.vehicles),
		premiums:      cloneMap(d.premiums),
		renewals:      cloneMap(d.renewals),
		claims:        cloneMap(d.claims),
		notifications: cloneMap(d.notifications),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// view implements insurance.Store over data. mu is nil inside WithTx,
// where the transaction already holds the lock.
type view struct {
	d  *data
	mu *sync.Mutex
}

func (v *view) lock() func() {
	if v.mu == nil {
		return func() {}
	}
	v.mu.Lock()
	return v.mu.Unlock
}

// =============================================================================
// SEQUENCES
// =============================================================================

func (v *view) NextSequence(_ context.Context, name string) (int64, error) {
	defer v.lock()()
	v.d.counters[name]++
	return v.d.counters[name], nil
}

// =============================================================================
// CUSTOMERS & POLICIES
// =============================================================================

func (v *view) CreateCustomer(_ context.Context, c insurance.Customer) error {
	defer v.lock()()
	if _, ok := v.d.customers[c.ID]; ok {
		return insurance.ErrConflict
	}
	v.d.customers[c.ID] = c
	return nil
}

func (v *view) GetCustomer(_ context.Context, id string) (*insurance.Customer, error) {
	defer v.lock()()
	return get(v.d.customers, id)
}

func (v *view) CreatePolicy(_ context.Context, p insurance.Policy) error {
	defer v.lock()()
	if _, ok := v.d.policies[p.ID]; ok || v.policyNameTaken(p) {
		return insurance.ErrConflict
	}
	v.d.policies[p.ID] = p
	return nil
}

func (v *view) UpdatePolicy(_ context.Context, p insurance.Policy) error {
	defer v.lock()()
	if _, ok := v.d.policies[p.ID]; !ok {
		return insurance.ErrNotFound
	}
	if v.policyNameTaken(p) {
		return insurance.ErrConflict
	}
	v.d.policies[p.ID] = p
	return nil
}

func (v *view) policyNameTaken(p insurance.Policy) bool {
	for _, other := range v.d.policies {
		if other.ID != p.ID && strings.EqualFold(other.Name, p.Name) {
			return true
		}
	}
	return false
}

func (v *view) GetPolicy(_ context.Context, id string) (*insurance.Policy, error) {
	defer v.lock()()
	return get(v.d.policies, id)
}

func (v *view) ListPolicies(_ context.Context, f insurance.PolicyFilter, q insurance.ListQuery) ([]insurance.Policy, int, error) {
	defer v.lock()()
	items, total := paginate(v.d.policies, q, func(p insurance.Policy) bool {
		if f.ActiveOnly && !p.IsActive {
			return false
		}
		if f.CoverageType != "" && p.CoverageType != f.CoverageType {
			return false
		}
		return matches(q.Search, p.Name, p.Code)
	}, func(p insurance.Policy) (time.Time, string) { return p.CreatedAt, p.Code })
	return items, total, nil
}

// =============================================================================
// VEHICLES
// =============================================================================

func (v *view) CreateVehicle(_ context.Context, veh insurance.Vehicle) error {
	defer v.lock()()
	if _, ok := v.d.vehicles[veh.ID]; ok {
		return insurance.ErrConflict
	}
	for _, other := range v.d.vehicles {
		if other.PlateNumber == veh.PlateNumber {
			return insurance.ErrConflict
		}
	}
	v.d.vehicles[veh.ID] = veh
	return nil
}

func (v *view) GetVehicle(_ context.Context, id string) (*insurance.Vehicle, error) {
	defer v.lock()()
	return get(v.d.vehicles, id)
}

func (v *view) ListVehicles(_ context.Context, f insurance.VehicleFilter, q insurance.ListQuery) ([]insurance.Vehicle, int, error) {
	defer v.lock()()
	items, total := paginate(v.d.vehicles, q, func(veh insurance.Vehicle) bool {
		if f.CustomerID != "" && veh.CustomerID != f.CustomerID {
			return false
		}
		return matches(q.Search, veh.PlateNumber, veh.Model, veh.Code)
	}, func(veh insurance.Vehicle) (time.Time, string) { return veh.CreatedAt, veh.Code })
	return items, total, nil
}

func (v *view) VehicleUsage(_ context.Context, vehicleID string) (insurance.VehicleUsage, error) {
	defer v.lock()()
	var u insurance.VehicleUsage
	for _, p := range v.d.premiums {
		if p.VehicleID != vehicleID {
			continue
		}
		switch p.PaymentStatus {
		case insurance.PaymentPaid:
			u.PaidPremiums++
		case insurance.PaymentPending:
			u.PendingPremiums++
		}
	}
	for _, c := range v.d.claims {
		if c.VehicleID == vehicleID && c.Status.IsOpen() {
			u.OpenClaims++
		}
	}
	return u, nil
}

func (v *view) DeleteVehicle(_ context.Context, id string) error {
	defer v.lock()()
	if _, ok := v.d.vehicles[id]; !ok {
		return insurance.ErrNotFound
	}
	delete(v.d.vehicles, id)
	return nil
}

// =============================================================================
// PREMIUMS
// =============================================================================

func (v *view) CreatePremium(_ context.Context, p insurance.Premium) error {
	defer v.lock()()
	if _, ok := v.d.premiums[p.ID]; ok {
		return insurance.ErrConflict
	}
	v.d.premiums[p.ID] = p
	return nil
}

func (v *view) GetPremium(_ context.Context, id string) (*insurance.Premium, error) {
	defer v.lock()()
	return get(v.d.premiums, id)
}

func (v *view) ListPremiums(_ context.Context, f insurance.PremiumFilter, q insurance.ListQuery) ([]insurance.Premium, int, error) {
	defer v.lock()()
	items, total := paginate(v.d.premiums, q, func(p insurance.Premium) bool {
		if f.CustomerID != "" && p.CustomerID != f.CustomerID {
			return false
		}
		if f.VehicleID != "" && p.VehicleID != f.VehicleID {
			return false
		}
		if f.PolicyID != "" && p.PolicyID != f.PolicyID {
			return false
		}
		if f.Status != "" && p.PaymentStatus != f.Status {
			return false
		}
		return matches(q.Search, p.Code, p.TransactionRef)
	}, func(p insurance.Premium) (time.Time, string) { return p.CreatedAt, p.Code })
	return items, total, nil
}

func (v *view) MarkPremiumPaid(_ context.Context, id string, paidAt time.Time, transactionRef string) error {
	defer v.lock()()
	p, ok := v.d.premiums[id]
	if !ok {
		return insurance.ErrNotFound
	}
	if p.PaymentStatus != insurance.PaymentPending {
		return insurance.ErrInvalidState
	}
	p.PaymentStatus = insurance.PaymentPaid
	p.PaymentDate = &paidAt
	p.TransactionRef = transactionRef
	p.UpdatedAt = paidAt
	v.d.premiums[id] = p
	return nil
}

func (v *view) MarkPremiumFailed(_ context.Context, id string, at time.Time, reason string) error {
	defer v.lock()()
	p, ok := v.d.premiums[id]
	if !ok {
		return insurance.ErrNotFound
	}
	if p.PaymentStatus != insurance.PaymentPending {
		return insurance.ErrInvalidState
	}
	p.PaymentStatus = insurance.PaymentFailed
	p.FailureReason = reason
	p.UpdatedAt = at
	v.d.premiums[id] = p
	return nil
}

// =============================================================================
// RENEWALS
// =============================================================================

func (v *view) CreateRenewal(_ context.Context, r insurance.Renewal) error {
	defer v.lock()()
	if _, ok := v.d.renewals[r.ID]; ok {
		return insurance.ErrConflict
	}
	if r.Status.HoldsCoverage() && v.slotHolder(r.VehicleID, r.CoverageType) != nil {
		return insurance.ErrConflict
	}
	v.d.renewals[r.ID] = r
	return nil
}

func (v *view) GetRenewal(_ context.Context, id string) (*insurance.Renewal, error) {
	defer v.lock()()
	return get(v.d.renewals, id)
}

func (v *view) GetRenewalByPremium(_ context.Context, premiumID string) (*insurance.Renewal, error) {
	defer v.lock()()
	for _, r := range v.d.renewals {
		if r.PremiumID == premiumID {
			return &r, nil
		}
	}
	return nil, insurance.ErrNotFound
}

func (v *view) SlotHolder(_ context.Context, vehicleID string, coverage insurance.CoverageType) (*insurance.Renewal, error) {
	defer v.lock()()
	if r := v.slotHolder(vehicleID, coverage); r != nil {
		return r, nil
	}
	return nil, insurance.ErrNotFound
}

func (v *view) slotHolder(vehicleID string, coverage insurance.CoverageType) *insurance.Renewal {
	for _, r := range v.d.renewals {
		if r.VehicleID == vehicleID && r.CoverageType == coverage && r.Status.HoldsCoverage() {
			return &r
		}
	}
	return nil
}

func (v *view) ListRenewals(_ context.Context, f insurance.RenewalFilter, q insurance.ListQuery) ([]insurance.Renewal, int, error) {
	defer v.lock()()
	items, total := paginate(v.d.renewals, q, func(r insurance.Renewal) bool {
		if f.CustomerID != "" && r.CustomerID != f.CustomerID {
			return false
		}
		if f.Status != "" && r.Status != f.Status {
			return false
		}
		return matches(q.Search, r.Code, r.AdminRemarks)
	}, func(r insurance.Renewal) (time.Time, string) { return r.CreatedAt, r.Code })
	return items, total, nil
}

func (v *view) TransitionRenewal(_ context.Context, id string, from []insurance.RenewalStatus, to insurance.RenewalStatus, remarks string, at time.Time) error {
	defer v.lock()()
	r, ok := v.d.renewals[id]
	if !ok {
		return insurance.ErrNotFound
	}
	if !slices.Contains(from, r.Status) {
		return insurance.ErrInvalidState
	}
	r.Status = to
	if remarks != "" {
		r.AdminRemarks = remarks
	}
	r.UpdatedAt = at
	v.d.renewals[id] = r
	return nil
}

func (v *view) ExpireRenewals(_ context.Context, now time.Time) ([]insurance.Renewal, error) {
	defer v.lock()()
	var expired []insurance.Renewal
	for id, r := range v.d.renewals {
		if r.Status.HoldsCoverage() && r.ExpiryDate.Before(now) {
			r.Status = insurance.RenewalExpired
			r.UpdatedAt = now
			v.d.renewals[id] = r
			expired = append(expired, r)
		}
	}
	slices.SortFunc(expired, func(a, b insurance.Renewal) int { return strings.Compare(a.Code, b.Code) })
	return expired, nil
}

func (v *view) DueReminders(_ context.Context, from, until time.Time) ([]insurance.Renewal, error) {
	defer v.lock()()
	var due []insurance.Renewal
	for _, r := range v.d.renewals {
		if r.Status == insurance.RenewalApproved && !r.ReminderSent &&
			!r.ExpiryDate.Before(from) && !r.ExpiryDate.After(until) {
			due = append(due, r)
		}
	}
	slices.SortFunc(due, func(a, b insurance.Renewal) int { return a.ExpiryDate.Compare(b.ExpiryDate) })
	return due, nil
}

func (v *view) MarkReminderSent(_ context.Context, id string, at time.Time) (bool, error) {
	defer v.lock()()
	r, ok := v.d.renewals[id]
	if !ok {
		return false, insurance.ErrNotFound
	}
	if r.ReminderSent {
		return false, nil
	}
	r.ReminderSent = true
	r.ReminderSentAt = &at
	r.UpdatedAt = at
	v.d.renewals[id] = r
	return true, nil
}

// =============================================================================
// CLAIMS
// =============================================================================

func (v *view) CreateClaim(_ context.Context, c insurance.Claim) error {
	defer v.lock()()
	if _, ok := v.d.claims[c.ID]; ok {
		return insurance.ErrConflict
	}
	c.SupportingDocs = slices.Clone(c.SupportingDocs)
	v.d.claims[c.ID] = c
	return nil
}

func (v *view) GetClaim(_ context.Context, id string) (*insurance.Claim, error) {
	defer v.lock()()
	return get(v.d.claims, id)
}

func (v *view) ListClaims(_ context.Context, f insurance.ClaimFilter, q insurance.ListQuery) ([]insurance.Claim, int, error) {
	defer v.lock()()
	items, total := paginate(v.d.claims, q, func(c insurance.Claim) bool {
		if f.CustomerID != "" && c.CustomerID != f.CustomerID {
			return false
		}
		if f.Status != "" && c.Status != f.Status {
			return false
		}
		return matches(q.Search, c.Code, c.Reason)
	}, func(c insurance.Claim) (time.Time, string) { return c.CreatedAt, c.Code })
	return items, total, nil
}

func (v *view) DecideClaim(_ context.Context, id string, from []insurance.ClaimStatus, d insurance.ClaimDecision) error {
	defer v.lock()()
	c, ok := v.d.claims[id]
	if !ok {
		return insurance.ErrNotFound
	}
	if !slices.Contains(from, c.Status) {
		return insurance.ErrInvalidState
	}
	at := d.ProcessedAt
	c.Status = d.Status
	c.AdminRemarks = d.Remarks
	c.ProcessedDate = &at
	c.ProcessedBy = d.ProcessedBy
	c.UpdatedAt = at
	if d.Amount != nil {
		amount := *d.Amount
		c.ClaimAmount = &amount
	}
	v.d.claims[id] = c
	return nil
}

func (v *view) ClaimStats(_ context.Context) ([]insurance.ClaimStat, error) {
	defer v.lock()()
	byStatus := make(map[insurance.ClaimStatus]*insurance.ClaimStat)
	for _, c := range v.d.claims {
		s, ok := byStatus[c.Status]
		if !ok {
			s = &insurance.ClaimStat{Status: c.Status}
			byStatus[c.Status] = s
		}
		s.Count++
		if c.ClaimAmount != nil {
			s.TotalAmount = s.TotalAmount.Add(*c.ClaimAmount)
		}
	}
	out := make([]insurance.ClaimStat, 0, len(byStatus))
	for _, s := range byStatus {
		out = append(out, *s)
	}
	return out, nil
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (v *view) CreateNotification(_ context.Context, n insurance.Notification) error {
	defer v.lock()()
	if _, ok := v.d.notifications[n.ID]; ok {
		return insurance.ErrConflict
	}
	v.d.notifications[n.ID] = n
	return nil
}

func (v *view) GetNotification(_ context.Context, id string) (*insurance.Notification, error) {
	defer v.lock()()
	return get(v.d.notifications, id)
}

func (v *view) ListNotifications(_ context.Context, f insurance.NotificationFilter, q insurance.ListQuery) ([]insurance.Notification, int, error) {
	defer v.lock()()
	items, total := paginate(v.d.notifications, q, func(n insurance.Notification) bool {
		if f.CustomerID != "" && n.CustomerID != f.CustomerID {
			return false
		}
		if f.UnreadOnly && n.IsRead {
			return false
		}
		return matches(q.Search, n.Title, n.Message)
	}, func(n insurance.Notification) (time.Time, string) { return n.SentAt, n.Code })
	return items, total, nil
}

func (v *view) MarkNotificationRead(_ context.Context, id string, at time.Time) error {
	defer v.lock()()
	n, ok := v.d.notifications[id]
	if !ok {
		return insurance.ErrNotFound
	}
	if !n.IsRead {
		n.IsRead = true
		n.ReadAt = &at
		v.d.notifications[id] = n
	}
	return nil
}

func (v *view) MarkAllNotificationsRead(_ context.Context, customerID string, at time.Time) (int, error) {
	defer v.lock()()
	count := 0
	for id, n := range v.d.notifications {
		if n.CustomerID == customerID && !n.IsRead {
			n.IsRead = true
			n.ReadAt = &at
			v.d.notifications[id] = n
			count++
		}
	}
	return count, nil
}

func (v *view) CountUnread(_ context.Context, customerID string) (int, error) {
	defer v.lock()()
	count := 0
	for _, n := range v.d.notifications {
		if (customerID == "" || n.CustomerID == customerID) && !n.IsRead {
			count++
		}
	}
	return count, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func get[T any](m map[string]T, id string) (*T, error) {
	item, ok := m[id]
	if !ok {
		return nil, insurance.ErrNotFound
	}
	return &item, nil
}

// matches is a case-insensitive substring search over fields.
func matches(search string, fields ...string) bool {
	if search == "" {
		return true
	}
	search = strings.ToLower(search)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}

// paginate filters, sorts by (created, code) and slices one page.
func paginate[T any](m map[string]T, q insurance.ListQuery, keep func(T) bool, key func(T) (time.Time, string)) ([]T, int) {
	q = q.Normalize()
	var all []T
	for _, item := range m {
		if keep(item) {
			all = append(all, item)
		}
	}
	slices.SortFunc(all, func(a, b T) int {
		at, ac := key(a)
		bt, bc := key(b)
		c := at.Compare(bt)
		if c == 0 {
			c = strings.Compare(ac, bc)
		}
		if q.Sort == insurance.SortNewest {
			return -c
		}
		return c
	})
	total := len(all)
	start := min(q.Skip(), total)
	end := min(start+q.Limit, total)
	return all[start:end], total
}
