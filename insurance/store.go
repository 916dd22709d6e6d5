/*
store.go - Persistence interface for the insurance engine

PURPOSE:
  Defines the contract between the engine and the database. The engine never
  holds shared state in memory; every invariant that spans concurrent
  requests is delegated to one of the storage primitives below.

STORAGE PRIMITIVES RELIED ON:
  1. Atomic increment-and-read        NextSequence
  2. Conditional (optimistic) update  MarkPremiumPaid, TransitionRenewal,
                                      DecideClaim, ExpireRenewals, MarkReminderSent
  3. Unique-constraint insert         CreateRenewal (one live coverage slot per
                                      vehicle + coverage type), CreatePolicy
                                      (case-insensitive name), CreateVehicle (plate)
  4. Point / range queries with pagination and search

ERROR CONTRACT:
  - Missing rows:                 ErrNotFound
  - Unique constraint violated:   ErrConflict
  - Conditional update no-op:     ErrInvalidState

ATOMIC UNITS:
  TxStore.WithTx runs fn against a transactional view. If fn returns an
  error everything written through the view is rolled back. Purchase uses
  this so a Premium is never persisted without its Renewal.

IMPLEMENTATIONS:
  - store/sqlite:   database/sql + go-sqlite3
  - store/memory:   mutex-guarded maps for tests and demos
  - store/redisseq: Redis INCR sequencer (sequences only)
*/
package insurance

import (
	"context"
	"time"
)

// =============================================================================
// SEQUENCES
// =============================================================================

// SequenceStore issues monotonically increasing integers per counter name.
// Two concurrent calls for the same name never observe the same value.
type SequenceStore interface {
	NextSequence(ctx context.Context, name string) (int64, error)
}

// =============================================================================
// FILTERS
// =============================================================================

type PolicyFilter struct {
	ActiveOnly   bool
	CoverageType CoverageType
}

type VehicleFilter struct {
	CustomerID string
}

type PremiumFilter struct {
	CustomerID string
	VehicleID  string
	PolicyID   string
	Status     PaymentStatus
}

type RenewalFilter struct {
	CustomerID string
	Status     RenewalStatus
}

type ClaimFilter struct {
	CustomerID string
	Status     ClaimStatus
}

type NotificationFilter struct {
	CustomerID string
	UnreadOnly bool
}

// ClaimDecision is the write-set of an admin claim decision.
type ClaimDecision struct {
	Status      ClaimStatus
	Amount      *Money
	Remarks     string
	ProcessedAt time.Time
	ProcessedBy string
}

// =============================================================================
// STORE
// =============================================================================

// Store handles persistence of every engine entity.
type Store interface {
	SequenceStore

	CreateCustomer(ctx context.Context, c Customer) error
	GetCustomer(ctx context.Context, id string) (*Customer, error)

	// CreatePolicy returns ErrConflict when the name is taken (case-insensitive).
	CreatePolicy(ctx context.Context, p Policy) error
	UpdatePolicy(ctx context.Context, p Policy) error
	GetPolicy(ctx context.Context, id string) (*Policy, error)
	ListPolicies(ctx context.Context, f PolicyFilter, q ListQuery) ([]Policy, int, error)

	// CreateVehicle returns ErrConflict when the plate is already registered.
	CreateVehicle(ctx context.Context, v Vehicle) error
	GetVehicle(ctx context.Context, id string) (*Vehicle, error)
	ListVehicles(ctx context.Context, f VehicleFilter, q ListQuery) ([]Vehicle, int, error)
	VehicleUsage(ctx context.Context, vehicleID string) (VehicleUsage, error)
	DeleteVehicle(ctx context.Context, id string) error

	CreatePremium(ctx context.Context, p Premium) error
	GetPremium(ctx context.Context, id string) (*Premium, error)
	ListPremiums(ctx context.Context, f PremiumFilter, q ListQuery) ([]Premium, int, error)
	// MarkPremiumPaid moves a pending premium to paid. ErrInvalidState when
	// the premium is no longer pending.
	MarkPremiumPaid(ctx context.Context, id string, paidAt time.Time, transactionRef string) error
	// MarkPremiumFailed moves a pending premium to failed.
	MarkPremiumFailed(ctx context.Context, id string, at time.Time, reason string) error

	// CreateRenewal returns ErrConflict when another pending/approved renewal
	// already holds the (vehicle, coverage type) slot.
	CreateRenewal(ctx context.Context, r Renewal) error
	GetRenewal(ctx context.Context, id string) (*Renewal, error)
	GetRenewalByPremium(ctx context.Context, premiumID string) (*Renewal, error)
	// SlotHolder returns the pending/approved renewal covering the slot, or ErrNotFound.
	SlotHolder(ctx context.Context, vehicleID string, coverage CoverageType) (*Renewal, error)
	ListRenewals(ctx context.Context, f RenewalFilter, q ListQuery) ([]Renewal, int, error)
	// TransitionRenewal moves a renewal to status `to` only if its current
	// status is one of `from`. ErrInvalidState otherwise.
	TransitionRenewal(ctx context.Context, id string, from []RenewalStatus, to RenewalStatus, remarks string, at time.Time) error
	// ExpireRenewals marks every pending/approved renewal with expiry before
	// now as expired and returns the rows it changed.
	ExpireRenewals(ctx context.Context, now time.Time) ([]Renewal, error)
	// DueReminders returns approved renewals expiring in [from, until] that
	// have not been reminded yet.
	DueReminders(ctx context.Context, from, until time.Time) ([]Renewal, error)
	// MarkReminderSent flags the reminder; false when another caller won.
	MarkReminderSent(ctx context.Context, id string, at time.Time) (bool, error)

	CreateClaim(ctx context.Context, c Claim) error
	GetClaim(ctx context.Context, id string) (*Claim, error)
	ListClaims(ctx context.Context, f ClaimFilter, q ListQuery) ([]Claim, int, error)
	// DecideClaim applies d only if the claim's status is one of `from`.
	DecideClaim(ctx context.Context, id string, from []ClaimStatus, d ClaimDecision) error
	ClaimStats(ctx context.Context) ([]ClaimStat, error)

	CreateNotification(ctx context.Context, n Notification) error
	GetNotification(ctx context.Context, id string) (*Notification, error)
	ListNotifications(ctx context.Context, f NotificationFilter, q ListQuery) ([]Notification, int, error)
	MarkNotificationRead(ctx context.Context, id string, at time.Time) error
	MarkAllNotificationsRead(ctx context.Context, customerID string, at time.Time) (int, error)
	CountUnread(ctx context.Context, customerID string) (int, error)
}

// =============================================================================
// TRANSACTIONAL STORE - For atomic operations across multiple writes
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
