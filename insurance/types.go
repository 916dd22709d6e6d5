/*
Package insurance provides the vehicle insurance policy engine.

PURPOSE:
  This package holds the domain core of the back office: premium pricing,
  the purchase/payment/renewal lifecycle of a vehicle's coverage, claim
  adjudication and the sequence generator that mints human-readable codes.
  HTTP, authentication and persistence mechanics live outside; the engine
  talks to storage only through the interfaces in store.go.

KEY CONCEPTS IN THIS FILE (types.go):
  - Enumerations: coverage types, vehicle types, lifecycle statuses
  - Entities: Policy, Customer, Vehicle, Premium, Renewal, Claim, Notification
  - Money: decimal.Decimal rounded to 2 places

LIFECYCLE AT A GLANCE:
  purchase ──▶ Premium(pending) + Renewal(pending)
                   │ confirm payment
                   ▼
              Premium(paid)    + Renewal(approved) ──▶ sweep ──▶ Renewal(expired)
                   │
                   ▼
              Claim(pending) ──▶ under_review ──▶ approved | rejected

SEE ALSO:
  - premium.go: Premium calculator
  - lifecycle.go: Purchase, payment, renewal, expiry
  - claims.go: Claim adjudication
  - store.go: Persistence contract
*/
package insurance

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENUMERATIONS
// =============================================================================

type CoverageType string

const (
	CoverageThirdParty    CoverageType = "third_party"
	CoverageComprehensive CoverageType = "comprehensive"
	CoverageOwnDamage     CoverageType = "own_damage"
)

// CoverageTypes lists every supported coverage type.
var CoverageTypes = []CoverageType{CoverageThirdParty, CoverageComprehensive, CoverageOwnDamage}

func (c CoverageType) Valid() bool {
	switch c {
	case CoverageThirdParty, CoverageComprehensive, CoverageOwnDamage:
		return true
	}
	return false
}

type VehicleType string

const (
	VehicleTwoWheeler  VehicleType = "two_wheeler"
	VehicleFourWheeler VehicleType = "four_wheeler"
	VehicleCommercial  VehicleType = "commercial"
)

// VehicleTypes lists every supported vehicle type.
var VehicleTypes = []VehicleType{VehicleTwoWheeler, VehicleFourWheeler, VehicleCommercial}

func (v VehicleType) Valid() bool {
	switch v {
	case VehicleTwoWheeler, VehicleFourWheeler, VehicleCommercial:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

type RenewalStatus string

const (
	RenewalPending  RenewalStatus = "pending"
	RenewalApproved RenewalStatus = "approved"
	RenewalRejected RenewalStatus = "rejected"
	RenewalExpired  RenewalStatus = "expired"
)

// HoldsCoverage reports whether a renewal in this status occupies its
// vehicle's coverage slot.
func (s RenewalStatus) HoldsCoverage() bool {
	return s == RenewalPending || s == RenewalApproved
}

// RenewalKind records whether a coverage period came from a first purchase
// or an explicit renewal.
type RenewalKind string

const (
	KindPurchase RenewalKind = "purchase"
	KindRenewal  RenewalKind = "renewal"
)

type ClaimStatus string

const (
	ClaimPending     ClaimStatus = "pending"
	ClaimUnderReview ClaimStatus = "under_review"
	ClaimApproved    ClaimStatus = "approved"
	ClaimRejected    ClaimStatus = "rejected"
)

// ClaimStatuses lists claim statuses in lifecycle order.
var ClaimStatuses = []ClaimStatus{ClaimPending, ClaimUnderReview, ClaimApproved, ClaimRejected}

// IsOpen reports whether a claim in this status can still be decided.
func (s ClaimStatus) IsOpen() bool {
	return s == ClaimPending || s == ClaimUnderReview
}

type NotificationType string

const (
	NotifyExpiry      NotificationType = "expiry"
	NotifyRenewal     NotificationType = "renewal"
	NotifyClaimUpdate NotificationType = "claim_update"
	NotifyPayment     NotificationType = "payment"
	NotifyGeneral     NotificationType = "general"
)

type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// =============================================================================
// MONEY
// =============================================================================

// Money is a monetary amount. Always rounded half-up to 2 decimal places
// before it is persisted or returned.
type Money = decimal.Decimal

// RoundMoney rounds to 2 decimal places, half away from zero.
func RoundMoney(m Money) Money { return m.Round(2) }

// NewMoney builds Money from a float, rounded to 2 places.
func NewMoney(v float64) Money { return RoundMoney(decimal.NewFromFloat(v)) }

// =============================================================================
// ENTITIES
// =============================================================================

// Policy is an insurance product offered to customers.
// Policies are never hard-deleted; IsActive=false is the deletion surrogate.
type Policy struct {
	ID             string
	Code           string
	Name           string
	Description    string
	CoverageType   CoverageType
	DurationMonths int
	BaseAmount     Money
	PricingRules   PricingRules
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Customer owns vehicles, premiums, renewals, claims and notifications.
type Customer struct {
	ID        string
	Code      string
	Name      string
	Email     string
	CreatedAt time.Time
}

// Vehicle is a registered vehicle owned by exactly one customer.
type Vehicle struct {
	ID               string
	Code             string
	CustomerID       string
	PlateNumber      string
	VehicleType      VehicleType
	Model            string
	RegistrationYear int
	CreatedAt        time.Time
}

// Premium is a priced purchase of a policy for one vehicle.
// Pending -> Paid is terminal success; Pending -> Failed is terminal failure.
type Premium struct {
	ID               string
	Code             string
	PolicyID         string
	VehicleID        string
	CustomerID       string
	CoverageType     CoverageType
	CalculatedAmount Money
	Breakdown        Breakdown
	PaymentStatus    PaymentStatus
	PaymentDate      *time.Time
	TransactionRef   string
	FailureReason    string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Renewal is the coverage period paired one-to-one with a Premium.
type Renewal struct {
	ID             string
	Code           string
	PolicyID       string
	PremiumID      string
	VehicleID      string
	CustomerID     string
	CoverageType   CoverageType
	Kind           RenewalKind
	RenewalDate    time.Time
	ExpiryDate     time.Time
	Status         RenewalStatus
	ReminderSent   bool
	ReminderSentAt *time.Time
	AdminRemarks   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Claim is a customer's request for compensation against paid coverage.
type Claim struct {
	ID             string
	Code           string
	CustomerID     string
	PolicyID       string
	VehicleID      string
	PremiumID      string
	Reason         string
	SupportingDocs []string
	ClaimDate      time.Time
	ClaimAmount    *Money // set only when approved
	Status         ClaimStatus
	AdminRemarks   string
	ProcessedDate  *time.Time
	ProcessedBy    string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Notification is a message record addressed to a customer.
type Notification struct {
	ID             string
	Code           string
	CustomerID     string
	PolicyID       string
	Type           NotificationType
	Title          string
	Message        string
	SentAt         time.Time
	IsRead         bool
	ReadAt         *time.Time
	DeliveryStatus DeliveryStatus
}

// VehicleUsage summarizes the records that block deleting a vehicle.
type VehicleUsage struct {
	PaidPremiums    int
	PendingPremiums int
	OpenClaims      int
}

// InUse reports whether any blocking record exists.
func (u VehicleUsage) InUse() bool {
	return u.PaidPremiums > 0 || u.PendingPremiums > 0 || u.OpenClaims > 0
}

// ClaimStat aggregates claims sharing a status.
type ClaimStat struct {
	Status      ClaimStatus
	Count       int
	TotalAmount Money
}

// ClaimStats is the read-only claims dashboard.
type ClaimStats struct {
	Total    int
	ByStatus []ClaimStat
	// ApprovedAmount is the sum of claimAmount over approved claims.
	ApprovedAmount Money
}
