/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - Response: The envelope every endpoint returns

ENVELOPE:
  {
    "success": true,
    "message": "Premium created",
    "data": {...},
    "errors": [{"field": "reason", "value": "short", "message": "..."}],
    "pagination": {"currentPage": 1, "totalPages": 3, ...}
  }

MONEY:
  Amounts are rendered as strings with exactly two decimals ("940.00") so
  clients never see binary floating point artifacts.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/policy.go: PolicyJSON request body
*/
package api

import (
	"time"

	"github.com/warp/motor-insurance/factory"
	"github.com/warp/motor-insurance/insurance"
)

// =============================================================================
// ENVELOPE
// =============================================================================

// Response is the envelope of every API response.
type Response struct {
	Success    bool                   `json:"success"`
	Message    string                 `json:"message"`
	Data       any                    `json:"data,omitempty"`
	Errors     []insurance.FieldError `json:"errors,omitempty"`
	Details    string                 `json:"details,omitempty"`
	Pagination *insurance.PageInfo    `json:"pagination,omitempty"`
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ConfirmPaymentRequest confirms a premium payment.
type ConfirmPaymentRequest struct {
	TransactionRef string `json:"transactionRef"`
}

// FailPaymentRequest records a failed payment.
type FailPaymentRequest struct {
	Reason string `json:"reason"`
}

// RemarksRequest carries optional admin remarks.
type RemarksRequest struct {
	Remarks string `json:"remarks"`
}

// SetActiveRequest toggles a policy.
type SetActiveRequest struct {
	IsActive bool `json:"isActive"`
}

// SendNotificationRequest sends a general notification.
type SendNotificationRequest struct {
	CustomerID string `json:"customerId"`
	Title      string `json:"title"`
	Message    string `json:"message"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// PolicyDTO represents a policy in API responses.
type PolicyDTO struct {
	ID             string                    `json:"id"`
	Code           string                    `json:"code"`
	Name           string                    `json:"name"`
	Description    string                    `json:"description"`
	CoverageType   string                    `json:"coverageType"`
	DurationMonths int                       `json:"durationMonths"`
	BaseAmount     string                    `json:"baseAmount"`
	PricingRules   *factory.PricingRulesJSON `json:"pricingRules"`
	IsActive       bool                      `json:"isActive"`
	CreatedAt      string                    `json:"createdAt"`
	UpdatedAt      string                    `json:"updatedAt"`
}

type CustomerDTO struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"createdAt"`
}

type VehicleDTO struct {
	ID               string `json:"id"`
	Code             string `json:"code"`
	CustomerID       string `json:"customerId"`
	PlateNumber      string `json:"plateNumber"`
	VehicleType      string `json:"vehicleType"`
	Model            string `json:"model"`
	RegistrationYear int    `json:"registrationYear"`
	CreatedAt        string `json:"createdAt"`
}

// BreakdownDTO shows every factor of a premium calculation.
type BreakdownDTO struct {
	ReferenceYear             int    `json:"referenceYear"`
	VehicleAge                int    `json:"vehicleAge"`
	BaseAmount                string `json:"baseAmount"`
	VehicleType               string `json:"vehicleType"`
	VehicleTypeMultiplier     string `json:"vehicleTypeMultiplier"`
	CoverageType              string `json:"coverageType"`
	CoverageMultiplier        string `json:"coverageMultiplier"`
	AgeDepreciationPctPerYear string `json:"ageDepreciationPctPerYear"`
	RawDepreciation           string `json:"rawDepreciation"`
	DepreciationFactor        string `json:"depreciationFactor"`
	FinalAmount               string `json:"finalAmount"`
}

type PremiumDTO struct {
	ID               string       `json:"id"`
	Code             string       `json:"code"`
	PolicyID         string       `json:"policyId"`
	VehicleID        string       `json:"vehicleId"`
	CustomerID       string       `json:"customerId"`
	CoverageType     string       `json:"coverageType"`
	CalculatedAmount string       `json:"calculatedAmount"`
	Breakdown        BreakdownDTO `json:"breakdown"`
	PaymentStatus    string       `json:"paymentStatus"`
	PaymentDate      *string      `json:"paymentDate"`
	TransactionRef   string       `json:"transactionRef,omitempty"`
	FailureReason    string       `json:"failureReason,omitempty"`
	CreatedAt        string       `json:"createdAt"`
}

type RenewalDTO struct {
	ID             string  `json:"id"`
	Code           string  `json:"code"`
	PolicyID       string  `json:"policyId"`
	PremiumID      string  `json:"premiumId"`
	VehicleID      string  `json:"vehicleId"`
	CustomerID     string  `json:"customerId"`
	CoverageType   string  `json:"coverageType"`
	Kind           string  `json:"kind"`
	RenewalDate    string  `json:"renewalDate"`
	ExpiryDate     string  `json:"expiryDate"`
	Status         string  `json:"status"`
	ReminderSent   bool    `json:"reminderSent"`
	ReminderSentAt *string `json:"reminderSentAt"`
	AdminRemarks   string  `json:"adminRemarks,omitempty"`
}

// PurchaseDTO is the result of a purchase or renewal submission.
type PurchaseDTO struct {
	Premium PremiumDTO `json:"premium"`
	Renewal RenewalDTO `json:"renewal"`
}

type ClaimDTO struct {
	ID             string   `json:"id"`
	Code           string   `json:"code"`
	CustomerID     string   `json:"customerId"`
	PolicyID       string   `json:"policyId"`
	VehicleID      string   `json:"vehicleId"`
	PremiumID      string   `json:"premiumId"`
	Reason         string   `json:"reason"`
	SupportingDocs []string `json:"supportingDocs"`
	ClaimDate      string   `json:"claimDate"`
	ClaimAmount    *string  `json:"claimAmount"`
	Status         string   `json:"status"`
	AdminRemarks   string   `json:"adminRemarks,omitempty"`
	ProcessedDate  *string  `json:"processedDate"`
	ProcessedBy    string   `json:"processedBy,omitempty"`
}

type ClaimStatDTO struct {
	Status      string `json:"status"`
	Count       int    `json:"count"`
	TotalAmount string `json:"totalAmount"`
}

type ClaimStatsDTO struct {
	Total          int            `json:"total"`
	ByStatus       []ClaimStatDTO `json:"byStatus"`
	ApprovedAmount string         `json:"approvedAmount"`
}

type NotificationDTO struct {
	ID             string  `json:"id"`
	Code           string  `json:"code"`
	CustomerID     string  `json:"customerId"`
	PolicyID       string  `json:"policyId,omitempty"`
	Type           string  `json:"type"`
	Title          string  `json:"title"`
	Message        string  `json:"message"`
	SentAt         string  `json:"sentAt"`
	IsRead         bool    `json:"isRead"`
	ReadAt         *string `json:"readAt"`
	DeliveryStatus string  `json:"deliveryStatus"`
}

// SweepResultDTO reports a manual scheduler run.
type SweepResultDTO struct {
	Expired  int    `json:"expired"`
	Reminded int    `json:"reminded"`
	RanAt    string `json:"ranAt"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

func money(m insurance.Money) string {
	return m.StringFixed(2)
}

func toPolicyDTO(f *factory.PolicyFactory, p insurance.Policy) PolicyDTO {
	return PolicyDTO{
		ID:             p.ID,
		Code:           p.Code,
		Name:           p.Name,
		Description:    p.Description,
		CoverageType:   string(p.CoverageType),
		DurationMonths: p.DurationMonths,
		BaseAmount:     money(p.BaseAmount),
		PricingRules:   f.ToJSON(p).PricingRules,
		IsActive:       p.IsActive,
		CreatedAt:      formatTime(p.CreatedAt),
		UpdatedAt:      formatTime(p.UpdatedAt),
	}
}

func toCustomerDTO(c insurance.Customer) CustomerDTO {
	return CustomerDTO{
		ID:        c.ID,
		Code:      c.Code,
		Name:      c.Name,
		Email:     c.Email,
		CreatedAt: formatTime(c.CreatedAt),
	}
}

func toVehicleDTO(v insurance.Vehicle) VehicleDTO {
	return VehicleDTO{
		ID:               v.ID,
		Code:             v.Code,
		CustomerID:       v.CustomerID,
		PlateNumber:      v.PlateNumber,
		VehicleType:      string(v.VehicleType),
		Model:            v.Model,
		RegistrationYear: v.RegistrationYear,
		CreatedAt:        formatTime(v.CreatedAt),
	}
}

func toBreakdownDTO(b insurance.Breakdown) BreakdownDTO {
	return BreakdownDTO{
		ReferenceYear:             b.ReferenceYear,
		VehicleAge:                b.VehicleAge,
		BaseAmount:                money(b.BaseAmount),
		VehicleType:               string(b.VehicleType),
		VehicleTypeMultiplier:     b.VehicleTypeMultiplier.String(),
		CoverageType:              string(b.CoverageType),
		CoverageMultiplier:        b.CoverageMultiplier.String(),
		AgeDepreciationPctPerYear: b.AgeDepreciationPctPerYear.String(),
		RawDepreciation:           b.RawDepreciation.String(),
		DepreciationFactor:        b.DepreciationFactor.String(),
		FinalAmount:               money(b.FinalAmount),
	}
}

func toPremiumDTO(p insurance.Premium) PremiumDTO {
	return PremiumDTO{
		ID:               p.ID,
		Code:             p.Code,
		PolicyID:         p.PolicyID,
		VehicleID:        p.VehicleID,
		CustomerID:       p.CustomerID,
		CoverageType:     string(p.CoverageType),
		CalculatedAmount: money(p.CalculatedAmount),
		Breakdown:        toBreakdownDTO(p.Breakdown),
		PaymentStatus:    string(p.PaymentStatus),
		PaymentDate:      formatTimePtr(p.PaymentDate),
		TransactionRef:   p.TransactionRef,
		FailureReason:    p.FailureReason,
		CreatedAt:        formatTime(p.CreatedAt),
	}
}

func toRenewalDTO(r insurance.Renewal) RenewalDTO {
	return RenewalDTO{
		ID:             r.ID,
		Code:           r.Code,
		PolicyID:       r.PolicyID,
		PremiumID:      r.PremiumID,
		VehicleID:      r.VehicleID,
		CustomerID:     r.CustomerID,
		CoverageType:   string(r.CoverageType),
		Kind:           string(r.Kind),
		RenewalDate:    formatTime(r.RenewalDate),
		ExpiryDate:     formatTime(r.ExpiryDate),
		Status:         string(r.Status),
		ReminderSent:   r.ReminderSent,
		ReminderSentAt: formatTimePtr(r.ReminderSentAt),
		AdminRemarks:   r.AdminRemarks,
	}
}

func toClaimDTO(c insurance.Claim) ClaimDTO {
	dto := ClaimDTO{
		ID:             c.ID,
		Code:           c.Code,
		CustomerID:     c.CustomerID,
		PolicyID:       c.PolicyID,
		VehicleID:      c.VehicleID,
		PremiumID:      c.PremiumID,
		Reason:         c.Reason,
		SupportingDocs: c.SupportingDocs,
		ClaimDate:      formatTime(c.ClaimDate),
		Status:         string(c.Status),
		AdminRemarks:   c.AdminRemarks,
		ProcessedDate:  formatTimePtr(c.ProcessedDate),
		ProcessedBy:    c.ProcessedBy,
	}
	if dto.SupportingDocs == nil {
		dto.SupportingDocs = []string{}
	}
	if c.ClaimAmount != nil {
		amount := money(*c.ClaimAmount)
		dto.ClaimAmount = &amount
	}
	return dto
}

func toClaimStatsDTO(s insurance.ClaimStats) ClaimStatsDTO {
	dto := ClaimStatsDTO{
		Total:          s.Total,
		ByStatus:       make([]ClaimStatDTO, len(s.ByStatus)),
		ApprovedAmount: money(s.ApprovedAmount),
	}
	for i, st := range s.ByStatus {
		dto.ByStatus[i] = ClaimStatDTO{
			Status:      string(st.Status),
			Count:       st.Count,
			TotalAmount: money(st.TotalAmount),
		}
	}
	return dto
}

func toNotificationDTO(n insurance.Notification) NotificationDTO {
	return NotificationDTO{
		ID:             n.ID,
		Code:           n.Code,
		CustomerID:     n.CustomerID,
		PolicyID:       n.PolicyID,
		Type:           string(n.Type),
		Title:          n.Title,
		Message:        n.Message,
		SentAt:         formatTime(n.SentAt),
		IsRead:         n.IsRead,
		ReadAt:         formatTimePtr(n.ReadAt),
		DeliveryStatus: string(n.DeliveryStatus),
	}
}

func mapSlice[T, D any](items []T, fn func(T) D) []D {
	out := make([]D, len(items))
	for i, item := range items {
		out[i] = fn(item)
	}
	return out
}
