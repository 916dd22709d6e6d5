/*
handlers.go - HTTP request handlers for the insurance API

PURPOSE:
  Implements all HTTP endpoints. Handlers are thin: they decode the request,
  take the caller from the context, call one engine service and encode the
  result. Every lifecycle rule lives in package insurance.

ENDPOINT GROUPS:
  Policies:       CRUD, activation, premium quotes
  Customers:      Registration and lookup
  Vehicles:       Registration, listing, guarded deletion
  Premiums:       Purchase, payment confirmation and failure
  Renewals:       Submission and admin decisions
  Claims:         Submission, adjudication, statistics
  Notifications:  Inbox, read state, staff broadcasts
  Admin:          Manual expiry sweep

ERROR HANDLING:
  Domain errors map to status codes by kind:
    not_found      404    conflict      409
    invalid_state  422    validation    400
    forbidden      403    unauthorized  401
  ErrSequenceUnavailable maps to 503. Anything else is logged and returned
  as a bare 500.

LIST QUERIES:
  ?page=1&limit=10&search=term&sort=-created_at|created_at

SEE ALSO:
  - dto.go: Request/response types
  - server.go: Route definitions
  - auth.go: Caller extraction
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/warp/motor-insurance/factory"
	"github.com/warp/motor-insurance/insurance"
)

const maxBodyBytes = 1 << 20

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Catalog       *insurance.Catalog
	Lifecycle     *insurance.Lifecycle
	Claims        *insurance.Claims
	Notifications *insurance.Notifications
	PolicyFactory *factory.PolicyFactory
	Scheduler     *ExpiryScheduler
	Health        Pinger
	Logger        *slog.Logger
}

// NewHandler creates a handler with every engine service bound to store.
func NewHandler(store insurance.TxStore, logger *slog.Logger, opts ...insurance.Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]insurance.Option{insurance.WithLogger(logger)}, opts...)
	h := &Handler{
		Catalog:       insurance.NewCatalog(store, opts...),
		Lifecycle:     insurance.NewLifecycle(store, opts...),
		Claims:        insurance.NewClaims(store, opts...),
		Notifications: insurance.NewNotifications(store, opts...),
		PolicyFactory: factory.NewPolicyFactory(),
		Logger:        logger,
	}
	if p, ok := store.(Pinger); ok {
		h.Health = p
	}
	return h
}

// =============================================================================
// HEALTH
// =============================================================================

// HealthCheck reports liveness and store reachability.
// GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", nil)
			return
		}
	}
	writeOK(w, http.StatusOK, "ok", nil)
}

// =============================================================================
// POLICY ENDPOINTS
// =============================================================================

// ListPolicies returns a page of policies.
// GET /api/policies?active=true&coverageType=comprehensive
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	f := insurance.PolicyFilter{
		ActiveOnly:   r.URL.Query().Get("active") == "true",
		CoverageType: insurance.CoverageType(r.URL.Query().Get("coverageType")),
	}
	page, err := h.Catalog.ListPolicies(r.Context(), callerFrom(r), f, listQuery(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writePage(w, "Policies retrieved", mapSlice(page.Items, h.policyDTO), page.Info)
}

// CreatePolicy creates a policy from its JSON definition.
// POST /api/policies
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodePolicy(w, r)
	if !ok {
		return
	}
	policy, err := h.Catalog.CreatePolicy(r.Context(), callerFrom(r), in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "Policy created", h.policyDTO(*policy))
}

// GetPolicy returns one policy.
// GET /api/policies/{id}
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	policy, err := h.Catalog.GetPolicy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Policy retrieved", h.policyDTO(*policy))
}

// UpdatePolicy replaces a policy definition.
// PUT /api/policies/{id}
func (h *Handler) UpdatePolicy(w http.ResponseWriter, r *http.Request) {
	in, ok := h.decodePolicy(w, r)
	if !ok {
		return
	}
	policy, err := h.Catalog.UpdatePolicy(r.Context(), callerFrom(r), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Policy updated", h.policyDTO(*policy))
}

// SetPolicyStatus activates or deactivates a policy.
// PATCH /api/policies/{id}/status
func (h *Handler) SetPolicyStatus(w http.ResponseWriter, r *http.Request) {
	var req SetActiveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	policy, err := h.Catalog.SetPolicyActive(r.Context(), callerFrom(r), chi.URLParam(r, "id"), req.IsActive)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Policy status updated", h.policyDTO(*policy))
}

// QuotePremium prices a policy for a vehicle without persisting anything.
// GET /api/policies/{id}/quote?vehicleId=...
func (h *Handler) QuotePremium(w http.ResponseWriter, r *http.Request) {
	vehicleID := r.URL.Query().Get("vehicleId")
	if vehicleID == "" {
		ve := &insurance.ValidationError{}
		ve.Add("vehicleId", vehicleID, "is required")
		h.writeDomainError(w, r, ve)
		return
	}
	b, err := h.Lifecycle.Quote(r.Context(), callerFrom(r), chi.URLParam(r, "id"), vehicleID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Premium quoted", toBreakdownDTO(*b))
}

func (h *Handler) decodePolicy(w http.ResponseWriter, r *http.Request) (insurance.PolicyInput, bool) {
	var pj factory.PolicyJSON
	if !decodeJSON(w, r, &pj) {
		return insurance.PolicyInput{}, false
	}
	in, err := h.PolicyFactory.FromJSON(pj)
	if err != nil {
		h.writeDomainError(w, r, err)
		return insurance.PolicyInput{}, false
	}
	return in, true
}

func (h *Handler) policyDTO(p insurance.Policy) PolicyDTO {
	return toPolicyDTO(h.PolicyFactory, p)
}

// =============================================================================
// CUSTOMER ENDPOINTS
// =============================================================================

// CreateCustomer registers a customer.
// POST /api/customers
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var in insurance.CustomerInput
	if !decodeJSON(w, r, &in) {
		return
	}
	customer, err := h.Catalog.CreateCustomer(r.Context(), callerFrom(r), in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "Customer created", toCustomerDTO(*customer))
}

// GetCustomer returns one customer.
// GET /api/customers/{id}
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := h.Catalog.GetCustomer(r.Context(), callerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Customer retrieved", toCustomerDTO(*customer))
}

// =============================================================================
// VEHICLE ENDPOINTS
// =============================================================================

// ListVehicles returns a page of vehicles.
// GET /api/vehicles?customerId=...
func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	page, err := h.Catalog.ListVehicles(r.Context(), callerFrom(r), r.URL.Query().Get("customerId"), listQuery(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writePage(w, "Vehicles retrieved", mapSlice(page.Items, toVehicleDTO), page.Info)
}

// RegisterVehicle registers a vehicle for a customer.
// POST /api/vehicles
func (h *Handler) RegisterVehicle(w http.ResponseWriter, r *http.Request) {
	var in insurance.VehicleInput
	if !decodeJSON(w, r, &in) {
		return
	}
	vehicle, err := h.Catalog.RegisterVehicle(r.Context(), callerFrom(r), in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "Vehicle registered", toVehicleDTO(*vehicle))
}

// GetVehicle returns one vehicle.
// GET /api/vehicles/{id}
func (h *Handler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	vehicle, err := h.Catalog.GetVehicle(r.Context(), callerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Vehicle retrieved", toVehicleDTO(*vehicle))
}

// DeleteVehicle removes a vehicle with no premiums, renewals or claims.
// DELETE /api/vehicles/{id}
func (h *Handler) DeleteVehicle(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeleteVehicle(r.Context(), callerFrom(r), chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Vehicle deleted", nil)
}

// =============================================================================
// PREMIUM ENDPOINTS
// =============================================================================

// PurchasePolicy creates a premium and its pending renewal.
// POST /api/premiums
func (h *Handler) PurchasePolicy(w http.ResponseWriter, r *http.Request) {
	var in insurance.PurchaseInput
	if !decodeJSON(w, r, &in) {
		return
	}
	p, err := h.Lifecycle.Purchase(r.Context(), callerFrom(r), in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "Premium created", toPurchaseDTO(*p))
}

// ListPremiums returns a page of premiums.
// GET /api/premiums?customerId=&vehicleId=&policyId=&status=pending
func (h *Handler) ListPremiums(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := insurance.PremiumFilter{
		CustomerID: q.Get("customerId"),
		VehicleID:  q.Get("vehicleId"),
		PolicyID:   q.Get("policyId"),
		Status:     insurance.PaymentStatus(q.Get("status")),
	}
	page, err := h.Lifecycle.ListPremiums(r.Context(), callerFrom(r), f, listQuery(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writePage(w, "Premiums retrieved", mapSlice(page.Items, toPremiumDTO), page.Info)
}

// GetPremium returns one premium with its breakdown.
// GET /api/premiums/{id}
func (h *Handler) GetPremium(w http.ResponseWriter, r *http.Request) {
	premium, err := h.Lifecycle.GetPremium(r.Context(), callerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Premium retrieved", toPremiumDTO(*premium))
}

// ConfirmPayment marks a pending premium paid.
// POST /api/premiums/{id}/confirm-payment
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req ConfirmPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	premium, err := h.Lifecycle.ConfirmPayment(r.Context(), callerFrom(r), chi.URLParam(r, "id"), req.TransactionRef)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Payment confirmed", toPremiumDTO(*premium))
}

// FailPayment marks a pending premium failed.
// POST /api/premiums/{id}/fail-payment
func (h *Handler) FailPayment(w http.ResponseWriter, r *http.Request) {
	var req FailPaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	premium, err := h.Lifecycle.FailPayment(r.Context(), callerFrom(r), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Payment marked failed", toPremiumDTO(*premium))
}

// =============================================================================
// RENEWAL ENDPOINTS
// =============================================================================

// SubmitRenewal prices and opens a renewal for a vehicle.
// POST /api/renewals
func (h *Handler) SubmitRenewal(w http.ResponseWriter, r *http.Request) {
	var in insurance.PurchaseInput
	if !decodeJSON(w, r, &in) {
		return
	}
	p, err := h.Lifecycle.SubmitRenewal(r.Context(), callerFrom(r), in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "Renewal submitted", toPurchaseDTO(*p))
}

// ListRenewals returns a page of renewals.
// GET /api/renewals?customerId=&status=approved
func (h *Handler) ListRenewals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := insurance.RenewalFilter{
		CustomerID: q.Get("customerId"),
		Status:     insurance.RenewalStatus(q.Get("status")),
	}
	page, err := h.Lifecycle.ListRenewals(r.Context(), callerFrom(r), f, listQuery(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writePage(w, "Renewals retrieved", mapSlice(page.Items, toRenewalDTO), page.Info)
}

// GetRenewal returns one renewal.
// GET /api/renewals/{id}
func (h *Handler) GetRenewal(w http.ResponseWriter, r *http.Request) {
	renewal, err := h.Lifecycle.GetRenewal(r.Context(), callerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Renewal retrieved", toRenewalDTO(*renewal))
}

// ApproveRenewal approves a pending renewal.
// POST /api/renewals/{id}/approve
func (h *Handler) ApproveRenewal(w http.ResponseWriter, r *http.Request) {
	h.decideRenewal(w, r, h.Lifecycle.ApproveRenewal, "Renewal approved")
}

// RejectRenewal rejects a pending renewal.
// POST /api/renewals/{id}/reject
func (h *Handler) RejectRenewal(w http.ResponseWriter, r *http.Request) {
	h.decideRenewal(w, r, h.Lifecycle.RejectRenewal, "Renewal rejected")
}

type renewalDecision func(ctx context.Context, caller insurance.Caller, id, remarks string) (*insurance.Renewal, error)

func (h *Handler) decideRenewal(w http.ResponseWriter, r *http.Request, decide renewalDecision, message string) {
	var req RemarksRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	renewal, err := decide(r.Context(), callerFrom(r), chi.URLParam(r, "id"), req.Remarks)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, message, toRenewalDTO(*renewal))
}

// =============================================================================
// CLAIM ENDPOINTS
// =============================================================================

// SubmitClaim files a claim against a paid premium.
// POST /api/claims
func (h *Handler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	var in insurance.ClaimInput
	if !decodeJSON(w, r, &in) {
		return
	}
	claim, err := h.Claims.Submit(r.Context(), callerFrom(r), in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "Claim submitted", toClaimDTO(*claim))
}

// ListClaims returns a page of claims.
// GET /api/claims?customerId=&status=pending
func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := insurance.ClaimFilter{
		CustomerID: q.Get("customerId"),
		Status:     insurance.ClaimStatus(q.Get("status")),
	}
	page, err := h.Claims.ListClaims(r.Context(), callerFrom(r), f, listQuery(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writePage(w, "Claims retrieved", mapSlice(page.Items, toClaimDTO), page.Info)
}

// GetClaim returns one claim.
// GET /api/claims/{id}
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	claim, err := h.Claims.GetClaim(r.Context(), callerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Claim retrieved", toClaimDTO(*claim))
}

// ProcessClaim records an admin decision.
// POST /api/claims/{id}/process
func (h *Handler) ProcessClaim(w http.ResponseWriter, r *http.Request) {
	var in insurance.ProcessClaimInput
	if !decodeJSON(w, r, &in) {
		return
	}
	claim, err := h.Claims.Process(r.Context(), callerFrom(r), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Claim processed", toClaimDTO(*claim))
}

// ClaimStats returns claim counts and totals per status.
// GET /api/claims/stats
func (h *Handler) ClaimStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Claims.Stats(r.Context(), callerFrom(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Claim statistics retrieved", toClaimStatsDTO(*stats))
}

// =============================================================================
// NOTIFICATION ENDPOINTS
// =============================================================================

// ListNotifications returns the caller's inbox.
// GET /api/notifications?customerId=&unread=true
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := insurance.NotificationFilter{
		CustomerID: q.Get("customerId"),
		UnreadOnly: q.Get("unread") == "true",
	}
	page, err := h.Notifications.List(r.Context(), callerFrom(r), f, listQuery(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writePage(w, "Notifications retrieved", mapSlice(page.Items, toNotificationDTO), page.Info)
}

// UnreadCount returns the number of unread notifications.
// GET /api/notifications/unread-count?customerId=
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.Notifications.UnreadCount(r.Context(), callerFrom(r), r.URL.Query().Get("customerId"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Unread count retrieved", map[string]int{"count": count})
}

// MarkNotificationRead marks one notification read.
// POST /api/notifications/{id}/read
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.Notifications.MarkRead(r.Context(), callerFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Notification marked read", toNotificationDTO(*n))
}

// MarkAllNotificationsRead marks the whole inbox read.
// POST /api/notifications/read-all?customerId=
func (h *Handler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	count, err := h.Notifications.MarkAllRead(r.Context(), callerFrom(r), r.URL.Query().Get("customerId"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Notifications marked read", map[string]int{"updated": count})
}

// SendNotification sends a general notification to a customer.
// POST /api/notifications
func (h *Handler) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req SendNotificationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.Notifications.Send(r.Context(), callerFrom(r), req.CustomerID, req.Title, req.Message); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusAccepted, "Notification sent", nil)
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// RunSweep expires lapsed renewals and sends reminders immediately.
// POST /api/admin/sweep
func (h *Handler) RunSweep(w http.ResponseWriter, r *http.Request) {
	if !callerFrom(r).IsAdmin() {
		writeError(w, http.StatusForbidden, "admin role required", nil)
		return
	}
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "Scheduler not configured", nil)
		return
	}
	res, err := h.Scheduler.RunNow(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "Sweep completed", SweepResultDTO{
		Expired:  res.Expired,
		Reminded: res.Reminded,
		RanAt:    formatTime(res.RanAt),
	})
}

// SweepStatus reports the last scheduler run and the next planned one.
// GET /api/admin/sweep
func (h *Handler) SweepStatus(w http.ResponseWriter, r *http.Request) {
	if !callerFrom(r).IsStaff() {
		writeError(w, http.StatusForbidden, "staff or admin role required", nil)
		return
	}
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "Scheduler not configured", nil)
		return
	}
	status := map[string]any{"nextRunAt": formatTime(h.Scheduler.GetNextRunTime())}
	if last, ok := h.Scheduler.LastRun(); ok {
		status["lastRun"] = SweepResultDTO{
			Expired:  last.Expired,
			Reminded: last.Reminded,
			RanAt:    formatTime(last.RanAt),
		}
	}
	writeOK(w, http.StatusOK, "Sweep status retrieved", status)
}

// =============================================================================
// HELPERS
// =============================================================================

func toPurchaseDTO(p insurance.Purchase) PurchaseDTO {
	return PurchaseDTO{
		Premium: toPremiumDTO(p.Premium),
		Renewal: toRenewalDTO(p.Renewal),
	}
}

// listQuery reads page, limit, search and sort from the query string.
// Malformed numbers fall back to defaults.
func listQuery(r *http.Request) insurance.ListQuery {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return insurance.ListQuery{
		Page:   page,
		Limit:  limit,
		Search: strings.TrimSpace(q.Get("search")),
		Sort:   q.Get("sort"),
	}.Normalize()
}

// decodeJSON decodes the request body into v. On failure it writes a 400
// and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

// decodeOptionalJSON is decodeJSON for endpoints whose body may be empty.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	return decodeJSON(w, r, v)
}

// statusFor maps an engine error kind to an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, insurance.ErrSequenceUnavailable) {
		return http.StatusServiceUnavailable
	}
	switch insurance.KindOf(err) {
	case insurance.KindNotFound:
		return http.StatusNotFound
	case insurance.KindConflict:
		return http.StatusConflict
	case insurance.KindInvalidState:
		return http.StatusUnprocessableEntity
	case insurance.KindValidation:
		return http.StatusBadRequest
	case insurance.KindForbidden:
		return http.StatusForbidden
	case insurance.KindUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// writeDomainError writes err with the status of its kind. Internal errors
// are logged with the request id and never echoed.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err)
		if status == http.StatusServiceUnavailable {
			writeError(w, status, "Service temporarily unavailable", nil)
			return
		}
		writeError(w, status, "Internal server error", nil)
		return
	}
	writeError(w, status, insurance.MessageOf(err), err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeOK(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Response{Success: true, Message: message, Data: data})
}

func writePage[T any](w http.ResponseWriter, message string, items []T, info insurance.PageInfo) {
	writeJSON(w, http.StatusOK, Response{Success: true, Message: message, Data: items, Pagination: &info})
}

// writeError writes a failure envelope. Message stays fixed per failure;
// field errors of a validation failure are listed and the cause of other
// client errors goes to Details.
func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := Response{Message: message}
	var ve *insurance.ValidationError
	switch {
	case errors.As(err, &ve):
		resp.Errors = ve.Fields
	case err != nil && insurance.KindOf(err) == insurance.KindInternal:
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
