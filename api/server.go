/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend
  5. Auth:       Bearer JWT on every /api route

ROUTE GROUPS:
  /health                 Liveness and store reachability (public)
  /metrics                Prometheus scrape endpoint (public)
  /api/policies/*         Policy catalog and quotes
  /api/customers/*        Customer registration
  /api/vehicles/*         Vehicle registration
  /api/premiums/*         Purchases and payments
  /api/renewals/*         Renewal submission and decisions
  /api/claims/*           Claims and statistics
  /api/notifications/*    Customer inbox
  /api/admin/*            Manual sweep
  /api/scenarios/*        Demo data loaders

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Token verification
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures the parts of the router that vary by deployment.
type RouterOptions struct {
	// AllowedOrigins for CORS. Defaults to "*".
	AllowedOrigins []string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, auth *Authenticator, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware)

		// Policy routes
		r.Route("/policies", func(r chi.Router) {
			r.Get("/", h.ListPolicies)
			r.Post("/", h.CreatePolicy)
			r.Get("/{id}", h.GetPolicy)
			r.Put("/{id}", h.UpdatePolicy)
			r.Patch("/{id}/status", h.SetPolicyStatus)
			r.Get("/{id}/quote", h.QuotePremium)
		})

		// Customer routes
		r.Route("/customers", func(r chi.Router) {
			r.Post("/", h.CreateCustomer)
			r.Get("/{id}", h.GetCustomer)
		})

		// Vehicle routes
		r.Route("/vehicles", func(r chi.Router) {
			r.Get("/", h.ListVehicles)
			r.Post("/", h.RegisterVehicle)
			r.Get("/{id}", h.GetVehicle)
			r.Delete("/{id}", h.DeleteVehicle)
		})

		// Premium routes
		r.Route("/premiums", func(r chi.Router) {
			r.Get("/", h.ListPremiums)
			r.Post("/", h.PurchasePolicy)
			r.Get("/{id}", h.GetPremium)
			r.Post("/{id}/confirm-payment", h.ConfirmPayment)
			r.Post("/{id}/fail-payment", h.FailPayment)
		})

		// Renewal routes
		r.Route("/renewals", func(r chi.Router) {
			r.Get("/", h.ListRenewals)
			r.Post("/", h.SubmitRenewal)
			r.Get("/{id}", h.GetRenewal)
			r.Post("/{id}/approve", h.ApproveRenewal)
			r.Post("/{id}/reject", h.RejectRenewal)
		})

		// Claim routes
		r.Route("/claims", func(r chi.Router) {
			r.Get("/", h.ListClaims)
			r.Post("/", h.SubmitClaim)
			r.Get("/stats", h.ClaimStats)
			r.Get("/{id}", h.GetClaim)
			r.Post("/{id}/process", h.ProcessClaim)
		})

		// Notification routes
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", h.ListNotifications)
			r.Post("/", h.SendNotification)
			r.Get("/unread-count", h.UnreadCount)
			r.Post("/read-all", h.MarkAllNotificationsRead)
			r.Post("/{id}/read", h.MarkNotificationRead)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/sweep", h.SweepStatus)
			r.Post("/sweep", h.RunSweep)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
