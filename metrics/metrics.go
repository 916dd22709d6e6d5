// Package metrics holds the Prometheus metrics of the insurance engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	PremiumsCreated      *prometheus.CounterVec
	PaymentsConfirmed    prometheus.Counter
	PaymentsFailed       prometheus.Counter
	RenewalsDecided      *prometheus.CounterVec
	RenewalsExpired      prometheus.Counter
	RemindersSent        prometheus.Counter
	ClaimsSubmitted      prometheus.Counter
	ClaimsProcessed      *prometheus.CounterVec
	NotificationFailures prometheus.Counter
}

// New creates and registers all metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PremiumsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "motor_insurance_premiums_created_total",
			Help: "Total number of premiums created, by kind (purchase or renewal)",
		}, []string{"kind"}),
		PaymentsConfirmed: f.NewCounter(prometheus.CounterOpts{
			Name: "motor_insurance_payments_confirmed_total",
			Help: "Total number of premium payments confirmed",
		}),
		PaymentsFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "motor_insurance_payments_failed_total",
			Help: "Total number of premium payments marked failed",
		}),
		RenewalsDecided: f.NewCounterVec(prometheus.CounterOpts{
			Name: "motor_insurance_renewals_decided_total",
			Help: "Total number of renewals approved or rejected by an admin",
		}, []string{"status"}),
		RenewalsExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "motor_insurance_renewals_expired_total",
			Help: "Total number of renewals moved to expired by the sweep",
		}),
		RemindersSent: f.NewCounter(prometheus.CounterOpts{
			Name: "motor_insurance_renewal_reminders_sent_total",
			Help: "Total number of expiry reminders sent",
		}),
		ClaimsSubmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "motor_insurance_claims_submitted_total",
			Help: "Total number of claims submitted",
		}),
		ClaimsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "motor_insurance_claims_processed_total",
			Help: "Total number of claim decisions, by resulting status",
		}, []string{"status"}),
		NotificationFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "motor_insurance_notification_failures_total",
			Help: "Total number of notifications that could not be recorded",
		}),
	}
}

func (m *Metrics) IncrementPremiumsCreated(kind string) {
	if m == nil {
		return
	}
	m.PremiumsCreated.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementPaymentsConfirmed() {
	if m == nil {
		return
	}
	m.PaymentsConfirmed.Inc()
}

func (m *Metrics) IncrementPaymentsFailed() {
	if m == nil {
		return
	}
	m.PaymentsFailed.Inc()
}

func (m *Metrics) IncrementRenewalsDecided(status string) {
	if m == nil {
		return
	}
	m.RenewalsDecided.WithLabelValues(status).Inc()
}

func (m *Metrics) AddRenewalsExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RenewalsExpired.Add(float64(n))
}

func (m *Metrics) AddRemindersSent(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RemindersSent.Add(float64(n))
}

func (m *Metrics) IncrementClaimsSubmitted() {
	if m == nil {
		return
	}
	m.ClaimsSubmitted.Inc()
}

func (m *Metrics) IncrementClaimsProcessed(status string) {
	if m == nil {
		return
	}
	m.ClaimsProcessed.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrementNotificationFailures() {
	if m == nil {
		return
	}
	m.NotificationFailures.Inc()
}
