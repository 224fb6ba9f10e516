package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by mode (external|local) and result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pathxpert_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"mode", "result"},
	)

	// OTPIssued counts issued one-time codes by purpose and delivery channel.
	OTPIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pathxpert_otp_issued_total",
			Help: "Total number of issued one-time codes",
		},
		[]string{"purpose", "channel"},
	)

	// OTPVerifications counts verification outcomes (success|failure).
	OTPVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pathxpert_otp_verifications_total",
			Help: "Total number of OTP verification attempts",
		},
		[]string{"result"},
	)

	// PasswordResets counts completed credential replacements by entry path (otp|token).
	PasswordResets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pathxpert_password_resets_total",
			Help: "Total number of completed password resets",
		},
		[]string{"path"},
	)

	// ReportsCreated counts submitted incident reports by type.
	ReportsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pathxpert_reports_created_total",
			Help: "Total number of submitted incident reports",
		},
		[]string{"type"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pathxpert_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
