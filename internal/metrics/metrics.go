// Package metrics collects and exposes Prometheus metrics for the auth flows.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records auth-flow and HTTP outcomes.
type Collector struct {
	otpIssued     prometheus.Counter
	otpVerified   prometheus.Counter
	otpVerifyFail *prometheus.CounterVec
	loginSuccess  prometheus.Counter
	loginFail     prometheus.Counter
	httpStatus    *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics on the given registry.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		otpIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_otp_issued_total",
			Help: "Total number of one-time codes issued.",
		}),
		otpVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_otp_verified_total",
			Help: "Total number of successful OTP verifications.",
		}),
		otpVerifyFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_otp_verify_fail_total",
			Help: "Total number of failed OTP verifications, by reason.",
		}, []string{"reason"}),
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_login_success_total",
			Help: "Total number of successful logins.",
		}),
		loginFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_login_fail_total",
			Help: "Total number of failed logins.",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_http_status_total",
			Help: "Total number of HTTP responses, by status code.",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.otpIssued,
		c.otpVerified,
		c.otpVerifyFail,
		c.loginSuccess,
		c.loginFail,
		c.httpStatus,
	)

	return c
}

func (c *Collector) RecordOTPIssued() { c.otpIssued.Inc() }

func (c *Collector) RecordOTPVerified() { c.otpVerified.Inc() }

// RecordOTPVerifyFail records a failed verification. reason is one of
// "not_found", "mismatch", "expired" or "store_error".
func (c *Collector) RecordOTPVerifyFail(reason string) {
	c.otpVerifyFail.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordLogin(success bool) {
	if success {
		c.loginSuccess.Inc()
		return
	}
	c.loginFail.Inc()
}

func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler returns the HTTP handler serving the given registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
