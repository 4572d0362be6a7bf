// Package metrics holds the Prometheus counters for authentication events.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "prodtrack"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// Metrics may be nil: the recorders (Login, Registration, PasswordReset,
// AuthRejection) become no-ops and Handler serves 404. The *Counter
// accessors require a value from New.
type Metrics struct {
	registry       *prometheus.Registry
	logins         *prometheus.CounterVec
	registrations  *prometheus.CounterVec
	passwordResets *prometheus.CounterVec
	authRejections *prometheus.CounterVec
}

// New registers the auth counters plus Go and process collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Registration attempts by outcome.",
		}, []string{"outcome"}),
		passwordResets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "password_resets_total",
			Help:      "Password reset requests and confirmations by outcome.",
		}, []string{"stage", "outcome"}),
		authRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_rejections_total",
			Help:      "Requests rejected by the auth gateway, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(m.logins, m.registrations, m.passwordResets, m.authRejections)

	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Registration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

// PasswordReset records a reset event; stage is "request" or "confirm".
func (m *Metrics) PasswordReset(stage, outcome string) {
	if m == nil {
		return
	}
	m.passwordResets.WithLabelValues(stage, outcome).Inc()
}

func (m *Metrics) AuthRejection(reason string) {
	if m == nil {
		return
	}
	m.authRejections.WithLabelValues(reason).Inc()
}

// LoginCounter exposes the counter behind Login for assertions.
func (m *Metrics) LoginCounter(outcome string) prometheus.Counter {
	return m.logins.WithLabelValues(outcome)
}

// PasswordResetCounter exposes the counter behind PasswordReset for assertions.
func (m *Metrics) PasswordResetCounter(stage, outcome string) prometheus.Counter {
	return m.passwordResets.WithLabelValues(stage, outcome)
}

// AuthRejectionCounter exposes the counter behind AuthRejection for assertions.
func (m *Metrics) AuthRejectionCounter(reason string) prometheus.Counter {
	return m.authRejections.WithLabelValues(reason)
}
