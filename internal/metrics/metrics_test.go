package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Login(OutcomeSuccess)
	m.Login(OutcomeFailure)
	m.Login(OutcomeFailure)
	m.PasswordReset("confirm", OutcomeSuccess)
	m.AuthRejection("missing_auth")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.logins.WithLabelValues(OutcomeSuccess)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.logins.WithLabelValues(OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passwordResets.WithLabelValues("confirm", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authRejections.WithLabelValues("missing_auth")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Login(OutcomeSuccess)
		m.Registration(OutcomeError)
		m.PasswordReset("request", OutcomeSuccess)
		m.AuthRejection("invalid_token")
	})

	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Registration(OutcomeSuccess)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `prodtrack_registrations_total{outcome="success"} 1`)
}
