package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentUsesRouteTemplate(t *testing.T) {
	m := New()
	r := mux.NewRouter()
	r.Use(m.Instrument)
	r.HandleFunc("/api/users/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/users/42", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/users/{id}", "418")))
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.RecordSignup(ResultSuccess, true)
	m.RecordLogin(ResultFailure)
	m.RecordTokenFailure("expired")
	m.RecordProfileCompletion()
	m.RecordReport("csv")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.signups.WithLabelValues(ResultSuccess, "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.logins.WithLabelValues(ResultFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.completions))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "referral_auth_token_failures_total"))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordSignup(ResultSuccess, false)
	m.RecordLogin(ResultSuccess)
	m.RecordTokenFailure("invalid")
	m.RecordProfileCompletion()
	m.RecordReport("xml")

	called := false
	h := m.Instrument(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}
