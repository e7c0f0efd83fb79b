package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/metastates/pkg/metrics"
)

func TestPrometheusRecorder(t *testing.T) {
	t.Parallel()

	reg := prom.NewRegistry()
	pr := metrics.NewPrometheusRecorder(reg)

	pr.IncStateCreated("user", "kyc", "pending")
	pr.IncStateCreated("user", "kyc", "pending")
	pr.IncTransition("kyc", "pending", "completed")
	pr.IncValidationFailure("kyc", "state_limit_not_exceeded")
	pr.IncCallbackResult("kyc", metrics.OutcomeSuccess)
	pr.IncCallbackResult("kyc", metrics.OutcomeFailure)
	pr.ObserveDispatchDuration("kyc", 15*time.Millisecond)
	pr.IncCallbackEvicted("kyc")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, mfs, 6)

	expected := `
# HELP metastates_states_created_total State records created, by owner kind, state type and initial status
# TYPE metastates_states_created_total counter
metastates_states_created_total{owner_kind="user",state_type="kyc",status="pending"} 2
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(expected), "metastates_states_created_total")
	require.NoError(t, err)
}

func TestPrometheusRecorderNilSafe(t *testing.T) {
	t.Parallel()

	var pr *metrics.PrometheusRecorder
	assert.NotPanics(t, func() {
		pr.IncStateCreated("user", "kyc", "pending")
		pr.IncCallbackResult("kyc", metrics.OutcomeSkipped)
		pr.ObserveDispatchDuration("kyc", time.Second)
	})
}

func TestHandler(t *testing.T) {
	t.Parallel()

	reg := prom.NewRegistry()
	pr := metrics.NewPrometheusRecorder(reg)
	pr.IncTransition("onboarding", "pending", "completed")

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `metastates_transitions_total{from="pending",state_type="onboarding",to="completed"} 1`)
}
