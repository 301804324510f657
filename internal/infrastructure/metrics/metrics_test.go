package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counts(t *testing.T) {
	r := NewRecorder()

	r.RecordAction("ECN", "APPROVE")
	r.RecordAction("ECN", "APPROVE")
	r.RecordAction("SALES_QUOTE", "SUBMIT")
	r.RecordHookFailure("ACCEPTANCE_ORDER", "APPROVED")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.actions.WithLabelValues("ECN", "APPROVE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.actions.WithLabelValues("SALES_QUOTE", "SUBMIT")))
	assert.Equal(t, 0.0, testutil.ToFloat64(r.actions.WithLabelValues("ECN", "REJECT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.hookFailures.WithLabelValues("ACCEPTANCE_ORDER", "APPROVED")))
}

func TestRecorder_Handler(t *testing.T) {
	r := NewRecorder()
	r.RecordAction("ECN", "WITHDRAW")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `approval_actions_total{action="WITHDRAW",entity_type="ECN"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
