package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New()

	m.RecordScore("high")
	m.RecordScore("high")
	m.RecordAlertCreated("critical")
	m.RecordTransition("acknowledge")
	m.RecordGuardrailCheck(false, []string{"prescription", "diagnosis"})
	m.RecordGuardrailCheck(true, nil)
	m.RecordNotification("sent")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.scoresTotal.WithLabelValues("high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alertsCreated.WithLabelValues("critical")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alertTransitions.WithLabelValues("acknowledge")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.guardrailChecks.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.guardrailChecks.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.guardrailViolation.WithLabelValues("prescription")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("sent")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordScore("low")
		m.RecordAlertCreated("low")
		m.RecordTransition("resolve")
		m.RecordGuardrailCheck(true, nil)
		m.RecordNotification("failed")
	})
}

func TestIndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.RecordScore("low")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.scoresTotal.WithLabelValues("low")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.RecordScore("medium")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `obswatch_scores_total{tier="medium"} 1`)
}
