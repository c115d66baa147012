package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegistry(reg)

	r.RecordPropagation(4, true, 0.01)
	r.RecordPropagation(15, false, 0.2)
	r.RecordScenario("acquisition", true)
	r.RecordError("store")
	r.RecordPortfolioRisk(1234.5)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.propagationRuns.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.scenarios.WithLabelValues("acquisition", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("store")))
	assert.Equal(t, 1234.5, testutil.ToFloat64(r.portfolioRisk))
	assert.Equal(t, 2, testutil.CollectAndCount(r.propagationRuns))
}
