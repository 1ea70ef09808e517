package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMetricsInitialization(t *testing.T) {
	reg := Initialize(&MetricsConfig{Namespace: "test", LogMetrics: true}, zaptest.NewLogger(t))
	assert.NotNil(t, reg)
	assert.Same(t, reg, Registry())
}

func TestLiquidationMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLiquidationMetrics("test_liquidator", reg)

	m.Attempts.WithLabelValues("lending_pool_flash_loan").Inc()
	m.Attempts.WithLabelValues("lending_pool_flash_loan").Inc()
	m.Successes.WithLabelValues("lending_pool_flash_loan").Inc()
	m.Failures.WithLabelValues("economic").Inc()
	m.ProfitTotal.Add(49_100)
	m.ExecutionTime.Observe(0.001)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Attempts.WithLabelValues("lending_pool_flash_loan")))
	assert.Equal(t, float64(49_100), testutil.ToFloat64(m.ProfitTotal))

	s, err := Gather(reg, "test_liquidator")
	require.NoError(t, err)
	assert.Equal(t, float64(2), s.Counters[`test_liquidator_attempts_total{source="lending_pool_flash_loan"}`])
	assert.Equal(t, float64(1), s.Counters[`test_liquidator_failures_total{kind="economic"}`])
	assert.Equal(t, float64(49_100), s.Counters["test_liquidator_profit_total"])
	assert.Equal(t, uint64(1), s.Samples["test_liquidator_execution_time_seconds"])
	assert.Contains(t, s.Lines(), "test_liquidator_profit_total 49100")
	s.Log()
}

func TestUnregisteredMetrics(t *testing.T) {
	m := NewLiquidationMetrics("unregistered", nil)
	m.ProfitTotal.Add(1)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProfitTotal))
}

func TestGatherFiltersNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewLiquidationMetrics("a", reg).ProfitTotal.Add(1)
	NewLiquidationMetrics("b", reg).ProfitTotal.Add(2)

	s, err := Gather(reg, "b")
	require.NoError(t, err)
	assert.Equal(t, float64(2), s.Counters["b_profit_total"])
	_, ok := s.Counters["a_profit_total"]
	assert.False(t, ok)
}
