package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
)

var (
	registry = prometheus.NewRegistry()
	logger   *zap.Logger
)

type MetricsConfig struct {
	Namespace  string
	LogMetrics bool
}

// Initialize makes the package registry the default registerer
func Initialize(cfg *MetricsConfig, log *zap.Logger) *prometheus.Registry {
	logger = log
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return registry
}

// Registry returns the package registry
func Registry() *prometheus.Registry {
	return registry
}

type LiquidationMetrics struct {
	Attempts           *prometheus.CounterVec
	Successes          *prometheus.CounterVec
	Failures           *prometheus.CounterVec
	ProfitTotal        prometheus.Counter
	CollateralReceived prometheus.Counter
	AdapterSwaps       *prometheus.CounterVec
	ExecutionTime      prometheus.Histogram
}

// NewLiquidationMetrics creates the liquidator's collectors on reg. A nil
// reg leaves them unregistered.
func NewLiquidationMetrics(namespace string, reg prometheus.Registerer) *LiquidationMetrics {
	factory := promauto.With(reg)
	return &LiquidationMetrics{
		Attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Total number of liquidation attempts",
		}, []string{"source"}),
		Successes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "successes_total",
			Help:      "Total number of committed liquidations",
		}, []string{"source"}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Total number of reverted liquidations",
		}, []string{"kind"}),
		ProfitTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profit_total",
			Help:      "Total profit in debt asset units",
		}),
		CollateralReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collateral_received_total",
			Help:      "Total collateral received in collateral asset units",
		}),
		AdapterSwaps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_swaps_total",
			Help:      "Total number of swaps per adapter tag",
		}, []string{"adapter"}),
		ExecutionTime: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_time_seconds",
			Help:      "Time taken by one liquidation attempt",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
	}
}

// Summary is a flattened view of gathered metric families
type Summary struct {
	Counters map[string]float64
	Samples  map[string]uint64
}

// Gather collects every family under namespace from g. Labelled series are
// keyed as name{label="value"}.
func Gather(g prometheus.Gatherer, namespace string) (*Summary, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, fmt.Errorf("failed to gather metrics: %w", err)
	}

	s := &Summary{
		Counters: make(map[string]float64),
		Samples:  make(map[string]uint64),
	}
	prefix := namespace + "_"
	for _, mf := range families {
		if namespace != "" && !strings.HasPrefix(mf.GetName(), prefix) {
			continue
		}
		for _, m := range mf.GetMetric() {
			key := seriesName(mf.GetName(), m.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				s.Counters[key] = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				s.Counters[key] = m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				s.Samples[key] = m.GetHistogram().GetSampleCount()
			}
		}
	}
	return s, nil
}

// Lines renders the summary sorted by series name
func (s *Summary) Lines() []string {
	lines := make([]string, 0, len(s.Counters)+len(s.Samples))
	for k, v := range s.Counters {
		lines = append(lines, fmt.Sprintf("%s %g", k, v))
	}
	for k, v := range s.Samples {
		lines = append(lines, fmt.Sprintf("%s_count %d", k, v))
	}
	sort.Strings(lines)
	return lines
}

// Log writes the summary through the package logger when one is set
func (s *Summary) Log() {
	if logger == nil {
		return
	}
	for _, line := range s.Lines() {
		logger.Info("metric", zap.String("series", line))
	}
}

func seriesName(name string, labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return name
	}
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
	}
	return name + "{" + strings.Join(parts, ",") + "}"
}
