package metrics

import "github.com/prometheus/client_golang/prometheus"

// OracleMetrics exposes counters/histograms for test runs and diagnosis.
type OracleMetrics struct {
	runsTotal            *prometheus.CounterVec
	classificationsTotal *prometheus.CounterVec
	detectionsTotal      *prometheus.CounterVec
	runDuration          *prometheus.HistogramVec
	agentLatency         prometheus.Histogram
}

func NewOracleMetrics(reg prometheus.Registerer) *OracleMetrics {
	m := &OracleMetrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oracle",
			Subsystem: "runs",
			Name:      "total",
			Help:      "Total simulated runs by outcome",
		}, []string{"scenario", "outcome"}),
		classificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oracle",
			Subsystem: "classifier",
			Name:      "classifications_total",
			Help:      "Total utterance classifications by tier and category",
		}, []string{"tier", "category"}),
		detectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "oracle",
			Subsystem: "diagnosis",
			Name:      "detections_total",
			Help:      "Total fired failure patterns by code",
		}, []string{"code"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "oracle",
			Subsystem: "runs",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of simulated runs",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"scenario"}),
		agentLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "oracle",
			Subsystem: "agent",
			Name:      "latency_seconds",
			Help:      "Latency of agent endpoint calls",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.runsTotal, m.classificationsTotal, m.detectionsTotal, m.runDuration, m.agentLatency)
	return m
}

func (m *OracleMetrics) ObserveRun(scenarioID, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(scenarioID, outcome).Inc()
	m.runDuration.WithLabelValues(scenarioID).Observe(seconds)
}

func (m *OracleMetrics) ObserveClassification(tier, category string) {
	if m == nil {
		return
	}
	m.classificationsTotal.WithLabelValues(tier, category).Inc()
}

func (m *OracleMetrics) ObserveDetection(code string) {
	if m == nil {
		return
	}
	m.detectionsTotal.WithLabelValues(code).Inc()
}

func (m *OracleMetrics) ObserveAgentLatency(seconds float64) {
	if m == nil {
		return
	}
	m.agentLatency.Observe(seconds)
}
