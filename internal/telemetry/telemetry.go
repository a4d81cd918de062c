package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/reportwise-ai/reportwise/config"
)

// Telemetry exposes engine metrics through Prometheus and keeps running cost
// totals per model.
type Telemetry struct {
	cfg    config.TelemetryConfig
	logger *log.Logger

	queriesTotal  *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
	jobsTotal     *prometheus.CounterVec
	laneRequests  *prometheus.CounterVec
	laneThrottles *prometheus.CounterVec
	tokensTotal   *prometheus.CounterVec

	mu          sync.Mutex
	totalCost   float64
	totalTokens int64
	modelCosts  map[string]float64
}

// New registers the engine metrics on reg and returns the telemetry handle.
func New(cfg config.TelemetryConfig, reg prometheus.Registerer, logger *log.Logger) *Telemetry {
	if logger == nil {
		logger = log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags)
	}
	t := &Telemetry{
		cfg:        cfg,
		logger:     logger,
		modelCosts: make(map[string]float64),
		queriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reportwise_queries_total",
			Help: "Queries answered, by mode and outcome.",
		}, []string{"mode", "outcome"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reportwise_query_duration_seconds",
			Help:    "End-to-end query latency, by mode.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"mode"}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reportwise_dispatch_jobs_total",
			Help: "Deep-search dispatch jobs, by final status.",
		}, []string{"status"}),
		laneRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reportwise_lane_requests_total",
			Help: "Completion requests issued, by lane fingerprint.",
		}, []string{"lane"}),
		laneThrottles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reportwise_lane_throttles_total",
			Help: "Backoff events, by lane fingerprint and kind.",
		}, []string{"lane", "kind"}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reportwise_tokens_total",
			Help: "Tokens consumed, by model and direction.",
		}, []string{"model", "direction"}),
	}
	if reg != nil {
		reg.MustRegister(t.queriesTotal, t.queryDuration, t.jobsTotal, t.laneRequests, t.laneThrottles, t.tokensTotal)
	}
	return t
}

// RecordQuery notes one finished query.
func (t *Telemetry) RecordQuery(mode, outcome string, d time.Duration) {
	if !t.cfg.Enabled {
		return
	}
	t.queriesTotal.WithLabelValues(mode, outcome).Inc()
	t.queryDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordJob notes one dispatch job reaching a final status.
func (t *Telemetry) RecordJob(status string) {
	if !t.cfg.Enabled {
		return
	}
	t.jobsTotal.WithLabelValues(status).Inc()
}

// RecordLaneRequest notes a completion request issued on a lane.
func (t *Telemetry) RecordLaneRequest(lane string) {
	if !t.cfg.Enabled {
		return
	}
	t.laneRequests.WithLabelValues(lane).Inc()
}

// RecordLaneThrottle notes a backoff event on a lane.
func (t *Telemetry) RecordLaneThrottle(lane, kind string) {
	if !t.cfg.Enabled {
		return
	}
	t.laneThrottles.WithLabelValues(lane, kind).Inc()
}

// AddUsage accumulates token usage and estimated cost for a model.
func (t *Telemetry) AddUsage(model string, promptTokens, completionTokens int64, cost float64) {
	if !t.cfg.Enabled {
		return
	}
	t.tokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	t.tokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	if !t.cfg.CostTracking {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalCost += cost
	t.totalTokens += promptTokens + completionTokens
	t.modelCosts[model] += cost
}

// Totals returns the accumulated cost and token counters.
func (t *Telemetry) Totals() (cost float64, tokens int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalCost, t.totalTokens
}
