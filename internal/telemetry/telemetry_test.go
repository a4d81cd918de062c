package telemetry

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/reportwise-ai/reportwise/config"
)

func TestRecordingMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	tele := New(config.TelemetryConfig{Enabled: true, CostTracking: true}, reg, log.New(io.Discard, "", 0))

	tele.RecordQuery("fast", "answered", 120*time.Millisecond)
	tele.RecordQuery("deep", "answered", time.Second)
	tele.RecordJob("succeeded")
	tele.RecordJob("failed")
	tele.RecordLaneRequest("ab12cd34")
	tele.RecordLaneThrottle("ab12cd34", "rate_limit")
	tele.AddUsage("answer-large", 100, 40, 0.25)
	tele.AddUsage("answer-large", 200, 60, 0.5)

	if got := testutil.ToFloat64(tele.queriesTotal.WithLabelValues("fast", "answered")); got != 1 {
		t.Fatalf("queries counter: got %v", got)
	}
	if got := testutil.ToFloat64(tele.jobsTotal.WithLabelValues("failed")); got != 1 {
		t.Fatalf("jobs counter: got %v", got)
	}
	if got := testutil.ToFloat64(tele.tokensTotal.WithLabelValues("answer-large", "prompt")); got != 300 {
		t.Fatalf("prompt token counter: got %v", got)
	}

	cost, tokens := tele.Totals()
	if cost != 0.75 || tokens != 400 {
		t.Fatalf("totals mismatch: cost=%v tokens=%d", cost, tokens)
	}
}

func TestDisabledTelemetryIsSilent(t *testing.T) {
	reg := prometheus.NewRegistry()
	tele := New(config.TelemetryConfig{}, reg, log.New(io.Discard, "", 0))

	tele.RecordQuery("fast", "answered", time.Second)
	tele.AddUsage("answer-large", 100, 100, 1.0)

	if got := testutil.ToFloat64(tele.queriesTotal.WithLabelValues("fast", "answered")); got != 0 {
		t.Fatalf("disabled telemetry must not count queries, got %v", got)
	}
	cost, tokens := tele.Totals()
	if cost != 0 || tokens != 0 {
		t.Fatalf("disabled telemetry must not track cost, got %v/%d", cost, tokens)
	}
}
