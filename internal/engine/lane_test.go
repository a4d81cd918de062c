package engine

import (
	"testing"
	"time"

	"github.com/reportwise-ai/reportwise/config"
)

func testLane(id int, tokens, requests int) (*Lane, *time.Time) {
	l := newLane(id, config.LaneConfig{
		APIKey:            "sk-test-lane",
		TokensPerMinute:   tokens,
		RequestsPerMinute: requests,
	})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	return l, &now
}

func TestLaneTokenBudget(t *testing.T) {
	l, _ := testLane(0, 1000, 10)
	if ok, _ := l.Eligible(400); !ok {
		t.Fatalf("fresh lane should be eligible")
	}
	l.Record(400)
	l.Record(400)
	if ok, _ := l.Eligible(300); ok {
		t.Fatalf("800+300 exceeds the 1000 token budget")
	}
	if ok, _ := l.Eligible(200); !ok {
		t.Fatalf("800+200 fits exactly")
	}
}

func TestLaneRequestBudget(t *testing.T) {
	l, _ := testLane(0, 100000, 3)
	for i := 0; i < 3; i++ {
		l.Record(10)
	}
	if ok, _ := l.Eligible(10); ok {
		t.Fatalf("request budget exhausted, lane must not be eligible")
	}
}

func TestLaneWindowDecay(t *testing.T) {
	l, now := testLane(0, 1000, 10)
	l.Record(600)
	*now = now.Add(20 * time.Second)
	l.Record(300)

	ok, wait := l.Eligible(400)
	if ok {
		t.Fatalf("900+400 should not fit yet")
	}
	// The 600-token event expires 40s from now; dropping it frees enough.
	if wait != 40*time.Second {
		t.Fatalf("expected 40s decay wait, got %v", wait)
	}

	*now = now.Add(41 * time.Second)
	if ok, _ := l.Eligible(400); !ok {
		t.Fatalf("oldest event expired, 300+400 fits")
	}
	tokens, requests := l.Usage()
	if tokens != 300 || requests != 1 {
		t.Fatalf("expected 300 tokens / 1 request in window, got %d/%d", tokens, requests)
	}
}

func TestLaneOversizedJobClamps(t *testing.T) {
	l, _ := testLane(0, 500, 10)
	// A job bigger than the full budget must still run against an empty window.
	if ok, _ := l.Eligible(900); !ok {
		t.Fatalf("oversized job should be eligible on an idle lane")
	}
	l.Record(100)
	if ok, _ := l.Eligible(900); ok {
		t.Fatalf("oversized job must wait for a fully empty window")
	}
}

func TestLaneBackoffEscalation(t *testing.T) {
	l, now := testLane(0, 1000, 10)

	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second,
		8 * time.Second, 16 * time.Second, 16 * time.Second,
	}
	for i, d := range want {
		l.OnTransient()
		ok, wait := l.Eligible(10)
		if ok {
			t.Fatalf("step %d: lane should be backing off", i)
		}
		if wait != d {
			t.Fatalf("step %d: expected %v backoff, got %v", i, d, wait)
		}
		// Let each backoff elapse before triggering the next failure.
		*now = now.Add(d)
	}

	l.OnSuccess()
	if ok, _ := l.Eligible(10); !ok {
		t.Fatalf("success should clear backoff")
	}
}

func TestLaneRateLimitHonorsRetryAfter(t *testing.T) {
	l, _ := testLane(0, 1000, 10)
	l.OnRateLimit(5 * time.Second)
	ok, wait := l.Eligible(10)
	if ok {
		t.Fatalf("rate limited lane should wait")
	}
	// First escalation is 1s; the service hint of 5s wins.
	if wait != 5*time.Second {
		t.Fatalf("expected retry-after of 5s to apply, got %v", wait)
	}
}

func TestLaneHealthTransitions(t *testing.T) {
	l, now := testLane(0, 1000, 10)
	if l.Health() != LaneHealthy {
		t.Fatalf("new lane should be healthy")
	}
	for i := 0; i < laneDegradeThreshold; i++ {
		l.OnTransient()
	}
	if l.Health() != LaneDegraded {
		t.Fatalf("consecutive transient failures should degrade the lane")
	}
	*now = now.Add(time.Minute)
	l.OnSuccess()
	if l.Health() != LaneHealthy {
		t.Fatalf("success should recover a degraded lane")
	}

	l.OnAuthFailure()
	if l.Health() != LaneDisabled {
		t.Fatalf("auth failure must disable the lane")
	}
	if ok, wait := l.Eligible(10); ok || wait != 0 {
		t.Fatalf("disabled lane must never be eligible and reports no wait")
	}
	l.OnSuccess()
	if l.Health() != LaneDisabled {
		t.Fatalf("disabled is permanent for the process lifetime")
	}
}

func TestLaneFingerprintStable(t *testing.T) {
	a, _ := testLane(0, 1000, 10)
	b, _ := testLane(1, 1000, 10)
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("same credential should fingerprint identically")
	}
	if len(a.Fingerprint()) != 8 {
		t.Fatalf("fingerprint should be 8 hex chars, got %q", a.Fingerprint())
	}
	if a.Fingerprint() == a.Credential() {
		t.Fatalf("fingerprint must not expose the credential")
	}
}
