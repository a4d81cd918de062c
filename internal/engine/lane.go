package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/reportwise-ai/reportwise/config"
)

// LaneHealth tracks a lane's runtime state.
type LaneHealth int

const (
	LaneHealthy LaneHealth = iota
	LaneDegraded
	LaneDisabled
)

func (h LaneHealth) String() string {
	switch h {
	case LaneHealthy:
		return "healthy"
	case LaneDegraded:
		return "degraded"
	case LaneDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

const (
	laneWindow           = time.Minute
	laneBackoffBase      = time.Second
	laneBackoffCap       = 16 * time.Second
	laneDegradeThreshold = 3
)

type usageEvent struct {
	at     time.Time
	tokens int
}

// Lane is one independently credentialed, independently rate limited execution
// context. All state is owned by the lane and guarded by its own mutex; lanes
// never coordinate with each other.
type Lane struct {
	id            int
	credential    string
	tokenBudget   int
	requestBudget int

	// now is the lane's clock, replaceable in tests.
	now func() time.Time

	mu              sync.Mutex
	events          []usageEvent
	health          LaneHealth
	transientStreak int
	backoff         time.Duration
	backoffUntil    time.Time
}

func newLane(id int, cfg config.LaneConfig) *Lane {
	return &Lane{
		id:            id,
		credential:    cfg.APIKey,
		tokenBudget:   cfg.TokensPerMinute,
		requestBudget: cfg.RequestsPerMinute,
		now:           time.Now,
	}
}

// ID returns the lane's position in the configured credential list.
func (l *Lane) ID() int { return l.id }

// Credential returns the lane's API key for issuing calls.
func (l *Lane) Credential() string { return l.credential }

// Fingerprint returns a short non-reversible identifier for logs and
// introspection; the credential itself never leaves the lane.
func (l *Lane) Fingerprint() string {
	sum := sha256.Sum256([]byte(l.credential))
	return hex.EncodeToString(sum[:4])
}

// Health returns the lane's current health state.
func (l *Lane) Health() LaneHealth {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.health
}

// Usage returns tokens and requests consumed in the current rolling window.
func (l *Lane) Usage() (tokens, requests int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	for _, ev := range l.events {
		tokens += ev.tokens
	}
	return tokens, len(l.events)
}

// Eligible reports whether a job estimated at estTokens fits the lane's
// budgets right now. When it does not, wait is the minimum delay until it
// would, computed from backoff and window decay. Disabled lanes are never
// eligible and report no wait.
func (l *Lane) Eligible(estTokens int) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.health == LaneDisabled {
		return false, 0
	}
	if estTokens > l.tokenBudget {
		// A single job larger than the whole budget would otherwise never
		// become eligible; let it run against an empty window.
		estTokens = l.tokenBudget
	}
	now := l.now()
	l.prune(now)

	var backoffWait time.Duration
	if l.backoffUntil.After(now) {
		backoffWait = l.backoffUntil.Sub(now)
	}

	tokens := 0
	for _, ev := range l.events {
		tokens += ev.tokens
	}
	if tokens+estTokens <= l.tokenBudget && len(l.events)+1 <= l.requestBudget {
		if backoffWait > 0 {
			return false, backoffWait
		}
		return true, 0
	}

	// Walk events oldest first, simulating their decay, until the job fits.
	decayWait := time.Duration(0)
	remainingTokens := tokens
	remainingReqs := len(l.events)
	for _, ev := range l.events {
		remainingTokens -= ev.tokens
		remainingReqs--
		decayWait = ev.at.Add(laneWindow).Sub(now)
		if remainingTokens+estTokens <= l.tokenBudget && remainingReqs+1 <= l.requestBudget {
			break
		}
	}
	if decayWait < backoffWait {
		decayWait = backoffWait
	}
	return false, decayWait
}

// Headroom returns the token budget still available in the current window.
// The dispatcher picks the eligible lane with the largest headroom.
func (l *Lane) Headroom() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prune(l.now())
	tokens := 0
	for _, ev := range l.events {
		tokens += ev.tokens
	}
	return l.tokenBudget - tokens
}

// Record charges one request and the estimated tokens against the window.
func (l *Lane) Record(tokens int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, usageEvent{at: l.now(), tokens: tokens})
}

// OnSuccess resets backoff and recovers a degraded lane.
func (l *Lane) OnSuccess() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.transientStreak = 0
	l.backoff = 0
	l.backoffUntil = time.Time{}
	if l.health == LaneDegraded {
		l.health = LaneHealthy
	}
}

// OnTransient notes a transient failure: backoff escalates and repeated
// failures degrade the lane.
func (l *Lane) OnTransient() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.escalate(0)
}

// OnRateLimit notes a throttling response. The service's own retry-after hint
// extends the backoff when it is longer.
func (l *Lane) OnRateLimit(retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.escalate(retryAfter)
}

// OnAuthFailure permanently disables the lane.
func (l *Lane) OnAuthFailure() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.health = LaneDisabled
}

// escalate doubles the lane-local backoff (1s, 2s, 4s, ... capped at 16s).
// Callers must hold l.mu.
func (l *Lane) escalate(floor time.Duration) {
	l.transientStreak++
	if l.transientStreak >= laneDegradeThreshold && l.health == LaneHealthy {
		l.health = LaneDegraded
	}
	if l.backoff == 0 {
		l.backoff = laneBackoffBase
	} else {
		l.backoff *= 2
		if l.backoff > laneBackoffCap {
			l.backoff = laneBackoffCap
		}
	}
	delay := l.backoff
	if floor > delay {
		delay = floor
	}
	l.backoffUntil = l.now().Add(delay)
}

// prune drops usage events that fell out of the rolling window. Callers must
// hold l.mu.
func (l *Lane) prune(now time.Time) {
	cutoff := now.Add(-laneWindow)
	i := 0
	for i < len(l.events) && !l.events[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		l.events = append(l.events[:0], l.events[i:]...)
	}
}
