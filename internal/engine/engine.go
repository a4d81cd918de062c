package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/reportwise-ai/reportwise/config"
	"github.com/reportwise-ai/reportwise/internal/knowledge"
	"github.com/reportwise-ai/reportwise/internal/telemetry"
	"github.com/reportwise-ai/reportwise/provider"
)

// Cache is the answer cache the fast path consults. Implementations must be
// safe for concurrent use; a nil Cache disables caching.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}

// Engine answers free-form questions against the report corpus, either
// through the single-pass fast path or the multi-lane deep path.
type Engine struct {
	cfg        *config.Config
	client     provider.Client
	registry   *knowledge.Registry
	pool       *LanePool
	classifier *classifier
	cache      Cache
	telemetry  *telemetry.Telemetry
	logger     *log.Logger

	// sleep is replaceable in tests so lane waits don't slow them down.
	sleep func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	active map[string]*deepRun
}

// New wires the engine from its collaborators.
func New(cfg *config.Config, client provider.Client, registry *knowledge.Registry, pool *LanePool, cache Cache, tele *telemetry.Telemetry, logger *log.Logger) (*Engine, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[ENGINE] ", log.LstdFlags)
	}
	classifierModel := cfg.LLM.ClassifierModel
	if classifierModel == "" {
		classifierModel = cfg.LLM.CompletionModel
	}
	cls, err := newClassifier(client, classifierModel, cfg.Engine.Domains, cfg.Engine.DefaultDomain, logger)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:        cfg,
		client:     client,
		registry:   registry,
		pool:       pool,
		classifier: cls,
		cache:      cache,
		telemetry:  tele,
		logger:     logger,
		sleep:      sleepCtx,
		active:     make(map[string]*deepRun),
	}, nil
}

// Pool exposes the lane pool for introspection endpoints.
func (e *Engine) Pool() *LanePool { return e.pool }

// Query answers one request. See QueryWithEvents for progress reporting.
func (e *Engine) Query(ctx context.Context, req Request) (*Answer, error) {
	return e.QueryWithEvents(ctx, req, nil)
}

// QueryWithEvents answers one request, emitting progress events to the given
// channel (which may be nil). Events are dropped rather than ever blocking.
func (e *Engine) QueryWithEvents(ctx context.Context, req Request, events chan<- Event) (*Answer, error) {
	start := time.Now()
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeFast
	}
	runID := uuid.NewString()

	domain := req.Domain
	if domain == "" {
		domain = e.classifier.Classify(ctx, query)
	}
	snap, err := e.registry.Get(domain)
	if err != nil {
		return nil, err
	}
	emit(events, Event{Type: EventClassified, RunID: runID, Domain: domain})

	var answer *Answer
	switch mode {
	case ModeFast:
		answer, err = e.fastSearch(ctx, domain, snap, query)
	case ModeDeep:
		answer, err = e.deepSearch(ctx, runID, req.CallerID, domain, snap, query, events)
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	if err != nil {
		if e.telemetry != nil {
			e.telemetry.RecordQuery(string(mode), "error", time.Since(start))
		}
		return nil, err
	}

	answer.ID = runID
	answer.Query = query
	answer.Domain = domain
	answer.Mode = mode
	answer.Duration = time.Since(start)
	if e.telemetry != nil {
		e.telemetry.RecordQuery(string(mode), string(answer.Outcome), answer.Duration)
	}
	emit(events, Event{Type: EventDone, RunID: runID, Domain: domain, Status: string(answer.Outcome)})
	return answer, nil
}

// cost estimates the dollar cost of a call from configured per-1K rates.
func (e *Engine) cost(promptTokens, completionTokens int64) float64 {
	return float64(promptTokens)/1000.0*e.cfg.LLM.CostPer1KInput +
		float64(completionTokens)/1000.0*e.cfg.LLM.CostPer1KOutput
}

func (e *Engine) recordUsage(promptTokens, completionTokens int64) (int64, float64) {
	cost := e.cost(promptTokens, completionTokens)
	if e.telemetry != nil {
		e.telemetry.AddUsage(e.cfg.LLM.CompletionModel, promptTokens, completionTokens, cost)
	}
	return promptTokens + completionTokens, cost
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
