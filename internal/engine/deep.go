package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/reportwise-ai/reportwise/internal/knowledge"
	"github.com/reportwise-ai/reportwise/provider"
)

type jobStatus int

const (
	jobPending jobStatus = iota
	jobInFlight
	jobSucceeded
	jobFailed
)

func (s jobStatus) String() string {
	switch s {
	case jobPending:
		return "pending"
	case jobInFlight:
		return "in_flight"
	case jobSucceeded:
		return "succeeded"
	case jobFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// dispatchJob is one unit of deep-search work: a single completion call over
// one chunk. Jobs belong to the invocation that created them and are
// discarded after aggregation.
type dispatchJob struct {
	chunk    knowledge.Chunk
	status   jobStatus
	attempts int
	lane     *Lane
	output   string
	relevant bool

	promptTokens     int64
	completionTokens int64
}

// deepRun carries the cooperative cancellation flag for one deep search. A
// newer query from the same caller sets cancelled; in-flight network calls
// finish but their results are discarded.
type deepRun struct {
	runID     string
	cancelled atomic.Bool
}

func (e *Engine) beginRun(callerID, runID string) *deepRun {
	run := &deepRun{runID: runID}
	if callerID == "" {
		return run
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if prev, ok := e.active[callerID]; ok {
		prev.cancelled.Store(true)
	}
	e.active[callerID] = run
	return run
}

func (e *Engine) endRun(callerID string, run *deepRun) {
	if callerID == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[callerID] == run {
		delete(e.active, callerID)
	}
}

// deepSearch fans the query out across the domain's chunks, one dispatch job
// per chunk, executed concurrently over the lane pool, then aggregates the
// partial results deterministically.
func (e *Engine) deepSearch(ctx context.Context, runID, callerID, domain string, snap *knowledge.Snapshot, query string, events chan<- Event) (*Answer, error) {
	chunks := snap.Chunks()
	if len(chunks) == 0 {
		return &Answer{Outcome: OutcomeNoInformation, Text: noInformationText}, nil
	}
	if e.pool == nil {
		return nil, ErrAllLanesExhausted
	}

	run := e.beginRun(callerID, runID)
	defer e.endRun(callerID, run)

	jobs := make([]*dispatchJob, len(chunks))
	for i, c := range chunks {
		jobs[i] = &dispatchJob{chunk: c}
	}

	sem := make(chan struct{}, e.cfg.Engine.MaxConcurrency)
	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(job *dispatchJob) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			e.runJob(ctx, run, job, query, events)
		}(job)
	}
	wg.Wait()

	// Checked before aggregation: a superseded run discards its results.
	if run.cancelled.Load() {
		return nil, ErrSuperseded
	}
	// A cancelled caller gets an error, never an empty-looking answer.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var tokens int64
	var cost float64
	succeeded := 0
	for _, job := range jobs {
		if e.telemetry != nil {
			e.telemetry.RecordJob(job.status.String())
		}
		t, c := e.recordUsage(job.promptTokens, job.completionTokens)
		tokens += t
		cost += c
		if job.status == jobSucceeded {
			succeeded++
		}
	}

	if succeeded == 0 && e.pool.UsableCount() == 0 {
		return nil, ErrAllLanesExhausted
	}

	partials := buildPartials(jobs)
	if len(partials) == 0 {
		return &Answer{
			Outcome: OutcomeNoRelevantInformation,
			Text:    noRelevantInformationText,
			Tokens:  tokens,
			Cost:    cost,
		}, nil
	}

	emit(events, Event{Type: EventAggregating, RunID: runID, Domain: domain})
	text, aggTokens, aggCost, err := e.synthesize(ctx, query, partials)
	if err != nil {
		return nil, err
	}

	var sources []string
	seen := make(map[string]bool)
	for _, p := range partials {
		if !seen[p.SourceRef] {
			seen[p.SourceRef] = true
			sources = append(sources, p.SourceRef)
		}
	}

	return &Answer{
		Outcome:  OutcomeAnswered,
		Text:     text,
		Sources:  sources,
		Partials: partials,
		Tokens:   tokens + aggTokens,
		Cost:     cost + aggCost,
	}, nil
}

// runJob executes one dispatch job: pick a lane, charge the estimate, call
// the service, and classify the outcome. Transient failures retry up to the
// attempt bound with lane-local backoff; a disabled lane causes reassignment
// without consuming an attempt.
func (e *Engine) runJob(ctx context.Context, run *deepRun, job *dispatchJob, query string, events chan<- Event) {
	prompt := extractPrompt(job.chunk, query)
	est := knowledge.EstimateTokens(prompt) + e.cfg.Engine.ExpectedCompletionTokens
	maxAttempts := e.cfg.Engine.MaxJobAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	for {
		if run.cancelled.Load() || ctx.Err() != nil {
			job.status = jobFailed
			return
		}

		lane, wait, err := e.pool.Pick(est)
		if err != nil {
			// No healthy lane remains anywhere.
			job.status = jobFailed
			return
		}
		if lane == nil {
			if err := e.sleep(ctx, wait); err != nil {
				job.status = jobFailed
				return
			}
			continue
		}

		lane.Record(est)
		job.lane = lane
		job.status = jobInFlight
		if e.telemetry != nil {
			e.telemetry.RecordLaneRequest(lane.Fingerprint())
		}
		emit(events, Event{Type: EventJobStarted, RunID: run.runID, ChunkID: job.chunk.ID, Lane: lane.Fingerprint()})

		callCtx, cancel := context.WithTimeout(ctx, e.cfg.Engine.JobTimeout)
		res, err := e.client.Complete(callCtx, provider.CompletionRequest{
			Prompt:      prompt,
			Model:       e.cfg.LLM.CompletionModel,
			MaxTokens:   e.cfg.LLM.MaxTokens,
			Temperature: e.cfg.LLM.Temperature,
			Credential:  lane.Credential(),
		})
		cancel()

		if err == nil {
			lane.OnSuccess()
			job.promptTokens = res.PromptTokens
			job.completionTokens = res.CompletionTokens
			text := strings.TrimSpace(res.Text)
			job.output = text
			job.relevant = text != "" && !strings.Contains(text, notRelevantMarker)
			job.status = jobSucceeded
			emit(events, Event{Type: EventJobFinished, RunID: run.runID, ChunkID: job.chunk.ID, Lane: lane.Fingerprint(), Status: job.status.String()})
			return
		}

		switch {
		case provider.IsAuthFailure(err):
			lane.OnAuthFailure()
			e.logger.Printf("lane %s disabled after auth failure: %v", lane.Fingerprint(), err)
			emit(events, Event{Type: EventLaneDisabled, RunID: run.runID, Lane: lane.Fingerprint()})
			// The job is reassigned to a remaining lane, not failed.
			continue
		case provider.IsRateLimit(err):
			var rl *provider.RateLimitError
			errors.As(err, &rl)
			lane.OnRateLimit(rl.RetryAfter)
			if e.telemetry != nil {
				e.telemetry.RecordLaneThrottle(lane.Fingerprint(), "rate_limit")
			}
		case provider.IsTransient(err):
			lane.OnTransient()
			if e.telemetry != nil {
				e.telemetry.RecordLaneThrottle(lane.Fingerprint(), "transient")
			}
		}

		job.attempts++
		if job.attempts >= maxAttempts {
			job.status = jobFailed
			emit(events, Event{Type: EventJobFinished, RunID: run.runID, ChunkID: job.chunk.ID, Lane: lane.Fingerprint(), Status: job.status.String()})
			return
		}
	}
}
