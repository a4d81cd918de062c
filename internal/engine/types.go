package engine

import "time"

// Mode selects the execution strategy for a query.
type Mode string

const (
	// ModeFast is the single-pass retrieval path.
	ModeFast Mode = "fast"
	// ModeDeep is the multi-lane parallel fan-out path.
	ModeDeep Mode = "deep"
)

// Outcome distinguishes the states an answer can be in. A query that produced
// no usable information is a valid outcome, not a failure.
type Outcome string

const (
	// OutcomeAnswered means the engine synthesized an answer from the corpus.
	OutcomeAnswered Outcome = "answered"
	// OutcomeNoInformation means the domain holds no chunks at all.
	OutcomeNoInformation Outcome = "no_information"
	// OutcomeNoRelevantInformation means the corpus was searched but nothing
	// relevant to the query was found.
	OutcomeNoRelevantInformation Outcome = "no_relevant_information"
)

// Request is one query submitted to the engine.
type Request struct {
	Query string `json:"query"`
	Mode  Mode   `json:"mode"`
	// Domain skips classification when it names a known domain.
	Domain string `json:"domain,omitempty"`
	// CallerID identifies the logical caller; a new deep query from the same
	// caller supersedes the one still in flight.
	CallerID string `json:"caller_id,omitempty"`
}

// Partial is one succeeded per-chunk result feeding the aggregation.
type Partial struct {
	ChunkID   int    `json:"chunk_id"`
	SourceRef string `json:"source_ref"`
	Text      string `json:"text"`
}

// Answer is the engine's result for a query.
type Answer struct {
	ID       string        `json:"id"`
	Query    string        `json:"query"`
	Domain   string        `json:"domain"`
	Mode     Mode          `json:"mode"`
	Outcome  Outcome       `json:"outcome"`
	Text     string        `json:"text"`
	Sources  []string      `json:"sources,omitempty"`
	Partials []Partial     `json:"partials,omitempty"`
	Tokens   int64         `json:"tokens_used"`
	Cost     float64       `json:"cost_estimate"`
	Duration time.Duration `json:"duration"`
	Cached   bool          `json:"cached,omitempty"`
}

const (
	noInformationText         = "No information is available for this domain yet."
	noRelevantInformationText = "No relevant information was found in the analyzed reports."
)
