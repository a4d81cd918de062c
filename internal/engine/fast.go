package engine

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/reportwise-ai/reportwise/internal/knowledge"
	"github.com/reportwise-ai/reportwise/provider"
)

// fastSearch is the single-pass retrieval path: embed the query, take the
// top-k similar chunks, fit them into the context token budget and issue one
// completion call.
func (e *Engine) fastSearch(ctx context.Context, domain string, snap *knowledge.Snapshot, query string) (*Answer, error) {
	if snap.Len() == 0 {
		// Never call the completion service with empty context.
		return &Answer{Outcome: OutcomeNoInformation, Text: noInformationText}, nil
	}

	key := answerKey(domain, snap.Version, query)
	if e.cache != nil {
		if data, ok := e.cache.Get(ctx, key); ok {
			var cached Answer
			if err := json.Unmarshal(data, &cached); err == nil {
				cached.Cached = true
				return &cached, nil
			}
		}
	}

	vectors, err := e.client.Embed(ctx, e.cfg.LLM.EmbeddingModel, []string{query})
	if err != nil {
		return nil, &EmbeddingError{Err: err}
	}
	if len(vectors) == 0 {
		return nil, &EmbeddingError{Err: fmt.Errorf("provider returned no vectors")}
	}

	results := snap.Index.Search(vectors[0], e.cfg.Engine.TopK)

	// Fill the context window highest-similarity first; whatever does not fit
	// is dropped from the low-similarity end.
	var b strings.Builder
	budget := e.cfg.Engine.MaxContextTokens
	var sources []string
	seen := make(map[string]bool)
	for _, res := range results {
		if res.Chunk.TokenCount > budget {
			continue
		}
		budget -= res.Chunk.TokenCount
		fmt.Fprintf(&b, "[chunk %d | report %s]\n%s\n\n", res.Chunk.ID, res.Chunk.SourceRef, res.Chunk.Text)
		if !seen[res.Chunk.SourceRef] {
			seen[res.Chunk.SourceRef] = true
			sources = append(sources, res.Chunk.SourceRef)
		}
	}

	res, err := e.client.Complete(ctx, provider.CompletionRequest{
		Prompt:      fastAnswerPrompt(b.String(), query),
		Model:       e.cfg.LLM.CompletionModel,
		MaxTokens:   e.cfg.LLM.MaxTokens,
		Temperature: e.cfg.LLM.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("fast completion: %w", err)
	}
	tokens, cost := e.recordUsage(res.PromptTokens, res.CompletionTokens)

	answer := &Answer{
		Outcome: OutcomeAnswered,
		Text:    strings.TrimSpace(res.Text),
		Sources: sources,
		Tokens:  tokens,
		Cost:    cost,
	}
	if e.cache != nil {
		if data, err := json.Marshal(answer); err == nil {
			e.cache.Set(ctx, key, data)
		}
	}
	return answer, nil
}

// answerKey binds a cached answer to the exact domain contents that produced
// it; rebuilds bump the version and naturally invalidate old entries.
func answerKey(domain string, version uint64, query string) string {
	sum := sha256.Sum256([]byte(query))
	return fmt.Sprintf("answer:%s:%d:%x", domain, version, sum[:8])
}
