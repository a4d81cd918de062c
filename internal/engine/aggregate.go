package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/reportwise-ai/reportwise/provider"
)

// buildPartials collects the succeeded jobs whose output is usable and orders
// them by chunk id. Two runs over the same succeeded/failed set therefore
// always feed the synthesizer byte-identical input.
func buildPartials(jobs []*dispatchJob) []Partial {
	var partials []Partial
	for _, job := range jobs {
		if job.status != jobSucceeded || !job.relevant {
			continue
		}
		partials = append(partials, Partial{
			ChunkID:   job.chunk.ID,
			SourceRef: job.chunk.SourceRef,
			Text:      job.output,
		})
	}
	sort.Slice(partials, func(i, j int) bool { return partials[i].ChunkID < partials[j].ChunkID })
	return partials
}

// synthesize issues the final completion call that combines all partial
// outputs into one coherent answer.
func (e *Engine) synthesize(ctx context.Context, query string, partials []Partial) (string, int64, float64, error) {
	res, err := e.client.Complete(ctx, provider.CompletionRequest{
		Prompt:      synthesisPrompt(partials, query),
		Model:       e.cfg.LLM.CompletionModel,
		MaxTokens:   e.cfg.LLM.MaxTokens,
		Temperature: e.cfg.LLM.Temperature,
	})
	if err != nil {
		return "", 0, 0, fmt.Errorf("synthesis completion: %w", err)
	}
	tokens, cost := e.recordUsage(res.PromptTokens, res.CompletionTokens)
	return strings.TrimSpace(res.Text), tokens, cost, nil
}
