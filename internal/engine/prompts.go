package engine

import (
	"fmt"
	"strings"

	"github.com/reportwise-ai/reportwise/internal/knowledge"
)

// notRelevantMarker is what extraction jobs return when their chunk holds
// nothing useful for the query. Such partials are excluded from aggregation.
const notRelevantMarker = "NOT_RELEVANT"

func classifierPrompt(domains []string, query string) string {
	return fmt.Sprintf(`You are a query router for a knowledge base of analysis reports.

Classify the user query into exactly one of these knowledge domains:
%s

RULES:
1. Pick the single best matching domain, even when the match is weak
2. Never invent a domain that is not in the list

RESPONSE FORMAT:
Respond ONLY with valid JSON in the following format:
{"domain": "domain_name"}
Do not include any other text or explanation.

USER QUERY: "%s"`, strings.Join(domains, ", "), query)
}

func fastAnswerPrompt(contextText, query string) string {
	return fmt.Sprintf(`You are an assistant answering questions about previously generated analysis reports. Use ONLY the report excerpts below; do not invent facts that are not in them. If the excerpts do not answer the question, say so.

REPORT EXCERPTS:
%s

QUESTION: %s

Answer concisely, citing the excerpt markers you used.`, contextText, query)
}

func extractPrompt(chunk knowledge.Chunk, query string) string {
	return fmt.Sprintf(`You are extracting information from a single excerpt of an analysis report.

EXCERPT (chunk %d, report %s):
%s

QUESTION: %s

RULES:
1. Use ONLY the excerpt above
2. If the excerpt contains nothing relevant to the question, respond with exactly %s
3. Otherwise respond with the relevant facts, stated briefly

Respond with the extracted answer or %s only.`, chunk.ID, chunk.SourceRef, chunk.Text, query, notRelevantMarker, notRelevantMarker)
}

func synthesisPrompt(partials []Partial, query string) string {
	var b strings.Builder
	for _, p := range partials {
		fmt.Fprintf(&b, "[chunk %d | report %s]\n%s\n\n", p.ChunkID, p.SourceRef, p.Text)
	}
	return fmt.Sprintf(`You are combining partial findings extracted from different parts of a report corpus into one answer.

PARTIAL FINDINGS:
%s
QUESTION: %s

Write a single coherent answer based only on the partial findings, keeping the source markers for the facts you use.`, b.String(), query)
}
