package knowledge

// Chunk is one bounded unit of report text indexed for retrieval. Chunks are
// immutable once created; ids are ordinal and scoped to their domain.
type Chunk struct {
	ID         int    `json:"id"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
	SourceRef  string `json:"source_ref"`
}

// IncomingChunk is a chunk as supplied by the ingestion interface, before an
// ordinal id has been assigned.
type IncomingChunk struct {
	Text      string `json:"text"`
	SourceRef string `json:"source_ref"`
}

// EstimateTokens gives a rough token count for text. The service bills roughly
// four characters per token for English prose; the lanes only need an estimate
// that errs slightly high.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
