package knowledge

import (
	"fmt"
	"strconv"

	"github.com/blevesearch/bleve"
)

// KeywordHit is a chunk matched by a full-text query.
type KeywordHit struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// KeywordIndex is an in-memory full-text index over a domain's chunks. It is
// rebuilt together with the vector index and serves the operator-facing
// keyword search endpoint; it plays no role in answer retrieval ordering.
type KeywordIndex struct {
	index  bleve.Index
	chunks map[int]Chunk
}

type keywordDoc struct {
	Text      string `json:"text"`
	SourceRef string `json:"source_ref"`
}

// NewKeywordIndex builds a memory-only bleve index over the given chunks.
func NewKeywordIndex(chunks []Chunk) (*KeywordIndex, error) {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create keyword index: %w", err)
	}
	byID := make(map[int]Chunk, len(chunks))
	for _, c := range chunks {
		if err := idx.Index(strconv.Itoa(c.ID), keywordDoc{Text: c.Text, SourceRef: c.SourceRef}); err != nil {
			return nil, fmt.Errorf("index chunk %d: %w", c.ID, err)
		}
		byID[c.ID] = c
	}
	return &KeywordIndex{index: idx, chunks: byID}, nil
}

// Search runs a match query and returns up to limit hits by descending score.
func (k *KeywordIndex) Search(query string, limit int) ([]KeywordHit, error) {
	if limit <= 0 {
		limit = 10
	}
	req := bleve.NewSearchRequestOptions(bleve.NewMatchQuery(query), limit, 0, false)
	res, err := k.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	hits := make([]KeywordHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		id, err := strconv.Atoi(h.ID)
		if err != nil {
			continue
		}
		chunk, ok := k.chunks[id]
		if !ok {
			continue
		}
		hits = append(hits, KeywordHit{Chunk: chunk, Score: h.Score})
	}
	return hits, nil
}
