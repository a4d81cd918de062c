package knowledge

import (
	"fmt"
	"math"
	"sort"
)

// SearchResult is a chunk matched by a similarity query.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// VectorIndex maps chunks to embedding vectors and answers top-k similarity
// queries by brute-force cosine similarity. An index is built once and then
// read-only; the registry swaps whole indexes on rebuild.
type VectorIndex struct {
	domain  string
	dims    int
	chunks  []Chunk
	vectors [][]float32
}

// NewVectorIndex creates an empty index for a domain.
func NewVectorIndex(domain string) *VectorIndex {
	return &VectorIndex{domain: domain}
}

// Domain returns the knowledge domain this index belongs to.
func (ix *VectorIndex) Domain() string { return ix.domain }

// Len returns the number of indexed chunks.
func (ix *VectorIndex) Len() int { return len(ix.chunks) }

// Chunks returns the indexed chunks in id order.
func (ix *VectorIndex) Chunks() []Chunk {
	out := make([]Chunk, len(ix.chunks))
	copy(out, ix.chunks)
	return out
}

// Add appends a chunk with its embedding. The first vector fixes the
// dimensionality for the rest of the index.
func (ix *VectorIndex) Add(chunk Chunk, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("empty vector for chunk %d", chunk.ID)
	}
	if ix.dims == 0 {
		ix.dims = len(vector)
	} else if len(vector) != ix.dims {
		return fmt.Errorf("vector dimension mismatch: got %d want %d", len(vector), ix.dims)
	}
	ix.chunks = append(ix.chunks, chunk)
	ix.vectors = append(ix.vectors, vector)
	return nil
}

// Search returns the topK most similar chunks, ordered by descending cosine
// similarity. Ties break toward the lower chunk id so results are
// deterministic across runs.
func (ix *VectorIndex) Search(vector []float32, topK int) []SearchResult {
	if topK <= 0 || len(ix.chunks) == 0 {
		return nil
	}
	results := make([]SearchResult, 0, len(ix.chunks))
	for i := range ix.vectors {
		results = append(results, SearchResult{
			Chunk: ix.chunks[i],
			Score: cosine(ix.vectors[i], vector),
		})
	}
	sort.Slice(results, func(a, b int) bool {
		if results[a].Score != results[b].Score {
			return results[a].Score > results[b].Score
		}
		return results[a].Chunk.ID < results[b].Chunk.ID
	})
	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK]
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
