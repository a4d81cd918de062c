package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// persistedIndex is the durable form of one domain: vectors, chunk metadata
// and the domain id, saved as a single JSON document.
type persistedIndex struct {
	Domain  string      `json:"domain"`
	SavedAt time.Time   `json:"saved_at"`
	Chunks  []Chunk     `json:"chunks"`
	Vectors [][]float32 `json:"vectors"`
}

// CorruptIndexError reports an unreadable or inconsistent persisted index.
// Chunks holds whatever chunk metadata could still be salvaged so the caller
// can rebuild the index by re-embedding instead of losing the domain.
type CorruptIndexError struct {
	Path   string
	Reason string
	Chunks []Chunk
}

func (e *CorruptIndexError) Error() string {
	return fmt.Sprintf("corrupt index %s: %s", e.Path, e.Reason)
}

// Save writes the index to path atomically (write to temp file, then rename).
func (ix *VectorIndex) Save(path string) error {
	doc := persistedIndex{
		Domain:  ix.domain,
		SavedAt: time.Now().UTC(),
		Chunks:  ix.chunks,
		Vectors: ix.vectors,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal index %s: %w", ix.domain, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write index %s: %w", ix.domain, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename index %s: %w", ix.domain, err)
	}
	return nil
}

// LoadIndex reads a persisted index back. A loaded index yields results
// identical to the in-memory index that produced it. Inconsistent files
// return a *CorruptIndexError carrying any salvageable chunks.
func LoadIndex(path string) (*VectorIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc persistedIndex
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &CorruptIndexError{Path: path, Reason: err.Error()}
	}
	if doc.Domain == "" {
		return nil, &CorruptIndexError{Path: path, Reason: "missing domain id", Chunks: doc.Chunks}
	}
	if len(doc.Chunks) != len(doc.Vectors) {
		return nil, &CorruptIndexError{
			Path:   path,
			Reason: fmt.Sprintf("%d chunks but %d vectors", len(doc.Chunks), len(doc.Vectors)),
			Chunks: doc.Chunks,
		}
	}
	ix := NewVectorIndex(doc.Domain)
	for i := range doc.Chunks {
		if err := ix.Add(doc.Chunks[i], doc.Vectors[i]); err != nil {
			return nil, &CorruptIndexError{Path: path, Reason: err.Error(), Chunks: doc.Chunks}
		}
	}
	return ix, nil
}
