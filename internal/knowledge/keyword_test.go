package knowledge

import "testing"

func TestKeywordSearch(t *testing.T) {
	kw, err := NewKeywordIndex([]Chunk{
		{ID: 1, Text: "quarterly revenue grew twelve percent", SourceRef: "rep-1"},
		{ID: 2, Text: "new onboarding flow shipped to beta", SourceRef: "rep-2"},
		{ID: 3, Text: "revenue forecast revised upward", SourceRef: "rep-3"},
	})
	if err != nil {
		t.Fatalf("build keyword index: %v", err)
	}

	hits, err := kw.Search("revenue", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits for revenue, got %d", len(hits))
	}
	for _, h := range hits {
		if h.Chunk.ID != 1 && h.Chunk.ID != 3 {
			t.Fatalf("unexpected hit %d", h.Chunk.ID)
		}
		if h.Score <= 0 {
			t.Fatalf("hit %d has non-positive score", h.Chunk.ID)
		}
	}

	none, err := kw.Search("kubernetes", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no hits, got %d", len(none))
	}
}

func TestKeywordSearchEmptyIndex(t *testing.T) {
	kw, err := NewKeywordIndex(nil)
	if err != nil {
		t.Fatalf("build keyword index: %v", err)
	}
	hits, err := kw.Search("anything", 0)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits from empty index")
	}
}
