package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/reportwise-ai/reportwise/internal/knowledge"
	"github.com/reportwise-ai/reportwise/provider"
)

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string][]byte)} }

func (m *mapCache) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *mapCache) Set(_ context.Context, key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

func TestFastEmptyDomain(t *testing.T) {
	client := &fakeClient{}
	eng, _ := newTestEngine(t, client, nil, nil)

	ans, err := eng.Query(context.Background(), Request{Query: "what changed", Domain: "product", Mode: ModeFast})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if ans.Outcome != OutcomeNoInformation {
		t.Fatalf("expected no_information, got %s", ans.Outcome)
	}
	if ans.Text == "" {
		t.Fatalf("empty domain should still explain itself")
	}
	embeds, completes := client.calls()
	if embeds != 0 || completes != 0 {
		t.Fatalf("empty domain must not touch the provider, got %d embeds %d completions", embeds, completes)
	}
}

func TestFastAnswer(t *testing.T) {
	client := &fakeClient{
		embedFn: func(_ string, input []string) ([][]float32, error) {
			return [][]float32{oneHot(16, 1)}, nil
		},
		completeFn: func(req provider.CompletionRequest) (provider.CompletionResult, error) {
			return provider.CompletionResult{Text: "  Revenue grew.  ", PromptTokens: 100, CompletionTokens: 50}, nil
		},
	}
	eng, _ := newTestEngine(t, client, seedChunks(4), nil)

	ans, err := eng.Query(context.Background(), Request{Query: "how did revenue do", Domain: "product", Mode: ModeFast})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if ans.Outcome != OutcomeAnswered {
		t.Fatalf("expected answered, got %s", ans.Outcome)
	}
	if ans.Text != "Revenue grew." {
		t.Fatalf("answer text should be trimmed, got %q", ans.Text)
	}
	if ans.Tokens != 150 {
		t.Fatalf("expected 150 tokens, got %d", ans.Tokens)
	}
	if ans.Cost <= 0 {
		t.Fatalf("expected positive cost estimate")
	}
	if len(ans.Sources) == 0 {
		t.Fatalf("expected source refs")
	}
	// The query vector matches chunk 2 exactly; its text must lead the context.
	prompt := client.lastPrompt()
	if !strings.Contains(prompt, "fact number 2") {
		t.Fatalf("best matching chunk missing from prompt")
	}
}

func TestFastContextBudget(t *testing.T) {
	chunks := seedChunks(3)
	chunks = append(chunks, knowledge.Chunk{
		ID:         4,
		Text:       "enormous appendix dump",
		TokenCount: 5000,
		SourceRef:  "rep-9",
	})
	client := &fakeClient{
		embedFn: func(_ string, input []string) ([][]float32, error) {
			// Matches the oversized chunk best; it still must not be included.
			return [][]float32{oneHot(16, 3)}, nil
		},
	}
	eng, _ := newTestEngine(t, client, chunks, nil)

	ans, err := eng.Query(context.Background(), Request{Query: "q", Domain: "product", Mode: ModeFast})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	prompt := client.lastPrompt()
	if strings.Contains(prompt, "enormous appendix dump") {
		t.Fatalf("chunk over the context budget must be dropped")
	}
	if !strings.Contains(prompt, "fact number 1") {
		t.Fatalf("smaller chunks should still fill the context")
	}
	for _, src := range ans.Sources {
		if src == "rep-9" {
			t.Fatalf("dropped chunk must not be cited")
		}
	}
}

func TestFastEmbeddingFailure(t *testing.T) {
	client := &fakeClient{
		embedFn: func(_ string, _ []string) ([][]float32, error) {
			return nil, fmt.Errorf("embedding backend down")
		},
	}
	eng, _ := newTestEngine(t, client, seedChunks(2), nil)

	_, err := eng.Query(context.Background(), Request{Query: "q", Domain: "product", Mode: ModeFast})
	var ee *EmbeddingError
	if !errors.As(err, &ee) {
		t.Fatalf("expected EmbeddingError, got %v", err)
	}
}

func TestFastAnswerCache(t *testing.T) {
	client := &fakeClient{
		embedFn: func(_ string, _ []string) ([][]float32, error) {
			return [][]float32{oneHot(16, 0)}, nil
		},
		completeFn: func(req provider.CompletionRequest) (provider.CompletionResult, error) {
			return provider.CompletionResult{Text: "cached answer", PromptTokens: 10, CompletionTokens: 5}, nil
		},
	}
	cache := newMapCache()
	eng, _ := newTestEngine(t, client, seedChunks(2), cache)
	ctx := context.Background()
	req := Request{Query: "repeat me", Domain: "product", Mode: ModeFast}

	first, err := eng.Query(ctx, req)
	if err != nil {
		t.Fatalf("first query: %v", err)
	}
	if first.Cached {
		t.Fatalf("first answer cannot be a cache hit")
	}
	embedsAfterFirst, _ := client.calls()

	second, err := eng.Query(ctx, req)
	if err != nil {
		t.Fatalf("second query: %v", err)
	}
	if !second.Cached {
		t.Fatalf("expected a cache hit")
	}
	if second.Text != first.Text {
		t.Fatalf("cached answer diverged")
	}
	if embeds, _ := client.calls(); embeds != embedsAfterFirst {
		t.Fatalf("cache hit must not call the provider")
	}

	// A rebuild bumps the snapshot version, which invalidates the old key.
	if err := eng.registry.RebuildDomain(ctx, "product", seedChunks(2)); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	third, err := eng.Query(ctx, req)
	if err != nil {
		t.Fatalf("third query: %v", err)
	}
	if third.Cached {
		t.Fatalf("rebuilt domain must miss the stale cache entry")
	}
}
