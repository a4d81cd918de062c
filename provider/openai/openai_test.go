package openai_provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/reportwise-ai/reportwise/config"
	"github.com/reportwise-ai/reportwise/provider"
)

func testClient(url string) *Client {
	return NewClient(config.LLMConfig{APIKey: "sk-default", BaseURL: url, Timeout: 5 * time.Second})
}

func TestCompleteSuccess(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.Model != "answer-large" || len(body.Messages) != 1 || body.Messages[0].Content != "hello" {
			t.Errorf("unexpected request body: %+v", body)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "hi there"}},
			},
			"usage": map[string]int{"prompt_tokens": 12, "completion_tokens": 4},
		})
	}))
	defer srv.Close()

	res, err := testClient(srv.URL).Complete(context.Background(), provider.CompletionRequest{
		Prompt: "hello", Model: "answer-large",
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Text != "hi there" || res.PromptTokens != 12 || res.CompletionTokens != 4 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if gotAuth != "Bearer sk-default" {
		t.Fatalf("expected default credential, got %q", gotAuth)
	}
}

func TestCompleteCredentialOverride(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{{"message": map[string]string{"content": "ok"}}},
		})
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Complete(context.Background(), provider.CompletionRequest{
		Prompt: "p", Model: "m", Credential: "sk-lane-override",
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if gotAuth != "Bearer sk-lane-override" {
		t.Fatalf("expected lane credential, got %q", gotAuth)
	}
}

func TestCompleteRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Complete(context.Background(), provider.CompletionRequest{Prompt: "p", Model: "m"})
	var rl *provider.RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rl.RetryAfter != 7*time.Second {
		t.Fatalf("expected 7s retry-after, got %v", rl.RetryAfter)
	}
	if !provider.IsRateLimit(err) || !provider.IsTransient(err) {
		t.Fatalf("rate limit should classify as transient too")
	}
}

func TestCompleteAuthRejected(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		_, err := testClient(srv.URL).Complete(context.Background(), provider.CompletionRequest{Prompt: "p", Model: "m"})
		srv.Close()
		if !provider.IsAuthFailure(err) {
			t.Fatalf("status %d: expected auth failure, got %v", status, err)
		}
		if provider.IsTransient(err) {
			t.Fatalf("auth failures must never classify as transient")
		}
	}
}

func TestCompleteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Complete(context.Background(), provider.CompletionRequest{Prompt: "p", Model: "m"})
	var te *provider.TransientError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransientError, got %v", err)
	}
	if te.Status != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", te.Status)
	}
}

func TestCompleteNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	_, err := testClient(srv.URL).Complete(context.Background(), provider.CompletionRequest{Prompt: "p", Model: "m"})
	if !provider.IsTransient(err) {
		t.Fatalf("connection refusal should be transient, got %v", err)
	}
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"embedding": []float32{0.1, 0.2}, "index": 0},
				{"embedding": []float32{0.3, 0.4}, "index": 1},
			},
		})
	}))
	defer srv.Close()

	vecs, err := testClient(srv.URL).Embed(context.Background(), "embed-small", []string{"a", "b"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs) != 2 || len(vecs[0]) != 2 || vecs[1][1] != 0.4 {
		t.Fatalf("unexpected vectors: %v", vecs)
	}
}

func TestEmbedCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"embedding": []float32{0.1}, "index": 0}},
		})
	}))
	defer srv.Close()

	if _, err := testClient(srv.URL).Embed(context.Background(), "embed-small", []string{"a", "b"}); err == nil {
		t.Fatalf("expected count mismatch error")
	}
}

func TestEmbedNoInput(t *testing.T) {
	vecs, err := testClient("http://unused.invalid").Embed(context.Background(), "embed-small", nil)
	if err != nil || vecs != nil {
		t.Fatalf("empty input should short-circuit, got %v %v", vecs, err)
	}
}
