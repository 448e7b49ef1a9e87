package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestNewProvider(t *testing.T) {
	for _, name := range compatOrder {
		t.Run(name, func(t *testing.T) {
			p, err := NewProvider(Config{Provider: name, Model: "test-model"})
			if err != nil {
				t.Fatalf("NewProvider(%q) returned error: %v", name, err)
			}
			gotType := fmt.Sprintf("%T", p)
			if gotType != "*llm.openAICompatClient" {
				t.Errorf("NewProvider(%q) type = %s, want *llm.openAICompatClient", name, gotType)
			}
		})
	}
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider(Config{Provider: "doesnotexist", Model: "test-model"})
	if err == nil {
		t.Fatal("expected error for unknown provider, got nil")
	}
	want := "unknown llm provider: doesnotexist"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

func TestNewProviderEmpty(t *testing.T) {
	_, err := NewProvider(Config{Model: "test-model"})
	if err == nil {
		t.Fatal("expected error for empty provider, got nil")
	}
	want := "llm provider not specified"
	if err.Error() != want {
		t.Errorf("error = %q, want %q", err.Error(), want)
	}
}

// TestDefaultBaseURLs verifies that when BaseURL is empty in the config,
// each vendor profile sets the correct default.
func TestDefaultBaseURLs(t *testing.T) {
	tests := []struct {
		provider string
		wantURL  string
	}{
		{"openai", "https://api.openai.com"},
		{"groq", "https://api.groq.com/openai"},
		{"ollama", "http://localhost:11434"},
		{"lmstudio", "http://localhost:1234"},
		{"openrouter", "https://openrouter.ai/api"},
		{"xai", "https://api.x.ai"},
		{"custom", ""},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			p := NewOpenAICompat(Config{Provider: tt.provider}).(*openAICompatClient)
			if p.cfg.BaseURL != tt.wantURL {
				t.Errorf("BaseURL = %q, want %q", p.cfg.BaseURL, tt.wantURL)
			}
		})
	}
}

func TestCustomBaseURLPreserved(t *testing.T) {
	p := NewOpenAICompat(Config{Provider: "ollama", BaseURL: "http://gpu-box:11434"}).(*openAICompatClient)
	if p.cfg.BaseURL != "http://gpu-box:11434" {
		t.Errorf("BaseURL = %q, want custom value", p.cfg.BaseURL)
	}
}

func TestProvidersIncludesGemini(t *testing.T) {
	names := Providers()
	if len(names) != len(compatOrder)+1 || names[0] != "gemini" {
		t.Errorf("Providers() = %v", names)
	}
}

func TestAPIKeyEnv(t *testing.T) {
	tests := map[string]string{
		"gemini": "GEMINI_API_KEY",
		"openai": "OPENAI_API_KEY",
		"groq":   "GROQ_API_KEY",
		"ollama": "",
	}
	for provider, want := range tests {
		if got := APIKeyEnv(provider); got != want {
			t.Errorf("APIKeyEnv(%q) = %q, want %q", provider, got, want)
		}
	}
}

func chatServer(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s, want /v1/chat/completions", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		handler(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"model":"m","choices":[{"message":{"content":%q},"finish_reason":"stop"}],"usage":{"prompt_tokens":7,"completion_tokens":3,"total_tokens":10}}`, content)
}

func TestChatSendsSampling(t *testing.T) {
	var got map[string]any
	srv := chatServer(t, func(w http.ResponseWriter, body map[string]any) {
		got = body
		writeCompletion(w, "ok")
	})

	p := NewOpenAICompat(Config{Provider: "ollama", BaseURL: srv.URL, Model: "llama3"})
	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages:    []Message{{Role: "user", Content: "hi"}},
		Temperature: 0.1,
		TopP:        0.9,
		TopK:        3,
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "ok" || resp.TotalTokens != 10 {
		t.Errorf("resp = %+v", resp)
	}
	if got["model"] != "llama3" {
		t.Errorf("model = %v, want llama3", got["model"])
	}
	if got["top_k"] != float64(3) {
		t.Errorf("top_k = %v, want 3", got["top_k"])
	}
	if got["top_p"] != 0.9 {
		t.Errorf("top_p = %v, want 0.9", got["top_p"])
	}
}

func TestChatOmitsTopKWhereUnsupported(t *testing.T) {
	var got map[string]any
	srv := chatServer(t, func(w http.ResponseWriter, body map[string]any) {
		got = body
		writeCompletion(w, "ok")
	})

	p := NewOpenAICompat(Config{Provider: "openai", BaseURL: srv.URL, Model: "gpt"})
	if _, err := p.Chat(context.Background(), ChatRequest{TopK: 3}); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if _, ok := got["top_k"]; ok {
		t.Errorf("top_k sent to openai: %v", got["top_k"])
	}
}

func TestChatNonRetryableStatus(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := NewOpenAICompat(Config{Provider: "custom", BaseURL: srv.URL, MaxRetries: 3})
	_, err := p.Chat(context.Background(), ChatRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusUnauthorized {
		t.Errorf("err = %v, want StatusError 401", err)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
}

func TestChatNoRetriesByDefault(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewOpenAICompat(Config{Provider: "custom", BaseURL: srv.URL})
	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("expected error")
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1", hits.Load())
	}
}

func TestChatNoChoices(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, body map[string]any) {
		w.Write([]byte(`{"choices":[]}`))
	})
	p := NewOpenAICompat(Config{Provider: "custom", BaseURL: srv.URL})
	if _, err := p.Chat(context.Background(), ChatRequest{}); err == nil {
		t.Fatal("expected error for empty choices")
	}
}
