package llm

import (
	"context"
	"fmt"
	"time"
)

// Provider is the interface for LLM interactions.
type Provider interface {
	// Chat sends a chat completion request.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ChatRequest is a chat completion request.
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	TopP        float64   `json:"top_p,omitempty"`
	// TopK limits sampling to the K most likely tokens. Providers whose wire
	// format has no such parameter ignore it.
	TopK      int `json:"top_k,omitempty"`
	MaxTokens int `json:"max_tokens,omitempty"`
	// ResponseFormat can be set to "json_object" for JSON mode.
	ResponseFormat string `json:"response_format,omitempty"`
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the response from a chat completion.
type ChatResponse struct {
	Content          string `json:"content"`
	Model            string `json:"model"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
}

// Config configures an LLM provider.
type Config struct {
	Provider string `json:"provider" yaml:"provider"` // gemini, openai, groq, xai, openrouter, ollama, lmstudio, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`

	// MaxRetries bounds how often a failed request is re-sent before the
	// error is returned. Zero disables retries.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// HTTPTimeout caps a single HTTP round trip. Defaults to 120s.
	HTTPTimeout time.Duration `json:"http_timeout" yaml:"http_timeout"`
}

// NewProvider creates an LLM provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGemini(cfg)
	case "":
		return nil, fmt.Errorf("llm provider not specified")
	}
	if _, ok := compatProfiles[cfg.Provider]; ok {
		return NewOpenAICompat(cfg), nil
	}
	return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
}

// Providers lists the provider names accepted by NewProvider.
func Providers() []string {
	return append([]string{"gemini"}, compatOrder...)
}
