package llm

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Sampling holds the generation parameters sent with every oracle prompt.
type Sampling struct {
	Temperature float64 `json:"temperature" yaml:"temperature"`
	TopK        int     `json:"top_k" yaml:"top_k"`
	TopP        float64 `json:"top_p" yaml:"top_p"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`
}

// DefaultSampling keeps the model close to deterministic so repeated runs
// over the same chunk give comparable answers.
func DefaultSampling() Sampling {
	return Sampling{Temperature: 0.1, TopK: 3, TopP: 0.9}
}

// Oracle turns a Provider into a single-prompt text generator. It is safe
// for concurrent use.
type Oracle struct {
	provider Provider
	model    string
	sampling Sampling
	timeout  time.Duration

	calls            atomic.Int64
	promptTokens     atomic.Int64
	completionTokens atomic.Int64
}

// NewOracle wraps p. A zero timeout leaves each call bounded only by the
// caller's context.
func NewOracle(p Provider, model string, s Sampling, timeout time.Duration) *Oracle {
	return &Oracle{provider: p, model: model, sampling: s, timeout: timeout}
}

// Generate sends prompt as a single user message and returns the raw text
// of the answer.
func (o *Oracle) Generate(ctx context.Context, prompt string) (string, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	o.calls.Add(1)
	resp, err := o.provider.Chat(ctx, ChatRequest{
		Model:       o.model,
		Messages:    []Message{{Role: "user", Content: prompt}},
		Temperature: o.sampling.Temperature,
		TopP:        o.sampling.TopP,
		TopK:        o.sampling.TopK,
		MaxTokens:   o.sampling.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", fmt.Errorf("llm: provider returned no response")
	}
	o.promptTokens.Add(int64(resp.PromptTokens))
	o.completionTokens.Add(int64(resp.CompletionTokens))
	return resp.Content, nil
}

// Usage reports cumulative counters since the oracle was created.
type Usage struct {
	Calls            int64 `json:"calls"`
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

func (o *Oracle) Usage() Usage {
	return Usage{
		Calls:            o.calls.Load(),
		PromptTokens:     o.promptTokens.Load(),
		CompletionTokens: o.completionTokens.Load(),
	}
}
