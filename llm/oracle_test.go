package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingProvider struct {
	last ChatRequest
	resp *ChatResponse
	err  error
	wait bool
}

func (p *recordingProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	p.last = req
	if p.wait {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return p.resp, p.err
}

func TestOracleGenerate(t *testing.T) {
	p := &recordingProvider{resp: &ChatResponse{Content: `{"Physics":["x"]}`, PromptTokens: 11, CompletionTokens: 4}}
	o := NewOracle(p, "gemini-2.5-pro", DefaultSampling(), 0)

	got, err := o.Generate(context.Background(), "classify")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != `{"Physics":["x"]}` {
		t.Errorf("Generate = %q", got)
	}
	if p.last.Model != "gemini-2.5-pro" || p.last.TopK != 3 || p.last.TopP != 0.9 || p.last.Temperature != 0.1 {
		t.Errorf("request = %+v", p.last)
	}
	if len(p.last.Messages) != 1 || p.last.Messages[0].Role != "user" || p.last.Messages[0].Content != "classify" {
		t.Errorf("messages = %+v", p.last.Messages)
	}

	u := o.Usage()
	if u.Calls != 1 || u.PromptTokens != 11 || u.CompletionTokens != 4 {
		t.Errorf("usage = %+v", u)
	}
}

func TestOracleError(t *testing.T) {
	boom := errors.New("boom")
	o := NewOracle(&recordingProvider{err: boom}, "", DefaultSampling(), 0)
	if _, err := o.Generate(context.Background(), "p"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

func TestOracleNilResponse(t *testing.T) {
	o := NewOracle(&recordingProvider{}, "", DefaultSampling(), 0)
	if _, err := o.Generate(context.Background(), "p"); err == nil {
		t.Error("expected error for nil response")
	}
}

func TestOracleTimeout(t *testing.T) {
	o := NewOracle(&recordingProvider{wait: true}, "", DefaultSampling(), 20*time.Millisecond)
	_, err := o.Generate(context.Background(), "p")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}
