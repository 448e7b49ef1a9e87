package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-pro"

// geminiProvider talks to the Gemini API through the genai SDK.
type geminiProvider struct {
	cfg    Config
	client *genai.Client
}

// NewGemini creates a Gemini provider. An empty APIKey lets the SDK fall back
// to the GEMINI_API_KEY / GOOGLE_API_KEY environment variables.
func NewGemini(cfg Config) (Provider, error) {
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPTimeout > 0 {
		timeout := cfg.HTTPTimeout
		cc.HTTPOptions.Timeout = &timeout
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &geminiProvider{cfg: cfg, client: client}, nil
}

func (g *geminiProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = g.cfg.Model
	}

	gc := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		gc.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.TopP > 0 {
		gc.TopP = genai.Ptr(float32(req.TopP))
	}
	if req.TopK > 0 {
		gc.TopK = genai.Ptr(float32(req.TopK))
	}
	if req.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.ResponseFormat == "json_object" {
		gc.ResponseMIMEType = "application/json"
	}

	var system []string
	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, m.Content)
		case "assistant":
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		gc.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	var (
		resp    *genai.GenerateContentResponse
		lastErr error
	)
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := baseRetryDelay * time.Duration(1<<(attempt-1))
			slog.Warn("llm: retrying gemini request",
				"model", model,
				"attempt", attempt,
				"delay", delay,
				"error", lastErr,
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		r, err := g.client.Models.GenerateContent(ctx, model, contents, gc)
		if err == nil {
			resp = r
			break
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		lastErr = err
	}
	if resp == nil {
		return nil, fmt.Errorf("gemini generate: %w", lastErr)
	}

	out := &ChatResponse{
		Content: resp.Text(),
		Model:   model,
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if u := resp.UsageMetadata; u != nil {
		out.PromptTokens = int(u.PromptTokenCount)
		out.CompletionTokens = int(u.CandidatesTokenCount)
		out.TotalTokens = int(u.TotalTokenCount)
	}
	return out, nil
}
