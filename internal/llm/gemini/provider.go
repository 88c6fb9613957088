package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Rrens/codemuse/internal/config"
	"github.com/Rrens/codemuse/internal/llm"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultModel = "gemini-2.0-flash"

type Provider struct {
	apiKey string
	model  string
	opts   []option.ClientOption
}

// NewProvider creates a Gemini provider. Extra client options are appended
// after the API key, e.g. option.WithEndpoint for a proxy.
func NewProvider(cfg config.GeminiConfig, opts ...option.ClientOption) *Provider {
	return &Provider{
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		opts:   opts,
	}
}

func (p *Provider) Name() string {
	return "gemini"
}

func (p *Provider) AvailableModels() []string {
	return []string{
		"gemini-2.0-flash",
		"gemini-2.5-flash",
		"gemini-2.5-pro",
		"gemini-1.5-flash",
	}
}

func (p *Provider) DefaultModel() string {
	if p.model != "" {
		return p.model
	}
	return defaultModel
}

func (p *Provider) IsConfigured() bool {
	return p.apiKey != ""
}

func (p *Provider) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if !p.IsConfigured() {
		return nil, fmt.Errorf("gemini provider is not configured (missing API key)")
	}

	model := req.Model
	if model == "" {
		model = p.DefaultModel()
	}

	opts := append([]option.ClientOption{option.WithAPIKey(p.apiKey)}, p.opts...)
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	defer client.Close()

	generativeModel := client.GenerativeModel(model)
	if req.System != "" {
		generativeModel.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}

	start := time.Now()
	resp, err := generativeModel.GenerateContent(ctx, genai.Text(req.Prompt))
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return nil, fmt.Errorf("gemini generation error: %w", err)
	}

	raw, err := json.Marshal(toWire(resp))
	if err != nil {
		return nil, fmt.Errorf("failed to encode gemini response: %w", err)
	}

	tokensUsed := 0
	if resp.UsageMetadata != nil {
		tokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}

	return &llm.Response{
		Text:       firstCandidateText(resp),
		Raw:        raw,
		Model:      model,
		TokensUsed: tokensUsed,
		LatencyMs:  latency,
	}, nil
}

func firstCandidateText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var output strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			output.WriteString(string(text))
		}
	}
	return output.String()
}

// Wire types mirror the REST generateContent response so proxied answers
// keep the shape clients already parse (candidates[0].content.parts[0].text).
type wireResponse struct {
	Candidates    []wireCandidate `json:"candidates"`
	UsageMetadata *wireUsage      `json:"usageMetadata,omitempty"`
}

type wireCandidate struct {
	Content      wireContent `json:"content"`
	FinishReason string      `json:"finishReason,omitempty"`
	Index        int         `json:"index"`
}

type wireContent struct {
	Parts []wirePart `json:"parts"`
	Role  string     `json:"role,omitempty"`
}

type wirePart struct {
	Text string `json:"text"`
}

type wireUsage struct {
	PromptTokenCount     int32 `json:"promptTokenCount"`
	CandidatesTokenCount int32 `json:"candidatesTokenCount"`
	TotalTokenCount      int32 `json:"totalTokenCount"`
}

func toWire(resp *genai.GenerateContentResponse) wireResponse {
	out := wireResponse{Candidates: make([]wireCandidate, 0, len(resp.Candidates))}

	for i, c := range resp.Candidates {
		wc := wireCandidate{
			Content: wireContent{Parts: []wirePart{}},
			Index:   i,
		}
		if c.FinishReason != genai.FinishReasonUnspecified {
			wc.FinishReason = c.FinishReason.String()
		}
		if c.Content != nil {
			wc.Content.Role = c.Content.Role
			for _, part := range c.Content.Parts {
				if text, ok := part.(genai.Text); ok {
					wc.Content.Parts = append(wc.Content.Parts, wirePart{Text: string(text)})
				}
			}
		}
		out.Candidates = append(out.Candidates, wc)
	}

	if u := resp.UsageMetadata; u != nil {
		out.UsageMetadata = &wireUsage{
			PromptTokenCount:     u.PromptTokenCount,
			CandidatesTokenCount: u.CandidatesTokenCount,
			TotalTokenCount:      u.TotalTokenCount,
		}
	}
	return out
}
