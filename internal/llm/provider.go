package llm

import (
	"context"
	"encoding/json"
)

// Request contains code generation parameters
type Request struct {
	// Prompt is sent as the user turn, usually a transcript
	Prompt string

	// System is an optional instruction sent ahead of the prompt
	System string

	// Model overrides the provider's default model
	Model string
}

// Response contains an LLM generation result
type Response struct {
	// Text is the concatenated text of the first candidate; empty when the
	// provider returned no candidate
	Text       string
	Raw        json.RawMessage
	Model      string
	TokensUsed int
	LatencyMs  int64
}

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider identifier
	Name() string

	// AvailableModels returns list of supported models
	AvailableModels() []string

	// DefaultModel returns the default model
	DefaultModel() string

	// IsConfigured checks if provider has valid credentials
	IsConfigured() bool

	// Generate sends the prompt and returns the provider's answer
	Generate(ctx context.Context, req Request) (*Response, error)
}
