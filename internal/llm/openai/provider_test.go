package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Rrens/codemuse/internal/config"
	"github.com/Rrens/codemuse/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "deepseek-chat", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Equal(t, "user", req.Messages[1].Role)
		assert.Equal(t, "sum two numbers", req.Messages[1].Content)

		w.Write([]byte(`{"choices":[{"message":{"content":"const sum = (a, b) => a + b;"}}],"usage":{"total_tokens":30}}`))
	}))
	defer srv.Close()

	p := NewProvider(config.OpenAIConfig{APIKey: "sk-test", Model: "deepseek-chat", BaseURL: srv.URL + "/v1/"})

	resp, err := p.Generate(context.Background(), llm.Request{Prompt: "sum two numbers", System: llm.CodegenInstruction})
	require.NoError(t, err)
	assert.Equal(t, "const sum = (a, b) => a + b;", resp.Text)
	assert.Equal(t, 30, resp.TokensUsed)
	assert.Equal(t, "deepseek-chat", resp.Model)
}

func TestProvider_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Messages, 1)
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	p := NewProvider(config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})
	assert.Equal(t, "gpt-4o-mini", p.DefaultModel())

	resp, err := p.Generate(context.Background(), llm.Request{Prompt: "x"})
	require.NoError(t, err)

	result := llm.Envelope(resp, nil)
	assert.Equal(t, llm.StatusEmpty, result.Status)
}

func TestProvider_NotConfigured(t *testing.T) {
	p := NewProvider(config.OpenAIConfig{})
	assert.False(t, p.IsConfigured())
}
