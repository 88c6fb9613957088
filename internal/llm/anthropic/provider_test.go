package anthropic

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
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))

		var req anthropicRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "rules", req.System)
		assert.Equal(t, "print hello", req.Messages[0].Content)

		w.Write([]byte(`{"content":[{"type":"text","text":"console.log("},{"type":"text","text":"'hello')"}],"usage":{"input_tokens":5,"output_tokens":6}}`))
	}))
	defer srv.Close()

	p := NewProvider(config.AnthropicConfig{APIKey: "key"}, WithBaseURL(srv.URL))

	resp, err := p.Generate(context.Background(), llm.Request{Prompt: "print hello", System: "rules"})
	require.NoError(t, err)
	assert.Equal(t, "console.log('hello')", resp.Text)
	assert.Equal(t, 11, resp.TokensUsed)
}

func TestProvider_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewProvider(config.AnthropicConfig{APIKey: "key"}, WithBaseURL(srv.URL))

	_, err := p.Generate(context.Background(), llm.Request{Prompt: "x"})
	assert.ErrorContains(t, err, "status 429")
}
