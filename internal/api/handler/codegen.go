package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Rrens/codemuse/internal/api/response"
	"github.com/Rrens/codemuse/internal/domain"
	"github.com/Rrens/codemuse/internal/llm"
	"github.com/rs/zerolog/log"
)

// Generator is a code generation backend
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// CodegenHandler exposes the code generator as a plain proxy
type CodegenHandler struct {
	generator Generator
	timeout   time.Duration
}

// NewCodegenHandler creates a new proxy handler
func NewCodegenHandler(generator Generator, timeout time.Duration) *CodegenHandler {
	return &CodegenHandler{generator: generator, timeout: timeout}
}

type proxyRequest struct {
	Prompt string `json:"prompt" validate:"required"`
}

// Proxy forwards the prompt unchanged and returns the provider's raw
// response body
func (h *CodegenHandler) Proxy(w http.ResponseWriter, r *http.Request) {
	var input proxyRequest
	if err := decode(w, r, &input); err != nil {
		response.Error(w, err)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	resp, err := h.generator.Generate(ctx, llm.Request{Prompt: input.Prompt})
	if err != nil {
		log.Error().Err(err).Msg("Codegen proxy failed")
		response.Error(w, fmt.Errorf("%w: %v", domain.ErrCodegenFailed, err))
		return
	}

	if len(resp.Raw) > 0 && json.Valid(resp.Raw) {
		response.RawJSON(w, http.StatusOK, resp.Raw)
		return
	}
	response.OK(w, map[string]string{"text": resp.Text})
}
