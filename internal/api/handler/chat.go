package handler

import (
	"net/http"

	"github.com/Rrens/codemuse/internal/api/response"
	"github.com/Rrens/codemuse/internal/domain"
	"github.com/Rrens/codemuse/internal/pipeline"
	"github.com/Rrens/codemuse/internal/service"
	"github.com/rs/zerolog/log"
)

// ChatHandler handles chat, snippet and transcript listing endpoints
type ChatHandler struct {
	chats    *service.ChatService
	pipeline *pipeline.Orchestrator
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chats *service.ChatService, orch *pipeline.Orchestrator) *ChatHandler {
	return &ChatHandler{chats: chats, pipeline: orch}
}

type saveCodeResponse struct {
	Success  bool                `json:"success"`
	LastCode *domain.CodeSnippet `json:"lastCode"`
}

// present keeps empty logs serialized as [] rather than null
func present(chat *domain.Chat) *domain.Chat {
	if chat.Transcripts == nil {
		chat.Transcripts = []domain.Transcript{}
	}
	if chat.CodeSnippets == nil {
		chat.CodeSnippets = []domain.CodeSnippet{}
	}
	return chat
}

// List returns the caller's chats
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	chats, err := h.chats.List(r.Context(), userID)
	if err != nil {
		response.Error(w, err)
		return
	}
	if chats == nil {
		chats = []domain.Chat{}
	}
	for i := range chats {
		present(&chats[i])
	}
	response.OK(w, chats)
}

// Create creates a chat
func (h *ChatHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	var input domain.ChatCreate
	if r.ContentLength != 0 {
		if err := decode(w, r, &input); err != nil {
			response.Error(w, err)
			return
		}
	}

	chat, err := h.chats.Create(r.Context(), userID, input.Name)
	if err != nil {
		response.Error(w, err)
		return
	}

	log.Info().Str("chat_id", chat.ID.String()).Str("user_id", userID.String()).Msg("Chat created")
	response.OK(w, present(chat))
}

// Get returns one chat with its logs
func (h *ChatHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, chatID, ok := chatParam(w, r)
	if !ok {
		return
	}

	chat, err := h.chats.Get(r.Context(), userID, chatID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, present(chat))
}

// Rename renames a chat
func (h *ChatHandler) Rename(w http.ResponseWriter, r *http.Request) {
	userID, chatID, ok := chatParam(w, r)
	if !ok {
		return
	}

	var input domain.ChatRename
	if err := decode(w, r, &input); err != nil {
		response.Error(w, err)
		return
	}

	chat, err := h.chats.Rename(r.Context(), userID, chatID, input.Name)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, present(chat))
}

// Delete deletes a chat with its logs
func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, chatID, ok := chatParam(w, r)
	if !ok {
		return
	}

	if err := h.chats.Delete(r.Context(), userID, chatID); err != nil {
		response.Error(w, err)
		return
	}
	h.pipeline.Forget(chatID)

	log.Info().Str("chat_id", chatID.String()).Str("user_id", userID.String()).Msg("Chat deleted")
	response.OK(w, map[string]bool{"success": true})
}

// SaveCode appends a user supplied snippet
func (h *ChatHandler) SaveCode(w http.ResponseWriter, r *http.Request) {
	userID, chatID, ok := chatParam(w, r)
	if !ok {
		return
	}

	var input domain.SnippetCreate
	if err := decode(w, r, &input); err != nil {
		response.Error(w, err)
		return
	}

	snippet, err := h.chats.AppendSnippet(r.Context(), userID, chatID, input.Code, input.Language)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, saveCodeResponse{Success: true, LastCode: snippet})
}

// ListCode returns the chat's snippets in order
func (h *ChatHandler) ListCode(w http.ResponseWriter, r *http.Request) {
	userID, chatID, ok := chatParam(w, r)
	if !ok {
		return
	}

	snippets, err := h.chats.ListSnippets(r.Context(), userID, chatID)
	if err != nil {
		response.Error(w, err)
		return
	}
	if snippets == nil {
		snippets = []domain.CodeSnippet{}
	}
	response.OK(w, snippets)
}

// ListTranscripts returns the chat's transcripts in order
func (h *ChatHandler) ListTranscripts(w http.ResponseWriter, r *http.Request) {
	userID, chatID, ok := chatParam(w, r)
	if !ok {
		return
	}

	transcripts, err := h.chats.ListTranscripts(r.Context(), userID, chatID)
	if err != nil {
		response.Error(w, err)
		return
	}
	if transcripts == nil {
		transcripts = []domain.Transcript{}
	}
	response.OK(w, transcripts)
}
