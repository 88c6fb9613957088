package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Rrens/codemuse/internal/api/response"
	"github.com/Rrens/codemuse/internal/domain"
	"github.com/Rrens/codemuse/internal/pipeline"
	"github.com/Rrens/codemuse/internal/realtime"
	"github.com/Rrens/codemuse/internal/security"
	"github.com/Rrens/codemuse/internal/speech"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// multipartOverhead is allowed on top of the audio size limit for headers
// and other form fields
const multipartOverhead = 1 << 20

// NoSpeechMessage is reported when a recording contained no speech
const NoSpeechMessage = "No speech detected"

// PipelineHandler handles the record, transcribe and generate endpoints
type PipelineHandler struct {
	pipeline *pipeline.Orchestrator
	audio    *security.AudioValidator
	events   *realtime.Server
}

// NewPipelineHandler creates a new pipeline handler
func NewPipelineHandler(orch *pipeline.Orchestrator, audio *security.AudioValidator, events *realtime.Server) *PipelineHandler {
	return &PipelineHandler{pipeline: orch, audio: audio, events: events}
}

type stateResponse struct {
	ChatID uuid.UUID      `json:"chatId"`
	State  pipeline.State `json:"state"`
}

type noSpeechResponse struct {
	Message string         `json:"message"`
	Text    string         `json:"text"`
	State   pipeline.State `json:"state"`
}

type startRecordingRequest struct {
	Name string `json:"name" validate:"max=255"`
}

type startRecordingResponse struct {
	Chat *domain.Chat  `json:"chat"`
	Ack  *pipeline.Ack `json:"ack"`
}

type editTranscriptRequest struct {
	Text string `json:"text" validate:"required"`
}

// State returns the chat's pipeline state
func (h *PipelineHandler) State(w http.ResponseWriter, r *http.Request) {
	userID, chatID, ok := chatParam(w, r)
	if !ok {
		return
	}

	state, err := h.pipeline.State(r.Context(), userID, chatID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, stateResponse{ChatID: chatID, State: state})
}

// BeginRecording starts a recording on an existing chat
func (h *PipelineHandler) BeginRecording(w http.ResponseWriter, r *http.Request) {
	userID, chatID, ok := chatParam(w, r)
	if !ok {
		return
	}

	ack, err := h.pipeline.BeginRecording(r.Context(), userID, chatID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, ack)
}

// StartRecording creates a chat and starts recording on it
func (h *PipelineHandler) StartRecording(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	var input startRecordingRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &input); err != nil {
			response.Error(w, err)
			return
		}
	}

	chat, ack, err := h.pipeline.StartNewRecording(r.Context(), userID, input.Name)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, startRecordingResponse{Chat: present(chat), Ack: ack})
}

// UploadAudio ends the current recording with the uploaded audio
func (h *PipelineHandler) UploadAudio(w http.ResponseWriter, r *http.Request) {
	userID, chatID, ok := chatParam(w, r)
	if !ok {
		return
	}

	audio, err := h.readAudio(w, r)
	if err != nil {
		response.Error(w, err)
		return
	}

	outcome, err := h.pipeline.EndRecording(r.Context(), userID, chatID, audio)
	if err != nil {
		response.Error(w, err)
		return
	}
	writeOutcome(w, outcome)
}

// Generate generates code from the chat's latest transcript
func (h *PipelineHandler) Generate(w http.ResponseWriter, r *http.Request) {
	userID, chatID, ok := chatParam(w, r)
	if !ok {
		return
	}

	snippet, err := h.pipeline.GenerateCode(r.Context(), userID, chatID)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, snippet)
}

// EditTranscript rewrites a transcript's text
func (h *PipelineHandler) EditTranscript(w http.ResponseWriter, r *http.Request) {
	userID, chatID, ok := chatParam(w, r)
	if !ok {
		return
	}

	transcriptID, err := uuid.Parse(chi.URLParam(r, "transcriptId"))
	if err != nil {
		response.Error(w, domain.ErrTranscriptNotFound)
		return
	}

	var input editTranscriptRequest
	if err := decode(w, r, &input); err != nil {
		response.Error(w, err)
		return
	}

	transcript, err := h.pipeline.EditTranscript(r.Context(), userID, chatID, transcriptID, input.Text)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.OK(w, transcript)
}

// Events streams the chat's pipeline state changes over a websocket
func (h *PipelineHandler) Events(w http.ResponseWriter, r *http.Request) {
	userID, chatID, ok := chatParam(w, r)
	if !ok {
		return
	}

	state, err := h.pipeline.State(r.Context(), userID, chatID)
	if err != nil {
		response.Error(w, err)
		return
	}

	// Serve writes its own handshake error
	_ = h.events.Serve(w, r, chatID, userID, state)
}

// LocalTranscription transcribes an upload for the chat named in the form
// in one call
func (h *PipelineHandler) LocalTranscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r)
	if !ok {
		return
	}

	audio, err := h.readAudio(w, r)
	if err != nil {
		response.Error(w, err)
		return
	}

	raw := strings.TrimSpace(r.FormValue("chatId"))
	if raw == "" {
		response.Error(w, fmt.Errorf("%w: chatId", domain.ErrMissingField))
		return
	}
	chatID, err := uuid.Parse(raw)
	if err != nil {
		response.Error(w, domain.ErrChatNotFound)
		return
	}

	outcome, err := h.pipeline.Transcribe(r.Context(), userID, chatID, audio)
	if err != nil {
		response.Error(w, err)
		return
	}
	writeOutcome(w, outcome)
}

func writeOutcome(w http.ResponseWriter, outcome *pipeline.Outcome) {
	if outcome.NoSpeech {
		response.OK(w, noSpeechResponse{Message: NoSpeechMessage, Text: "", State: outcome.State})
		return
	}
	response.OK(w, outcome.Transcript)
}

// readAudio reads and validates the multipart "audio" part
func (h *PipelineHandler) readAudio(w http.ResponseWriter, r *http.Request) (speech.Audio, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.audio.MaxBytes()+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return speech.Audio{}, fmt.Errorf("%w: audio exceeds %d bytes", domain.ErrInvalidFileType, h.audio.MaxBytes())
		}
		return speech.Audio{}, fmt.Errorf("%w: expected multipart form", domain.ErrInvalidBody)
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		return speech.Audio{}, fmt.Errorf("%w: audio", domain.ErrMissingField)
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if err := h.audio.Validate(contentType, header.Size); err != nil {
		return speech.Audio{}, err
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return speech.Audio{}, fmt.Errorf("%w: unreadable audio", domain.ErrInvalidBody)
	}

	return speech.Audio{
		Data:        data,
		Filename:    header.Filename,
		ContentType: contentType,
	}, nil
}
