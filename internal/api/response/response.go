package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Rrens/codemuse/internal/domain"
	"github.com/rs/zerolog/log"
)

// ErrorBody is the body of every failed request
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// JSON sends data as the raw JSON body
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

// RawJSON sends an already encoded JSON body
func RawJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// Status maps an error's category to an HTTP status
func Status(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrExternalService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error sends err with the status of its category. Unclassified errors are
// logged and reported without detail, and upstream or storage failures
// report only their code's message.
func Error(w http.ResponseWriter, err error) {
	status := Status(err)
	message := err.Error()

	var de *domain.Error
	switch {
	case !errors.As(err, &de):
		log.Error().Err(err).Msg("Unhandled error")
		message = "internal server error"
	case errors.Is(de, domain.ErrExternalService), errors.Is(de, domain.ErrPersistence):
		log.Warn().Err(err).Str("code", de.Code).Msg("Dependency failure")
		message = de.Message
	}

	JSON(w, status, ErrorBody{Error: message, Code: domain.Code(err)})
}

// ErrorStatus sends a plain error with an explicit status
func ErrorStatus(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorBody{Error: message, Code: code})
}

// OK sends a 200 OK response with data
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Created sends a 201 Created response with data
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}
