package domain

import "errors"

// Error categories. Every coded error below unwraps to exactly one of these,
// and the HTTP layer maps categories to status codes.
var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrExternalService = errors.New("external service error")
	ErrPersistence     = errors.New("persistence error")
)

// Error is a classified error with a stable machine-readable code.
type Error struct {
	Kind    error
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Auth errors
var (
	ErrTokenSignature     = newError(ErrUnauthorized, "invalid_signature", "invalid token signature")
	ErrTokenExpired       = newError(ErrUnauthorized, "token_expired", "token expired")
	ErrTokenMalformed     = newError(ErrUnauthorized, "token_malformed", "malformed token")
	ErrNoToken            = newError(ErrUnauthorized, "no_token", "no token")
	ErrUserNotFound       = newError(ErrUnauthorized, "user_not_found", "user not found")
	ErrInvalidCredentials = newError(ErrValidation, "invalid_credentials", "invalid credentials")
)

// Validation errors
var (
	ErrMissingField    = newError(ErrValidation, "missing_field", "missing required field")
	ErrInvalidBody     = newError(ErrValidation, "invalid_body", "invalid request body")
	ErrEmptyName       = newError(ErrValidation, "empty_name", "name is required")
	ErrEmptyCode       = newError(ErrValidation, "empty_code", "code is required")
	ErrEmptyText       = newError(ErrValidation, "empty_text", "text is required")
	ErrInvalidFileType = newError(ErrValidation, "invalid_file_type", "invalid file type, only audio allowed")
	ErrDuplicateEmail  = newError(ErrValidation, "duplicate_email", "email already exists")
)

// Not found errors
var (
	ErrChatNotFound       = newError(ErrNotFound, "chat_not_found", "chat not found")
	ErrTranscriptNotFound = newError(ErrNotFound, "transcript_not_found", "transcript not found")
)

// Pipeline conflicts
var (
	ErrPipelineBusy     = newError(ErrConflict, "pipeline_busy", "pipeline is busy for this chat")
	ErrPipelineNotReady = newError(ErrConflict, "pipeline_not_ready", "no transcript to generate code from")
	ErrNotRecording     = newError(ErrConflict, "not_recording", "no recording in progress")
)

// External service errors
var (
	ErrSpeechTransport = newError(ErrExternalService, "speech_transport", "speech service unreachable")
	ErrSpeechStatus    = newError(ErrExternalService, "speech_status", "speech service returned an error")
	ErrCodegenFailed   = newError(ErrExternalService, "codegen_failed", "code generation failed")
)

// Persistence errors
var (
	ErrStorageUnavailable = newError(ErrPersistence, "storage_unavailable", "storage unavailable")
)

// Code returns the stable code of a classified error, or "internal_error".
func Code(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return "internal_error"
}
