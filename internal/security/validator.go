package security

import (
	"fmt"
	"mime"
	"strings"

	"github.com/Rrens/codemuse/internal/domain"
)

// DefaultMaxAudioBytes bounds a single uploaded recording
const DefaultMaxAudioBytes int64 = 25 << 20

// AudioValidator checks uploaded recordings before they reach the speech service
type AudioValidator struct {
	maxBytes int64
}

// NewAudioValidator creates a validator; maxBytes <= 0 uses DefaultMaxAudioBytes
func NewAudioValidator(maxBytes int64) *AudioValidator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxAudioBytes
	}
	return &AudioValidator{maxBytes: maxBytes}
}

// MaxBytes returns the upload size limit
func (v *AudioValidator) MaxBytes() int64 {
	return v.maxBytes
}

// Validate accepts only non-empty audio/* payloads within the size limit
func (v *AudioValidator) Validate(contentType string, size int64) error {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "audio/") {
		return domain.ErrInvalidFileType
	}
	if size <= 0 {
		return fmt.Errorf("%w: empty audio payload", domain.ErrMissingField)
	}
	if size > v.maxBytes {
		return fmt.Errorf("%w: audio exceeds %d bytes", domain.ErrInvalidFileType, v.maxBytes)
	}
	return nil
}
