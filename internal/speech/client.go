// Package speech talks to the external speech-to-text service.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/Rrens/codemuse/internal/config"
	"github.com/Rrens/codemuse/internal/domain"
	"github.com/rs/zerolog/log"
)

const defaultFilename = "audio.wav"

// Audio is one uploaded recording
type Audio struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Client posts recordings to the speech service as multipart field "audio"
// and reads back {"text": "..."}. There are no retries.
type Client struct {
	url    string
	client *http.Client
}

// NewClient creates a speech client
func NewClient(cfg config.SpeechConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		url:    cfg.URL,
		client: &http.Client{Timeout: timeout},
	}
}

type transcribeResponse struct {
	Text string `json:"text"`
}

// Transcribe returns the recognized text, which may be empty. Transport
// failures map to domain.ErrSpeechTransport and non-2xx answers to
// domain.ErrSpeechStatus.
func (c *Client) Transcribe(ctx context.Context, audio Audio) (string, error) {
	body, contentType, err := encode(audio)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("url", c.url).Msg("Speech service unreachable")
		return "", fmt.Errorf("%w: %v", domain.ErrSpeechTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Error().
			Int("status", resp.StatusCode).
			Str("body", string(snippet)).
			Msg("Speech service returned an error")
		return "", fmt.Errorf("%w: status %d", domain.ErrSpeechStatus, resp.StatusCode)
	}

	var out transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", domain.ErrSpeechStatus, err)
	}

	log.Debug().
		Int("bytes", len(audio.Data)).
		Int("chars", len(out.Text)).
		Dur("duration", time.Since(start)).
		Msg("Audio transcribed")

	return out.Text, nil
}

func encode(audio Audio) (io.Reader, string, error) {
	filename := audio.Filename
	if filename == "" {
		filename = defaultFilename
	}
	contentType := audio.ContentType
	if contentType == "" {
		contentType = "audio/wav"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="audio"; filename=%q`, filename))
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create multipart part: %w", err)
	}
	if _, err := part.Write(audio.Data); err != nil {
		return nil, "", fmt.Errorf("failed to write audio: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}

	return &buf, w.FormDataContentType(), nil
}
