package speech

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Rrens/codemuse/internal/config"
	"github.com/Rrens/codemuse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)

		file, header, err := r.FormFile("audio")
		require.NoError(t, err)
		defer file.Close()

		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, []byte("RIFF...."), data)
		assert.Equal(t, "clip.webm", header.Filename)
		assert.Equal(t, "audio/webm", header.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"write a bubble sort"}`))
	}))
	defer srv.Close()

	c := NewClient(config.SpeechConfig{URL: srv.URL, Timeout: time.Second})

	text, err := c.Transcribe(context.Background(), Audio{
		Data:        []byte("RIFF...."),
		Filename:    "clip.webm",
		ContentType: "audio/webm",
	})
	require.NoError(t, err)
	assert.Equal(t, "write a bubble sort", text)
}

func TestClient_DefaultsFilename(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, header, err := r.FormFile("audio")
		require.NoError(t, err)
		assert.Equal(t, "audio.wav", header.Filename)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(config.SpeechConfig{URL: srv.URL})

	text, err := c.Transcribe(context.Background(), Audio{Data: []byte{1}})
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestClient_Errors(t *testing.T) {
	t.Run("non 2xx", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := NewClient(config.SpeechConfig{URL: srv.URL}).Transcribe(context.Background(), Audio{Data: []byte{1}})
		assert.ErrorIs(t, err, domain.ErrSpeechStatus)
		assert.ErrorIs(t, err, domain.ErrExternalService)
	})

	t.Run("bad body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("not json"))
		}))
		defer srv.Close()

		_, err := NewClient(config.SpeechConfig{URL: srv.URL}).Transcribe(context.Background(), Audio{Data: []byte{1}})
		assert.ErrorIs(t, err, domain.ErrSpeechStatus)
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		_, err := NewClient(config.SpeechConfig{URL: url}).Transcribe(context.Background(), Audio{Data: []byte{1}})
		assert.ErrorIs(t, err, domain.ErrSpeechTransport)
		assert.Equal(t, "speech_transport", domain.Code(err))
	})
}
