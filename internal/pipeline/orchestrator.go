// Package pipeline drives the per-chat record, transcribe, generate cycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Rrens/codemuse/internal/domain"
	"github.com/Rrens/codemuse/internal/llm"
	"github.com/Rrens/codemuse/internal/lock"
	"github.com/Rrens/codemuse/internal/speech"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DefaultRecordingTTL    = 5 * time.Minute
	DefaultExternalTimeout = 90 * time.Second

	// lockGrace covers persistence after an external call returns
	lockGrace = 10 * time.Second

	settleTimeout = 5 * time.Second
)

// State is the pipeline state of one chat
type State string

const (
	Idle         State = "idle"
	Recording    State = "recording"
	Transcribing State = "transcribing"
	Ready        State = "ready"
	Generating   State = "generating"
)

// Busy reports whether a cycle is in flight
func (s State) Busy() bool {
	return s == Recording || s == Transcribing || s == Generating
}

// ChatStore is the slice of service.ChatService the pipeline needs
type ChatStore interface {
	Owned(ctx context.Context, ownerID, chatID uuid.UUID) (*domain.Chat, error)
	Create(ctx context.Context, ownerID uuid.UUID, name string) (*domain.Chat, error)
	SaveTranscript(ctx context.Context, ownerID, chatID uuid.UUID, in domain.TranscriptInput) (*domain.Transcript, error)
	AppendSnippet(ctx context.Context, ownerID, chatID uuid.UUID, code, language string) (*domain.CodeSnippet, error)
	LatestTranscript(ctx context.Context, chatID uuid.UUID) (*domain.Transcript, error)
}

// Transcriber converts audio to text
type Transcriber interface {
	Transcribe(ctx context.Context, audio speech.Audio) (string, error)
}

// Generator converts a prompt to code
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Archiver keeps the raw audio of persisted transcripts
type Archiver interface {
	Store(ctx context.Context, chatID uuid.UUID, audio speech.Audio) (string, error)
}

// Observer is told about every state change
type Observer interface {
	StateChanged(chatID uuid.UUID, state State)
}

// Ack acknowledges the start of a recording
type Ack struct {
	ChatID    uuid.UUID `json:"chatId"`
	State     State     `json:"state"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Outcome is the result of ending a recording. NoSpeech is set when the
// speech service heard nothing; Transcript is nil then.
type Outcome struct {
	Transcript *domain.Transcript `json:"transcript,omitempty"`
	NoSpeech   bool               `json:"noSpeech"`
	State      State              `json:"state"`
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithArchiver stores the audio of every persisted transcript
func WithArchiver(a Archiver) Option {
	return func(o *Orchestrator) { o.archiver = a }
}

// WithObserver publishes state changes
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithRecordingTTL bounds how long an abandoned recording blocks a chat
func WithRecordingTTL(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.recordingTTL = d
		}
	}
}

// WithExternalTimeout bounds each speech or code generation call
func WithExternalTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.externalTimeout = d
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

type entry struct {
	state State
	lease lock.Lease
	// deadline ends an abandoned recording
	deadline time.Time
}

func (e *entry) abandoned(now time.Time) bool {
	return e.state == Recording && !now.Before(e.deadline)
}

// Orchestrator serializes pipeline cycles per chat. Busy states hold the
// chat lock; different chats never contend. External calls are detached from
// the caller's context and bounded by the external timeout.
type Orchestrator struct {
	chats       ChatStore
	transcriber Transcriber
	generator   Generator
	locker      lock.Locker
	archiver    Archiver
	observer    Observer

	recordingTTL    time.Duration
	externalTimeout time.Duration
	now             func() time.Time

	mu      sync.Mutex
	entries map[uuid.UUID]*entry
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(chats ChatStore, transcriber Transcriber, generator Generator, locker lock.Locker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		chats:           chats,
		transcriber:     transcriber,
		generator:       generator,
		locker:          locker,
		recordingTTL:    DefaultRecordingTTL,
		externalTimeout: DefaultExternalTimeout,
		now:             time.Now,
		entries:         make(map[uuid.UUID]*entry),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func lockKey(chatID uuid.UUID) string {
	return "pipeline:" + chatID.String()
}

// State returns the chat's current state. Chats the orchestrator has not
// seen resolve to ready when they have transcripts and idle otherwise.
func (o *Orchestrator) State(ctx context.Context, ownerID, chatID uuid.UUID) (State, error) {
	if _, err := o.chats.Owned(ctx, ownerID, chatID); err != nil {
		return "", err
	}
	return o.current(ctx, chatID)
}

// BeginRecording starts a recording from a rest state
func (o *Orchestrator) BeginRecording(ctx context.Context, ownerID, chatID uuid.UUID) (*Ack, error) {
	if _, err := o.chats.Owned(ctx, ownerID, chatID); err != nil {
		return nil, err
	}

	deadline := o.now().Add(o.recordingTTL)
	// The lease outlives the recording window so a late EndRecording can
	// still finish its transcription under the lock.
	if _, err := o.enter(ctx, chatID, Recording, o.recordingTTL+o.externalTimeout+lockGrace, deadline); err != nil {
		return nil, err
	}

	log.Info().
		Str("chat_id", chatID.String()).
		Str("user_id", ownerID.String()).
		Msg("Recording started")

	return &Ack{ChatID: chatID, State: Recording, ExpiresAt: deadline}, nil
}

// StartNewRecording creates a chat and starts recording on it
func (o *Orchestrator) StartNewRecording(ctx context.Context, ownerID uuid.UUID, name string) (*domain.Chat, *Ack, error) {
	chat, err := o.chats.Create(ctx, ownerID, name)
	if err != nil {
		return nil, nil, err
	}

	ack, err := o.BeginRecording(ctx, ownerID, chat.ID)
	if err != nil {
		return nil, nil, err
	}
	return chat, ack, nil
}

// EndRecording transcribes the audio of the current recording. Non-empty
// text is persisted and the chat becomes ready; empty text becomes ready
// with Outcome.NoSpeech. A speech failure returns the chat to rest.
func (o *Orchestrator) EndRecording(ctx context.Context, ownerID, chatID uuid.UUID, audio speech.Audio) (*Outcome, error) {
	if _, err := o.chats.Owned(ctx, ownerID, chatID); err != nil {
		return nil, err
	}
	return o.finish(ctx, ownerID, chatID, audio)
}

// finish moves a recording chat to transcribing and runs the transcription
func (o *Orchestrator) finish(ctx context.Context, ownerID, chatID uuid.UUID, audio speech.Audio) (*Outcome, error) {
	e, err := o.advance(chatID, Recording, Transcribing)
	if err != nil {
		return nil, err
	}

	ctx, cancel := o.detach(ctx)
	defer cancel()

	logger := log.With().
		Str("chat_id", chatID.String()).
		Str("user_id", ownerID.String()).
		Str("op", "transcribe").
		Logger()

	text, err := o.transcriber.Transcribe(ctx, audio)
	if err != nil {
		var de *domain.Error
		if !errors.As(err, &de) {
			err = fmt.Errorf("%w: %v", domain.ErrSpeechTransport, err)
		}
		logger.Error().Err(err).Msg("Transcription failed")
		o.leave(ctx, chatID, e, o.rest(ctx, chatID))
		return nil, err
	}

	if strings.TrimSpace(text) == "" {
		logger.Info().Msg("No speech detected")
		o.leave(ctx, chatID, e, Ready)
		return &Outcome{NoSpeech: true, State: Ready}, nil
	}

	in := domain.TranscriptInput{AuthorID: ownerID, Text: text}
	if o.archiver != nil {
		key, err := o.archiver.Store(ctx, chatID, audio)
		if err != nil {
			logger.Warn().Err(err).Msg("Audio archive failed, keeping transcript only")
		} else {
			in.AudioKey = key
		}
	}

	transcript, err := o.chats.SaveTranscript(ctx, ownerID, chatID, in)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to persist transcript")
		o.leave(ctx, chatID, e, o.rest(ctx, chatID))
		return nil, err
	}

	logger.Info().Int64("seq", transcript.Seq).Msg("Transcript saved")
	o.leave(ctx, chatID, e, Ready)
	return &Outcome{Transcript: transcript, State: Ready}, nil
}

// Transcribe runs BeginRecording and EndRecording as one call
func (o *Orchestrator) Transcribe(ctx context.Context, ownerID, chatID uuid.UUID, audio speech.Audio) (*Outcome, error) {
	if _, err := o.BeginRecording(ctx, ownerID, chatID); err != nil {
		return nil, err
	}
	return o.finish(ctx, ownerID, chatID, audio)
}

// GenerateCode sends the latest transcript to the code generator and
// appends the answer as a snippet. It is only allowed from ready with at
// least one transcript; a failed call persists nothing.
func (o *Orchestrator) GenerateCode(ctx context.Context, ownerID, chatID uuid.UUID) (*domain.CodeSnippet, error) {
	if _, err := o.chats.Owned(ctx, ownerID, chatID); err != nil {
		return nil, err
	}

	state, err := o.current(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if state.Busy() {
		return nil, domain.ErrPipelineBusy
	}
	if state != Ready {
		return nil, domain.ErrPipelineNotReady
	}

	e, err := o.enter(ctx, chatID, Generating, o.externalTimeout+lockGrace, time.Time{})
	if err != nil {
		return nil, err
	}

	ctx, cancel := o.detach(ctx)
	defer cancel()

	logger := log.With().
		Str("chat_id", chatID.String()).
		Str("user_id", ownerID.String()).
		Str("op", "generate").
		Logger()

	latest, err := o.chats.LatestTranscript(ctx, chatID)
	if err != nil {
		o.leave(ctx, chatID, e, Ready)
		return nil, err
	}
	if latest == nil {
		o.leave(ctx, chatID, e, Idle)
		return nil, domain.ErrPipelineNotReady
	}

	result := llm.Envelope(o.generator.Generate(ctx, llm.BuildRequest(latest.Text)))
	if result.Status == llm.StatusError {
		logger.Error().Err(result.Err).Msg("Code generation failed")
		o.leave(ctx, chatID, e, Ready)
		return nil, result.Err
	}
	if result.Status == llm.StatusEmpty {
		logger.Warn().Msg("Code generator returned no code")
	}

	snippet, err := o.chats.AppendSnippet(ctx, ownerID, chatID, result.Code, result.Language)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to persist snippet")
		o.leave(ctx, chatID, e, Ready)
		return nil, err
	}

	logger.Info().Int64("seq", snippet.Seq).Str("language", snippet.Language).Msg("Code generated")
	o.leave(ctx, chatID, e, Ready)
	return snippet, nil
}

// EditTranscript rewrites a transcript's text in any state
func (o *Orchestrator) EditTranscript(ctx context.Context, ownerID, chatID, transcriptID uuid.UUID, text string) (*domain.Transcript, error) {
	if transcriptID == uuid.Nil {
		return nil, domain.ErrTranscriptNotFound
	}
	return o.chats.SaveTranscript(ctx, ownerID, chatID, domain.TranscriptInput{ID: transcriptID, Text: text})
}

// Forget drops the chat's tracked state, e.g. after the chat was deleted
func (o *Orchestrator) Forget(chatID uuid.UUID) {
	o.mu.Lock()
	e := o.entries[chatID]
	delete(o.entries, chatID)
	o.mu.Unlock()

	if e != nil && e.lease != nil {
		if err := e.lease.Release(context.Background()); err != nil {
			log.Warn().Err(err).Str("chat_id", chatID.String()).Msg("Failed to release chat lock")
		}
	}
}

func (o *Orchestrator) current(ctx context.Context, chatID uuid.UUID) (State, error) {
	o.mu.Lock()
	e := o.entries[chatID]
	if e != nil && !e.abandoned(o.now()) {
		state := e.state
		o.mu.Unlock()
		return state, nil
	}
	o.mu.Unlock()

	latest, err := o.chats.LatestTranscript(ctx, chatID)
	if err != nil {
		return "", err
	}
	if latest != nil {
		return Ready, nil
	}
	return Idle, nil
}

// rest resolves the rest state from storage, falling back to idle
func (o *Orchestrator) rest(ctx context.Context, chatID uuid.UUID) State {
	ctx, cancel := settle(ctx)
	defer cancel()

	latest, err := o.chats.LatestTranscript(ctx, chatID)
	if err != nil || latest == nil {
		return Idle
	}
	return Ready
}

// enter moves a chat at rest into a busy state and takes the chat lock
func (o *Orchestrator) enter(ctx context.Context, chatID uuid.UUID, to State, ttl time.Duration, deadline time.Time) (*entry, error) {
	now := o.now()

	o.mu.Lock()
	prev := o.entries[chatID]
	var stale lock.Lease
	if prev != nil && prev.state.Busy() {
		if !prev.abandoned(now) {
			o.mu.Unlock()
			return nil, domain.ErrPipelineBusy
		}
		stale = prev.lease
	}
	reserved := &entry{state: to, deadline: deadline}
	o.entries[chatID] = reserved
	o.mu.Unlock()

	if stale != nil {
		log.Warn().Str("chat_id", chatID.String()).Msg("Abandoned recording expired")
		if err := stale.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Str("chat_id", chatID.String()).Msg("Failed to release stale chat lock")
		}
	}

	lease, err := o.locker.Acquire(ctx, lockKey(chatID), ttl)
	if err != nil {
		o.mu.Lock()
		if o.entries[chatID] == reserved {
			if prev != nil && !prev.state.Busy() {
				o.entries[chatID] = prev
			} else {
				delete(o.entries, chatID)
			}
		}
		o.mu.Unlock()

		if errors.Is(err, lock.ErrHeld) {
			return nil, domain.ErrPipelineBusy
		}
		log.Error().Err(err).Str("chat_id", chatID.String()).Msg("Failed to acquire chat lock")
		return nil, domain.ErrStorageUnavailable
	}

	o.mu.Lock()
	reserved.lease = lease
	o.mu.Unlock()

	o.publish(chatID, to)
	return reserved, nil
}

// advance moves a busy chat from one busy state to the next
func (o *Orchestrator) advance(chatID uuid.UUID, from, to State) (*entry, error) {
	now := o.now()

	o.mu.Lock()
	e := o.entries[chatID]
	if e == nil || e.state != from || e.abandoned(now) {
		busy := e != nil && e.state.Busy() && !e.abandoned(now)
		o.mu.Unlock()
		if busy {
			return nil, domain.ErrPipelineBusy
		}
		return nil, domain.ErrNotRecording
	}
	e.state = to
	o.mu.Unlock()

	o.publish(chatID, to)
	return e, nil
}

// leave returns a chat to rest and releases its lock. An entry that was
// overtaken after expiring is left to its new holder.
func (o *Orchestrator) leave(ctx context.Context, chatID uuid.UUID, e *entry, to State) {
	o.mu.Lock()
	if o.entries[chatID] == e {
		o.entries[chatID] = &entry{state: to}
	}
	lease := e.lease
	o.mu.Unlock()

	if lease != nil {
		ctx, cancel := settle(ctx)
		defer cancel()
		if err := lease.Release(ctx); err != nil {
			log.Warn().Err(err).Str("chat_id", chatID.String()).Msg("Failed to release chat lock")
		}
	}
	o.publish(chatID, to)
}

func (o *Orchestrator) publish(chatID uuid.UUID, state State) {
	if o.observer != nil {
		o.observer.StateChanged(chatID, state)
	}
}

// settle gives cleanup its own deadline after an external call used up the
// detached one
func settle(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

// detach keeps outbound calls alive when the client goes away
func (o *Orchestrator) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.externalTimeout)
}
