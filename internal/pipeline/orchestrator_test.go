package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Rrens/codemuse/internal/domain"
	"github.com/Rrens/codemuse/internal/llm"
	"github.com/Rrens/codemuse/internal/lock"
	"github.com/Rrens/codemuse/internal/repository/memory"
	"github.com/Rrens/codemuse/internal/service"
	"github.com/Rrens/codemuse/internal/speech"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockTranscriber struct {
	mock.Mock
}

func (m *MockTranscriber) Transcribe(ctx context.Context, audio speech.Audio) (string, error) {
	args := m.Called(ctx, audio)
	return args.String(0), args.Error(1)
}

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*llm.Response), args.Error(1)
}

type MockArchiver struct {
	mock.Mock
}

func (m *MockArchiver) Store(ctx context.Context, chatID uuid.UUID, audio speech.Audio) (string, error) {
	args := m.Called(ctx, chatID, audio)
	return args.String(0), args.Error(1)
}

type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) StateChanged(chatID uuid.UUID, state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recorder) seen() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

type fixture struct {
	chats       *service.ChatService
	transcriber *MockTranscriber
	generator   *MockGenerator
	observer    *recorder
	orch        *Orchestrator
	owner       uuid.UUID
	chat        *domain.Chat
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		chats:       service.NewChatService(memory.NewStore()),
		transcriber: new(MockTranscriber),
		generator:   new(MockGenerator),
		observer:    &recorder{},
		owner:       uuid.New(),
	}
	opts = append([]Option{WithObserver(f.observer)}, opts...)
	f.orch = NewOrchestrator(f.chats, f.transcriber, f.generator, lock.NewMemory(), opts...)

	chat, err := f.chats.Create(context.Background(), f.owner, "Pipeline")
	require.NoError(t, err)
	f.chat = chat
	return f
}

// flakyChats fails GetOwned on the given call number
type flakyChats struct {
	domain.ChatRepository
	calls  atomic.Int32
	failAt atomic.Int32
}

func (c *flakyChats) GetOwned(ctx context.Context, ownerID, id uuid.UUID) (*domain.Chat, error) {
	if c.calls.Add(1) == c.failAt.Load() {
		return nil, errors.New("connection reset by peer")
	}
	return c.ChatRepository.GetOwned(ctx, ownerID, id)
}

var clip = speech.Audio{Data: []byte("RIFF"), Filename: "clip.wav", ContentType: "audio/wav"}

func TestOrchestrator_FullCycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	state, err := f.orch.State(ctx, f.owner, f.chat.ID)
	require.NoError(t, err)
	assert.Equal(t, Idle, state)

	ack, err := f.orch.BeginRecording(ctx, f.owner, f.chat.ID)
	require.NoError(t, err)
	assert.Equal(t, Recording, ack.State)
	assert.Equal(t, f.chat.ID, ack.ChatID)

	f.transcriber.On("Transcribe", mock.Anything, clip).Return("reverse a string", nil).Once()

	outcome, err := f.orch.EndRecording(ctx, f.owner, f.chat.ID, clip)
	require.NoError(t, err)
	assert.False(t, outcome.NoSpeech)
	assert.Equal(t, Ready, outcome.State)
	require.NotNil(t, outcome.Transcript)
	assert.Equal(t, "reverse a string", outcome.Transcript.Text)
	assert.Equal(t, f.owner, outcome.Transcript.AuthorID)

	f.generator.On("Generate", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.Prompt == "reverse a string" && req.System == llm.CodegenInstruction
	})).Return(&llm.Response{Text: "```python\ns[::-1]\n```"}, nil).Once()

	snippet, err := f.orch.GenerateCode(ctx, f.owner, f.chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "s[::-1]", snippet.Code)
	assert.Equal(t, "python", snippet.Language)

	state, err = f.orch.State(ctx, f.owner, f.chat.ID)
	require.NoError(t, err)
	assert.Equal(t, Ready, state)

	assert.Equal(t, []State{Recording, Transcribing, Ready, Generating, Ready}, f.observer.seen())

	f.transcriber.AssertExpectations(t)
	f.generator.AssertExpectations(t)
}

func TestOrchestrator_BeginWhileBusy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.orch.BeginRecording(ctx, f.owner, f.chat.ID)
	require.NoError(t, err)

	_, err = f.orch.BeginRecording(ctx, f.owner, f.chat.ID)
	assert.ErrorIs(t, err, domain.ErrPipelineBusy)
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.orch.GenerateCode(ctx, f.owner, f.chat.ID)
	assert.ErrorIs(t, err, domain.ErrPipelineBusy)

	// Another chat is unaffected
	other, err := f.chats.Create(ctx, f.owner, "Other")
	require.NoError(t, err)
	_, err = f.orch.BeginRecording(ctx, f.owner, other.ID)
	assert.NoError(t, err)
}

func TestOrchestrator_ConcurrentBegin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
		busy    int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orch.BeginRecording(ctx, f.owner, f.chat.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, domain.ErrPipelineBusy):
				busy++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.Equal(t, n-1, busy)
}

func TestOrchestrator_HeldByAnotherInstance(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	chats := service.NewChatService(store)
	locker := lock.NewMemory()
	owner := uuid.New()

	chat, err := chats.Create(ctx, owner, "Shared")
	require.NoError(t, err)

	first := NewOrchestrator(chats, new(MockTranscriber), new(MockGenerator), locker)
	second := NewOrchestrator(chats, new(MockTranscriber), new(MockGenerator), locker)

	_, err = first.BeginRecording(ctx, owner, chat.ID)
	require.NoError(t, err)

	_, err = second.BeginRecording(ctx, owner, chat.ID)
	assert.ErrorIs(t, err, domain.ErrPipelineBusy)

	// The failed attempt leaves no trace in the second instance
	state, err := second.State(ctx, owner, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, Idle, state)
}

func TestOrchestrator_NoSpeech(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.transcriber.On("Transcribe", mock.Anything, clip).Return("   ", nil).Once()

	outcome, err := f.orch.Transcribe(ctx, f.owner, f.chat.ID, clip)
	require.NoError(t, err)
	assert.True(t, outcome.NoSpeech)
	assert.Nil(t, outcome.Transcript)
	assert.Equal(t, Ready, outcome.State)

	transcripts, err := f.chats.ListTranscripts(ctx, f.owner, f.chat.ID)
	require.NoError(t, err)
	assert.Empty(t, transcripts)

	// Ready without a transcript still cannot generate
	_, err = f.orch.GenerateCode(ctx, f.owner, f.chat.ID)
	assert.ErrorIs(t, err, domain.ErrPipelineNotReady)
	f.generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestOrchestrator_SpeechFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("without transcripts returns to idle", func(t *testing.T) {
		f := newFixture(t)
		f.transcriber.On("Transcribe", mock.Anything, clip).Return("", fmt.Errorf("%w: dial tcp", domain.ErrSpeechTransport)).Once()

		_, err := f.orch.Transcribe(ctx, f.owner, f.chat.ID, clip)
		assert.ErrorIs(t, err, domain.ErrSpeechTransport)
		assert.ErrorIs(t, err, domain.ErrExternalService)

		state, err := f.orch.State(ctx, f.owner, f.chat.ID)
		require.NoError(t, err)
		assert.Equal(t, Idle, state)

		// A new attempt is possible right away
		_, err = f.orch.BeginRecording(ctx, f.owner, f.chat.ID)
		assert.NoError(t, err)
	})

	t.Run("with transcripts returns to ready", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.chats.SaveTranscript(ctx, f.owner, f.chat.ID, domain.TranscriptInput{Text: "earlier"})
		require.NoError(t, err)

		f.transcriber.On("Transcribe", mock.Anything, clip).Return("", errors.New("connection reset")).Once()

		_, err = f.orch.Transcribe(ctx, f.owner, f.chat.ID, clip)
		assert.ErrorIs(t, err, domain.ErrSpeechTransport)

		state, err := f.orch.State(ctx, f.owner, f.chat.ID)
		require.NoError(t, err)
		assert.Equal(t, Ready, state)
	})
}

func TestOrchestrator_GenerateFromIdle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.orch.GenerateCode(ctx, f.owner, f.chat.ID)
	assert.ErrorIs(t, err, domain.ErrPipelineNotReady)
	assert.ErrorIs(t, err, domain.ErrConflict)

	f.generator.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
	assert.Empty(t, f.observer.seen())
}

func TestOrchestrator_GenerateFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.chats.SaveTranscript(ctx, f.owner, f.chat.ID, domain.TranscriptInput{Text: "sort numbers"})
	require.NoError(t, err)

	f.generator.On("Generate", mock.Anything, mock.Anything).Return(nil, errors.New("gemini returned status 503")).Once()

	_, err = f.orch.GenerateCode(ctx, f.owner, f.chat.ID)
	assert.ErrorIs(t, err, domain.ErrCodegenFailed)
	assert.ErrorIs(t, err, domain.ErrExternalService)

	snippets, err := f.chats.ListSnippets(ctx, f.owner, f.chat.ID)
	require.NoError(t, err)
	assert.Empty(t, snippets)

	state, err := f.orch.State(ctx, f.owner, f.chat.ID)
	require.NoError(t, err)
	assert.Equal(t, Ready, state)
}

func TestOrchestrator_GenerateEmptyAnswer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.chats.SaveTranscript(ctx, f.owner, f.chat.ID, domain.TranscriptInput{Text: "sort numbers"})
	require.NoError(t, err)

	f.generator.On("Generate", mock.Anything, mock.Anything).Return(&llm.Response{}, nil).Once()

	snippet, err := f.orch.GenerateCode(ctx, f.owner, f.chat.ID)
	require.NoError(t, err)
	assert.Equal(t, llm.NoCodePlaceholder, snippet.Code)
	assert.Equal(t, domain.DefaultLanguage, snippet.Language)
}

func TestOrchestrator_GenerateUsesLatestTranscript(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, text := range []string{"first", "second", "third"} {
		_, err := f.chats.SaveTranscript(ctx, f.owner, f.chat.ID, domain.TranscriptInput{Text: text})
		require.NoError(t, err)
	}

	f.generator.On("Generate", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.Prompt == "third"
	})).Return(&llm.Response{Text: "third()"}, nil).Once()

	_, err := f.orch.GenerateCode(ctx, f.owner, f.chat.ID)
	require.NoError(t, err)
	f.generator.AssertExpectations(t)
}

func TestOrchestrator_DetachedFromCaller(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := f.orch.BeginRecording(ctx, f.owner, f.chat.ID)
	require.NoError(t, err)

	f.transcriber.On("Transcribe", mock.Anything, clip).Run(func(args mock.Arguments) {
		cancel()
		callCtx := args.Get(0).(context.Context)
		assert.NoError(t, callCtx.Err())
		_, hasDeadline := callCtx.Deadline()
		assert.True(t, hasDeadline)
	}).Return("hello", nil).Once()

	outcome, err := f.orch.EndRecording(ctx, f.owner, f.chat.ID, clip)
	require.NoError(t, err)
	assert.Equal(t, "hello", outcome.Transcript.Text)
}

func TestOrchestrator_EndWithoutRecording(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.orch.EndRecording(ctx, f.owner, f.chat.ID, clip)
	assert.ErrorIs(t, err, domain.ErrNotRecording)
	f.transcriber.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything)
}

func TestOrchestrator_Ownership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	stranger := uuid.New()

	_, err := f.orch.BeginRecording(ctx, stranger, f.chat.ID)
	assert.ErrorIs(t, err, domain.ErrChatNotFound)

	_, err = f.orch.GenerateCode(ctx, stranger, f.chat.ID)
	assert.ErrorIs(t, err, domain.ErrChatNotFound)

	_, err = f.orch.State(ctx, stranger, f.chat.ID)
	assert.ErrorIs(t, err, domain.ErrChatNotFound)
}

func TestOrchestrator_StartNewRecording(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	chat, ack, err := f.orch.StartNewRecording(ctx, f.owner, "")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultChatName, chat.Name)
	assert.Equal(t, chat.ID, ack.ChatID)
	assert.Equal(t, Recording, ack.State)

	state, err := f.orch.State(ctx, f.owner, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, Recording, state)

	_, err = f.chats.Get(ctx, f.owner, chat.ID)
	assert.NoError(t, err)
}

func TestOrchestrator_AbandonedRecordingExpires(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithRecordingTTL(30*time.Millisecond), WithExternalTimeout(10*time.Millisecond))

	_, err := f.orch.BeginRecording(ctx, f.owner, f.chat.ID)
	require.NoError(t, err)

	_, err = f.orch.BeginRecording(ctx, f.owner, f.chat.ID)
	require.ErrorIs(t, err, domain.ErrPipelineBusy)

	time.Sleep(50 * time.Millisecond)

	state, err := f.orch.State(ctx, f.owner, f.chat.ID)
	require.NoError(t, err)
	assert.Equal(t, Idle, state)

	// The lease (recording ttl plus grace) may still be held in the locker,
	// so take over through the orchestrator which releases its own stale lease.
	_, err = f.orch.BeginRecording(ctx, f.owner, f.chat.ID)
	assert.NoError(t, err)
}

func TestOrchestrator_EndAfterExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, WithRecordingTTL(20*time.Millisecond), WithExternalTimeout(10*time.Millisecond))

	_, err := f.orch.BeginRecording(ctx, f.owner, f.chat.ID)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	_, err = f.orch.EndRecording(ctx, f.owner, f.chat.ID, clip)
	assert.ErrorIs(t, err, domain.ErrNotRecording)
	f.transcriber.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything)
}

func TestOrchestrator_ArchivesAudio(t *testing.T) {
	ctx := context.Background()
	archiver := new(MockArchiver)
	f := newFixture(t, WithArchiver(archiver))

	f.transcriber.On("Transcribe", mock.Anything, clip).Return("hello", nil).Twice()
	archiver.On("Store", mock.Anything, f.chat.ID, clip).Return("audio/x/1.wav", nil).Once()

	outcome, err := f.orch.Transcribe(ctx, f.owner, f.chat.ID, clip)
	require.NoError(t, err)
	assert.Equal(t, "audio/x/1.wav", outcome.Transcript.AudioKey)

	// Archive failures keep the transcript
	archiver.On("Store", mock.Anything, f.chat.ID, clip).Return("", errors.New("bucket missing")).Once()

	outcome, err = f.orch.Transcribe(ctx, f.owner, f.chat.ID, clip)
	require.NoError(t, err)
	assert.Empty(t, outcome.Transcript.AudioKey)
	assert.Equal(t, int64(2), outcome.Transcript.Seq)

	archiver.AssertExpectations(t)
}

func TestOrchestrator_EditTranscript(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	saved, err := f.chats.SaveTranscript(ctx, f.owner, f.chat.ID, domain.TranscriptInput{Text: "sort"})
	require.NoError(t, err)

	_, err = f.orch.BeginRecording(ctx, f.owner, f.chat.ID)
	require.NoError(t, err)

	edited, err := f.orch.EditTranscript(ctx, f.owner, f.chat.ID, saved.ID, "sort descending")
	require.NoError(t, err)
	assert.Equal(t, saved.Seq, edited.Seq)

	state, err := f.orch.State(ctx, f.owner, f.chat.ID)
	require.NoError(t, err)
	assert.Equal(t, Recording, state)

	_, err = f.orch.EditTranscript(ctx, f.owner, f.chat.ID, uuid.Nil, "x")
	assert.ErrorIs(t, err, domain.ErrTranscriptNotFound)
}

func TestOrchestrator_TranscribeStorageFailureReleasesChat(t *testing.T) {
	ctx := context.Background()

	store := memory.NewStore()
	chats := &flakyChats{ChatRepository: store.Chats}
	store.Chats = chats
	svc := service.NewChatService(store)

	transcriber := new(MockTranscriber)
	orch := NewOrchestrator(svc, transcriber, new(MockGenerator), lock.NewMemory())

	owner := uuid.New()
	chat, err := svc.Create(ctx, owner, "Flaky")
	require.NoError(t, err)

	// The ownership check after transcription hits a storage error
	chats.failAt.Store(chats.calls.Load() + 2)
	transcriber.On("Transcribe", mock.Anything, clip).Return("hello", nil).Once()

	_, err = orch.Transcribe(ctx, owner, chat.ID, clip)
	assert.ErrorIs(t, err, domain.ErrPersistence)

	state, err := orch.State(ctx, owner, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, Idle, state)

	_, err = orch.BeginRecording(ctx, owner, chat.ID)
	assert.NoError(t, err)
	transcriber.AssertExpectations(t)
}
