package service

import (
	"context"
	"strings"
	"time"

	"github.com/Rrens/codemuse/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// hydrateConcurrency bounds parallel log loads when listing chats
const hydrateConcurrency = 8

// ChatService handles chats and their transcript and snippet logs. Every
// chat-keyed operation is owner-scoped: a chat owned by someone else is
// reported as domain.ErrChatNotFound.
type ChatService struct {
	chats       domain.ChatRepository
	transcripts domain.TranscriptRepository
	snippets    domain.SnippetRepository
	now         func() time.Time
}

// NewChatService creates a new chat service
func NewChatService(store *domain.Store) *ChatService {
	return &ChatService{
		chats:       store.Chats,
		transcripts: store.Transcripts,
		snippets:    store.Snippets,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// List returns the owner's chats with their logs
func (s *ChatService) List(ctx context.Context, ownerID uuid.UUID) ([]domain.Chat, error) {
	chats, err := s.chats.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, storageErr("failed to list chats", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrateConcurrency)
	for i := range chats {
		chat := &chats[i]
		g.Go(func() error {
			return s.hydrate(gctx, chat)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return chats, nil
}

// Get returns one owned chat with its logs
func (s *ChatService) Get(ctx context.Context, ownerID, chatID uuid.UUID) (*domain.Chat, error) {
	chat, err := s.Owned(ctx, ownerID, chatID)
	if err != nil {
		return nil, err
	}
	if err := s.hydrate(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

// Owned returns the chat without its logs, or ErrChatNotFound
func (s *ChatService) Owned(ctx context.Context, ownerID, chatID uuid.UUID) (*domain.Chat, error) {
	chat, err := s.chats.GetOwned(ctx, ownerID, chatID)
	if err != nil {
		return nil, storageErr("failed to get chat", err)
	}
	if chat == nil {
		return nil, domain.ErrChatNotFound
	}
	return chat, nil
}

func (s *ChatService) hydrate(ctx context.Context, chat *domain.Chat) error {
	transcripts, err := s.transcripts.ListByChat(ctx, chat.ID)
	if err != nil {
		return storageErr("failed to list transcripts", err)
	}
	snippets, err := s.snippets.ListByChat(ctx, chat.ID)
	if err != nil {
		return storageErr("failed to list snippets", err)
	}
	chat.Transcripts = transcripts
	chat.CodeSnippets = snippets
	return nil
}

// Create creates a chat; a blank name becomes domain.DefaultChatName
func (s *ChatService) Create(ctx context.Context, ownerID uuid.UUID, name string) (*domain.Chat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = domain.DefaultChatName
	}

	chat := &domain.Chat{
		OwnerID: ownerID,
		Name:    name,
	}
	if err := s.chats.Create(ctx, chat); err != nil {
		return nil, storageErr("failed to create chat", err)
	}
	return chat, nil
}

// Rename stores the trimmed name; a blank name leaves the chat unchanged
func (s *ChatService) Rename(ctx context.Context, ownerID, chatID uuid.UUID, name string) (*domain.Chat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrEmptyName
	}

	chat, err := s.chats.Rename(ctx, ownerID, chatID, name, s.now())
	if err != nil {
		return nil, storageErr("failed to rename chat", err)
	}
	if chat == nil {
		return nil, domain.ErrChatNotFound
	}

	if err := s.hydrate(ctx, chat); err != nil {
		return nil, err
	}
	return chat, nil
}

// Delete removes the chat and its logs
func (s *ChatService) Delete(ctx context.Context, ownerID, chatID uuid.UUID) error {
	deleted, err := s.chats.Delete(ctx, ownerID, chatID)
	if err != nil {
		return storageErr("failed to delete chat", err)
	}
	if !deleted {
		return domain.ErrChatNotFound
	}
	return nil
}

// AppendSnippet appends code to the chat's snippet log
func (s *ChatService) AppendSnippet(ctx context.Context, ownerID, chatID uuid.UUID, code, language string) (*domain.CodeSnippet, error) {
	if strings.TrimSpace(code) == "" {
		return nil, domain.ErrEmptyCode
	}
	language = strings.TrimSpace(language)
	if language == "" {
		language = domain.DefaultLanguage
	}

	if _, err := s.Owned(ctx, ownerID, chatID); err != nil {
		return nil, err
	}

	snippet := &domain.CodeSnippet{
		ChatID:   chatID,
		Language: language,
		Code:     code,
	}
	if err := s.snippets.Append(ctx, snippet); err != nil {
		return nil, storageErr("failed to append snippet", err)
	}
	if err := s.chats.Touch(ctx, chatID, s.now()); err != nil {
		return nil, storageErr("failed to touch chat", err)
	}
	return snippet, nil
}

// ListSnippets returns the chat's snippets in seq order
func (s *ChatService) ListSnippets(ctx context.Context, ownerID, chatID uuid.UUID) ([]domain.CodeSnippet, error) {
	if _, err := s.Owned(ctx, ownerID, chatID); err != nil {
		return nil, err
	}
	snippets, err := s.snippets.ListByChat(ctx, chatID)
	if err != nil {
		return nil, storageErr("failed to list snippets", err)
	}
	return snippets, nil
}

// SaveTranscript edits the transcript named by in.ID in place, or appends
// a new one when in.ID is uuid.Nil.
func (s *ChatService) SaveTranscript(ctx context.Context, ownerID, chatID uuid.UUID, in domain.TranscriptInput) (*domain.Transcript, error) {
	if strings.TrimSpace(in.Text) == "" {
		return nil, domain.ErrEmptyText
	}
	if _, err := s.Owned(ctx, ownerID, chatID); err != nil {
		return nil, err
	}

	now := s.now()
	var transcript *domain.Transcript
	if in.ID != uuid.Nil {
		updated, err := s.transcripts.UpdateText(ctx, chatID, in.ID, in.Text, now)
		if err != nil {
			return nil, storageErr("failed to update transcript", err)
		}
		if updated == nil {
			return nil, domain.ErrTranscriptNotFound
		}
		transcript = updated
	} else {
		authorID := in.AuthorID
		if authorID == uuid.Nil {
			authorID = ownerID
		}
		transcript = &domain.Transcript{
			ChatID:   chatID,
			AuthorID: authorID,
			Text:     in.Text,
			AudioKey: in.AudioKey,
		}
		if err := s.transcripts.Append(ctx, transcript); err != nil {
			return nil, storageErr("failed to append transcript", err)
		}
	}

	if err := s.chats.Touch(ctx, chatID, now); err != nil {
		return nil, storageErr("failed to touch chat", err)
	}
	return transcript, nil
}

// ListTranscripts returns the chat's transcripts in seq order
func (s *ChatService) ListTranscripts(ctx context.Context, ownerID, chatID uuid.UUID) ([]domain.Transcript, error) {
	if _, err := s.Owned(ctx, ownerID, chatID); err != nil {
		return nil, err
	}
	transcripts, err := s.transcripts.ListByChat(ctx, chatID)
	if err != nil {
		return nil, storageErr("failed to list transcripts", err)
	}
	return transcripts, nil
}

// LatestTranscript returns the transcript with the highest seq, or nil
func (s *ChatService) LatestTranscript(ctx context.Context, chatID uuid.UUID) (*domain.Transcript, error) {
	t, err := s.transcripts.Latest(ctx, chatID)
	if err != nil {
		return nil, storageErr("failed to get latest transcript", err)
	}
	return t, nil
}
