package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultChatName is used when a chat is created without a name
	DefaultChatName = "New Chat"

	// DefaultLanguage is used when a snippet is saved without a language
	DefaultLanguage = "javascript"
)

// Chat is a named conversation owned by one user. Transcripts and CodeSnippets
// are append-only logs ordered by Seq.
type Chat struct {
	ID           uuid.UUID     `json:"id"`
	OwnerID      uuid.UUID     `json:"ownerId"`
	Name         string        `json:"name"`
	Transcripts  []Transcript  `json:"transcripts"`
	CodeSnippets []CodeSnippet `json:"codeSnippets"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// Transcript is a piece of transcribed or typed text within a chat
type Transcript struct {
	ID        uuid.UUID `json:"id"`
	ChatID    uuid.UUID `json:"chatId"`
	AuthorID  uuid.UUID `json:"authorId"`
	Seq       int64     `json:"seq"`
	Text      string    `json:"text"`
	AudioKey  string    `json:"audioKey,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CodeSnippet is a piece of generated or user-saved code within a chat
type CodeSnippet struct {
	ID        uuid.UUID `json:"id"`
	ChatID    uuid.UUID `json:"chatId"`
	Seq       int64     `json:"seq"`
	Language  string    `json:"language"`
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatCreate represents chat creation data
type ChatCreate struct {
	Name string `json:"name" validate:"max=255"`
}

// ChatRename represents chat rename data
type ChatRename struct {
	Name string `json:"name" validate:"max=255"`
}

// SnippetCreate represents a code snippet save request
type SnippetCreate struct {
	Code     string `json:"code"`
	Language string `json:"language" validate:"max=64"`
}

// TranscriptInput is the payload of ChatService.SaveTranscript. A non-nil ID
// edits that transcript in place; uuid.Nil appends a new one.
type TranscriptInput struct {
	ID       uuid.UUID
	AuthorID uuid.UUID
	Text     string
	AudioKey string
}

// ChatRepository defines the interface for chat storage. Owner-scoped
// methods report a chat owned by someone else exactly like a missing one.
type ChatRepository interface {
	Create(ctx context.Context, chat *Chat) error
	Get(ctx context.Context, id uuid.UUID) (*Chat, error)
	GetOwned(ctx context.Context, ownerID, id uuid.UUID) (*Chat, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]Chat, error)
	Rename(ctx context.Context, ownerID, id uuid.UUID, name string, at time.Time) (*Chat, error)
	Delete(ctx context.Context, ownerID, id uuid.UUID) (bool, error)
	Touch(ctx context.Context, id uuid.UUID, at time.Time) error
}

// TranscriptRepository stores the per-chat transcript log. Append assigns Seq.
type TranscriptRepository interface {
	Append(ctx context.Context, t *Transcript) error
	UpdateText(ctx context.Context, chatID, id uuid.UUID, text string, at time.Time) (*Transcript, error)
	ListByChat(ctx context.Context, chatID uuid.UUID) ([]Transcript, error)
	Latest(ctx context.Context, chatID uuid.UUID) (*Transcript, error)
}

// SnippetRepository stores the per-chat code snippet log. Append assigns Seq.
type SnippetRepository interface {
	Append(ctx context.Context, s *CodeSnippet) error
	ListByChat(ctx context.Context, chatID uuid.UUID) ([]CodeSnippet, error)
	Latest(ctx context.Context, chatID uuid.UUID) (*CodeSnippet, error)
}

// Store bundles the repositories of one storage backend
type Store struct {
	Users       UserRepository
	Chats       ChatRepository
	Transcripts TranscriptRepository
	Snippets    SnippetRepository

	// Ping reports storage readiness
	Ping func(ctx context.Context) error

	// Close releases the backend's connections
	Close func() error
}
