package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/codemuse/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ChatRepository handles chat data access
type ChatRepository struct {
	db *DB
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// Create creates a new chat
func (r *ChatRepository) Create(ctx context.Context, chat *domain.Chat) error {
	if chat.ID == uuid.Nil {
		chat.ID = uuid.New()
	}
	now := time.Now().UTC()
	chat.CreatedAt = now
	chat.UpdatedAt = now
	chat.Transcripts = []domain.Transcript{}
	chat.CodeSnippets = []domain.CodeSnippet{}

	query := `
		INSERT INTO chats (id, owner_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		chat.ID,
		chat.OwnerID,
		chat.Name,
		chat.CreatedAt,
		chat.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create chat: %w", err)
	}

	return nil
}

// Get retrieves a chat by ID
func (r *ChatRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Chat, error) {
	query := `
		SELECT id, owner_id, name, created_at, updated_at
		FROM chats
		WHERE id = $1
	`
	return scanChat(r.db.Pool.QueryRow(ctx, query, id))
}

// GetOwned retrieves a chat by ID and owner
func (r *ChatRepository) GetOwned(ctx context.Context, ownerID, id uuid.UUID) (*domain.Chat, error) {
	query := `
		SELECT id, owner_id, name, created_at, updated_at
		FROM chats
		WHERE id = $1 AND owner_id = $2
	`
	return scanChat(r.db.Pool.QueryRow(ctx, query, id, ownerID))
}

// ListByOwner retrieves all chats of an owner
func (r *ChatRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Chat, error) {
	query := `
		SELECT id, owner_id, name, created_at, updated_at
		FROM chats
		WHERE owner_id = $1
		ORDER BY updated_at DESC, id
	`

	rows, err := r.db.Pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	chats := []domain.Chat{}
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *chat)
	}

	return chats, rows.Err()
}

// Rename renames an owned chat and returns it, or nil if not owned
func (r *ChatRepository) Rename(ctx context.Context, ownerID, id uuid.UUID, name string, at time.Time) (*domain.Chat, error) {
	query := `
		UPDATE chats
		SET name = $3, updated_at = $4
		WHERE id = $1 AND owner_id = $2
		RETURNING id, owner_id, name, created_at, updated_at
	`
	return scanChat(r.db.Pool.QueryRow(ctx, query, id, ownerID, name, at))
}

// Delete deletes an owned chat; transcripts and snippets cascade
func (r *ChatRepository) Delete(ctx context.Context, ownerID, id uuid.UUID) (bool, error) {
	query := `DELETE FROM chats WHERE id = $1 AND owner_id = $2`

	tag, err := r.db.Pool.Exec(ctx, query, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("failed to delete chat: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// Touch bumps the chat's updated_at
func (r *ChatRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE chats SET updated_at = $2 WHERE id = $1`

	if _, err := r.db.Pool.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to touch chat: %w", err)
	}

	return nil
}

func scanChat(row pgx.Row) (*domain.Chat, error) {
	var chat domain.Chat
	err := row.Scan(
		&chat.ID,
		&chat.OwnerID,
		&chat.Name,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan chat: %w", err)
	}

	chat.Transcripts = []domain.Transcript{}
	chat.CodeSnippets = []domain.CodeSnippet{}
	return &chat, nil
}
