package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/codemuse/internal/domain"
	"github.com/google/uuid"
)

const chatColumns = `id, owner_id, name, created_at, updated_at`

// ChatRepository implements domain.ChatRepository
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
	ts := now()
	chat.CreatedAt = ts
	chat.UpdatedAt = ts
	chat.Transcripts = []domain.Transcript{}
	chat.CodeSnippets = []domain.CodeSnippet{}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO chats (id, owner_id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		chat.ID.String(), chat.OwnerID.String(), chat.Name, millis(ts), millis(ts),
	)
	if err != nil {
		return fmt.Errorf("failed to create chat: %w", err)
	}
	return nil
}

// Get retrieves a chat by ID regardless of owner
func (r *ChatRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Chat, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = ?`, id.String())
	return scanChat(row)
}

// GetOwned retrieves a chat only if ownerID owns it
func (r *ChatRepository) GetOwned(ctx context.Context, ownerID, id uuid.UUID) (*domain.Chat, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+chatColumns+` FROM chats WHERE id = ? AND owner_id = ?`,
		id.String(), ownerID.String(),
	)
	return scanChat(row)
}

// ListByOwner lists an owner's chats, most recently updated first
func (r *ChatRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Chat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+chatColumns+` FROM chats
		WHERE owner_id = ?
		ORDER BY updated_at DESC, id`,
		ownerID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	chats := []domain.Chat{}
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *c)
	}
	return chats, rows.Err()
}

// Rename sets the name of an owned chat
func (r *ChatRepository) Rename(ctx context.Context, ownerID, id uuid.UUID, name string, at time.Time) (*domain.Chat, error) {
	_, err := r.db.ExecContext(ctx,
		`UPDATE chats SET name = ?, updated_at = ? WHERE id = ? AND owner_id = ?`,
		name, millis(at), id.String(), ownerID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to rename chat: %w", err)
	}
	return r.GetOwned(ctx, ownerID, id)
}

// Delete removes an owned chat and its logs
func (r *ChatRepository) Delete(ctx context.Context, ownerID, id uuid.UUID) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id = ? AND owner_id = ?`, id.String(), ownerID.String())
	if err != nil {
		return false, fmt.Errorf("failed to delete chat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete chat: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	// Explicit cascade for connections opened without foreign key enforcement
	for _, table := range []string{"transcripts", "code_snippets"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE chat_id = ?`, id.String()); err != nil {
			return false, fmt.Errorf("failed to delete %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit delete: %w", err)
	}
	return true, nil
}

// Touch bumps updated_at
func (r *ChatRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE chats SET updated_at = ? WHERE id = ?`, millis(at), id.String())
	if err != nil {
		return fmt.Errorf("failed to touch chat: %w", err)
	}
	return nil
}

func scanChat(s scanner) (*domain.Chat, error) {
	var (
		c                    domain.Chat
		id, ownerID          string
		createdAt, updatedAt int64
	)
	err := s.Scan(&id, &ownerID, &c.Name, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan chat: %w", err)
	}

	if c.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid chat id %q: %w", id, err)
	}
	if c.OwnerID, err = uuid.Parse(ownerID); err != nil {
		return nil, fmt.Errorf("invalid owner id %q: %w", ownerID, err)
	}
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	c.Transcripts = []domain.Transcript{}
	c.CodeSnippets = []domain.CodeSnippet{}
	return &c, nil
}
