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

const (
	transcriptColumns = `seq, id, chat_id, author_id, text, audio_key, created_at, updated_at`
	snippetColumns    = `seq, id, chat_id, language, code, created_at`
)

// TranscriptRepository implements domain.TranscriptRepository
type TranscriptRepository struct {
	db *DB
}

// NewTranscriptRepository creates a new transcript repository
func NewTranscriptRepository(db *DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

// Append inserts a transcript; the auto-increment key becomes its Seq
func (r *TranscriptRepository) Append(ctx context.Context, t *domain.Transcript) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	ts := now()
	t.CreatedAt = ts
	t.UpdatedAt = ts

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO transcripts (id, chat_id, author_id, text, audio_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.ChatID.String(), t.AuthorID.String(), t.Text, t.AudioKey, millis(ts), millis(ts),
	)
	if err != nil {
		return fmt.Errorf("failed to append transcript: %w", err)
	}

	if t.Seq, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read transcript seq: %w", err)
	}
	return nil
}

// UpdateText overwrites the text of a transcript within a chat
func (r *TranscriptRepository) UpdateText(ctx context.Context, chatID, id uuid.UUID, text string, at time.Time) (*domain.Transcript, error) {
	_, err := r.db.ExecContext(ctx,
		`UPDATE transcripts SET text = ?, updated_at = ? WHERE chat_id = ? AND id = ?`,
		text, millis(at), chatID.String(), id.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update transcript: %w", err)
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT `+transcriptColumns+` FROM transcripts WHERE chat_id = ? AND id = ?`,
		chatID.String(), id.String(),
	)
	return scanTranscript(row)
}

// ListByChat returns a chat's transcripts in seq order
func (r *TranscriptRepository) ListByChat(ctx context.Context, chatID uuid.UUID) ([]domain.Transcript, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transcriptColumns+` FROM transcripts WHERE chat_id = ? ORDER BY seq`,
		chatID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	defer rows.Close()

	out := []domain.Transcript{}
	for rows.Next() {
		t, err := scanTranscript(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// Latest returns the transcript with the highest seq
func (r *TranscriptRepository) Latest(ctx context.Context, chatID uuid.UUID) (*domain.Transcript, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transcriptColumns+` FROM transcripts WHERE chat_id = ? ORDER BY seq DESC LIMIT 1`,
		chatID.String(),
	)
	return scanTranscript(row)
}

func scanTranscript(s scanner) (*domain.Transcript, error) {
	var (
		t                    domain.Transcript
		id, chatID, authorID string
		createdAt, updatedAt int64
	)
	err := s.Scan(&t.Seq, &id, &chatID, &authorID, &t.Text, &t.AudioKey, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transcript: %w", err)
	}

	if t.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid transcript id %q: %w", id, err)
	}
	if t.ChatID, err = uuid.Parse(chatID); err != nil {
		return nil, fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}
	if t.AuthorID, err = uuid.Parse(authorID); err != nil {
		return nil, fmt.Errorf("invalid author id %q: %w", authorID, err)
	}
	t.CreatedAt = fromMillis(createdAt)
	t.UpdatedAt = fromMillis(updatedAt)
	return &t, nil
}

// SnippetRepository implements domain.SnippetRepository
type SnippetRepository struct {
	db *DB
}

// NewSnippetRepository creates a new snippet repository
func NewSnippetRepository(db *DB) *SnippetRepository {
	return &SnippetRepository{db: db}
}

// Append inserts a snippet; the auto-increment key becomes its Seq
func (r *SnippetRepository) Append(ctx context.Context, s *domain.CodeSnippet) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.Timestamp = now()

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO code_snippets (id, chat_id, language, code, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		s.ID.String(), s.ChatID.String(), s.Language, s.Code, millis(s.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to append snippet: %w", err)
	}

	if s.Seq, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read snippet seq: %w", err)
	}
	return nil
}

// ListByChat returns a chat's snippets in seq order
func (r *SnippetRepository) ListByChat(ctx context.Context, chatID uuid.UUID) ([]domain.CodeSnippet, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+snippetColumns+` FROM code_snippets WHERE chat_id = ? ORDER BY seq`,
		chatID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list snippets: %w", err)
	}
	defer rows.Close()

	out := []domain.CodeSnippet{}
	for rows.Next() {
		s, err := scanSnippet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Latest returns the snippet with the highest seq
func (r *SnippetRepository) Latest(ctx context.Context, chatID uuid.UUID) (*domain.CodeSnippet, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+snippetColumns+` FROM code_snippets WHERE chat_id = ? ORDER BY seq DESC LIMIT 1`,
		chatID.String(),
	)
	return scanSnippet(row)
}

func scanSnippet(sc scanner) (*domain.CodeSnippet, error) {
	var (
		s          domain.CodeSnippet
		id, chatID string
		createdAt  int64
	)
	err := sc.Scan(&s.Seq, &id, &chatID, &s.Language, &s.Code, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan snippet: %w", err)
	}

	if s.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid snippet id %q: %w", id, err)
	}
	if s.ChatID, err = uuid.Parse(chatID); err != nil {
		return nil, fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}
	s.Timestamp = fromMillis(createdAt)
	return &s, nil
}
