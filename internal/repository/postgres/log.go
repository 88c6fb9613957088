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

// TranscriptRepository handles the transcript log
type TranscriptRepository struct {
	db *DB
}

// NewTranscriptRepository creates a new transcript repository
func NewTranscriptRepository(db *DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

// Append inserts a transcript; Seq comes from the BIGSERIAL column
func (r *TranscriptRepository) Append(ctx context.Context, t *domain.Transcript) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now

	query := `
		INSERT INTO transcripts (id, chat_id, author_id, text, audio_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING seq
	`

	err := r.db.Pool.QueryRow(ctx, query,
		t.ID,
		t.ChatID,
		t.AuthorID,
		t.Text,
		t.AudioKey,
		t.CreatedAt,
		t.UpdatedAt,
	).Scan(&t.Seq)
	if err != nil {
		return fmt.Errorf("failed to append transcript: %w", err)
	}

	return nil
}

// UpdateText overwrites a transcript's text in place
func (r *TranscriptRepository) UpdateText(ctx context.Context, chatID, id uuid.UUID, text string, at time.Time) (*domain.Transcript, error) {
	query := `
		UPDATE transcripts
		SET text = $3, updated_at = $4
		WHERE chat_id = $1 AND id = $2
		RETURNING id, chat_id, author_id, seq, text, audio_key, created_at, updated_at
	`
	return scanTranscript(r.db.Pool.QueryRow(ctx, query, chatID, id, text, at))
}

// ListByChat retrieves a chat's transcripts in seq order
func (r *TranscriptRepository) ListByChat(ctx context.Context, chatID uuid.UUID) ([]domain.Transcript, error) {
	query := `
		SELECT id, chat_id, author_id, seq, text, audio_key, created_at, updated_at
		FROM transcripts
		WHERE chat_id = $1
		ORDER BY seq
	`

	rows, err := r.db.Pool.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}
	defer rows.Close()

	transcripts := []domain.Transcript{}
	for rows.Next() {
		t, err := scanTranscript(rows)
		if err != nil {
			return nil, err
		}
		transcripts = append(transcripts, *t)
	}

	return transcripts, rows.Err()
}

// Latest retrieves the transcript with the highest seq
func (r *TranscriptRepository) Latest(ctx context.Context, chatID uuid.UUID) (*domain.Transcript, error) {
	query := `
		SELECT id, chat_id, author_id, seq, text, audio_key, created_at, updated_at
		FROM transcripts
		WHERE chat_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`
	return scanTranscript(r.db.Pool.QueryRow(ctx, query, chatID))
}

func scanTranscript(row pgx.Row) (*domain.Transcript, error) {
	var t domain.Transcript
	err := row.Scan(
		&t.ID,
		&t.ChatID,
		&t.AuthorID,
		&t.Seq,
		&t.Text,
		&t.AudioKey,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan transcript: %w", err)
	}
	return &t, nil
}

// SnippetRepository handles the code snippet log
type SnippetRepository struct {
	db *DB
}

// NewSnippetRepository creates a new snippet repository
func NewSnippetRepository(db *DB) *SnippetRepository {
	return &SnippetRepository{db: db}
}

// Append inserts a snippet; Seq comes from the BIGSERIAL column
func (r *SnippetRepository) Append(ctx context.Context, s *domain.CodeSnippet) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.Timestamp = time.Now().UTC()

	query := `
		INSERT INTO code_snippets (id, chat_id, language, code, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING seq
	`

	err := r.db.Pool.QueryRow(ctx, query,
		s.ID,
		s.ChatID,
		s.Language,
		s.Code,
		s.Timestamp,
	).Scan(&s.Seq)
	if err != nil {
		return fmt.Errorf("failed to append snippet: %w", err)
	}

	return nil
}

// ListByChat retrieves a chat's snippets in seq order
func (r *SnippetRepository) ListByChat(ctx context.Context, chatID uuid.UUID) ([]domain.CodeSnippet, error) {
	query := `
		SELECT id, chat_id, seq, language, code, created_at
		FROM code_snippets
		WHERE chat_id = $1
		ORDER BY seq
	`

	rows, err := r.db.Pool.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snippets: %w", err)
	}
	defer rows.Close()

	snippets := []domain.CodeSnippet{}
	for rows.Next() {
		s, err := scanSnippet(rows)
		if err != nil {
			return nil, err
		}
		snippets = append(snippets, *s)
	}

	return snippets, rows.Err()
}

// Latest retrieves the snippet with the highest seq
func (r *SnippetRepository) Latest(ctx context.Context, chatID uuid.UUID) (*domain.CodeSnippet, error) {
	query := `
		SELECT id, chat_id, seq, language, code, created_at
		FROM code_snippets
		WHERE chat_id = $1
		ORDER BY seq DESC
		LIMIT 1
	`
	return scanSnippet(r.db.Pool.QueryRow(ctx, query, chatID))
}

func scanSnippet(row pgx.Row) (*domain.CodeSnippet, error) {
	var s domain.CodeSnippet
	err := row.Scan(
		&s.ID,
		&s.ChatID,
		&s.Seq,
		&s.Language,
		&s.Code,
		&s.Timestamp,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan snippet: %w", err)
	}
	return &s, nil
}
