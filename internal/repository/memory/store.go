// Package memory is an in-process storage backend used by tests and the
// "memory" database driver.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Rrens/codemuse/internal/domain"
	"github.com/google/uuid"
)

type db struct {
	mu          sync.RWMutex
	users       map[uuid.UUID]domain.User
	chats       map[uuid.UUID]domain.Chat
	transcripts map[uuid.UUID][]domain.Transcript
	snippets    map[uuid.UUID][]domain.CodeSnippet
	seq         map[uuid.UUID]int64
}

// NewStore creates an empty in-memory store
func NewStore() *domain.Store {
	d := &db{
		users:       make(map[uuid.UUID]domain.User),
		chats:       make(map[uuid.UUID]domain.Chat),
		transcripts: make(map[uuid.UUID][]domain.Transcript),
		snippets:    make(map[uuid.UUID][]domain.CodeSnippet),
		seq:         make(map[uuid.UUID]int64),
	}
	return &domain.Store{
		Users:       &UserRepository{db: d},
		Chats:       &ChatRepository{db: d},
		Transcripts: &TranscriptRepository{db: d},
		Snippets:    &SnippetRepository{db: d},
		Ping:        func(context.Context) error { return nil },
		Close:       func() error { return nil },
	}
}

// nextSeq must be called with mu held for writing
func (d *db) nextSeq(chatID uuid.UUID) int64 {
	d.seq[chatID]++
	return d.seq[chatID]
}

// UserRepository implements domain.UserRepository
type UserRepository struct {
	db *db
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, u := range r.db.users {
		if u.Email == user.Email {
			return domain.ErrDuplicateEmail
		}
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.db.users[user.ID] = *user
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	u, ok := r.db.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, u := range r.db.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.users[user.ID]; !ok {
		return domain.ErrUserNotFound
	}
	user.UpdatedAt = time.Now().UTC()
	r.db.users[user.ID] = *user
	return nil
}

func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	users := make([]domain.User, 0, len(r.db.users))
	for _, u := range r.db.users {
		if u.Active() {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// ChatRepository implements domain.ChatRepository
type ChatRepository struct {
	db *db
}

func (r *ChatRepository) Create(ctx context.Context, chat *domain.Chat) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if chat.ID == uuid.Nil {
		chat.ID = uuid.New()
	}
	now := time.Now().UTC()
	chat.CreatedAt = now
	chat.UpdatedAt = now
	chat.Transcripts = []domain.Transcript{}
	chat.CodeSnippets = []domain.CodeSnippet{}
	r.db.chats[chat.ID] = *chat
	return nil
}

func (r *ChatRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Chat, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	c, ok := r.db.chats[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (r *ChatRepository) GetOwned(ctx context.Context, ownerID, id uuid.UUID) (*domain.Chat, error) {
	c, err := r.Get(ctx, id)
	if err != nil || c == nil || c.OwnerID != ownerID {
		return nil, err
	}
	return c, nil
}

func (r *ChatRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Chat, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	chats := []domain.Chat{}
	for _, c := range r.db.chats {
		if c.OwnerID == ownerID {
			chats = append(chats, c)
		}
	}
	sort.Slice(chats, func(i, j int) bool {
		if chats[i].UpdatedAt.Equal(chats[j].UpdatedAt) {
			return chats[i].ID.String() < chats[j].ID.String()
		}
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
	return chats, nil
}

func (r *ChatRepository) Rename(ctx context.Context, ownerID, id uuid.UUID, name string, at time.Time) (*domain.Chat, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	c, ok := r.db.chats[id]
	if !ok || c.OwnerID != ownerID {
		return nil, nil
	}
	c.Name = name
	c.UpdatedAt = at
	r.db.chats[id] = c
	return &c, nil
}

func (r *ChatRepository) Delete(ctx context.Context, ownerID, id uuid.UUID) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	c, ok := r.db.chats[id]
	if !ok || c.OwnerID != ownerID {
		return false, nil
	}
	delete(r.db.chats, id)
	delete(r.db.transcripts, id)
	delete(r.db.snippets, id)
	delete(r.db.seq, id)
	return true, nil
}

func (r *ChatRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if c, ok := r.db.chats[id]; ok {
		c.UpdatedAt = at
		r.db.chats[id] = c
	}
	return nil
}

// TranscriptRepository implements domain.TranscriptRepository
type TranscriptRepository struct {
	db *db
}

func (r *TranscriptRepository) Append(ctx context.Context, t *domain.Transcript) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.chats[t.ChatID]; !ok {
		return domain.ErrChatNotFound
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := time.Now().UTC()
	t.Seq = r.db.nextSeq(t.ChatID)
	t.CreatedAt = now
	t.UpdatedAt = now
	r.db.transcripts[t.ChatID] = append(r.db.transcripts[t.ChatID], *t)
	return nil
}

func (r *TranscriptRepository) UpdateText(ctx context.Context, chatID, id uuid.UUID, text string, at time.Time) (*domain.Transcript, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	list := r.db.transcripts[chatID]
	for i := range list {
		if list[i].ID == id {
			list[i].Text = text
			list[i].UpdatedAt = at
			t := list[i]
			return &t, nil
		}
	}
	return nil, nil
}

func (r *TranscriptRepository) ListByChat(ctx context.Context, chatID uuid.UUID) ([]domain.Transcript, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := make([]domain.Transcript, len(r.db.transcripts[chatID]))
	copy(out, r.db.transcripts[chatID])
	return out, nil
}

func (r *TranscriptRepository) Latest(ctx context.Context, chatID uuid.UUID) (*domain.Transcript, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	list := r.db.transcripts[chatID]
	if len(list) == 0 {
		return nil, nil
	}
	t := list[len(list)-1]
	return &t, nil
}

// SnippetRepository implements domain.SnippetRepository
type SnippetRepository struct {
	db *db
}

func (r *SnippetRepository) Append(ctx context.Context, s *domain.CodeSnippet) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, ok := r.db.chats[s.ChatID]; !ok {
		return domain.ErrChatNotFound
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.Seq = r.db.nextSeq(s.ChatID)
	s.Timestamp = time.Now().UTC()
	r.db.snippets[s.ChatID] = append(r.db.snippets[s.ChatID], *s)
	return nil
}

func (r *SnippetRepository) ListByChat(ctx context.Context, chatID uuid.UUID) ([]domain.CodeSnippet, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := make([]domain.CodeSnippet, len(r.db.snippets[chatID]))
	copy(out, r.db.snippets[chatID])
	return out, nil
}

func (r *SnippetRepository) Latest(ctx context.Context, chatID uuid.UUID) (*domain.CodeSnippet, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	list := r.db.snippets[chatID]
	if len(list) == 0 {
		return nil, nil
	}
	s := list[len(list)-1]
	return &s, nil
}
