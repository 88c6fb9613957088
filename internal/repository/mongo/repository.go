package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/codemuse/internal/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type userDoc struct {
	ID           string     `bson:"_id"`
	Name         string     `bson:"name"`
	Email        string     `bson:"email"`
	PasswordHash string     `bson:"password_hash"`
	CreatedAt    time.Time  `bson:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at"`
	DeletedAt    *time.Time `bson:"deleted_at,omitempty"`
}

type chatDoc struct {
	ID        string    `bson:"_id"`
	OwnerID   string    `bson:"owner_id"`
	Name      string    `bson:"name"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type transcriptDoc struct {
	ID        string    `bson:"_id"`
	ChatID    string    `bson:"chat_id"`
	AuthorID  string    `bson:"author_id"`
	Seq       int64     `bson:"seq"`
	Text      string    `bson:"text"`
	AudioKey  string    `bson:"audio_key,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type snippetDoc struct {
	ID        string    `bson:"_id"`
	ChatID    string    `bson:"chat_id"`
	Seq       int64     `bson:"seq"`
	Language  string    `bson:"language"`
	Code      string    `bson:"code"`
	CreatedAt time.Time `bson:"created_at"`
}

// UserRepository implements domain.UserRepository
type UserRepository struct {
	coll *mongo.Collection
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.coll.InsertOne(ctx, toUserDoc(user))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()})
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var doc userDoc
	err := r.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return doc.toDomain()
}

func (r *UserRepository) Update(ctx context.Context, user *domain.User) error {
	user.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)

	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": user.ID.String()}, toUserDoc(user))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

func (r *UserRepository) List(ctx context.Context) ([]domain.User, error) {
	cursor, err := r.coll.Find(ctx,
		bson.M{"deleted_at": bson.M{"$exists": false}},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}

	users := make([]domain.User, 0, len(docs))
	for _, doc := range docs {
		u, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, nil
}

// ChatRepository implements domain.ChatRepository
type ChatRepository struct {
	db *mongo.Database
}

func (r *ChatRepository) coll() *mongo.Collection {
	return r.db.Collection(chatsCollection)
}

func (r *ChatRepository) Create(ctx context.Context, chat *domain.Chat) error {
	if chat.ID == uuid.Nil {
		chat.ID = uuid.New()
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	chat.CreatedAt = now
	chat.UpdatedAt = now
	chat.Transcripts = []domain.Transcript{}
	chat.CodeSnippets = []domain.CodeSnippet{}

	_, err := r.coll().InsertOne(ctx, chatDoc{
		ID:        chat.ID.String(),
		OwnerID:   chat.OwnerID.String(),
		Name:      chat.Name,
		CreatedAt: chat.CreatedAt,
		UpdatedAt: chat.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to create chat: %w", err)
	}
	return nil
}

func (r *ChatRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Chat, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()})
}

func (r *ChatRepository) GetOwned(ctx context.Context, ownerID, id uuid.UUID) (*domain.Chat, error) {
	return r.findOne(ctx, bson.M{"_id": id.String(), "owner_id": ownerID.String()})
}

func (r *ChatRepository) findOne(ctx context.Context, filter bson.M) (*domain.Chat, error) {
	var doc chatDoc
	err := r.coll().FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return doc.toDomain()
}

func (r *ChatRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Chat, error) {
	cursor, err := r.coll().Find(ctx,
		bson.M{"owner_id": ownerID.String()},
		options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}

	var docs []chatDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode chats: %w", err)
	}

	chats := make([]domain.Chat, 0, len(docs))
	for _, doc := range docs {
		c, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		chats = append(chats, *c)
	}
	return chats, nil
}

func (r *ChatRepository) Rename(ctx context.Context, ownerID, id uuid.UUID, name string, at time.Time) (*domain.Chat, error) {
	var doc chatDoc
	err := r.coll().FindOneAndUpdate(ctx,
		bson.M{"_id": id.String(), "owner_id": ownerID.String()},
		bson.M{"$set": bson.M{"name": name, "updated_at": at}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to rename chat: %w", err)
	}
	return doc.toDomain()
}

func (r *ChatRepository) Delete(ctx context.Context, ownerID, id uuid.UUID) (bool, error) {
	res, err := r.coll().DeleteOne(ctx, bson.M{"_id": id.String(), "owner_id": ownerID.String()})
	if err != nil {
		return false, fmt.Errorf("failed to delete chat: %w", err)
	}
	if res.DeletedCount == 0 {
		return false, nil
	}

	byChat := bson.M{"chat_id": id.String()}
	for _, name := range []string{transcriptsCollection, snippetsCollection} {
		if _, err := r.db.Collection(name).DeleteMany(ctx, byChat); err != nil {
			return true, fmt.Errorf("failed to delete %s: %w", name, err)
		}
	}
	if _, err := r.db.Collection(countersCollection).DeleteOne(ctx, bson.M{"_id": id.String()}); err != nil {
		return true, fmt.Errorf("failed to delete counter: %w", err)
	}
	return true, nil
}

func (r *ChatRepository) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.coll().UpdateOne(ctx, bson.M{"_id": id.String()}, bson.M{"$set": bson.M{"updated_at": at}})
	if err != nil {
		return fmt.Errorf("failed to touch chat: %w", err)
	}
	return nil
}

// TranscriptRepository implements domain.TranscriptRepository
type TranscriptRepository struct {
	db *mongo.Database
}

func (r *TranscriptRepository) coll() *mongo.Collection {
	return r.db.Collection(transcriptsCollection)
}

func (r *TranscriptRepository) Append(ctx context.Context, t *domain.Transcript) error {
	seq, err := nextSeq(ctx, r.db, t.ChatID.String())
	if err != nil {
		return err
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	t.Seq = seq
	t.CreatedAt = now
	t.UpdatedAt = now

	_, err = r.coll().InsertOne(ctx, transcriptDoc{
		ID:        t.ID.String(),
		ChatID:    t.ChatID.String(),
		AuthorID:  t.AuthorID.String(),
		Seq:       t.Seq,
		Text:      t.Text,
		AudioKey:  t.AudioKey,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to append transcript: %w", err)
	}
	return nil
}

func (r *TranscriptRepository) UpdateText(ctx context.Context, chatID, id uuid.UUID, text string, at time.Time) (*domain.Transcript, error) {
	var doc transcriptDoc
	err := r.coll().FindOneAndUpdate(ctx,
		bson.M{"_id": id.String(), "chat_id": chatID.String()},
		bson.M{"$set": bson.M{"text": text, "updated_at": at}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update transcript: %w", err)
	}
	return doc.toDomain()
}

func (r *TranscriptRepository) ListByChat(ctx context.Context, chatID uuid.UUID) ([]domain.Transcript, error) {
	cursor, err := r.coll().Find(ctx,
		bson.M{"chat_id": chatID.String()},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transcripts: %w", err)
	}

	var docs []transcriptDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode transcripts: %w", err)
	}

	out := make([]domain.Transcript, 0, len(docs))
	for _, doc := range docs {
		t, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, nil
}

func (r *TranscriptRepository) Latest(ctx context.Context, chatID uuid.UUID) (*domain.Transcript, error) {
	var doc transcriptDoc
	err := r.coll().FindOne(ctx,
		bson.M{"chat_id": chatID.String()},
		options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest transcript: %w", err)
	}
	return doc.toDomain()
}

// SnippetRepository implements domain.SnippetRepository
type SnippetRepository struct {
	db *mongo.Database
}

func (r *SnippetRepository) coll() *mongo.Collection {
	return r.db.Collection(snippetsCollection)
}

func (r *SnippetRepository) Append(ctx context.Context, s *domain.CodeSnippet) error {
	seq, err := nextSeq(ctx, r.db, s.ChatID.String())
	if err != nil {
		return err
	}
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	s.Seq = seq
	s.Timestamp = time.Now().UTC().Truncate(time.Millisecond)

	_, err = r.coll().InsertOne(ctx, snippetDoc{
		ID:        s.ID.String(),
		ChatID:    s.ChatID.String(),
		Seq:       s.Seq,
		Language:  s.Language,
		Code:      s.Code,
		CreatedAt: s.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to append snippet: %w", err)
	}
	return nil
}

func (r *SnippetRepository) ListByChat(ctx context.Context, chatID uuid.UUID) ([]domain.CodeSnippet, error) {
	cursor, err := r.coll().Find(ctx,
		bson.M{"chat_id": chatID.String()},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list snippets: %w", err)
	}

	var docs []snippetDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode snippets: %w", err)
	}

	out := make([]domain.CodeSnippet, 0, len(docs))
	for _, doc := range docs {
		s, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, nil
}

func (r *SnippetRepository) Latest(ctx context.Context, chatID uuid.UUID) (*domain.CodeSnippet, error) {
	var doc snippetDoc
	err := r.coll().FindOne(ctx,
		bson.M{"chat_id": chatID.String()},
		options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest snippet: %w", err)
	}
	return doc.toDomain()
}

func toUserDoc(u *domain.User) userDoc {
	return userDoc{
		ID:           u.ID.String(),
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
		DeletedAt:    u.DeletedAt,
	}
}

func (d userDoc) toDomain() (*domain.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", d.ID, err)
	}
	return &domain.User{
		ID:           id,
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
		DeletedAt:    d.DeletedAt,
	}, nil
}

func (d chatDoc) toDomain() (*domain.Chat, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid chat id %q: %w", d.ID, err)
	}
	ownerID, err := uuid.Parse(d.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("invalid owner id %q: %w", d.OwnerID, err)
	}
	return &domain.Chat{
		ID:           id,
		OwnerID:      ownerID,
		Name:         d.Name,
		Transcripts:  []domain.Transcript{},
		CodeSnippets: []domain.CodeSnippet{},
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}, nil
}

func (d transcriptDoc) toDomain() (*domain.Transcript, error) {
	var (
		t   = domain.Transcript{Seq: d.Seq, Text: d.Text, AudioKey: d.AudioKey, CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt}
		err error
	)
	if t.ID, err = uuid.Parse(d.ID); err != nil {
		return nil, fmt.Errorf("invalid transcript id %q: %w", d.ID, err)
	}
	if t.ChatID, err = uuid.Parse(d.ChatID); err != nil {
		return nil, fmt.Errorf("invalid chat id %q: %w", d.ChatID, err)
	}
	if t.AuthorID, err = uuid.Parse(d.AuthorID); err != nil {
		return nil, fmt.Errorf("invalid author id %q: %w", d.AuthorID, err)
	}
	return &t, nil
}

func (d snippetDoc) toDomain() (*domain.CodeSnippet, error) {
	var (
		s   = domain.CodeSnippet{Seq: d.Seq, Language: d.Language, Code: d.Code, Timestamp: d.CreatedAt}
		err error
	)
	if s.ID, err = uuid.Parse(d.ID); err != nil {
		return nil, fmt.Errorf("invalid snippet id %q: %w", d.ID, err)
	}
	if s.ChatID, err = uuid.Parse(d.ChatID); err != nil {
		return nil, fmt.Errorf("invalid chat id %q: %w", d.ChatID, err)
	}
	return &s, nil
}
