// Package mongo stores users, chats and their logs in MongoDB. Each log
// entry is its own document; a per-chat counter document assigns Seq.
package mongo

import (
	"context"
	"fmt"
	"time"

	"github.com/Rrens/codemuse/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection       = "users"
	chatsCollection       = "chats"
	transcriptsCollection = "transcripts"
	snippetsCollection    = "code_snippets"
	countersCollection    = "counters"
)

// DB holds the client and database handle
type DB struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials MongoDB, verifies connectivity and ensures indexes
func Connect(ctx context.Context, uri, database string) (*DB, error) {
	clientOpts := options.Client().ApplyURI(uri).SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping: %w", err)
	}

	d := &DB{client: client, db: client.Database(database)}
	if err := d.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return d, nil
}

func (d *DB) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		chatsCollection: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "updated_at", Value: -1}}},
		},
		transcriptsCollection: {
			{Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "seq", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		snippetsCollection: {
			{Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "seq", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}

	for name, models := range indexes {
		if _, err := d.db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create %s indexes: %w", name, err)
		}
	}
	return nil
}

// Ping verifies connectivity
func (d *DB) Ping(ctx context.Context) error {
	return d.client.Ping(ctx, nil)
}

// Close disconnects the client
func (d *DB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return d.client.Disconnect(ctx)
}

// NewStore wires the MongoDB repositories
func NewStore(d *DB) *domain.Store {
	return &domain.Store{
		Users:       &UserRepository{coll: d.db.Collection(usersCollection)},
		Chats:       &ChatRepository{db: d.db},
		Transcripts: &TranscriptRepository{db: d.db},
		Snippets:    &SnippetRepository{db: d.db},
		Ping:        d.Ping,
		Close:       d.Close,
	}
}

// nextSeq atomically increments the chat's counter
func nextSeq(ctx context.Context, db *mongo.Database, chatID string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := db.Collection(countersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": chatID},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to assign seq: %w", err)
	}
	return counter.Seq, nil
}
