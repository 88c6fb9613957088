// Package sqldb stores users, chats and their logs in MySQL or SQLite
// through database/sql. Timestamps are stored as Unix milliseconds.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/codemuse/internal/domain"
	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect names a supported database/sql driver
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

// DB wraps a database/sql pool
type DB struct {
	*sql.DB
	dialect Dialect
}

// Open connects to the database and verifies connectivity
func Open(ctx context.Context, dialect Dialect, dsn string) (*DB, error) {
	switch dialect {
	case MySQL, SQLite:
	default:
		return nil, fmt.Errorf("unsupported dialect: %q", dialect)
	}

	pool, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == SQLite {
		// SQLite allows a single writer
		pool.SetMaxOpenConns(1)
	}

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: pool, dialect: dialect}, nil
}

// Dialect returns the driver in use
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// NewStore wires the repositories of this backend
func NewStore(db *DB) *domain.Store {
	return &domain.Store{
		Users:       NewUserRepository(db),
		Chats:       NewChatRepository(db),
		Transcripts: NewTranscriptRepository(db),
		Snippets:    NewSnippetRepository(db),
		Ping:        db.PingContext,
		Close:       db.Close,
	}
}

func isUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}

type scanner interface {
	Scan(dest ...any) error
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
