package sqldb

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/Rrens/codemuse/internal/domain"
	"github.com/Rrens/codemuse/internal/repository/storetest"
	"github.com/Rrens/codemuse/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *domain.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "codemuse.db")
	require.NoError(t, migrations.Up("sqlite", "sqlite://"+path))

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := Open(context.Background(), SQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewStore(db)
}

func TestSQLiteStore(t *testing.T) {
	storetest.Run(t, newSQLiteStore)
}

func TestOpen_UnsupportedDialect(t *testing.T) {
	_, err := Open(context.Background(), Dialect("oracle"), "")
	assert.Error(t, err)
}
