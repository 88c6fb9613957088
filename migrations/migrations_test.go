package migrations

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUp_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codemuse.db")

	require.NoError(t, Up("sqlite", "sqlite://"+path))
	// Second run is a no-op
	require.NoError(t, Up("sqlite", "sqlite://"+path))

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"users", "chats", "transcripts", "code_snippets"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		assert.NoError(t, err, table)
	}
}

func TestNew_UnknownDialect(t *testing.T) {
	_, err := New("oracle", "oracle://nowhere")
	assert.Error(t, err)
}
