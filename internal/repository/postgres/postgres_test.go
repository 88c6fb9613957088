package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/Rrens/codemuse/internal/domain"
	"github.com/Rrens/codemuse/internal/repository/storetest"
	"github.com/Rrens/codemuse/migrations"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

// Runs against a disposable database named by POSTGRES_TEST_DSN
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	require.NoError(t, migrations.Up("postgres", dsn))

	storetest.Run(t, func(t *testing.T) *domain.Store {
		ctx := context.Background()
		pool, err := pgxpool.New(ctx, dsn)
		require.NoError(t, err)
		t.Cleanup(pool.Close)

		_, err = pool.Exec(ctx, `TRUNCATE code_snippets, transcripts, chats, users CASCADE`)
		require.NoError(t, err)

		return NewStore(&DB{Pool: pool})
	})
}
