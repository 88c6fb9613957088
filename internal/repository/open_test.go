package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Rrens/codemuse/internal/config"
	"github.com/Rrens/codemuse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_SQLiteAutoMigrate(t *testing.T) {
	ctx := context.Background()
	cfg := config.DatabaseConfig{
		Driver:      config.DriverSQLite,
		SQLitePath:  filepath.Join(t.TempDir(), "codemuse.db"),
		AutoMigrate: true,
	}

	store, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Ping(ctx))
	require.NoError(t, store.Users.Create(ctx, &domain.User{Name: "Ada", Email: "ada@x.io", PasswordHash: "h"}))
}

func TestOpen_Memory(t *testing.T) {
	store, err := Open(context.Background(), config.DatabaseConfig{Driver: config.DriverMemory, AutoMigrate: true})
	require.NoError(t, err)
	assert.NotNil(t, store.Users)
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}
