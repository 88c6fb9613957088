package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("SPEECH_URL", "http://speech:8000/transcribe")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/api", cfg.Server.BasePath)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.RecordingTTL)
	assert.Equal(t, "memory", cfg.Pipeline.LockBackend)
	assert.Equal(t, "secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "http://speech:8000/transcribe", cfg.Speech.URL)
	assert.False(t, cfg.Storage.S3.Enabled())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: 9090
  base_path: ""
database:
  driver: sqlite
  sqlite_path: /tmp/codemuse.db
auth:
  jwt_secret: from-file
pipeline:
  recording_ttl: 30s
storage:
  s3:
    bucket: audio
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "", cfg.Server.BasePath)
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "from-file", cfg.Auth.JWTSecret)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.RecordingTTL)
	assert.True(t, cfg.Storage.S3.Enabled())
	assert.Equal(t, "sqlite:///tmp/codemuse.db", cfg.Database.MigrateURL())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Auth:     AuthConfig{JWTSecret: "s"},
			Database: DatabaseConfig{Driver: DriverMemory},
			Pipeline: PipelineConfig{LockBackend: "memory"},
		}
	}

	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Auth.JWTSecret = ""
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Database.Driver = "oracle"
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.Pipeline.LockBackend = "redis"
	assert.Error(t, cfg.Validate())

	cfg.Redis.Enabled = true
	assert.NoError(t, cfg.Validate())
}

func TestDatabaseConfig_DSN(t *testing.T) {
	pg := DatabaseConfig{Driver: DriverPostgres, User: "u", Password: "p", Host: "h", Port: 5432, Database: "d", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", pg.DSN())

	my := DatabaseConfig{Driver: DriverMySQL, User: "u", Password: "p", Host: "h", Port: 3306, Database: "d"}
	assert.Equal(t, "u:p@tcp(h:3306)/d?parseTime=true&multiStatements=true", my.DSN())
	assert.Equal(t, "mysql://u:p@tcp(h:3306)/d?parseTime=true&multiStatements=true", my.MigrateURL())
}
